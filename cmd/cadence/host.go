package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/builder"
	"github.com/kode4food/cadence/pkg/log"
)

const (
	hostPluginID   api.TargetID = "host"
	hostPackage                 = "host"
	hostModuleRef               = "host/runtime"
	hostHandlersMod             = "handlers"
)

// hostPlugin provides the sequences compiled into the host itself. It is
// registered through its runtime export rather than a catalog
func hostPlugin() *builder.Plugin {
	return builder.NewPlugin(hostPluginID).
		Handle("log", logPayload).
		Sequence(builder.NewSequence("Host Log").
			WithCategory("diagnostics").
			Movement("record").
			Beat("host:log", "log"),
		)
}

func logPayload(_ context.Context, p api.Payload) (api.Payload, error) {
	slog.Info("Host event",
		log.TargetID(hostPluginID),
		slog.Any("payload", p))
	return nil, nil
}

// loadHostPackage serves deep refs under the host package, so catalog
// entries can name "host/handlers" to reuse the host's handlers
func loadHostPackage(_ context.Context, subpath string) (*api.Module, error) {
	if subpath != hostHandlersMod {
		return nil, fmt.Errorf("%w: %s/%s",
			api.ErrModuleNotFound, hostPackage, subpath)
	}
	return &api.Module{Handlers: hostPlugin().Module().Handlers}, nil
}
