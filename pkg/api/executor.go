package api

import (
	"context"
	"errors"
	"maps"
	"slices"
)

type (
	// Executor is the runtime that performs mounted operations. Invoke
	// should start the operation and return without waiting for it to
	// finish
	Executor interface {
		Invoke(context.Context, TargetID, OperationID, Payload) error
		Mount(context.Context, *Sequence, Handlers, TargetID) error
	}

	// DiscoveryRecorder is implemented by executors that keep the list of
	// discovered targets for introspection
	DiscoveryRecorder interface {
		RecordDiscovery([]TargetID)
	}

	// Handler implements a single beat. The returned payload, when not nil,
	// is merged into the payload passed to the next beat
	Handler func(context.Context, Payload) (Payload, error)

	// Handlers maps handler names to their implementations
	Handlers map[string]Handler

	// RegisterFunc is a plugin's runtime registration export
	RegisterFunc func(context.Context, Executor) error

	// Module is a resolved handler module
	Module struct {
		Handlers Handlers
		Exports  map[string]RegisterFunc
		Ref      string
	}
)

var (
	ErrNoExecutor      = errors.New("no executor available")
	ErrModuleNotFound  = errors.New("module not found")
	ErrMissingHandlers = errors.New("module has no handlers export")
	ErrMissingExport   = errors.New("module export not found")
)

// Names returns the sorted handler names
func (h Handlers) Names() []string {
	return slices.Sorted(maps.Keys(h))
}
