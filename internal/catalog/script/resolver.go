package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Reader reads module source by slash-separated path
	Reader interface {
		Read(ctx context.Context, path string) ([]byte, error)
	}

	// Resolver resolves ".lua" module refs into handler modules. Sources
	// are compiled once and shared by every handler call
	Resolver struct {
		reader   Reader
		notFound error
		env      *luaEnv
	}
)

// Extension is the module ref suffix the Resolver handles
const Extension = ".lua"

// NewResolver creates a Resolver reading sources through reader. A read
// error matching notFound is reported as api.ErrModuleNotFound
func NewResolver(reader Reader, notFound error) *Resolver {
	return &Resolver{
		reader:   reader,
		notFound: notFound,
		env:      newLuaEnv(),
	}
}

// Resolve loads the Lua module at ref. Refs without the Lua extension are
// reported as not found so that a resolver chain can move on
func (r *Resolver) Resolve(ctx context.Context, ref string) (*api.Module, error) {
	if !strings.HasSuffix(ref, Extension) {
		return nil, fmt.Errorf("%w: %s", api.ErrModuleNotFound, ref)
	}
	src, err := r.reader.Read(ctx, ref)
	if err != nil {
		if r.notFound != nil && errors.Is(err, r.notFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrModuleNotFound, ref)
		}
		return nil, err
	}

	mod, err := r.env.compile(ref, src)
	if err != nil {
		return nil, err
	}

	handlers := make(api.Handlers, len(mod.handlers))
	for _, name := range mod.handlers {
		handlers[name] = r.handler(mod, name)
	}
	slog.Debug("Lua module resolved",
		slog.String("ref", ref),
		slog.Int("handlers", len(handlers)))
	return &api.Module{Ref: ref, Handlers: handlers}, nil
}

func (r *Resolver) handler(mod *compiledModule, name string) api.Handler {
	return func(ctx context.Context, p api.Payload) (api.Payload, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r.env.call(mod, name, p)
	}
}
