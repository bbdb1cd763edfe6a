package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// ModuleResolver turns a handlers reference into a loaded module
	ModuleResolver interface {
		Resolve(ctx context.Context, ref string) (*api.Module, error)
	}

	// ModuleLoader produces a module compiled into the host
	ModuleLoader func(ctx context.Context) (*api.Module, error)

	// PackageLoader produces the module found at subpath within a vendor
	// package. subpath is empty for the package root
	PackageLoader func(ctx context.Context, subpath string) (*api.Module, error)

	// StaticResolver resolves exact refs from a table of known loaders
	StaticResolver struct {
		mu      sync.RWMutex
		loaders map[string]ModuleLoader
	}

	// VendorResolver resolves deep refs by the longest registered package
	// prefix, handing the remainder of the ref to that package's loader
	VendorResolver struct {
		mu       sync.RWMutex
		packages map[string]PackageLoader
	}

	// ChainResolver tries each resolver in order, moving on when a module
	// is not found
	ChainResolver []ModuleResolver
)

var (
	_ ModuleResolver = (*StaticResolver)(nil)
	_ ModuleResolver = (*VendorResolver)(nil)
	_ ModuleResolver = ChainResolver(nil)
)

// NewStaticResolver creates an empty StaticResolver
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{loaders: map[string]ModuleLoader{}}
}

// Register binds a loader to an exact ref
func (r *StaticResolver) Register(ref string, load ModuleLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[ref] = load
}

// RegisterModule binds an already built module to an exact ref
func (r *StaticResolver) RegisterModule(ref string, mod *api.Module) {
	r.Register(ref, func(context.Context) (*api.Module, error) {
		return mod, nil
	})
}

// Resolve runs the loader registered for ref
func (r *StaticResolver) Resolve(
	ctx context.Context, ref string,
) (*api.Module, error) {
	r.mu.RLock()
	load, ok := r.loaders[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrModuleNotFound, ref)
	}
	return withRef(load(ctx))(ref)
}

// NewVendorResolver creates an empty VendorResolver
func NewVendorResolver() *VendorResolver {
	return &VendorResolver{packages: map[string]PackageLoader{}}
}

// Register binds a loader to a package prefix such as "@acme/canvas"
func (r *VendorResolver) Register(pkg string, load PackageLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[strings.TrimSuffix(pkg, "/")] = load
}

// Resolve finds the longest package prefix of ref that ends on a path
// boundary and loads the remainder from it
func (r *VendorResolver) Resolve(
	ctx context.Context, ref string,
) (*api.Module, error) {
	pkg, load, ok := r.lookup(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrModuleNotFound, ref)
	}
	sub := strings.TrimPrefix(strings.TrimPrefix(ref, pkg), "/")
	return withRef(load(ctx, sub))(ref)
}

func (r *VendorResolver) lookup(ref string) (string, PackageLoader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p := strings.TrimSuffix(ref, "/"); p != ""; {
		if load, ok := r.packages[p]; ok {
			return p, load, true
		}
		i := strings.LastIndex(p, "/")
		if i < 0 {
			break
		}
		p = p[:i]
	}
	return "", nil, false
}

// Resolve returns the module from the first resolver that knows ref
func (c ChainResolver) Resolve(
	ctx context.Context, ref string,
) (*api.Module, error) {
	for _, r := range c {
		mod, err := r.Resolve(ctx, ref)
		if errors.Is(err, api.ErrModuleNotFound) {
			continue
		}
		return mod, err
	}
	return nil, fmt.Errorf("%w: %s", api.ErrModuleNotFound, ref)
}

func withRef(mod *api.Module, err error) func(string) (*api.Module, error) {
	return func(ref string) (*api.Module, error) {
		if err != nil {
			return nil, err
		}
		if mod == nil {
			return nil, fmt.Errorf("%w: %s", api.ErrModuleNotFound, ref)
		}
		if mod.Ref == "" {
			res := *mod
			res.Ref = ref
			return &res, nil
		}
		return mod, nil
	}
}
