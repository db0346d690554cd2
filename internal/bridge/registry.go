// Package bridge is the host side of native module registration: packages
// contribute modules at startup and callers look them up by name.
package bridge

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrModuleNotFound is returned when no registered module has the requested name.
var ErrModuleNotFound = errors.New("native module not found")

// NativeModule is a named unit of native functionality exposed to the host.
type NativeModule interface {
	Name() string
}

// ViewManager is a named visual component contributed by a package.
type ViewManager interface {
	Name() string
}

// AppContext is handed to every package while the registry is built.
type AppContext struct {
	Logger *zap.Logger
}

// Package advertises native modules and view managers.
type Package interface {
	CreateNativeModules(ctx *AppContext) []NativeModule
	CreateViewManagers(ctx *AppContext) []ViewManager
}

// Registry holds the modules contributed by a static package list.
type Registry struct {
	modules      map[string]NativeModule
	viewManagers []ViewManager
}

// NewRegistry asks each package for its modules. Duplicate module names are an error.
func NewRegistry(appCtx *AppContext, packages ...Package) (*Registry, error) {
	if appCtx == nil {
		appCtx = &AppContext{}
	}
	if appCtx.Logger == nil {
		appCtx.Logger = zap.NewNop()
	}

	r := &Registry{modules: make(map[string]NativeModule)}
	for _, pkg := range packages {
		for _, module := range pkg.CreateNativeModules(appCtx) {
			name := module.Name()
			if _, exists := r.modules[name]; exists {
				return nil, fmt.Errorf("duplicate native module %q", name)
			}
			r.modules[name] = module
			appCtx.Logger.Debug("registered native module", zap.String("module", name))
		}
		r.viewManagers = append(r.viewManagers, pkg.CreateViewManagers(appCtx)...)
	}
	return r, nil
}

// Module returns the module registered under name.
func (r *Registry) Module(name string) (NativeModule, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// ModuleNames lists registered modules in lexical order.
func (r *Registry) ModuleNames() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ViewManagers returns all contributed view managers.
func (r *Registry) ViewManagers() []ViewManager {
	return r.viewManagers
}

// Lookup returns the module registered under name as T.
func Lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	m, ok := r.Module(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	typed, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("native module %s has type %T", name, m)
	}
	return typed, nil
}
