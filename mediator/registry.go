package mediator

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
)

// singletonLocator is implemented by locators that can share one instance
// across resolutions.
type singletonLocator interface {
	RegisterSingleton(sig cmed.Signature, factory cmed.Factory)
}

// RegistryOption configures a Registry instance.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStrictBindings makes Register fail with ErrHandlerExists when a request
// type is bound again to a different handler type.
func WithStrictBindings() RegistryOption {
	return func(r *Registry) { r.strict = true }
}

type bound struct {
	module  string
	handler reflect.Type
}

// Registry binds the handlers of the supplied modules into a locator.
// Registration is expected to finish before concurrent dispatch starts.
type Registry struct {
	loc      cmed.Locator
	mediator *Mediator
	logger   *slog.Logger
	strict   bool

	mu        sync.RWMutex
	bound     map[reflect.Type]bound
	endpoints map[string]Endpoint
}

// NewRegistry constructs a Registry writing into loc.
func NewRegistry(loc cmed.Locator, opts ...RegistryOption) *Registry {
	r := &Registry{
		loc:       loc,
		mediator:  New(loc),
		logger:    slog.New(slog.DiscardHandler),
		bound:     make(map[reflect.Type]bound),
		endpoints: make(map[string]Endpoint),
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// Mediator returns the dispatcher reading from the registry's locator.
func (r *Registry) Mediator() *Mediator { return r.mediator }

// Register binds every handler of every module and publishes the dispatcher
// under cmed.DispatcherSignature. A module without bindings is valid.
// When a request type is bound again the last registration wins; in strict
// mode a different handler type is rejected instead. Bindings are checked
// before any is applied, so a failed call leaves the registry unchanged.
func (r *Registry) Register(modules ...Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := r.plan(modules)
	if err != nil {
		return err
	}

	for _, p := range plan {
		r.bind(p.module, p.binding)
	}

	for _, mod := range modules {
		if mod == nil {
			continue
		}

		r.logger.Debug("mediator module registered",
			slog.String("module", mod.Name()),
			slog.Int("bindings", len(mod.Bindings())),
		)
	}

	m := r.mediator
	r.loc.RegisterTransient(cmed.DispatcherSignature, func() any { return m })

	return nil
}

type planned struct {
	module  string
	binding Binding
}

// plan validates the bindings of modules against the current state and
// against each other without touching the locator.
func (r *Registry) plan(modules []Module) ([]planned, error) {
	var (
		out  []planned
		seen = make(map[reflect.Type]bound)
	)

	for _, mod := range modules {
		if mod == nil {
			continue
		}

		for _, b := range mod.Bindings() {
			if b.factory == nil || b.sig.Request == nil {
				return nil, fmt.Errorf("bind %s in module %q: empty binding: %w", b.sig, mod.Name(), berr.ErrHandlerContract)
			}

			if r.strict {
				prev, ok := seen[b.sig.Request]
				if !ok {
					prev, ok = r.bound[b.sig.Request]
				}

				if ok && prev.handler != b.handler {
					return nil, fmt.Errorf("bind %s: %s already bound by module %q: %w",
						b.sig, prev.handler, prev.module, berr.ErrHandlerExists)
				}
			}

			seen[b.sig.Request] = bound{module: mod.Name(), handler: b.handler}
			out = append(out, planned{module: mod.Name(), binding: b})
		}
	}

	return out, nil
}

func (r *Registry) bind(module string, b Binding) {
	if prev, ok := r.bound[b.sig.Request]; ok && prev.handler != b.handler {
		r.logger.Warn("mediator binding replaced",
			slog.String("request", b.sig.Request.String()),
			slog.String("previous", prev.handler.String()),
			slog.String("previous_module", prev.module),
			slog.String("handler", b.handler.String()),
			slog.String("module", module),
		)
	}

	if sl, ok := r.loc.(singletonLocator); ok && b.singleton {
		sl.RegisterSingleton(b.sig, b.factory)
	} else {
		r.loc.RegisterTransient(b.sig, b.factory)
	}

	r.bound[b.sig.Request] = bound{module: module, handler: b.handler}

	if prev, ok := r.endpoints[b.name]; ok && prev.Request != b.sig.Request {
		r.logger.Warn("mediator endpoint name replaced",
			slog.String("name", b.name),
			slog.String("previous", prev.Request.String()),
			slog.String("request", b.sig.Request.String()),
		)
	}

	r.endpoints[b.name] = Endpoint{
		Name:     b.name,
		Request:  b.sig.Request,
		Response: b.sig.Response,
		decode:   b.decode,
	}
}

// Bound returns the handler type currently bound to the request type, if any.
func (r *Registry) Bound(request reflect.Type) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bound[request]

	return b.handler, ok
}

// Endpoint returns the named endpoint used by remote transports.
func (r *Registry) Endpoint(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[name]

	return e, ok
}

// Endpoints returns all endpoints sorted by name.
func (r *Registry) Endpoints() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
