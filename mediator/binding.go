package mediator

import (
	"context"
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
)

// Invoker is the type-erased handler form a Registry stores in the locator.
// It is built once per binding at registration so dispatch needs no reflection.
type Invoker interface {
	Invoke(ctx context.Context, req any) (any, error)
}

type invoker[Q cmed.Request[R], R any] struct {
	h cmed.RequestHandler[Q, R]
}

func (i invoker[Q, R]) Invoke(ctx context.Context, req any) (any, error) {
	if i.h == nil {
		return nil, fmt.Errorf("invoke %T: nil handler: %w", req, berr.ErrHandlerContract)
	}

	q, ok := req.(Q)
	if !ok {
		return nil, fmt.Errorf("invoke %T: %w", req, berr.ErrHandlerContract)
	}

	return i.h.Handle(ctx, q)
}

// Binding associates one request type with the handler that answers it.
// Build bindings with Handle or HandleFunc.
type Binding struct {
	sig       cmed.Signature
	handler   reflect.Type
	name      string
	singleton bool
	factory   cmed.Factory
	decode    func(unmarshal func([]byte, any) error, payload []byte) (any, error)
}

// Handle binds request type Q to the handler produced by factory.
// factory runs once per dispatch unless the binding is marked AsSingleton.
func Handle[Q cmed.Request[R], R any, H cmed.RequestHandler[Q, R]](factory func() H) Binding {
	b := newBinding[Q, R](reflect.TypeFor[H]())
	b.factory = func() any { return invoker[Q, R]{h: factory()} }

	return b
}

// HandleFunc binds request type Q to a plain handler function.
func HandleFunc[Q cmed.Request[R], R any](fn func(ctx context.Context, q Q) (R, error)) Binding {
	h := cmed.HandlerFunc[Q, R](fn)

	b := newBinding[Q, R](reflect.TypeFor[cmed.HandlerFunc[Q, R]]())
	b.factory = func() any { return invoker[Q, R]{h: h} }

	return b
}

func newBinding[Q cmed.Request[R], R any](handler reflect.Type) Binding {
	sig := cmed.SignatureOf[Q, R]()

	return Binding{
		sig:     sig,
		handler: handler,
		name:    requestName(sig.Request),
		decode: func(unmarshal func([]byte, any) error, payload []byte) (any, error) {
			q := zeroRequest[Q](sig.Request)
			if len(payload) > 0 {
				if err := unmarshal(payload, &q); err != nil {
					return nil, fmt.Errorf("decode %s: %w", sig.Request, berr.ErrSerializationFailed)
				}
			}

			// a null payload resets pointer requests to nil
			if sig.Request.Kind() == reflect.Ptr && reflect.ValueOf(&q).Elem().IsNil() {
				q = zeroRequest[Q](sig.Request)
			}

			return q, nil
		},
	}
}

// zeroRequest returns the empty request of type Q, allocated when Q is a pointer.
func zeroRequest[Q any](t reflect.Type) Q {
	var q Q
	if t.Kind() == reflect.Ptr {
		q = reflect.New(t.Elem()).Interface().(Q) //nolint:forcetypeassert // t is Q
	}

	return q
}

// AsSingleton returns a copy of b whose handler is built once and shared by
// all dispatches. It only takes effect with locators that support singletons.
func (b Binding) AsSingleton() Binding {
	b.singleton = true

	return b
}

// Signature returns the capability signature the binding is registered under.
func (b Binding) Signature() cmed.Signature { return b.sig }

// HandlerType returns the type of the bound handler.
func (b Binding) HandlerType() reflect.Type { return b.handler }

// Name returns the transport name of the bound request type.
func (b Binding) Name() string { return b.name }

func requestName(t reflect.Type) string {
	var v any
	if t.Kind() == reflect.Ptr {
		v = reflect.New(t.Elem()).Interface()
	} else {
		v = reflect.Zero(t).Interface()
	}

	return cmed.RequestName(v)
}

// Module is an explicit enumeration of handler bindings contributed to a Registry.
type Module interface {
	Name() string
	Bindings() []Binding
}

type module struct {
	name     string
	bindings []Binding
}

// NewModule groups bindings under a name used in logs.
func NewModule(name string, bindings ...Binding) Module { //nolint:ireturn
	return module{name: name, bindings: bindings}
}

func (m module) Name() string { return m.name }

func (m module) Bindings() []Binding { return m.bindings }
