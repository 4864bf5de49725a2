package mediator

import (
	"context"
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Mediator routes a request to the handler bound to its runtime type.
// It holds no state beyond the locator and is safe for concurrent use.
type Mediator struct {
	loc cmed.Locator
}

// Ensure Mediator implements the dispatcher contract.
var _ cmed.Dispatcher = (*Mediator)(nil)

// New constructs a Mediator over a locator populated by a Registry.
func New(loc cmed.Locator) *Mediator { return &Mediator{loc: loc} }

// FromLocator resolves the dispatcher a Registry published in loc.
func FromLocator(loc cmed.Locator) (cmed.Dispatcher, error) { //nolint:ireturn
	v, ok := loc.Resolve(cmed.DispatcherSignature)
	if !ok {
		return nil, fmt.Errorf("resolve dispatcher: %w", berr.ErrHandlerNotFound)
	}

	d, ok := v.(cmed.Dispatcher)
	if !ok {
		return nil, fmt.Errorf("resolve dispatcher %T: %w", v, berr.ErrHandlerContract)
	}

	return d, nil
}

// Dispatch resolves the handler bound to (runtime type of req, response),
// invokes it exactly once and returns its result.
// Handler errors are returned unmodified.
func (m *Mediator) Dispatch(ctx context.Context, req any, response reflect.Type) (any, error) {
	if req == nil {
		return nil, fmt.Errorf("send: %w", berr.ErrInvalidRequest)
	}

	if v := reflect.ValueOf(req); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, fmt.Errorf("send %T: nil pointer: %w", req, berr.ErrInvalidRequest)
	}

	sig := cmed.Signature{Request: reflect.TypeOf(req), Response: response}

	inst, ok := m.loc.Resolve(sig)
	if !ok {
		return nil, fmt.Errorf("send %s: %w", sig, berr.ErrHandlerNotFound)
	}

	res, err := invoke(ctx, inst, req, sig)
	if err != nil {
		return nil, err
	}

	if !conforms(res, response) {
		return nil, fmt.Errorf("send %s: handler returned %T: %w", sig, res, berr.ErrResponseTypeMismatch)
	}

	return res, nil
}

// Send dispatches req through d and returns the typed response.
func Send[R any](ctx context.Context, d cmed.Dispatcher, req cmed.Request[R]) (R, error) {
	var zero R

	res, err := d.Dispatch(ctx, req, reflect.TypeFor[R]())
	if err != nil {
		return zero, err
	}

	r, ok := res.(R)
	if !ok {
		if res == nil && nillable(reflect.TypeFor[R]()) {
			return zero, nil
		}

		return zero, fmt.Errorf("send %T: handler returned %T: %w", req, res, berr.ErrResponseTypeMismatch)
	}

	return r, nil
}

func invoke(ctx context.Context, inst, req any, sig cmed.Signature) (any, error) {
	if inv, ok := inst.(Invoker); ok {
		return inv.Invoke(ctx, req)
	}

	return invokeReflect(ctx, inst, req, sig)
}

// invokeReflect calls Handle on instances placed in a locator by hand.
func invokeReflect(ctx context.Context, inst, req any, sig cmed.Signature) (any, error) {
	method := reflect.ValueOf(inst).MethodByName("Handle")
	if !method.IsValid() {
		return nil, fmt.Errorf("send %s: %T has no Handle method: %w", sig, inst, berr.ErrHandlerContract)
	}

	mt := method.Type()
	if mt.NumIn() != 2 || mt.NumOut() != 2 ||
		!contextType.AssignableTo(mt.In(0)) ||
		!sig.Request.AssignableTo(mt.In(1)) ||
		mt.Out(1) != errorType {
		return nil, fmt.Errorf("send %s: %T.Handle has signature %s: %w", sig, inst, mt, berr.ErrHandlerContract)
	}

	out := method.Call([]reflect.Value{reflect.ValueOf(&ctx).Elem(), reflect.ValueOf(req)})

	if e := out[1].Interface(); e != nil {
		return nil, e.(error) //nolint:forcetypeassert // Out(1) is error
	}

	return out[0].Interface(), nil
}

// conforms reports whether res is exactly of type t (or implements it when t
// is an interface).
func conforms(res any, t reflect.Type) bool {
	if t == nil {
		return false
	}

	if res == nil {
		return nillable(t)
	}

	rt := reflect.TypeOf(res)
	if t.Kind() == reflect.Interface {
		return rt.Implements(t)
	}

	return rt == t
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}
