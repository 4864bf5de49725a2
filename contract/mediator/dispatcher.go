package mediator

import (
	"context"
	"reflect"
)

// Dispatcher is the non-generic contract callers hold to send requests.
// The response type travels as a reflect.Type so the interface stays usable
// without generic methods; typed access goes through mediator.Send.
type Dispatcher interface {
	Dispatch(ctx context.Context, req any, response reflect.Type) (any, error)
}

// DispatcherSignature is the capability under which a Registry publishes the
// dispatcher itself in a Locator.
var DispatcherSignature = Signature{Request: reflect.TypeFor[Dispatcher]()}
