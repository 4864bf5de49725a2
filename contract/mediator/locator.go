package mediator

import "reflect"

// Signature identifies a handler capability: the concrete request type and the
// response type the caller expects.
type Signature struct {
	Request  reflect.Type
	Response reflect.Type
}

// SignatureOf returns the signature for request type Q answered with R.
func SignatureOf[Q Request[R], R any]() Signature {
	return Signature{Request: reflect.TypeFor[Q](), Response: reflect.TypeFor[R]()}
}

// String renders the signature as "Request -> Response".
func (s Signature) String() string {
	return typeString(s.Request) + " -> " + typeString(s.Response)
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}

// Factory produces an instance for a resolved capability.
type Factory func() any

// Locator is the resolution backend the mediator consumes.
// Registration happens once at startup; Resolve must be safe for concurrent use.
// Registering a signature twice replaces the earlier factory.
type Locator interface {
	RegisterTransient(sig Signature, factory Factory)
	Resolve(sig Signature) (any, bool)
}
