package mediator

import "reflect"

// Named lets a request type choose the name it is addressed by on remote transports.
type Named interface {
	RequestName() string
}

// RequestName returns the transport name of a request value.
// Named wins; otherwise the Go type name is used with pointers dereferenced.
func RequestName(v any) string {
	if n, ok := v.(Named); ok {
		return n.RequestName()
	}

	return TypeName(reflect.TypeOf(v))
}

// TypeName returns the unqualified name of t, falling back to its full string
// form for unnamed types.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" { // unnamed (e.g., struct literal)
		name = t.String()
	}

	return name
}
