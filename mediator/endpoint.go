package mediator

import (
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-mediator/contract/errors"
)

// Endpoint describes a bound request type by the name remote transports use
// to address it.
type Endpoint struct {
	Name     string
	Request  reflect.Type
	Response reflect.Type

	decode func(unmarshal func([]byte, any) error, payload []byte) (any, error)
}

// Decode builds a request value of the endpoint's concrete type from payload.
// An empty payload yields the zero request.
func (e Endpoint) Decode(unmarshal func([]byte, any) error, payload []byte) (any, error) {
	if e.decode == nil {
		return nil, fmt.Errorf("decode %s: %w", e.Name, berr.ErrUnknownEndpoint)
	}

	return e.decode(unmarshal, payload)
}

// EndpointSource looks up endpoints by name. *Registry implements it.
type EndpointSource interface {
	Endpoint(name string) (Endpoint, bool)
}

var _ EndpointSource = (*Registry)(nil)
