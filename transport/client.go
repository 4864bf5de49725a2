package transport

import (
	"context"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
)

// Caller delivers an encoded request to the named endpoint of a remote
// mediator and returns the encoded Reply.
type Caller interface {
	Call(ctx context.Context, name string, payload []byte, headers map[string]string) ([]byte, error)
}

// CallOptions controls a single remote request.
type CallOptions struct {
	Name    string
	Codec   Codec
	Headers map[string]string
}

// CallOption configures CallOptions.
type CallOption func(*CallOptions)

// WithName overrides the endpoint name derived from the request.
func WithName(name string) CallOption {
	return func(o *CallOptions) { o.Name = name }
}

// WithCallCodec selects the codec for the request and its reply.
func WithCallCodec(c Codec) CallOption {
	return func(o *CallOptions) {
		if c != nil {
			o.Codec = c
		}
	}
}

// WithHeaders adds transport headers to the request.
func WithHeaders(h map[string]string) CallOption {
	return func(o *CallOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(h))
		}

		for k, v := range h {
			o.Headers[k] = v
		}
	}
}

// Request sends req to a remote mediator through c and returns the typed response.
func Request[R any](ctx context.Context, c Caller, req cmed.Request[R], opts ...CallOption) (R, error) {
	var zero R

	if req == nil {
		return zero, fmt.Errorf("request: %w", berr.ErrInvalidRequest)
	}

	o := CallOptions{Name: cmed.RequestName(req), Codec: JSON}
	for _, f := range opts {
		f(&o)
	}

	if c == nil {
		return zero, fmt.Errorf("request %s: %w", o.Name, berr.ErrTransportNotConfigured)
	}

	payload, err := o.Codec.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("request %s encode: %w", o.Name, errors.Join(berr.ErrSerializationFailed, err))
	}

	headers := make(map[string]string, len(o.Headers)+2)
	for k, v := range o.Headers {
		headers[k] = v
	}

	headers[HeaderContentType] = o.Codec.ContentType()
	headers[HeaderRequest] = o.Name

	raw, err := c.Call(ctx, o.Name, payload, headers)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, berr.ErrTransportNotConfigured) {
			return zero, err
		}

		return zero, fmt.Errorf("request %s: %w", o.Name, errors.Join(berr.ErrTransportFailed, err))
	}

	return DecodeReply[R](o.Codec, raw)
}

// CallerFunc adapts a function to a Caller.
type CallerFunc func(ctx context.Context, name string, payload []byte, headers map[string]string) ([]byte, error)

// Call calls f.
func (f CallerFunc) Call(ctx context.Context, name string, payload []byte, headers map[string]string) ([]byte, error) {
	return f(ctx, name, payload, headers)
}
