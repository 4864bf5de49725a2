package mediator

import "context"

// RequestHandler handles requests of type Q and returns a response of type R.
// Implementations must be safe for concurrent use when resolved as singletons;
// transient handlers are constructed per dispatch.
type RequestHandler[Q Request[R], R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// HandlerFunc adapts a plain function to a RequestHandler.
type HandlerFunc[Q Request[R], R any] func(ctx context.Context, q Q) (R, error)

// Handle calls f(ctx, q).
func (f HandlerFunc[Q, R]) Handle(ctx context.Context, q Q) (R, error) { return f(ctx, q) }
