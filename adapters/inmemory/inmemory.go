package inmemory

import (
	"context"
	"sync"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	"github.com/next-trace/scg-mediator/transport"
)

// Call is one request recorded by the Adapter.
type Call struct {
	Name    string
	Headers map[string]string
}

// Adapter is a thread-safe loopback transport.Caller. Requests are encoded,
// served by the wrapped Handler in-process and recorded for tests and examples.
type Adapter struct {
	Handler *transport.Handler

	mu    sync.Mutex
	Calls []Call
}

// Ensure Adapter implements the caller contract.
var _ transport.Caller = (*Adapter)(nil)

// New creates a loopback adapter serving through h.
func New(h *transport.Handler) *Adapter { return &Adapter{Handler: h} }

func (a *Adapter) Call(
	ctx context.Context,
	name string,
	payload []byte,
	headers map[string]string,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.Handler == nil {
		return nil, berr.ErrTransportNotConfigured
	}

	hdrs := make(map[string]string, len(headers))
	for k, v := range headers {
		hdrs[k] = v
	}

	a.mu.Lock()
	a.Calls = append(a.Calls, Call{Name: name, Headers: hdrs})
	a.mu.Unlock()

	return a.Handler.Serve(ctx, name, headers[transport.HeaderContentType], payload), nil
}

// Names returns the names of all recorded calls in order.
func (a *Adapter) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.Calls))
	for i, c := range a.Calls {
		out[i] = c.Name
	}

	return out
}
