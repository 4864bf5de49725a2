package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/transport"
	"golang.org/x/sync/errgroup"
)

// DefaultPrefix is prepended to request names to build subjects.
const DefaultPrefix = "mediator."

const defaultConcurrency = 8

// ReplyFunc receives one request; respond sends the encoded reply back to
// the requester and may be called from another goroutine.
type ReplyFunc func(headers map[string]string, data []byte, respond func([]byte) error)

// Conn is a minimal NATS-like request/reply interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Conn interface {
	// Request publishes data on subject and waits for a single reply.
	Request(ctx context.Context, subject string, data []byte, headers map[string]string) ([]byte, error)
	// Reply answers requests on subject, load-balanced within queue when set.
	// The returned function removes the subscription.
	Reply(subject, queue string, fn ReplyFunc) (func() error, error)
}

// Adapter exposes a mediator over NATS request/reply and calls remote ones.
type Adapter struct {
	Conn        Conn
	Prefix      string
	Queue       string
	Propagator  cmed.HeaderPropagator // optional, for context propagation into headers
	Concurrency int                   // requests handled at once by Serve
}

// Ensure Adapter implements the caller contract.
var _ transport.Caller = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided connection.
func New(c Conn) *Adapter {
	return &Adapter{Conn: c, Prefix: DefaultPrefix, Concurrency: defaultConcurrency}
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(c Conn, hp cmed.HeaderPropagator) *Adapter {
	a := New(c)
	a.Propagator = hp

	return a
}

// Subject returns the subject a request name is served on.
func (a *Adapter) Subject(name string) string { return a.Prefix + name }

// Call sends an encoded request and waits for the reply.
func (a *Adapter) Call(ctx context.Context, name string, payload []byte, headers map[string]string) ([]byte, error) {
	if err := a.ready(ctx, "request"); err != nil {
		return nil, err
	}

	hdrs := make(map[string]string, len(headers)+4)
	for k, v := range headers {
		hdrs[k] = v
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	reply, err := a.Conn.Request(ctx, a.Subject(name), payload, hdrs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("nats request %s: %w", name, err)
	}

	return reply, nil
}

// Serve answers the named requests through h until ctx ends, then removes
// the subscriptions. NATS delivers a subscription's messages one at a time,
// so requests are handed to up to Concurrency workers.
func (a *Adapter) Serve(ctx context.Context, h *transport.Handler, names ...string) error {
	if err := a.ready(ctx, "serve"); err != nil {
		return err
	}

	var (
		g      errgroup.Group
		unsubs []func() error
	)

	g.SetLimit(max(a.Concurrency, 1))

	cleanup := func() error {
		var errs []error

		for _, u := range unsubs {
			if err := u(); err != nil {
				errs = append(errs, err)
			}
		}

		_ = g.Wait() //nolint:errcheck // workers log their own failures

		return errors.Join(errs...)
	}

	for _, name := range names {
		reply := func(headers map[string]string, data []byte, respond func([]byte) error) {
			g.Go(func() error {
				if err := respond(h.Serve(ctx, name, headers[transport.HeaderContentType], data)); err != nil {
					h.Logger().Error("nats reply failed",
						slog.String("request", name),
						slog.String("error", err.Error()),
					)
				}

				return nil
			})
		}

		unsub, err := a.Conn.Reply(a.Subject(name), a.Queue, reply)
		if err != nil {
			return errors.Join(fmt.Errorf("nats subscribe %s: %w", a.Subject(name), err), cleanup())
		}

		unsubs = append(unsubs, unsub)
	}

	<-ctx.Done()

	return cleanup()
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Conn == nil {
		return fmt.Errorf("nats %s: %w", label, berr.ErrTransportNotConfigured)
	}

	return nil
}
