package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nuid"
	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/transport"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRequestTopic = "mediator.requests"
	DefaultReplyTopic   = "mediator.replies"

	defaultConcurrency = 8
)

// Record is a transport-agnostic Kafka record.
type Record struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer is a minimal Kafka-like producer interface.
// Users can adapt franz-go or any other client to this.
type Producer interface {
	Produce(ctx context.Context, r Record) error
}

// Poller returns the next batch of consumed records, blocking until records
// arrive or ctx ends.
type Poller interface {
	Poll(ctx context.Context) ([]Record, error)
}

// Adapter implements request/reply over two topics using an injected Producer.
type Adapter struct {
	Producer     Producer
	Propagator   cmed.HeaderPropagator // optional, for context propagation into headers
	RequestTopic string
	ReplyTopic   string
	Concurrency  int

	mu      sync.Mutex
	pending map[string]chan Record
}

var _ transport.Caller = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided producer.
func New(p Producer) *Adapter {
	return &Adapter{
		Producer:     p,
		RequestTopic: DefaultRequestTopic,
		ReplyTopic:   DefaultReplyTopic,
		Concurrency:  defaultConcurrency,
		pending:      make(map[string]chan Record),
	}
}

// Call produces an encoded request and waits for the correlated reply
// delivered through Deliver or Listen.
func (a *Adapter) Call(ctx context.Context, name string, payload []byte, headers map[string]string) ([]byte, error) {
	if err := a.ready(ctx, "request"); err != nil {
		return nil, err
	}

	corr := nuid.Next()
	ch := make(chan Record, 1)

	a.mu.Lock()
	a.pending[corr] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pending, corr)
		a.mu.Unlock()
	}()

	hdrs := make(map[string]string, len(headers)+4)
	for k, v := range headers {
		hdrs[k] = v
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	hdrs[transport.HeaderRequest] = name
	hdrs[transport.HeaderReplyTo] = a.ReplyTopic
	hdrs[transport.HeaderCorrelationID] = corr

	rec := Record{Topic: a.RequestTopic, Key: []byte(name), Value: payload, Headers: hdrs}
	if err := a.produce(ctx, rec, "request"); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.Value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver hands a reply record to the pending call with the same
// correlation id. It reports false for replies addressed to other clients.
func (a *Adapter) Deliver(r Record) bool {
	a.mu.Lock()
	ch, ok := a.pending[r.Headers[transport.HeaderCorrelationID]]
	a.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case ch <- r:
		return true
	default:
		return false
	}
}

// Listen polls replies and delivers them until ctx ends.
func (a *Adapter) Listen(ctx context.Context, p Poller) error {
	for {
		recs, err := p.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			return fmt.Errorf("kafka poll replies: %w", err)
		}

		for _, r := range recs {
			a.Deliver(r)
		}
	}
}

// Serve polls request records and answers them through h until ctx ends.
// Each polled batch is handled with up to Concurrency workers before the
// next poll. Failed replies are logged through h and do not stop serving.
func (a *Adapter) Serve(ctx context.Context, h *transport.Handler, p Poller) error {
	if err := a.ready(ctx, "serve"); err != nil {
		return err
	}

	for {
		recs, err := p.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			return fmt.Errorf("kafka poll requests: %w", err)
		}

		var g errgroup.Group

		g.SetLimit(max(a.Concurrency, 1))

		for _, r := range recs {
			g.Go(func() error {
				if err := a.answer(ctx, h, r); err != nil {
					h.Logger().Error("kafka reply failed",
						slog.String("request", r.Headers[transport.HeaderRequest]),
						slog.String("correlation_id", r.Headers[transport.HeaderCorrelationID]),
						slog.String("error", err.Error()),
					)
				}

				return nil
			})
		}

		_ = g.Wait() //nolint:errcheck // workers log their own failures
	}
}

func (a *Adapter) answer(ctx context.Context, h *transport.Handler, r Record) error {
	name := r.Headers[transport.HeaderRequest]
	if name == "" {
		name = string(r.Key)
	}

	contentType := r.Headers[transport.HeaderContentType]
	reply := h.Serve(ctx, name, contentType, r.Value)

	replyTo := r.Headers[transport.HeaderReplyTo]
	if replyTo == "" {
		return nil
	}

	corr := r.Headers[transport.HeaderCorrelationID]
	out := Record{
		Topic: replyTo,
		Key:   []byte(corr),
		Value: reply,
		Headers: map[string]string{
			transport.HeaderCorrelationID: corr,
			transport.HeaderContentType:   h.Codec(contentType).ContentType(),
		},
	}

	return a.produce(ctx, out, "reply")
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Producer == nil {
		return fmt.Errorf("kafka %s: %w", label, berr.ErrTransportNotConfigured)
	}

	a.mu.Lock()
	if a.pending == nil {
		a.pending = make(map[string]chan Record)
	}
	a.mu.Unlock()

	return nil
}

func (a *Adapter) produce(ctx context.Context, r Record, label string) error {
	if err := a.Producer.Produce(ctx, r); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka %s write: %w", label, errors.Join(berr.ErrTransportFailed, err))
	}

	return nil
}
