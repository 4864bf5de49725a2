package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/mediator"
	"golang.org/x/time/rate"
)

// Handler serves named requests for the transport adapters.
// It is safe for concurrent use.
type Handler struct {
	endpoints  mediator.EndpointSource
	dispatcher cmed.Dispatcher
	codec      Codec
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithCodec sets the codec used when the caller does not announce a content type.
func WithCodec(c Codec) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.codec = c
		}
	}
}

// WithRateLimit caps dispatches per second; callers wait for a token or
// give up when their context ends.
func WithRateLimit(perSecond float64, burst int) HandlerOption {
	return func(h *Handler) {
		if perSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithHandlerLogger sets the logger for dispatch diagnostics.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler serves the endpoints of src through d.
func NewHandler(src mediator.EndpointSource, d cmed.Dispatcher, opts ...HandlerOption) *Handler {
	h := &Handler{
		endpoints:  src,
		dispatcher: d,
		codec:      JSON,
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, o := range opts {
		o(h)
	}

	return h
}

// NewRegistryHandler serves every endpoint bound in reg.
func NewRegistryHandler(reg *mediator.Registry, opts ...HandlerOption) *Handler {
	return NewHandler(reg, reg.Mediator(), opts...)
}

// Logger returns the logger adapters use for delivery failures.
func (h *Handler) Logger() *slog.Logger { return h.logger }

// Codec returns the codec for contentType, falling back to the handler default.
func (h *Handler) Codec(contentType string) Codec { //nolint:ireturn
	if c, ok := CodecFor(contentType); ok {
		return c
	}

	return h.codec
}

// Call decodes payload as the named request and dispatches it.
func (h *Handler) Call(ctx context.Context, name string, codec Codec, payload []byte) (any, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}

			// the limiter gives up early when the deadline cannot be met
			return nil, fmt.Errorf("rate limit: %w", errors.Join(context.DeadlineExceeded, err))
		}
	}

	ep, ok := h.endpoints.Endpoint(name)
	if !ok {
		return nil, fmt.Errorf("serve %q: %w", name, berr.ErrUnknownEndpoint)
	}

	req, err := ep.Decode(codec.Unmarshal, payload)
	if err != nil {
		return nil, err
	}

	return h.dispatcher.Dispatch(ctx, req, ep.Response)
}

// Serve handles one encoded request and always produces an encoded Reply.
func (h *Handler) Serve(ctx context.Context, name, contentType string, payload []byte) []byte {
	codec := h.Codec(contentType)
	start := time.Now()

	res, err := h.Call(ctx, name, codec, payload)
	if err == nil {
		var body []byte

		body, err = codec.Marshal(res)
		if err == nil {
			h.logger.Debug("request served",
				slog.String("request", name),
				slog.Duration("elapsed", time.Since(start)),
			)

			return h.encode(codec, Reply{Response: body})
		}

		err = fmt.Errorf("encode response for %q: %w", name, berr.ErrSerializationFailed)
	}

	h.logger.Warn("request failed",
		slog.String("request", name),
		slog.String("code", berr.CodeOf(err)),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("error", err.Error()),
	)

	return h.encode(codec, ErrorReply(err))
}

func (h *Handler) encode(codec Codec, r Reply) []byte {
	b, err := codec.Marshal(r)
	if err != nil {
		h.logger.Error("encode reply", slog.String("error", err.Error()))

		// JSON can always encode the fixed envelope below.
		b, _ = JSON.Marshal(ErrorReply(fmt.Errorf("encode reply: %w", berr.ErrSerializationFailed)))
	}

	return b
}
