// Package httpapi exposes named requests over HTTP.
//
// POST /requests/{name} decodes the body as the named request, dispatches it
// and answers with the encoded response. Extra routes can map fixed patterns
// such as "POST /person" onto a request name.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	"github.com/next-trace/scg-mediator/transport"
)

const (
	defaultMaxBody  = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithRoute serves the request called name on an additional mux pattern.
func WithRoute(pattern, name string) Option {
	return func(s *Server) { s.routes[pattern] = name }
}

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxBody limits request bodies to n bytes.
func WithMaxBody(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server is an http.Handler dispatching through a transport.Handler.
type Server struct {
	handler *transport.Handler
	logger  *slog.Logger
	maxBody int64
	routes  map[string]string
	mux     *http.ServeMux
}

var _ http.Handler = (*Server)(nil)

// New builds a Server for h.
func New(h *transport.Handler, opts ...Option) *Server {
	s := &Server{
		handler: h,
		logger:  slog.New(slog.DiscardHandler),
		maxBody: defaultMaxBody,
		routes:  make(map[string]string),
		mux:     http.NewServeMux(),
	}

	for _, o := range opts {
		o(s)
	}

	s.mux.HandleFunc("GET /healthz", s.health)
	s.mux.HandleFunc("POST /requests/{name}", func(w http.ResponseWriter, r *http.Request) {
		s.invoke(w, r, r.PathValue("name"))
	})

	for pattern, name := range s.routes {
		s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			s.invoke(w, r, name)
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, name string) {
	start := time.Now()
	codec := s.handler.Codec(r.Header.Get("Content-Type"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.fail(w, codec, name, fmt.Errorf("read body: %w", errors.Join(berr.ErrInvalidRequest, err)))
		return
	}

	res, err := s.handler.Call(r.Context(), name, codec, payload)
	if err != nil {
		s.fail(w, codec, name, err)
		return
	}

	body, err := codec.Marshal(res)
	if err != nil {
		s.fail(w, codec, name, fmt.Errorf("encode response for %q: %w", name, berr.ErrSerializationFailed))
		return
	}

	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	s.logger.Debug("http request served",
		slog.String("request", name),
		slog.String("remote_addr", r.RemoteAddr),
		slog.Duration("elapsed", time.Since(start)),
	)
}

func (s *Server) fail(w http.ResponseWriter, codec transport.Codec, name string, err error) {
	status := Status(err)

	s.logger.Warn("http request failed",
		slog.String("request", name),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	body, mErr := codec.Marshal(transport.ErrorReply(err).Error)
	if mErr != nil {
		codec = transport.JSON
		body, _ = codec.Marshal(transport.ErrorReply(err).Error)
	}

	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Status maps a dispatch error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, berr.ErrUnknownEndpoint), errors.Is(err, berr.ErrHandlerNotFound):
		return http.StatusNotFound
	case errors.Is(err, berr.ErrSerializationFailed), errors.Is(err, berr.ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe serves s on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server starting", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
