package inmemory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/next-trace/scg-mediator/adapters/inmemory"
	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/locator"
	"github.com/next-trace/scg-mediator/mediator"
	"github.com/next-trace/scg-mediator/transport"
)

type echo struct {
	cmed.Returns[string]
	Text string
}

func newAdapter(t *testing.T) *inmemory.Adapter {
	t.Helper()

	reg := mediator.NewRegistry(locator.New())
	if err := reg.Register(mediator.NewModule("echo",
		mediator.HandleFunc(func(ctx context.Context, q echo) (string, error) { return q.Text, nil }),
	)); err != nil {
		t.Fatalf("register: %v", err)
	}

	return inmemory.New(transport.NewRegistryHandler(reg))
}

func TestInmemory_RequestAndRecordings(t *testing.T) {
	ad := newAdapter(t)

	got, err := transport.Request[string](t.Context(), ad, echo{Text: "hi"}, transport.WithHeaders(map[string]string{"trace": "1"}))
	if err != nil || got != "hi" {
		t.Fatalf("got %q err=%v", got, err)
	}

	if n := len(ad.Calls); n != 1 {
		t.Fatalf("want 1 call, got %d", n)
	}

	c := ad.Calls[0]
	if c.Name != "echo" || c.Headers["trace"] != "1" || c.Headers[transport.HeaderContentType] != transport.ContentTypeJSON {
		t.Fatalf("recorded call mismatch: %+v", c)
	}
}

func TestInmemory_ConcurrentSafety(t *testing.T) {
	ad := newAdapter(t)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, _ = transport.Request[string](t.Context(), ad, echo{Text: "x"})
		}()
	}

	wg.Wait()

	if n := len(ad.Names()); n != 50 {
		t.Fatalf("want 50 calls, got %d", n)
	}
}

func TestInmemory_NotConfiguredAndCanceled(t *testing.T) {
	ad := inmemory.New(nil)

	if _, err := transport.Request[string](t.Context(), ad, echo{}); !errors.Is(err, berr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := transport.Request[string](ctx, newAdapter(t), echo{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
