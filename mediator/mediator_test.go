package mediator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	berr "github.com/next-trace/scg-mediator/contract/errors"
	cmed "github.com/next-trace/scg-mediator/contract/mediator"
	"github.com/next-trace/scg-mediator/locator"
	"github.com/next-trace/scg-mediator/mediator"
)

type greet struct {
	cmed.Returns[string]
	Name string
}

type farewell struct {
	cmed.Returns[string]
	Name string
}

type failing struct {
	cmed.Returns[int]
}

type waiting struct {
	cmed.Returns[error]
}

type greetHandler struct{ built *atomic.Int32 }

func (greetHandler) Handle(ctx context.Context, q greet) (string, error) {
	return "Hello, " + q.Name + "!", nil
}

type politeGreetHandler struct{}

func (politeGreetHandler) Handle(ctx context.Context, q greet) (string, error) {
	return "Good day, " + q.Name + ".", nil
}

type farewellHandler struct{}

func (farewellHandler) Handle(ctx context.Context, q farewell) (string, error) {
	return "Bye, " + q.Name, nil
}

func counted(n *atomic.Int32) func() greetHandler {
	return func() greetHandler {
		n.Add(1)
		return greetHandler{built: n}
	}
}

func setup(t *testing.T, mods ...mediator.Module) (*locator.Container, *mediator.Registry) {
	t.Helper()

	loc := locator.New()
	reg := mediator.NewRegistry(loc)

	if err := reg.Register(mods...); err != nil {
		t.Fatalf("register: %v", err)
	}

	return loc, reg
}

func Test_Send_ReturnsHandlerResponse(t *testing.T) {
	var built atomic.Int32

	_, reg := setup(t, mediator.NewModule("greet", mediator.Handle[greet, string](counted(&built))))

	got, err := mediator.Send[string](t.Context(), reg.Mediator(), greet{Name: "Ada"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if !strings.Contains(got, "Ada") {
		t.Fatalf("response %q does not mention Ada", got)
	}

	if built.Load() != 1 {
		t.Fatalf("want exactly one handler instance, got %d", built.Load())
	}
}

func Test_Send_UnregisteredRequest(t *testing.T) {
	var built atomic.Int32

	_, reg := setup(t, mediator.NewModule("greet", mediator.Handle[greet, string](counted(&built))))

	got, err := mediator.Send[string](t.Context(), reg.Mediator(), farewell{Name: "Ada"})
	if !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}

	if got != "" {
		t.Fatalf("want zero response, got %q", got)
	}

	if built.Load() != 0 {
		t.Fatalf("no handler should be constructed, got %d", built.Load())
	}
}

func Test_Send_RoutesByRuntimeType(t *testing.T) {
	_, reg := setup(t, mediator.NewModule("app",
		mediator.Handle[greet, string](func() greetHandler { return greetHandler{} }),
		mediator.Handle[farewell, string](func() farewellHandler { return farewellHandler{} }),
	))

	reqs := []cmed.Request[string]{greet{Name: "Ada"}, farewell{Name: "Ada"}}
	want := []string{"Hello, Ada!", "Bye, Ada"}

	for i, r := range reqs {
		got, err := mediator.Send(t.Context(), reg.Mediator(), r)
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}

		if got != want[i] {
			t.Fatalf("send %d: got %q want %q", i, got, want[i])
		}
	}

	// pointer requests are a different runtime type
	_, err := mediator.Send[string](t.Context(), reg.Mediator(), &greet{Name: "Ada"})
	if !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound for *greet, got %v", err)
	}
}

func Test_Register_Twice_IsIdempotent(t *testing.T) {
	mod := mediator.NewModule("greet", mediator.Handle[greet, string](func() greetHandler { return greetHandler{} }))

	loc, reg := setup(t, mod)
	before := loc.Len()

	if err := reg.Register(mod); err != nil {
		t.Fatalf("register again: %v", err)
	}

	if loc.Len() != before {
		t.Fatalf("signatures changed: %d -> %d", before, loc.Len())
	}

	if _, err := mediator.Send[string](t.Context(), reg.Mediator(), greet{Name: "x"}); err != nil {
		t.Fatalf("send after re-register: %v", err)
	}

	// strict mode accepts the same handler type again
	strict := mediator.NewRegistry(locator.New(), mediator.WithStrictBindings())
	if err := strict.Register(mod, mod); err != nil {
		t.Fatalf("strict re-register of the same module: %v", err)
	}
}

func Test_Register_EmptyModule(t *testing.T) {
	loc, reg := setup(t, mediator.NewModule("empty"), nil)

	if loc.Len() != 1 { // the dispatcher itself
		t.Fatalf("want only the dispatcher binding, got %d", loc.Len())
	}

	if len(reg.Endpoints()) != 0 {
		t.Fatalf("want no endpoints")
	}
}

func Test_Register_DuplicateLastWins(t *testing.T) {
	_, reg := setup(t,
		mediator.NewModule("first", mediator.Handle[greet, string](func() greetHandler { return greetHandler{} })),
		mediator.NewModule("second", mediator.Handle[greet, string](func() politeGreetHandler { return politeGreetHandler{} })),
	)

	for range 5 {
		got, err := mediator.Send[string](t.Context(), reg.Mediator(), greet{Name: "Ada"})
		if err != nil {
			t.Fatalf("send: %v", err)
		}

		if got != "Good day, Ada." {
			t.Fatalf("want the last registration to win, got %q", got)
		}
	}

	h, ok := reg.Bound(reflect.TypeFor[greet]())
	if !ok || h != reflect.TypeFor[politeGreetHandler]() {
		t.Fatalf("bound=%v ok=%v", h, ok)
	}

	strict := mediator.NewRegistry(locator.New(), mediator.WithStrictBindings())

	err := strict.Register(
		mediator.NewModule("first", mediator.Handle[greet, string](func() greetHandler { return greetHandler{} })),
		mediator.NewModule("second", mediator.Handle[greet, string](func() politeGreetHandler { return politeGreetHandler{} })),
	)
	if !errors.Is(err, berr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}
}

func Test_Send_PropagatesHandlerError(t *testing.T) {
	boom := errors.New("storage unavailable")

	_, reg := setup(t, mediator.NewModule("failing",
		mediator.HandleFunc(func(ctx context.Context, q failing) (int, error) { return 7, boom }),
	))

	got, err := mediator.Send[int](t.Context(), reg.Mediator(), failing{})
	if err != boom { //nolint:errorlint // the exact value must come through
		t.Fatalf("want the handler's error unchanged, got %v", err)
	}

	if err.Error() != "storage unavailable" {
		t.Fatalf("message altered: %q", err.Error())
	}

	if got != 0 {
		t.Fatalf("want zero response on failure, got %d", got)
	}
}

func Test_Send_PassesContextThrough(t *testing.T) {
	_, reg := setup(t, mediator.NewModule("ctx",
		mediator.HandleFunc(func(ctx context.Context, q waiting) (error, error) { return ctx.Err(), nil }),
	))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	seen, err := mediator.Send[error](ctx, reg.Mediator(), waiting{})
	if err != nil {
		t.Fatalf("dispatcher must not enforce cancellation itself: %v", err)
	}

	if !errors.Is(seen, context.Canceled) {
		t.Fatalf("handler should observe the canceled context, got %v", seen)
	}

	// a nil interface response is valid
	seen, err = mediator.Send[error](t.Context(), reg.Mediator(), waiting{})
	if err != nil || seen != nil {
		t.Fatalf("seen=%v err=%v", seen, err)
	}
}

func Test_Send_NilRequest(t *testing.T) {
	_, reg := setup(t)

	if _, err := mediator.Send[string](t.Context(), reg.Mediator(), nil); !errors.Is(err, berr.ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

type rawGreetHandler struct{}

func (rawGreetHandler) Handle(ctx context.Context, q greet) (string, error) {
	return "raw " + q.Name, nil
}

type wrongResponseHandler struct{}

func (wrongResponseHandler) Handle(ctx context.Context, q greet) (int, error) { return 42, nil }

type wrongShapeHandler struct{}

func (wrongShapeHandler) Handle(q greet) string { return q.Name }

func Test_Dispatch_HandRegisteredInstances(t *testing.T) {
	sig := cmed.SignatureOf[greet, string]()

	tests := []struct {
		name    string
		inst    any
		want    string
		wantErr error
	}{
		{name: "reflective call", inst: rawGreetHandler{}, want: "raw Ada"},
		{name: "no Handle method", inst: struct{}{}, wantErr: berr.ErrHandlerContract},
		{name: "wrong Handle shape", inst: wrongShapeHandler{}, wantErr: berr.ErrHandlerContract},
		{name: "wrong response type", inst: wrongResponseHandler{}, wantErr: berr.ErrResponseTypeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc := locator.New()
			loc.RegisterInstance(sig, tc.inst)

			got, err := mediator.Send[string](t.Context(), mediator.New(loc), greet{Name: "Ada"})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}

				return
			}

			if err != nil || got != tc.want {
				t.Fatalf("got %q err=%v", got, err)
			}
		})
	}
}

type lyingDispatcher struct{ res any }

func (l lyingDispatcher) Dispatch(context.Context, any, reflect.Type) (any, error) { return l.res, nil }

func Test_Send_ChecksResponseOfForeignDispatcher(t *testing.T) {
	_, err := mediator.Send[string](t.Context(), lyingDispatcher{res: 3}, greet{})
	if !errors.Is(err, berr.ErrResponseTypeMismatch) {
		t.Fatalf("want ErrResponseTypeMismatch, got %v", err)
	}

	_, err = mediator.Send[string](t.Context(), lyingDispatcher{res: nil}, greet{})
	if !errors.Is(err, berr.ErrResponseTypeMismatch) {
		t.Fatalf("want ErrResponseTypeMismatch for nil string, got %v", err)
	}
}

func Test_FromLocator(t *testing.T) {
	loc, _ := setup(t, mediator.NewModule("greet", mediator.Handle[greet, string](func() greetHandler { return greetHandler{} })))

	d, err := mediator.FromLocator(loc)
	if err != nil {
		t.Fatalf("from locator: %v", err)
	}

	if _, err := mediator.Send[string](t.Context(), d, greet{Name: "Ada"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := mediator.FromLocator(locator.New()); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}
}

func Test_Singleton_Binding(t *testing.T) {
	var built atomic.Int32

	_, reg := setup(t, mediator.NewModule("greet", mediator.Handle[greet, string](counted(&built)).AsSingleton()))

	for range 3 {
		if _, err := mediator.Send[string](t.Context(), reg.Mediator(), greet{}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if built.Load() != 1 {
		t.Fatalf("singleton built %d times", built.Load())
	}
}

func Test_Send_Concurrent(t *testing.T) {
	_, reg := setup(t, mediator.NewModule("greet", mediator.Handle[greet, string](func() greetHandler { return greetHandler{} })))

	var wg sync.WaitGroup

	errs := make(chan error, 32)

	for i := range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			name := fmt.Sprint(i)

			got, err := mediator.Send[string](t.Context(), reg.Mediator(), greet{Name: name})
			if err != nil {
				errs <- err
				return
			}

			if got != "Hello, "+name+"!" {
				errs <- fmt.Errorf("cross-talk: %q for %s", got, name)
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func Test_Endpoints(t *testing.T) {
	_, reg := setup(t, mediator.NewModule("app",
		mediator.Handle[greet, string](func() greetHandler { return greetHandler{} }),
		mediator.Handle[farewell, string](func() farewellHandler { return farewellHandler{} }),
	))

	eps := reg.Endpoints()
	if len(eps) != 2 || eps[0].Name != "farewell" || eps[1].Name != "greet" {
		t.Fatalf("endpoints=%+v", eps)
	}

	ep, ok := reg.Endpoint("greet")
	if !ok {
		t.Fatalf("greet endpoint missing")
	}

	v, err := ep.Decode(json.Unmarshal, []byte(`{"Name":"Ada"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if g, ok := v.(greet); !ok || g.Name != "Ada" {
		t.Fatalf("decoded %#v", v)
	}

	if _, err := ep.Decode(json.Unmarshal, []byte(`{`)); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("want ErrSerializationFailed, got %v", err)
	}
}

func Test_Register_StrictFailureLeavesRegistryUnchanged(t *testing.T) {
	loc := locator.New()
	reg := mediator.NewRegistry(loc, mediator.WithStrictBindings())

	err := reg.Register(
		mediator.NewModule("first", mediator.Handle[greet, string](func() greetHandler { return greetHandler{} })),
		mediator.NewModule("second",
			mediator.Handle[farewell, string](func() farewellHandler { return farewellHandler{} }),
			mediator.Handle[greet, string](func() politeGreetHandler { return politeGreetHandler{} }),
		),
	)
	if !errors.Is(err, berr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}

	if loc.Len() != 0 || len(reg.Endpoints()) != 0 {
		t.Fatalf("rejected call left %d locator entries and %d endpoints", loc.Len(), len(reg.Endpoints()))
	}

	if _, err := mediator.Send[string](t.Context(), reg.Mediator(), farewell{Name: "Ada"}); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}

	// earlier successful registrations survive a later rejected call
	if err := reg.Register(mediator.NewModule("first",
		mediator.Handle[greet, string](func() greetHandler { return greetHandler{} }),
	)); err != nil {
		t.Fatalf("register: %v", err)
	}

	err = reg.Register(mediator.NewModule("second",
		mediator.Handle[farewell, string](func() farewellHandler { return farewellHandler{} }),
		mediator.Handle[greet, string](func() politeGreetHandler { return politeGreetHandler{} }),
	))
	if !errors.Is(err, berr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}

	if _, err := mediator.Send[string](t.Context(), reg.Mediator(), farewell{Name: "Ada"}); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("farewell must not be bound, got %v", err)
	}

	got, err := mediator.Send[string](t.Context(), reg.Mediator(), greet{Name: "Ada"})
	if err != nil || got != "Hello, Ada!" {
		t.Fatalf("got %q err=%v", got, err)
	}

	if eps := reg.Endpoints(); len(eps) != 1 || eps[0].Name != "greet" {
		t.Fatalf("endpoints=%+v", eps)
	}
}

type rename struct {
	cmed.Returns[string]
	Name string
}

func Test_PointerRequests_NeverReachHandlerNil(t *testing.T) {
	_, reg := setup(t, mediator.NewModule("rename",
		mediator.HandleFunc(func(ctx context.Context, q *rename) (string, error) { return "renamed to " + q.Name, nil }),
	))

	if _, err := mediator.Send[string](t.Context(), reg.Mediator(), (*rename)(nil)); !errors.Is(err, berr.ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}

	got, err := mediator.Send[string](t.Context(), reg.Mediator(), &rename{Name: "Ada"})
	if err != nil || got != "renamed to Ada" {
		t.Fatalf("got %q err=%v", got, err)
	}

	ep, ok := reg.Endpoint("rename")
	if !ok {
		t.Fatalf("rename endpoint missing")
	}

	for _, payload := range []string{"", "null", `{"Name":"Bo"}`} {
		v, err := ep.Decode(json.Unmarshal, []byte(payload))
		if err != nil {
			t.Fatalf("decode %q: %v", payload, err)
		}

		q, ok := v.(*rename)
		if !ok || q == nil {
			t.Fatalf("decode %q gave %#v", payload, v)
		}

		if _, err := reg.Mediator().Dispatch(t.Context(), v, reflect.TypeFor[string]()); err != nil {
			t.Fatalf("dispatch decoded %q: %v", payload, err)
		}
	}
}
