package dispatcher

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/duskgate/portcullis/internal/authhook"
	"github.com/duskgate/portcullis/internal/classify"
	"github.com/duskgate/portcullis/internal/controller"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubController struct {
	methods map[string]controller.Handler
}

func (s *stubController) Handler(method string) (controller.Handler, bool) {
	h, ok := s.methods[method]
	return h, ok
}

func (s *stubController) AllowedMethods() []string {
	out := make([]string, 0, len(s.methods))
	for m := range s.methods {
		out = append(out, m)
	}
	return out
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func newTestDispatcher() *Dispatcher {
	return &Dispatcher{
		Factories: map[classify.Kind]controller.Factory{
			classify.Account: func(key classify.Key) controller.Controller {
				return &stubController{methods: map[string]controller.Handler{
					http.MethodGet: {Fn: okHandler, Public: true},
					http.MethodPut: {Fn: okHandler, Public: false},
				}}
			},
		},
		Logger: discardLogger(),
	}
}

func TestDispatcherServesPublicHandler(t *testing.T) {
	d := newTestDispatcher()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("x-trans-id") == "" {
		t.Fatal("expected a generated transaction id header")
	}
}

func TestDispatcherRejectsNonPublicHandlerAs405(t *testing.T) {
	d := newTestDispatcher()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/acct", nil)
	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatal("expected an Allow header listing permitted methods")
	}
}

func TestDispatcherRejectsUnclassifiablePath(t *testing.T) {
	d := newTestDispatcher()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1", nil)
	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412 for an unclassifiable path (version with no account)", rr.Code)
	}
}

func TestDispatcherDeniesOnForbiddenHost(t *testing.T) {
	d := newTestDispatcher()
	d.DenyHostHeaders = map[string]struct{}{"evil.example": {}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	req.Host = "evil.example"
	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a denied host header", rr.Code)
	}
}

func TestDispatcherStripsReservedBackendHeaders(t *testing.T) {
	d := newTestDispatcher()
	d.Factories[classify.Account] = func(key classify.Key) controller.Controller {
		return &stubController{methods: map[string]controller.Handler{
			http.MethodGet: {Public: true, Fn: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("X-Backend-Secret") != "" {
					t.Error("reserved backend header leaked through to the controller")
				}
				w.WriteHeader(http.StatusOK)
			}},
		}}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	req.Header.Set("X-Backend-Secret", "leak")
	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestDispatcherHonorsAuthHookDenial(t *testing.T) {
	d := newTestDispatcher()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	ctx := authhook.Install(req.Context(), func(r *http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}, Body: http.NoBody}
	})
	req = req.WithContext(ctx)

	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 from the denying hook", rr.Code)
	}
}

func TestDispatcherDelayedDenialFallsThroughToHandler(t *testing.T) {
	d := newTestDispatcher()
	handlerRan := false
	d.Factories[classify.Account] = func(key classify.Key) controller.Controller {
		return &stubController{methods: map[string]controller.Handler{
			http.MethodGet: {Public: true, DelayDenial: true, Fn: func(w http.ResponseWriter, r *http.Request) {
				handlerRan = true
				w.WriteHeader(http.StatusOK)
			}},
		}}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	ctx := authhook.Install(req.Context(), func(r *http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}, Body: http.NoBody}
	})
	req = req.WithContext(ctx)

	d.ServeHTTP(rr, req)

	if !handlerRan {
		t.Fatal("handler.Fn should still run when DelayDenial is true, so it can re-invoke the hook itself")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: the dispatcher must not short-circuit a delayed denial", rr.Code)
	}
	if authhook.StateOf(req.Context()) != authhook.Pending {
		t.Fatal("hook should remain Pending after a delayed denial so the handler can re-invoke it")
	}
}

func TestDispatcherRecoversFromHandlerPanic(t *testing.T) {
	d := newTestDispatcher()
	d.Factories[classify.Account] = func(key classify.Key) controller.Controller {
		return &stubController{methods: map[string]controller.Handler{
			http.MethodGet: {Public: true, Fn: func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			}},
		}}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	d.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 after a recovered panic", rr.Code)
	}
}
