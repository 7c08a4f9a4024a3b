package controller

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duskgate/portcullis/internal/affinity"
	"github.com/duskgate/portcullis/internal/classify"
	"github.com/duskgate/portcullis/internal/nodealert"
	"github.com/duskgate/portcullis/internal/nodehealth"
	"github.com/duskgate/portcullis/internal/nodesort"
	"github.com/duskgate/portcullis/internal/ring"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNodes() []ring.Node {
	return []ring.Node{
		{IP: "10.0.0.1", Port: 6002, Device: "sdb1"},
		{IP: "10.0.0.2", Port: 6002, Device: "sdb1"},
		{IP: "10.0.0.3", Port: 6002, Device: "sdb1"},
	}
}

func testSelector() *Selector {
	r := ring.NewMemRing(testNodes(), 3, 6)
	health := nodehealth.NewTable(10, 60*time.Second, discardLogger(), "test")
	return &Selector{
		Ring:        r,
		Health:      health,
		Strategy:    nodesort.Shuffle{},
		Budget:      affinity.NodeCountPerReplica(1),
		LogHandoffs: false,
		Logger:      discardLogger(),
		Name:        "test",
	}
}

func decodeSelection(t *testing.T, rr *httptest.ResponseRecorder) selectionResponse {
	t.Helper()
	var resp selectionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return resp
}

func TestAccountControllerServeSelectsANode(t *testing.T) {
	sel := testSelector()
	factory := NewAccountFactory(sel, false, nil, 0)
	ctrl := factory(classify.Key{Account: "acct"})

	h, ok := ctrl.Handler(http.MethodGet)
	if !ok || !h.Public {
		t.Fatalf("GET should be a public handler, got ok=%v public=%v", ok, h.Public)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct", nil)
	h.Fn(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeSelection(t, rr)
	if resp.Selected == nil {
		t.Fatal("expected a selected node")
	}
}

func TestAccountControllerManagementGatedByFlag(t *testing.T) {
	sel := testSelector()
	factory := NewAccountFactory(sel, false, nil, 0)
	ctrl := factory(classify.Key{Account: "acct"})

	h, ok := ctrl.Handler(http.MethodPut)
	if !ok {
		t.Fatal("PUT should still resolve to a handler entry")
	}
	if h.Public {
		t.Fatal("PUT should not be public when allow_account_management is false")
	}

	factory2 := NewAccountFactory(sel, true, nil, 0)
	ctrl2 := factory2(classify.Key{Account: "acct"})
	h2, ok2 := ctrl2.Handler(http.MethodPut)
	if !ok2 || !h2.Public {
		t.Fatal("PUT should be public when allow_account_management is true")
	}
}

func TestAccountControllerUnknownMethodAbsent(t *testing.T) {
	sel := testSelector()
	factory := NewAccountFactory(sel, true, nil, 0)
	ctrl := factory(classify.Key{Account: "acct"})

	if _, ok := ctrl.Handler("PATCH"); ok {
		t.Fatal("PATCH should not resolve to any handler")
	}
}

func TestContainerControllerServeSelectsANode(t *testing.T) {
	sel := testSelector()
	factory := NewContainerFactory(sel, nil, 0)
	ctrl := factory(classify.Key{Account: "acct", Container: "pics"})

	h, _ := ctrl.Handler(http.MethodGet)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct/pics", nil)
	h.Fn(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestObjectControllerServeSelectsANode(t *testing.T) {
	sel := testSelector()
	factory := NewObjectFactory(sel)
	ctrl := factory(classify.Key{Account: "acct", Container: "pics", Object: "cat.jpg"})

	h, ok := ctrl.Handler("COPY")
	if !ok || !h.Public {
		t.Fatal("COPY should be routed and public")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct/pics/cat.jpg", nil)
	getHandler, _ := ctrl.Handler(http.MethodGet)
	getHandler.Fn(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeSelection(t, rr)
	if resp.Object != "cat.jpg" {
		t.Fatalf("resp.Object = %q, want cat.jpg", resp.Object)
	}
}

func TestObjectControllerAllNodesSuppressedReturns503(t *testing.T) {
	sel := testSelector()
	for _, n := range testNodes() {
		sel.Health.ForceSuppress(n, "simulated outage")
	}
	factory := NewObjectFactory(sel)
	ctrl := factory(classify.Key{Account: "acct", Container: "pics", Object: "cat.jpg"})

	h, _ := ctrl.Handler(http.MethodGet)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/acct/pics/cat.jpg", nil)
	h.Fn(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when every node is suppressed", rr.Code)
	}
}

// NotifyIfHandoffAll must never panic when Alert is unset (the default for
// any ring with no Slack configuration), and must not panic when Alert is
// configured but disabled (no bot token).
func TestSelectorNotifyIfHandoffAllSafeWithoutAlert(t *testing.T) {
	sel := testSelector()
	it := sel.Iterate("acct", "", "")
	Attempt(it, func(ring.Node) bool { return true })
	sel.NotifyIfHandoffAll(it)

	sel.Alert = nodealert.New("", "", discardLogger())
	it2 := sel.Iterate("acct2", "", "")
	Attempt(it2, func(ring.Node) bool { return true })
	sel.NotifyIfHandoffAll(it2)
}

func TestExistenceCacheDisabledWithNilCache(t *testing.T) {
	e := existenceCache{cache: nil, ttl: time.Second}
	ctx := t.Context()
	if e.recentlyUnavailable(ctx, "account:x") {
		t.Fatal("a disabled existence cache must never report a hit")
	}
	// Must be safe to call even though there is nothing backing it.
	e.recordUnavailable(ctx, "account:x")
	e.clear(ctx, "account:x")
}
