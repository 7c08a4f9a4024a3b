package adminapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duskgate/portcullis/internal/adminsig"
	"github.com/duskgate/portcullis/internal/ring"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRing struct {
	reloaded []ring.Node
}

func (f *fakeRing) Reload(nodes []ring.Node) { f.reloaded = nodes }

func newHandler(t *testing.T, admin *adminsig.Manager, account *fakeRing) *Handler {
	t.Helper()
	return &Handler{
		Rings:  map[string]Reloadable{"account": account},
		Admin:  admin,
		Logger: discardLogger(),
	}
}

func reloadBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(reloadRequest{Nodes: []reloadNode{
		{IP: "10.0.0.1", Port: 6002, Device: "sdb1"},
	}})
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	return body
}

func TestReloadRingRejectsWhenAdminDisabled(t *testing.T) {
	admin := adminsig.NewManager("", time.Hour)
	account := &fakeRing{}
	h := newHandler(t, admin, account)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/ring/reload?ring=account", bytes.NewReader(reloadBody(t)))
	h.ReloadRing(rr, req)

	if rr.Code != 403 {
		t.Fatalf("status = %d, want 403 when no admin_key is configured", rr.Code)
	}
}

func TestReloadRingRejectsMissingToken(t *testing.T) {
	admin := adminsig.NewManager("s3cr3t", time.Hour)
	account := &fakeRing{}
	h := newHandler(t, admin, account)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/ring/reload?ring=account", bytes.NewReader(reloadBody(t)))
	h.ReloadRing(rr, req)

	if rr.Code != 401 {
		t.Fatalf("status = %d, want 401 for a missing bearer token", rr.Code)
	}
}

func TestReloadRingRejectsTokenWithoutCapability(t *testing.T) {
	admin := adminsig.NewManager("s3cr3t", time.Hour)
	account := &fakeRing{}
	h := newHandler(t, admin, account)

	tok, err := admin.Issue(adminsig.Claims{Sections: []string{"staticweb"}})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/ring/reload?ring=account", bytes.NewReader(reloadBody(t)))
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ReloadRing(rr, req)

	if rr.Code != 403 {
		t.Fatalf("status = %d, want 403: token does not unlock ring_reload", rr.Code)
	}
}

func TestReloadRingSucceedsAndReplacesNodes(t *testing.T) {
	admin := adminsig.NewManager("s3cr3t", time.Hour)
	account := &fakeRing{}
	h := newHandler(t, admin, account)

	tok, err := admin.Issue(adminsig.Claims{Sections: []string{"ring_reload"}})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/ring/reload?ring=account", bytes.NewReader(reloadBody(t)))
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ReloadRing(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if len(account.reloaded) != 1 || account.reloaded[0].IP != "10.0.0.1" {
		t.Fatalf("account ring was not reloaded with the request's nodes: %+v", account.reloaded)
	}
}

func TestReloadRingRejectsUnknownRing(t *testing.T) {
	admin := adminsig.NewManager("s3cr3t", time.Hour)
	account := &fakeRing{}
	h := newHandler(t, admin, account)

	tok, err := admin.Issue(adminsig.Claims{Sections: []string{"*"}})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/ring/reload?ring=bogus", bytes.NewReader(reloadBody(t)))
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ReloadRing(rr, req)

	if rr.Code != 404 {
		t.Fatalf("status = %d, want 404 for an unknown ring name", rr.Code)
	}
}
