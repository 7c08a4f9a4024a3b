// Package adminapi implements the admin capability surface supplemented
// in SPEC_FULL §13: a single endpoint, POST /admin/ring/reload, gated by
// the same admin-key mechanism as /info's privileged sections. It exists
// to give the ring collaborator's hot-reload (spec §5: "Rings ... may be
// hot-reloaded by the collaborator") a concrete entry point to exercise,
// not derived from the original, which has no admin HTTP API of its own.
package adminapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/duskgate/portcullis/internal/adminsig"
	"github.com/duskgate/portcullis/internal/httpserver"
	"github.com/duskgate/portcullis/internal/ring"
)

// Reloadable is the subset of *ring.MemRing the reload endpoint needs.
type Reloadable interface {
	Reload(nodes []ring.Node)
}

// reloadRequest is the JSON body for POST /admin/ring/reload.
type reloadRequest struct {
	Nodes []reloadNode `json:"nodes" validate:"required,min=1,dive"`
}

type reloadNode struct {
	IP     string `json:"ip" validate:"required"`
	Port   int    `json:"port" validate:"required"`
	Device string `json:"device" validate:"required"`
	Region int    `json:"region"`
	Zone   int    `json:"zone"`
}

// Handler serves the admin API.
type Handler struct {
	Rings  map[string]Reloadable
	Admin  *adminsig.Manager
	Logger *slog.Logger
}

// ReloadRing handles POST /admin/ring/reload?ring=account|container|object.
func (h *Handler) ReloadRing(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	ringName := r.URL.Query().Get("ring")
	target, ok := h.Rings[ringName]
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "unknown_ring", "no ring named "+ringName)
		return
	}

	var req reloadRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	nodes := make([]ring.Node, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		nodes = append(nodes, ring.Node{IP: n.IP, Port: n.Port, Device: n.Device, Region: n.Region, Zone: n.Zone})
	}
	target.Reload(nodes)

	h.Logger.Info("ring reloaded via admin API", "ring", ringName, "node_count", len(nodes))
	httpserver.Respond(w, http.StatusOK, map[string]any{"ring": ringName, "node_count": len(nodes)})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.Admin == nil || !h.Admin.Enabled() {
		httpserver.RespondError(w, http.StatusForbidden, "admin_disabled", "admin API disabled (no admin_key configured)")
		return false
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		httpserver.RespondError(w, http.StatusUnauthorized, "missing_token", "missing bearer token")
		return false
	}

	claims, err := h.Admin.Verify(strings.TrimSpace(auth[len(prefix):]))
	if err != nil || !claims.Unlocks("ring_reload") {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "token does not unlock ring_reload")
		return false
	}
	return true
}
