package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/duskgate/portcullis/internal/cache"
	"github.com/duskgate/portcullis/internal/ring"
)

// nodeView is the JSON-facing shape of a node a controller tried.
type nodeView struct {
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	Device string `json:"device"`
}

func toNodeView(n ring.Node) nodeView {
	return nodeView{IP: n.IP, Port: n.Port, Device: n.Device}
}

// selectionResponse is the JSON body a stub controller returns: it proves
// the node-selection pipeline ran, without performing any backend I/O
// (spec §1's non-goal). A real controller would stream the backend's
// response body instead of this summary.
type selectionResponse struct {
	Account   string     `json:"account,omitempty"`
	Container string     `json:"container,omitempty"`
	Object    string     `json:"object,omitempty"`
	Selected  *nodeView  `json:"selected,omitempty"`
	Attempted []nodeView `json:"attempted"`
}

func writeSelection(w http.ResponseWriter, status int, resp selectionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// firstNode drives Selector.Iterate and records every node attempted
// into attempted, for a controller that always "succeeds" on the first
// non-suppressed node — the minimal behavior needed to prove iter_nodes is
// wired, since real success/failure is decided by backend I/O this repo
// does not perform.
func firstNode(sel *Selector, account, container, object string) (ring.Node, []nodeView, bool) {
	it := sel.Iterate(account, container, object)
	var attempted []nodeView
	selected, ok := Attempt(it, func(n ring.Node) bool {
		attempted = append(attempted, toNodeView(n))
		return true
	})
	sel.NotifyIfHandoffAll(it)
	return selected, attempted, ok
}

// existenceCache wraps the shared cache with the recheck_account_existence /
// recheck_container_existence behavior (spec §6): a selection that recently
// found no available node for a given account/container is cached for ttl,
// so an immediate retry skips node selection entirely instead of redoing
// the same failed ring walk, the way the original avoids re-asking the
// backend on every call.
type existenceCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

const unavailableMarker = "unavailable"

// recentlyUnavailable reports whether key was last observed to have no
// available node, within ttl.
func (e existenceCache) recentlyUnavailable(ctx context.Context, key string) bool {
	if e.cache == nil {
		return false
	}
	val, err := e.cache.Get(ctx, key)
	return err == nil && string(val) == unavailableMarker
}

// recordUnavailable caches that key currently has no available node.
func (e existenceCache) recordUnavailable(ctx context.Context, key string) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Set(ctx, key, []byte(unavailableMarker), e.ttl)
}

// clear removes any cached unavailability for key, e.g. after a
// successful selection.
func (e existenceCache) clear(ctx context.Context, key string) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Delete(ctx, key)
}

// firstNodeTimed is firstNode plus set_node_timing: it times the
// "backend round-trip" (here just the selection itself, since real I/O is
// out of scope) and reports it to sel, a no-op unless sorting_method is
// "timing" (SPEC_FULL §13).
func firstNodeTimed(sel *Selector, account, container, object string) (ring.Node, []nodeView, bool) {
	start := time.Now()
	n, attempted, ok := firstNode(sel, account, container, object)
	if ok {
		sel.RecordTiming(n, time.Since(start))
	}
	return n, attempted, ok
}
