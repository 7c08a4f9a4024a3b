// Package nodetiming implements the per-node recent-latency table used by
// the "timing" node-sort strategy (spec §4.3), and the supplemented
// set_node_timing write path (SPEC_FULL §13) that populates it.
//
// Keyed by node IP only, not (ip, port, device) — spec §9 flags this as an
// open question in the original (collapsing multiple devices on one host
// into a single bucket may be intentional host-level latency, or a latent
// bug where one slow device pulls its healthy siblings down) and directs
// implementers to preserve the behavior rather than silently "fix" it.
package nodetiming

import (
	"sync"
	"time"
)

type entry struct {
	latency   time.Duration
	expiresAt time.Time
}

// Table holds recent per-IP latency measurements, each with an expiry.
type Table struct {
	mu     sync.Mutex
	byIP   map[string]entry
	expiry time.Duration
}

// NewTable constructs a timing table whose entries expire after expiry
// (default 300s per spec §6's timing_expiry).
func NewTable(expiry time.Duration) *Table {
	return &Table{
		byIP:   make(map[string]entry),
		expiry: expiry,
	}
}

// Record stores a latency observation for ip, rounded to milliseconds so
// that near-equal timings tie and a prior shuffle decides order (spec §3).
func (t *Table) Record(ip string, latency time.Duration) {
	rounded := latency.Round(time.Millisecond)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byIP[ip] = entry{
		latency:   rounded,
		expiresAt: time.Now().Add(t.expiry),
	}
}

// Lookup returns the recorded latency for ip in seconds, and whether an
// unexpired entry exists. A healthy node with no recorded timing (or an
// expired one) reports ok=false; callers use this to sort it to the front
// (key -1.0), giving new or recovered nodes a chance.
func (t *Table) Lookup(ip string) (seconds float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, present := t.byIP[ip]
	if !present {
		return 0, false
	}
	if time.Now().After(e.expiresAt) {
		delete(t.byIP, ip)
		return 0, false
	}
	return e.latency.Seconds(), true
}
