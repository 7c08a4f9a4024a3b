// Package nodehealth implements the per-node error-suppression state
// machine (spec §4.2). Health is held in a side table keyed by node
// identity rather than annotated onto ring-provided node records, per
// spec §9's design note: this avoids aliasing surprises when a ring
// reloads and keeps Node an immutable value type.
package nodehealth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/duskgate/portcullis/internal/ring"
	"github.com/duskgate/portcullis/internal/telemetry"
)

type entry struct {
	errors    int
	lastError time.Time
}

// Table tracks recent errors per node. Shared process-wide, read on every
// node selection, written on every failure; races are tolerated (spec §5),
// but the (errors, lastError) pair is never read or written torn since both
// fields are only ever touched under mu.
type Table struct {
	mu                sync.Mutex
	entries           map[string]*entry
	suppressionLimit  int
	suppressionWindow time.Duration
	logger            *slog.Logger
	ringName          string
	slowdown          *Slowdown
}

// NewTable constructs a node-health table. ringName labels the metrics this
// table emits (a process may run more than one ring).
func NewTable(suppressionLimit int, suppressionWindow time.Duration, logger *slog.Logger, ringName string) *Table {
	return &Table{
		entries:           make(map[string]*entry),
		suppressionLimit:  suppressionLimit,
		suppressionWindow: suppressionWindow,
		logger:            logger,
		ringName:          ringName,
	}
}

// AttachSlowdown wires the optional cross-process error signal into this
// table: every RecordError/RecordException also feeds Slowdown.Observe, so
// sibling processes see the failure sooner. Never required — a Table with
// no attached Slowdown behaves exactly as before.
func (t *Table) AttachSlowdown(s *Slowdown) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slowdown = s
}

// IsSuppressed reports whether n should be skipped. A stale entry (last
// error older than the suppression window) is cleared as a side effect,
// per invariant 2.
func (t *Table) IsSuppressed(n ring.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[n.Key()]
	if !ok {
		return false
	}
	if time.Since(e.lastError) > t.suppressionWindow {
		delete(t.entries, n.Key())
		return false
	}

	suppressed := e.errors > t.suppressionLimit
	if suppressed {
		telemetry.NodeSuppressedTotal.WithLabelValues(t.ringName).Inc()
	}
	return suppressed
}

// RecordError increments n's error count and logs the failure.
func (t *Table) RecordError(n ring.Node, msg string) {
	t.mu.Lock()
	e, ok := t.entries[n.Key()]
	if !ok {
		e = &entry{}
		t.entries[n.Key()] = e
	}
	e.errors++
	e.lastError = time.Now()
	slowdown := t.slowdown
	t.mu.Unlock()

	telemetry.NodeErrorsTotal.WithLabelValues(t.ringName).Inc()
	t.logger.Warn("node error recorded",
		"ip", n.IP, "port", n.Port, "device", n.Device, "msg", msg)

	if slowdown != nil {
		if err := slowdown.Observe(context.Background(), n); err != nil {
			t.logger.Warn("recording cross-process slowdown signal", "error", err)
		}
	}
}

// RecordException is an alias of RecordError with a richer log template,
// for node-level failures that carry structured type/info detail (spec
// §4.2).
func (t *Table) RecordException(n ring.Node, excType, info string) {
	t.mu.Lock()
	e, ok := t.entries[n.Key()]
	if !ok {
		e = &entry{}
		t.entries[n.Key()] = e
	}
	e.errors++
	e.lastError = time.Now()
	slowdown := t.slowdown
	t.mu.Unlock()

	telemetry.NodeErrorsTotal.WithLabelValues(t.ringName).Inc()
	t.logger.Warn("node exception recorded",
		"ip", n.IP, "port", n.Port, "device", n.Device,
		"exception_type", excType, "info", info)

	if slowdown != nil {
		if err := slowdown.Observe(context.Background(), n); err != nil {
			t.logger.Warn("recording cross-process slowdown signal", "error", err)
		}
	}
}

// ForceSuppress immediately suppresses n, without waiting for the error
// counter to climb — used for errors known to be expensive or persistent
// (e.g. "Insufficient Storage").
func (t *Table) ForceSuppress(n ring.Node, msg string) {
	t.mu.Lock()
	t.entries[n.Key()] = &entry{
		errors:    t.suppressionLimit + 1,
		lastError: time.Now(),
	}
	t.mu.Unlock()

	telemetry.NodeForceSuppressedTotal.WithLabelValues(t.ringName).Inc()
	t.logger.Error("node force-suppressed",
		"ip", n.IP, "port", n.Port, "device", n.Device, "msg", msg)
}
