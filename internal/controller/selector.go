package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/duskgate/portcullis/internal/affinity"
	"github.com/duskgate/portcullis/internal/nodealert"
	"github.com/duskgate/portcullis/internal/nodehealth"
	"github.com/duskgate/portcullis/internal/nodeiter"
	"github.com/duskgate/portcullis/internal/nodesort"
	"github.com/duskgate/portcullis/internal/nodetiming"
	"github.com/duskgate/portcullis/internal/ring"
)

// Selector bundles one replica set's ring and its process-local health
// state, everything a controller needs to run iter_nodes (spec §4.4) for
// a partition. One Selector exists per ring (account, container, object).
type Selector struct {
	Ring        ring.Ring
	Health      *nodehealth.Table
	Strategy    nodesort.Strategy
	Budget      affinity.NodeCountExpr
	LogHandoffs bool
	Logger      *slog.Logger
	Name        string

	// Timing is non-nil only when sorting_method is "timing"; the
	// set_node_timing write path (SPEC_FULL §13) is then live. nil
	// disables RecordTiming as a no-op, matching the original's
	// "only populates the timing table when sorting_method == timing".
	Timing *nodetiming.Table

	// Alert is optional; when set, NotifyIfHandoffAll (called by the
	// controllers' firstNode helper) notifies it if a selection reached
	// the handoff_all condition (SPEC_FULL §11).
	Alert *nodealert.Notifier
}

// RecordTiming reports the observed latency of a backend round-trip to
// node, populating the timing table the "timing" sort strategy reads
// (spec §4.3, SPEC_FULL §13). No-op unless Timing is configured.
func (s *Selector) RecordTiming(n ring.Node, latency time.Duration) {
	if s.Timing == nil {
		return
	}
	s.Timing.Record(n.IP, latency)
}

// Iterate returns the node iterator for the partition that owns
// (account, container, object) (spec §4.4). container/object may be
// empty, per the partition key tuple of spec §3.
func (s *Selector) Iterate(account, container, object string) *nodeiter.Iterator {
	partition := s.Ring.PartitionFor(account, container, object)
	return nodeiter.New(s.Ring, partition, s.Strategy, s.Health, s.Budget, s.LogHandoffs, s.Logger, s.Name)
}

// NotifyIfHandoffAll posts a best-effort alert if it exhausted every
// primary for its partition. No-op if Alert is not configured or the
// condition did not occur.
func (s *Selector) NotifyIfHandoffAll(it *nodeiter.Iterator) {
	if s.Alert == nil || !it.HandoffAllExhausted() {
		return
	}
	if err := s.Alert.HandoffAll(context.Background(), s.Name, it.Partition()); err != nil {
		s.Logger.Warn("posting handoff-all alert", "ring", s.Name, "error", err)
	}
}

// Attempt drives the iterator via the Next/Done protocol (spec §9's
// cursor-object pattern), calling try(node) for each candidate until try
// reports success or the iterator is exhausted. It returns the node that
// succeeded, if any. Backend I/O itself is out of scope (spec §1): try is
// the controller's opaque stand-in for the real backend call.
func Attempt(it *nodeiter.Iterator, try func(n ring.Node) bool) (ring.Node, bool) {
	for {
		n, ok := it.Next()
		if !ok {
			return ring.Node{}, false
		}
		success := try(n)
		it.Done()
		if success {
			return n, true
		}
	}
}
