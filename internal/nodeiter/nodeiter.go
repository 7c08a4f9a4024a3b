// Package nodeiter implements iter_nodes (spec §4.4): the node-selection
// core that yields a budgeted, health-filtered, primary-then-handoff
// sequence of candidate backend nodes for a partition.
//
// The post-yield suppression re-check (spec §9's "generator with
// mid-stream state checks" design note) is modeled as an explicit cursor:
// Next returns a node after a pre-check; the caller does its work with the
// node, then calls Done to notify the iterator it is finished, which runs
// the post-check and only then decrements the budget. This keeps the
// re-check out of a background goroutine, as the design note requires.
package nodeiter

import (
	"log/slog"

	"github.com/duskgate/portcullis/internal/affinity"
	"github.com/duskgate/portcullis/internal/nodehealth"
	"github.com/duskgate/portcullis/internal/nodesort"
	"github.com/duskgate/portcullis/internal/ring"
	"github.com/duskgate/portcullis/internal/telemetry"
)

// Iterator yields candidate nodes for one partition selection. Not safe
// for concurrent use by more than one consumer at a time (spec §5); wrap
// with MutexIterator if more than one goroutine must share a selection.
type Iterator struct {
	primaries    []ring.Node
	primaryIdx   int
	primaryCount int

	handoffs        ring.MoreNodes
	handoffsYielded int

	health      *nodehealth.Table
	budget      int
	logHandoffs bool
	logger      *slog.Logger
	ringName    string
	partition   int

	pending *ring.Node
}

// Partition returns the partition this iterator was built over.
func (it *Iterator) Partition() int { return it.partition }

// HandoffAllExhausted reports whether the iterator has yielded at least as
// many handoffs as there are primaries — the condition the
// handoff_all_count metric tracks (spec §4.4). This happens when every
// primary was skipped as suppressed or was yielded and passed over by a
// caller that kept drawing nodes.
func (it *Iterator) HandoffAllExhausted() bool {
	return it.primaryCount > 0 && it.handoffsYielded >= it.primaryCount
}

// New builds an iterator over partition's primaries (sorted by strategy)
// and handoffs, budgeted by budgetExpr evaluated against the ring's
// replica count.
func New(
	r ring.Ring,
	partition int,
	strategy nodesort.Strategy,
	health *nodehealth.Table,
	budgetExpr affinity.NodeCountExpr,
	logHandoffs bool,
	logger *slog.Logger,
	ringName string,
) *Iterator {
	primaries := strategy.Sort(r.GetPartNodes(partition))
	return &Iterator{
		primaries:    primaries,
		primaryCount: len(primaries),
		handoffs:     r.GetMoreNodes(partition),
		health:       health,
		budget:       budgetExpr.Evaluate(r.ReplicaCount()),
		logHandoffs:  logHandoffs,
		logger:       logger,
		ringName:     ringName,
		partition:    partition,
	}
}

// NewFromOverride builds an iterator from an explicit node list rather
// than a ring lookup: the first replicaCount nodes are primaries, the rest
// handoffs (spec §4.4's override_iter parameter).
func NewFromOverride(
	nodes []ring.Node,
	replicaCount int,
	strategy nodesort.Strategy,
	health *nodehealth.Table,
	budgetExpr affinity.NodeCountExpr,
	logHandoffs bool,
	logger *slog.Logger,
	ringName string,
) *Iterator {
	if replicaCount > len(nodes) {
		replicaCount = len(nodes)
	}
	primaries := strategy.Sort(append([]ring.Node(nil), nodes[:replicaCount]...))
	return &Iterator{
		primaries:    primaries,
		primaryCount: len(primaries),
		handoffs:     &sliceMoreNodes{nodes: nodes[replicaCount:]},
		health:       health,
		budget:       budgetExpr.Evaluate(replicaCount),
		logHandoffs:  logHandoffs,
		logger:       logger,
		ringName:     ringName,
	}
}

type sliceMoreNodes struct {
	nodes []ring.Node
	pos   int
}

func (s *sliceMoreNodes) Next() (ring.Node, bool) {
	if s.pos >= len(s.nodes) {
		return ring.Node{}, false
	}
	n := s.nodes[s.pos]
	s.pos++
	return n, true
}

// Next returns the next eligible node, or ok=false once the budget is
// exhausted or both sources are exhausted. Each call that returns ok=true
// must be followed by exactly one call to Done before the next call to
// Next.
func (it *Iterator) Next() (ring.Node, bool) {
	if it.budget <= 0 {
		return ring.Node{}, false
	}

	for it.primaryIdx < len(it.primaries) {
		n := it.primaries[it.primaryIdx]
		it.primaryIdx++
		if it.health.IsSuppressed(n) {
			continue
		}
		it.pending = &n
		return n, true
	}

	for {
		n, ok := it.handoffs.Next()
		if !ok {
			return ring.Node{}, false
		}
		if it.health.IsSuppressed(n) {
			continue
		}

		it.handoffsYielded++
		telemetry.HandoffCountTotal.WithLabelValues(it.ringName).Inc()
		if it.logHandoffs {
			it.logger.Warn("yielding handoff node",
				"ip", n.IP, "port", n.Port, "device", n.Device)
		}
		if it.handoffsYielded == it.primaryCount {
			telemetry.HandoffAllCountTotal.WithLabelValues(it.ringName).Inc()
		}

		it.pending = &n
		return n, true
	}
}

// Done notifies the iterator that the caller has finished using the node
// most recently returned by Next. It re-checks suppression and decrements
// the budget only if the node is still not suppressed — a node that became
// suppressed while the caller was using it does not consume the budget,
// so the caller draws one extra node instead.
func (it *Iterator) Done() {
	if it.pending == nil {
		return
	}
	n := *it.pending
	it.pending = nil
	if !it.health.IsSuppressed(n) {
		it.budget--
	}
}

// ForEach drives the Next/Done protocol for callers that prefer a
// callback: fn is invoked once per yielded node, and Done is called
// automatically after fn returns. ForEach stops early if fn returns false.
func ForEach(it *Iterator, fn func(ring.Node) bool) {
	for {
		n, ok := it.Next()
		if !ok {
			return
		}
		cont := fn(n)
		it.Done()
		if !cont {
			return
		}
	}
}
