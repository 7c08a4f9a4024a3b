// Package nodesort implements the three node-ordering strategies spec §4.3
// selects between at init: shuffle, timing, and affinity.
package nodesort

import (
	"context"
	"math/rand"
	"sort"

	"github.com/duskgate/portcullis/internal/affinity"
	"github.com/duskgate/portcullis/internal/nodehealth"
	"github.com/duskgate/portcullis/internal/nodetiming"
	"github.com/duskgate/portcullis/internal/ring"
)

// Strategy reorders a list of nodes in place and returns it, for chaining.
type Strategy interface {
	Sort(nodes []ring.Node) []ring.Node
}

// Shuffle performs a uniform random permutation. This is the default
// strategy.
type Shuffle struct {
	// Rand, if set, is used instead of the package-level source (tests
	// inject a seeded Rand for determinism).
	Rand *rand.Rand
}

func (s Shuffle) Sort(nodes []ring.Node) []ring.Node {
	r := s.Rand
	if r == nil {
		r = rand.New(rand.NewSource(rand.Int63()))
	}
	r.Shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})
	return nodes
}

// Timing first applies a uniform shuffle, then stable-sorts by recorded
// latency: a node with an unexpired timing entry sorts by that latency: a
// node with none sorts to the front (key -1.0), giving new or recovered
// nodes a chance. The initial shuffle breaks ties so nodes with equal (or
// missing) timings are not always tried in the same order; the stable sort
// preserves that randomness within a latency class.
type Timing struct {
	Table *nodetiming.Table
	Rand  *rand.Rand
}

func (s Timing) Sort(nodes []ring.Node) []ring.Node {
	nodes = Shuffle{Rand: s.Rand}.Sort(nodes)

	key := func(n ring.Node) float64 {
		if seconds, ok := s.Table.Lookup(n.IP); ok {
			return seconds
		}
		return -1.0
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return key(nodes[i]) < key(nodes[j])
	})
	return nodes
}

// Affinity stable-sorts by a compiled key function derived from the
// read_affinity DSL.
type Affinity struct {
	ReadAffinity *affinity.ReadAffinity
}

func (s Affinity) Sort(nodes []ring.Node) []ring.Node {
	sort.SliceStable(nodes, func(i, j int) bool {
		return s.ReadAffinity.Key(nodes[i]) < s.ReadAffinity.Key(nodes[j])
	})
	return nodes
}

// SlowdownAware wraps another Strategy and stable-sorts its result by each
// node's cross-process slowdown count (internal/nodehealth.Slowdown), so a
// node another process has recently seen erroring is tried later without
// being outright suppressed: suppression stays process-local (spec §5),
// this only nudges ordering preference within whatever Inner already
// produced.
type SlowdownAware struct {
	Inner    Strategy
	Slowdown *nodehealth.Slowdown
}

func (s SlowdownAware) Sort(nodes []ring.Node) []ring.Node {
	nodes = s.Inner.Sort(nodes)
	if s.Slowdown == nil {
		return nodes
	}

	ctx := context.Background()
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if c, err := s.Slowdown.Count(ctx, n); err == nil {
			counts[n.Key()] = c
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return counts[nodes[i].Key()] < counts[nodes[j].Key()]
	})
	return nodes
}

var (
	_ Strategy = Shuffle{}
	_ Strategy = Timing{}
	_ Strategy = Affinity{}
	_ Strategy = SlowdownAware{}
)
