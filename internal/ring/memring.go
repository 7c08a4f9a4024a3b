package ring

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/dgryski/go-rendezvous"
)

// MemRing is a reference, in-process Ring implementation. For a partition,
// every known node is ranked by rendezvous (highest-random-weight) hashing
// against the partition key — the same hashing family the pack already
// depends on (go-redis pulls dgryski/go-rendezvous for client-side
// sharding). A node's rank for a partition is stable, and adding or
// removing a node only reshuffles the partitions that actually touch it.
//
// Rings are nominally immutable after load but may be hot-reloaded; Reload
// swaps the node set under a mutex so a single selection sees a consistent
// snapshot (spec §5).
type MemRing struct {
	mu            sync.Mutex
	replicaCount  int
	partitionBits uint
	rv            *rendezvous.Rendezvous
	byName        map[string]Node
}

// NewMemRing builds a ring over nodes with the given replica count and
// partition-space size (2^partitionBits partitions).
func NewMemRing(nodes []Node, replicaCount int, partitionBits uint) *MemRing {
	r := &MemRing{
		replicaCount:  replicaCount,
		partitionBits: partitionBits,
	}
	r.reload(nodes)
	return r
}

// Reload atomically replaces the node set, e.g. after an on-disk ring file
// changes.
func (r *MemRing) Reload(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reload(nodes)
}

func (r *MemRing) reload(nodes []Node) {
	names := make([]string, 0, len(nodes))
	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Key())
		byName[n.Key()] = n
	}
	r.rv = rendezvous.New(names, hashString)
	r.byName = byName
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func (r *MemRing) ReplicaCount() int { return r.replicaCount }

// PartitionFor hashes the key tuple into the partition space.
func (r *MemRing) PartitionFor(account, container, object string) int {
	key := fmt.Sprintf("%s/%s/%s", account, container, object)
	h := hashString(key)
	mask := uint64(1)<<r.partitionBits - 1
	return int(h & mask)
}

// rankedNodes ranks every known node for partition via repeated
// Lookup-then-Remove against the rendezvous ring, restoring the ring
// afterward. Held under r.mu since the rendezvous ring is mutated in place.
func (r *MemRing) rankedNodes(partition int) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("part:%d", partition)
	n := len(r.byName)
	ranked := make([]Node, 0, n)
	removed := make([]string, 0, n)

	for i := 0; i < n; i++ {
		name := r.rv.Lookup(key)
		ranked = append(ranked, r.byName[name])
		r.rv.Remove(name)
		removed = append(removed, name)
	}
	for _, name := range removed {
		r.rv.Add(name)
	}
	return ranked
}

// GetPartNodes returns the ReplicaCount highest-ranked nodes for partition.
func (r *MemRing) GetPartNodes(partition int) []Node {
	ranked := r.rankedNodes(partition)
	if len(ranked) > r.replicaCount {
		return ranked[:r.replicaCount]
	}
	return ranked
}

// GetMoreNodes returns the remaining ranked nodes, beyond the primaries, as
// a lazy handoff sequence.
func (r *MemRing) GetMoreNodes(partition int) MoreNodes {
	ranked := r.rankedNodes(partition)
	start := r.replicaCount
	if start > len(ranked) {
		start = len(ranked)
	}
	return &sliceHandoffs{nodes: ranked[start:]}
}

type sliceHandoffs struct {
	nodes []Node
	pos   int
}

func (s *sliceHandoffs) Next() (Node, bool) {
	if s.pos >= len(s.nodes) {
		return Node{}, false
	}
	n := s.nodes[s.pos]
	s.pos++
	return n, true
}

var _ Ring = (*MemRing)(nil)
