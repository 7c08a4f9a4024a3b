package nodeiter

import (
	"sync"

	"github.com/duskgate/portcullis/internal/ring"
)

// MutexIterator serializes access to an Iterator for consumers that must
// share a single selection across goroutines. The iterator itself does not
// synchronize internally (spec §4.4 concurrency note); this wrapper is the
// adapter the note calls for.
type MutexIterator struct {
	mu sync.Mutex
	it *Iterator
}

// NewMutexIterator wraps it for concurrent use.
func NewMutexIterator(it *Iterator) *MutexIterator {
	return &MutexIterator{it: it}
}

// NextAndDone atomically draws the next node, invokes fn with it, and runs
// the Done bookkeeping, all under the wrapper's lock — the natural shape
// for concurrent consumers, which otherwise could not safely interleave
// separate Next/Done calls.
func (m *MutexIterator) NextAndDone(fn func(ring.Node)) (ring.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.it.Next()
	if !ok {
		return ring.Node{}, false
	}
	fn(n)
	m.it.Done()
	return n, true
}
