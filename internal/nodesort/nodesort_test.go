package nodesort

import (
	"math/rand"
	"testing"
	"time"

	"github.com/duskgate/portcullis/internal/affinity"
	"github.com/duskgate/portcullis/internal/nodehealth"
	"github.com/duskgate/portcullis/internal/nodetiming"
	"github.com/duskgate/portcullis/internal/ring"
)

func nodesFor(ips ...string) []ring.Node {
	nodes := make([]ring.Node, len(ips))
	for i, ip := range ips {
		nodes[i] = ring.Node{IP: ip, Port: 6000, Device: "sdb1"}
	}
	return nodes
}

func TestShufflePreservesSet(t *testing.T) {
	nodes := nodesFor("a", "b", "c", "d")
	r := rand.New(rand.NewSource(1))
	Shuffle{Rand: r}.Sort(nodes)

	seen := map[string]bool{}
	for _, n := range nodes {
		seen[n.IP] = true
	}
	for _, ip := range []string{"a", "b", "c", "d"} {
		if !seen[ip] {
			t.Fatalf("shuffle lost node %q", ip)
		}
	}
}

func TestTimingSortsHealthyUntimedNodesFirst(t *testing.T) {
	table := nodetiming.NewTable(300 * time.Second)
	table.Record("slow", 900*time.Millisecond)
	table.Record("fast", 10*time.Millisecond)
	// "new" has no recorded timing.

	nodes := nodesFor("slow", "fast", "new")
	Timing{Table: table, Rand: rand.New(rand.NewSource(1))}.Sort(nodes)

	if nodes[0].IP != "new" {
		t.Fatalf("expected untimed node first, got order %v", ipsOf(nodes))
	}
	if nodes[1].IP != "fast" || nodes[2].IP != "slow" {
		t.Fatalf("expected fast before slow, got order %v", ipsOf(nodes))
	}
}

func TestAffinitySortsByCompiledKey(t *testing.T) {
	ra, err := affinity.ParseReadAffinity("r1=100, r2=50")
	if err != nil {
		t.Fatalf("ParseReadAffinity: %v", err)
	}

	nodes := []ring.Node{
		{IP: "a", Region: 1},
		{IP: "b", Region: 2},
		{IP: "c", Region: 9}, // unmatched, sentinel priority
	}
	Affinity{ReadAffinity: ra}.Sort(nodes)

	if ipsOf(nodes) != "b,a,c" {
		t.Fatalf("got order %v, want region 2 first, then region 1, then unmatched", ipsOf(nodes))
	}
}

func TestSlowdownAwareNoopWithoutSlowdown(t *testing.T) {
	nodes := nodesFor("a", "b", "c")
	got := SlowdownAware{Inner: Shuffle{Rand: rand.New(rand.NewSource(1))}}.Sort(nodes)

	seen := map[string]bool{}
	for _, n := range got {
		seen[n.IP] = true
	}
	for _, ip := range []string{"a", "b", "c"} {
		if !seen[ip] {
			t.Fatalf("SlowdownAware with a nil Slowdown lost node %q", ip)
		}
	}
}

func TestSlowdownAwareNilBackedSlowdownIsHarmless(t *testing.T) {
	nodes := nodesFor("a", "b", "c")
	s := SlowdownAware{
		Inner:    Shuffle{Rand: rand.New(rand.NewSource(1))},
		Slowdown: nodehealth.NewSlowdown(nil, time.Minute),
	}
	got := s.Sort(nodes)

	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
}

func ipsOf(nodes []ring.Node) string {
	out := ""
	for i, n := range nodes {
		if i > 0 {
			out += ","
		}
		out += n.IP
	}
	return out
}
