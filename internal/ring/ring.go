// Package ring defines the storage-ring collaborator contract (spec §2, §3,
// GLOSSARY) and a reference in-process implementation. The ring proper is
// out of scope for the dispatcher's behavior; this package gives the rest
// of the repo something concrete to run and test against.
package ring

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is an immutable value-type identifying a storage node. Per-node
// mutable health annotations live in a side table (internal/nodehealth),
// not on Node itself, to avoid aliasing surprises when a ring reloads
// (spec §9 design note).
type Node struct {
	IP     string
	Port   int
	Device string
	Region int
	Zone   int
}

// RegionID and ZoneID satisfy internal/affinity.Node.
func (n Node) RegionID() int { return n.Region }
func (n Node) ZoneID() int   { return n.Zone }

// Key returns the node's stable identity tuple, suitable as a map key.
func (n Node) Key() string {
	return n.IP + "|" + itoa(n.Port) + "|" + n.Device
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ParseNodeSpec parses one node bootstrap entry of the form
// "ip:port:device[:region:zone]" (region/zone default to 0 if omitted),
// the format config.Config's *_RING_NODES env vars use to seed the
// reference in-process ring at startup. Ring loading proper is out of
// scope as a collaborator (spec §1); this just gives that collaborator a
// concrete entry point in this repo.
func ParseNodeSpec(spec string) (Node, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 && len(parts) != 5 {
		return Node{}, fmt.Errorf("ring: invalid node spec %q: want ip:port:device[:region:zone]", spec)
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return Node{}, fmt.Errorf("ring: invalid port in node spec %q: %w", spec, err)
	}

	n := Node{IP: parts[0], Port: port, Device: parts[2]}
	if len(parts) == 5 {
		region, err := strconv.Atoi(parts[3])
		if err != nil {
			return Node{}, fmt.Errorf("ring: invalid region in node spec %q: %w", spec, err)
		}
		zone, err := strconv.Atoi(parts[4])
		if err != nil {
			return Node{}, fmt.Errorf("ring: invalid zone in node spec %q: %w", spec, err)
		}
		n.Region, n.Zone = region, zone
	}
	return n, nil
}

// MoreNodes is a lazy, effectively unbounded sequence of handoff nodes for
// one partition. Next returns ok=false once the sequence is exhausted.
type MoreNodes interface {
	Next() (Node, bool)
}

// Ring maps a key tuple to a partition, and a partition to a finite set of
// primary nodes plus a lazy sequence of handoffs (spec §3, §4.4).
type Ring interface {
	// ReplicaCount is the number of primary nodes per partition.
	ReplicaCount() int

	// PartitionFor maps an (account, container, object) key tuple to a
	// partition. Absent segments are passed as "".
	PartitionFor(account, container, object string) int

	// GetPartNodes returns the ReplicaCount primary nodes for partition,
	// in ring-native (not yet sorted) order.
	GetPartNodes(partition int) []Node

	// GetMoreNodes returns a lazy handoff sequence for partition, not
	// overlapping the primaries.
	GetMoreNodes(partition int) MoreNodes
}
