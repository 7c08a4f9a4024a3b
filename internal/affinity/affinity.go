// Package affinity compiles the proxy's small configuration DSLs into closed
// algebraic types, evaluated per request rather than re-parsed per request.
//
// Grounded on swift/proxy/server.py lines 113-148 (request_node_count /
// write_affinity_node_count / read_affinity / write_affinity parsing).
package affinity

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeCountExpr evaluates to a per-request node budget given the ring's
// replica count. It is one of NodeCountConst or NodeCountPerReplica.
type NodeCountExpr interface {
	Evaluate(replicaCount int) int
	String() string
}

// NodeCountConst is a bare integer budget, independent of replica count.
type NodeCountConst int

func (n NodeCountConst) Evaluate(int) int { return int(n) }
func (n NodeCountConst) String() string   { return strconv.Itoa(int(n)) }

// NodeCountPerReplica is "N * replicas": N times the ring's replica count.
type NodeCountPerReplica int

func (n NodeCountPerReplica) Evaluate(replicaCount int) int { return int(n) * replicaCount }
func (n NodeCountPerReplica) String() string                { return fmt.Sprintf("%d * replicas", int(n)) }

// ParseNodeCount compiles request_node_count / write_affinity_node_count's
// grammar: a bare non-negative integer, or "N * replicas". Any other form is
// a fatal configuration error, to be raised at init rather than first use.
func ParseNodeCount(raw string) (NodeCountExpr, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	switch len(fields) {
	case 1:
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid node count value: %q", raw)
		}
		return NodeCountConst(n), nil
	case 3:
		if fields[1] != "*" || fields[2] != "replicas" {
			return nil, fmt.Errorf("invalid node count value: %q", raw)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid node count value: %q", raw)
		}
		return NodeCountPerReplica(n), nil
	default:
		return nil, fmt.Errorf("invalid node count value: %q", raw)
	}
}

// LocalityRule matches a node's region, and optionally its zone, to a
// priority (lower is better). A rule with no zone matches any zone within
// the region.
//
// Grammar (documented decision — the original's affinity_key_function and
// affinity_locality_predicate bodies were not present in the retrieved
// source, only their call sites): a comma-separated list of
//
//	r<region>[z<zone>][=<priority>]
//
// e.g. "r1=100, r1z2=50, r2" — first matching rule wins; omitted priority
// defaults to the rule's position in the list (earlier = lower = better).
type LocalityRule struct {
	Region   int
	Zone     int // -1 means "any zone in this region"
	Priority int
}

// sentinelPriority is assigned to nodes matched by no rule; it sorts after
// every explicit rule.
const sentinelPriority = 1<<31 - 1

// Node is the minimal shape affinity rules match against. It mirrors the
// region/zone fields a ring-provided node carries.
type Node interface {
	RegionID() int
	ZoneID() int
}

// ReadAffinity is a compiled read_affinity sort-key function.
type ReadAffinity struct {
	rules []LocalityRule
}

// WriteAffinity is a compiled write_affinity locality predicate.
type WriteAffinity struct {
	rules []LocalityRule
}

// ParseReadAffinity compiles the read_affinity DSL into a sort-key function.
// An empty string compiles to a ReadAffinity that assigns every node the
// sentinel priority (i.e. sorting by affinity is a no-op).
func ParseReadAffinity(raw string) (*ReadAffinity, error) {
	rules, err := parseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid read_affinity value: %q: %w", raw, err)
	}
	return &ReadAffinity{rules: rules}, nil
}

// ParseWriteAffinity compiles the write_affinity DSL into a locality
// predicate. An empty string compiles to a WriteAffinity under which no node
// is ever local (the write path then always falls back to non-locals).
func ParseWriteAffinity(raw string) (*WriteAffinity, error) {
	rules, err := parseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid write_affinity value: %q: %w", raw, err)
	}
	return &WriteAffinity{rules: rules}, nil
}

// Key returns the sort priority for n; lower sorts first.
func (a *ReadAffinity) Key(n Node) int {
	for _, rule := range a.rules {
		if rule.Region == n.RegionID() && (rule.Zone == -1 || rule.Zone == n.ZoneID()) {
			return rule.Priority
		}
	}
	return sentinelPriority
}

// IsLocal reports whether n matches any write_affinity rule.
func (a *WriteAffinity) IsLocal(n Node) bool {
	for _, rule := range a.rules {
		if rule.Region == n.RegionID() && (rule.Zone == -1 || rule.Zone == n.ZoneID()) {
			return true
		}
	}
	return false
}

func parseRules(raw string) ([]LocalityRule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	rules := make([]LocalityRule, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		spec, priorityStr, hasPriority := strings.Cut(part, "=")
		priority := i
		if hasPriority {
			p, err := strconv.Atoi(strings.TrimSpace(priorityStr))
			if err != nil {
				return nil, fmt.Errorf("bad priority in rule %q", part)
			}
			priority = p
		}

		spec = strings.ToLower(strings.TrimSpace(spec))
		if !strings.HasPrefix(spec, "r") {
			return nil, fmt.Errorf("rule %q must start with 'r<region>'", part)
		}
		spec = spec[1:]

		region, zone := spec, -1
		if idx := strings.IndexByte(spec, 'z'); idx >= 0 {
			region, zone = spec[:idx], -1
			z, err := strconv.Atoi(spec[idx+1:])
			if err != nil {
				return nil, fmt.Errorf("bad zone in rule %q", part)
			}
			zone = z
		}

		r, err := strconv.Atoi(region)
		if err != nil {
			return nil, fmt.Errorf("bad region in rule %q", part)
		}

		rules = append(rules, LocalityRule{Region: r, Zone: zone, Priority: priority})
	}
	return rules, nil
}
