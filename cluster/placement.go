package cluster

import (
	"sort"
	"sync"

	"github.com/polydawn/capsule/api/def"
)

// PlacementPolicy picks a node for a capsule out of a filtered candidate
// set. All four variants share the same filter step (CanFit) and differ
// only in how they rank what's left.
type PlacementPolicy string

const (
	PolicyRoundRobin       PlacementPolicy = "round-robin"
	PolicyLeastLoaded      PlacementPolicy = "least-loaded"
	PolicyResourceBalanced PlacementPolicy = "resource-balanced"
	PolicyAffinityAware    PlacementPolicy = "affinity-aware"
)

// PlacementRequest names what a capsule needs and, for affinity-aware
// placement, which label(s) it should land near or away from.
type PlacementRequest struct {
	Caps          def.ResourceCaps
	AffinityLabel string // co-locate with nodes carrying this label, if set
	AntiAffinity  bool   // when true, AffinityLabel is avoided instead of preferred
}

// Scheduler places capsules onto nodes and tracks the round-robin
// cursor policies need across calls.
type Scheduler struct {
	members *Membership
	Policy  PlacementPolicy

	mu     sync.Mutex
	cursor int
}

func NewScheduler(members *Membership, policy PlacementPolicy) *Scheduler {
	return &Scheduler{members: members, Policy: policy}
}

// Place filters the Active node set down to those with room, then
// ranks the survivors by the configured policy and returns the winner.
func (s *Scheduler) Place(req PlacementRequest) (def.Node, error) {
	candidates := s.filterFits(s.members.Active(), req.Caps)
	if len(candidates) == 0 {
		return def.Node{}, NoCapacity.New("no active node has capacity for %+v", req.Caps)
	}

	switch s.Policy {
	case PolicyLeastLoaded:
		return leastLoaded(candidates), nil
	case PolicyResourceBalanced:
		return resourceBalanced(candidates), nil
	case PolicyAffinityAware:
		return s.affinityAware(candidates, req), nil
	default:
		return s.roundRobin(candidates), nil
	}
}

func (s *Scheduler) filterFits(nodes []def.Node, caps def.ResourceCaps) []def.Node {
	out := make([]def.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.CanFit(caps) {
			out = append(out, n)
		}
	}
	return out
}

// roundRobin cycles through the candidate list in id order (Active()
// already returns nodes sorted by id, so the cursor's meaning is stable
// across calls even as membership changes).
func (s *Scheduler) roundRobin(candidates []def.Node) def.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := candidates[s.cursor%len(candidates)]
	s.cursor++
	return n
}

func leastLoaded(candidates []def.Node) def.Node {
	best := candidates[0]
	for _, n := range candidates[1:] {
		if n.Utilization() < best.Utilization() {
			best = n
		}
	}
	return best
}

// resourceBalanced scores nodes by the spread across CPU/memory/storage
// utilization, preferring the node whose resources are most evenly
// loaded relative to each other -- avoiding piling CPU-heavy workloads
// onto a node that's already memory-constrained even if its CPU is idle.
func resourceBalanced(candidates []def.Node) def.Node {
	score := func(n def.Node) float64 {
		cpu := n.Utilization()
		mem := 0.0
		if n.Capacity.MemoryGB > 0 {
			mem = n.Usage.MemoryGB / n.Capacity.MemoryGB
		}
		sto := 0.0
		if n.Capacity.StorageGB > 0 {
			sto = n.Usage.StorageGB / n.Capacity.StorageGB
		}
		mean := (cpu + mem + sto) / 3
		variance := sq(cpu-mean) + sq(mem-mean) + sq(sto-mean)
		return variance
	}
	best := candidates[0]
	bestScore := score(best)
	for _, n := range candidates[1:] {
		if sc := score(n); sc < bestScore {
			best, bestScore = n, sc
		}
	}
	return best
}

func sq(f float64) float64 { return f * f }

func (s *Scheduler) affinityAware(candidates []def.Node, req PlacementRequest) def.Node {
	if req.AffinityLabel == "" {
		return leastLoaded(candidates)
	}
	var matching, rest []def.Node
	for _, n := range candidates {
		if _, ok := n.Labels[req.AffinityLabel]; ok {
			matching = append(matching, n)
		} else {
			rest = append(rest, n)
		}
	}
	pool := matching
	if req.AntiAffinity {
		pool = rest
	}
	if len(pool) == 0 {
		pool = candidates
	}
	return leastLoaded(pool)
}

// RebalanceThreshold and RebalanceTarget are the >0.8 / <0.5
// utilization triggers a rebalance pass fires and settles on.
const RebalanceThreshold = 0.8
const RebalanceTarget = 0.5

// MigrationCandidate names a capsule assignment a rebalance pass thinks
// should move, and the destination node it found room on.
type MigrationCandidate struct {
	Assignment def.CapsuleAssignment
	FromNode   string
	ToNode     string
}

// FindRebalanceCandidates looks for nodes over RebalanceThreshold
// utilization and, for each of their assignments (largest first, to
// make the fewest moves), a node under RebalanceTarget with room.
func (s *Scheduler) FindRebalanceCandidates() []MigrationCandidate {
	nodes := s.members.Active()
	var out []MigrationCandidate

	overloaded := make([]def.Node, 0)
	underloaded := make([]def.Node, 0)
	for _, n := range nodes {
		switch {
		case n.Utilization() > RebalanceThreshold:
			overloaded = append(overloaded, n)
		case n.Utilization() < RebalanceTarget:
			underloaded = append(underloaded, n)
		}
	}
	sort.Slice(underloaded, func(i, j int) bool { return underloaded[i].Utilization() < underloaded[j].Utilization() })

	for _, from := range overloaded {
		assignments := append([]def.CapsuleAssignment(nil), from.Assignments...)
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].CPU > assignments[j].CPU })

		for _, a := range assignments {
			for i, to := range underloaded {
				caps := def.ResourceCaps{CPUCores: a.CPU, MemoryMB: int64(a.MemoryGB * 1024), StorageGB: int64(a.StorageGB)}
				if to.CanFit(caps) {
					out = append(out, MigrationCandidate{Assignment: a, FromNode: from.ID, ToNode: to.ID})
					to.Usage.CPUCores += a.CPU
					to.Usage.MemoryGB += a.MemoryGB
					to.Usage.StorageGB += a.StorageGB
					underloaded[i] = to
					break
				}
			}
		}
	}
	return out
}
