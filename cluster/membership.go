package cluster

import (
	"sort"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polydawn/capsule/api/def"
)

// HeartbeatTimeout is how long a node may go without a heartbeat before
// Membership declares it Failed.
const HeartbeatTimeout = 30 * time.Second

// Membership tracks every node this cluster knows about and their
// lifecycle: Joining on first contact, Active once it's heartbeated at
// least once, Failed after HeartbeatTimeout of silence, Draining/
// Maintenance on operator request.
type Membership struct {
	mu    sync.RWMutex
	nodes map[string]*def.Node
	log   log15.Logger

	nodeCount *prometheus.GaugeVec
}

func NewMembership() *Membership {
	return &Membership{
		nodes: make(map[string]*def.Node),
		log:   log15.New("module", "cluster.membership"),
		nodeCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "capsule",
			Subsystem: "cluster",
			Name:      "nodes",
			Help:      "Count of cluster nodes by state.",
		}, []string{"state"}),
	}
}

func (m *Membership) Collector() prometheus.Collector { return m.nodeCount }

// Join registers a node as Joining, including one that rejoins after
// being marked Failed; Heartbeat is what makes it Active.
func (m *Membership) Join(n def.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.State = def.NodeJoining
	n.LastHeartbeatAt = time.Now()
	m.nodes[n.ID] = &n
	m.refreshGauges()
}

// Heartbeat marks a node as having checked in, promoting Joining nodes
// to Active and reviving Failed ones.
func (m *Membership) Heartbeat(nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return UnknownNode.New("node %s is not a cluster member", nodeID)
	}
	n.LastHeartbeatAt = time.Now()
	if n.State == def.NodeJoining || n.State == def.NodeFailed {
		n.State = def.NodeActive
	}
	m.refreshGauges()
	return nil
}

// SweepFailures marks every node whose heartbeat is older than
// HeartbeatTimeout as Failed, and returns the ids that just transitioned
// so callers (the leader) can trigger rescheduling of their assignments.
func (m *Membership) SweepFailures(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []string
	for id, n := range m.nodes {
		if n.State == def.NodeActive && now.Sub(n.LastHeartbeatAt) > HeartbeatTimeout {
			n.State = def.NodeFailed
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	m.refreshGauges()
	return failed
}

func (m *Membership) Drain(nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return UnknownNode.New("node %s is not a cluster member", nodeID)
	}
	n.State = def.NodeDraining
	m.refreshGauges()
	return nil
}

func (m *Membership) Get(nodeID string) (def.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return def.Node{}, false
	}
	return *n, true
}

// Active returns every Active node, sorted by id -- the set leader
// election and placement both operate over, kept in a deterministic
// order so two nodes computing over the same membership snapshot agree.
func (m *Membership) Active() []def.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []def.Node
	for _, n := range m.nodes {
		if n.State == def.NodeActive {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every known node regardless of state.
func (m *Membership) All() []def.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]def.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update replaces the stored record for a node wholesale, used by the
// scheduler to commit usage/assignment changes after a placement decision.
func (m *Membership) Update(n def.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = &n
	m.refreshGauges()
}

func (m *Membership) refreshGauges() {
	counts := map[def.NodeState]int{}
	for _, n := range m.nodes {
		counts[n.State]++
	}
	for _, st := range []def.NodeState{def.NodeJoining, def.NodeActive, def.NodeDraining, def.NodeFailed, def.NodeMaintenance} {
		m.nodeCount.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
