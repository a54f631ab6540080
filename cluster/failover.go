package cluster

import (
	"context"
	"time"

	"github.com/inconshreveable/log15"
)

// Rescheduler is the callback the Monitor invokes for each capsule
// assignment that was riding on a node declared Failed; wiring it to
// surge/capsule.Runtime.Create against a newly-placed node is the
// orchestrator's job, not this package's.
type Rescheduler interface {
	Reschedule(capsuleID, fromNode string) error
}

// Monitor runs the periodic failure-detection sweep and leader
// re-election check: every tick it ages out
// silent nodes, and if the node that just failed was the leader, the
// next Active/agreed-Leader call naturally resolves to a new smallest
// id -- there is no separate "re-election" step to run beyond
// recomputing Leader() against the post-sweep membership.
type Monitor struct {
	Members      *Membership
	Elector      *Elector
	SelfID       string
	Reschedule   Rescheduler
	TickInterval time.Duration

	log  log15.Logger
	stop chan struct{}
}

func NewMonitor(members *Membership, elector *Elector, selfID string, reschedule Rescheduler) *Monitor {
	return &Monitor{
		Members:      members,
		Elector:      elector,
		SelfID:       selfID,
		Reschedule:   reschedule,
		TickInterval: 5 * time.Second,
		log:          log15.New("module", "cluster.monitor"),
		stop:         make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) Stop() { close(m.stop) }

func (m *Monitor) run() {
	t := time.NewTicker(m.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-t.C:
			m.tick(now)
		}
	}
}

func (m *Monitor) tick(now time.Time) {
	failed := m.Members.SweepFailures(now)
	for _, nodeID := range failed {
		m.log.Warn("node failed", "node", nodeID)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Elector.ProposeRemove(ctx, nodeID); err != nil {
			m.log.Error("propose remove failed", "node", nodeID, "err", err)
		}
		cancel()

		n, ok := m.Members.Get(nodeID)
		if !ok {
			continue
		}
		for _, a := range n.Assignments {
			if m.Reschedule == nil {
				continue
			}
			if err := m.Reschedule.Reschedule(a.CapsuleID, nodeID); err != nil {
				m.log.Error("reschedule failed", "capsule", a.CapsuleID, "from", nodeID, "err", err)
			}
		}
	}

	if leader, ok := Leader(m.Elector, m.Members.Active()); ok && leader == m.SelfID {
		m.log.Debug("confirmed leader", "node", m.SelfID)
	}
}
