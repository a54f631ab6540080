package cluster

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func activeNode(id string, cpu, used float64) def.Node {
	return def.Node{ID: id, State: def.NodeActive, Capacity: def.Capacity{CPUCores: cpu, MemoryGB: 64, StorageGB: 500},
		Usage: def.Capacity{CPUCores: used}}
}

func TestSchedulerPlacement(t *testing.T) {
	Convey("Given a Membership with three active nodes of varying load", t, func() {
		m := NewMembership()
		for _, n := range []def.Node{activeNode("node-a", 8, 2), activeNode("node-b", 8, 6), activeNode("node-c", 8, 0)} {
			m.Join(n)
			m.Heartbeat(n.ID)
			m.Update(n)
		}
		req := PlacementRequest{Caps: def.ResourceCaps{CPUCores: 1, MemoryMB: 512, StorageGB: 1}}

		Convey("least-loaded picks the emptiest node", func() {
			s := NewScheduler(m, PolicyLeastLoaded)
			n, err := s.Place(req)
			So(err, ShouldBeNil)
			So(n.ID, ShouldEqual, "node-c")
		})

		Convey("round-robin cycles across repeated calls", func() {
			s := NewScheduler(m, PolicyRoundRobin)
			first, _ := s.Place(req)
			second, _ := s.Place(req)
			third, _ := s.Place(req)
			fourth, _ := s.Place(req)
			So(first.ID, ShouldNotEqual, second.ID)
			So(fourth.ID, ShouldEqual, first.ID)
			_ = third
		})

		Convey("a request too large for any node fails with NoCapacity", func() {
			s := NewScheduler(m, PolicyLeastLoaded)
			_, err := s.Place(PlacementRequest{Caps: def.ResourceCaps{CPUCores: 100}})
			So(err, ShouldNotBeNil)
		})

		Convey("affinity-aware prefers nodes carrying the requested label", func() {
			labeled := activeNode("node-d", 8, 1)
			labeled.Labels = map[string]string{"zone": "east"}
			m.Join(labeled)
			m.Heartbeat("node-d")
			m.Update(labeled)

			s := NewScheduler(m, PolicyAffinityAware)
			n, err := s.Place(PlacementRequest{Caps: req.Caps, AffinityLabel: "zone"})
			So(err, ShouldBeNil)
			So(n.ID, ShouldEqual, "node-d")
		})
	})
}

func TestRebalanceCandidates(t *testing.T) {
	Convey("Given one overloaded node with an assignment and one idle node", t, func() {
		m := NewMembership()
		hot := activeNode("node-hot", 10, 9)
		hot.Assignments = []def.CapsuleAssignment{{CapsuleID: "cap-1", NodeID: "node-hot", CPU: 2, MemoryGB: 1, StorageGB: 1}}
		idle := activeNode("node-idle", 10, 1)
		m.Join(hot)
		m.Heartbeat("node-hot")
		m.Update(hot)
		m.Join(idle)
		m.Heartbeat("node-idle")
		m.Update(idle)

		Convey("FindRebalanceCandidates proposes moving the hot node's assignment to the idle one", func() {
			s := NewScheduler(m, PolicyLeastLoaded)
			cands := s.FindRebalanceCandidates()
			So(cands, ShouldHaveLength, 1)
			So(cands[0].FromNode, ShouldEqual, "node-hot")
			So(cands[0].ToNode, ShouldEqual, "node-idle")
		})
	})
}
