package cluster

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func TestMembership(t *testing.T) {
	Convey("Given a fresh Membership", t, func() {
		m := NewMembership()

		Convey("Join puts a node in Joining state", func() {
			m.Join(def.Node{ID: "node-a"})
			n, ok := m.Get("node-a")
			So(ok, ShouldBeTrue)
			So(n.State, ShouldEqual, def.NodeJoining)
		})

		Convey("Heartbeat promotes a Joining node to Active", func() {
			m.Join(def.Node{ID: "node-a"})
			err := m.Heartbeat("node-a")
			So(err, ShouldBeNil)
			n, _ := m.Get("node-a")
			So(n.State, ShouldEqual, def.NodeActive)
		})

		Convey("Heartbeat on an unknown node errors", func() {
			err := m.Heartbeat("ghost")
			So(err, ShouldNotBeNil)
		})

		Convey("SweepFailures marks stale Active nodes Failed and returns their ids", func() {
			m.Join(def.Node{ID: "node-a"})
			m.Heartbeat("node-a")

			failed := m.SweepFailures(time.Now().Add(HeartbeatTimeout + time.Second))
			So(failed, ShouldResemble, []string{"node-a"})

			n, _ := m.Get("node-a")
			So(n.State, ShouldEqual, def.NodeFailed)
		})

		Convey("Active only returns Active nodes, sorted by id", func() {
			m.Join(def.Node{ID: "node-b"})
			m.Heartbeat("node-b")
			m.Join(def.Node{ID: "node-a"})
			m.Heartbeat("node-a")
			m.Join(def.Node{ID: "node-c"}) // left Joining, should be excluded

			active := m.Active()
			So(active, ShouldHaveLength, 2)
			So(active[0].ID, ShouldEqual, "node-a")
			So(active[1].ID, ShouldEqual, "node-b")
		})
	})
}
