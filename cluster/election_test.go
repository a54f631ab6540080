package cluster

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

// eventually polls cond every 10ms until it returns true or timeout elapses,
// the same pattern raft's own tests use to wait out a Ready()/Advance() cycle
// instead of sleeping a fixed guess.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestElectorSingleNode(t *testing.T) {
	Convey("Given a single-node Elector with no peers", t, func() {
		e := NewElector("node-a", map[string]string{}, nil)
		Reset(func() { e.Stop() })

		Convey("It is its own leader from the bootstrap membership immediately", func() {
			leader, ok := Leader(e, []def.Node{{ID: "node-a"}})
			So(ok, ShouldBeTrue)
			So(leader, ShouldEqual, "node-a")
		})

		Convey("ProposeJoin commits through the raft log and the new node becomes agreed", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := e.ProposeJoin(ctx, "node-b", "127.0.0.1:9001")
			So(err, ShouldBeNil)

			ok := eventually(t, 2*time.Second, func() bool {
				e.mu.RLock()
				defer e.mu.RUnlock()
				return e.agreed["node-b"]
			})
			So(ok, ShouldBeTrue)

			leader, found := Leader(e, []def.Node{{ID: "node-a"}, {ID: "node-b"}})
			So(found, ShouldBeTrue)
			So(leader, ShouldEqual, "node-a")
		})

		Convey("ProposeRemove drops a previously agreed node", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			joinErr := e.ProposeJoin(ctx, "node-b", "127.0.0.1:9001")
			cancel()
			So(joinErr, ShouldBeNil)
			So(eventually(t, 2*time.Second, func() bool {
				e.mu.RLock()
				defer e.mu.RUnlock()
				return e.agreed["node-b"]
			}), ShouldBeTrue)

			ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel2()
			So(e.ProposeRemove(ctx2, "node-b"), ShouldBeNil)

			ok := eventually(t, 2*time.Second, func() bool {
				e.mu.RLock()
				defer e.mu.RUnlock()
				return !e.agreed["node-b"]
			})
			So(ok, ShouldBeTrue)
		})

		Convey("IsLeader reflects whether selfID resolves as leader of the agreed+active set", func() {
			So(e.IsLeader("node-a", []def.Node{{ID: "node-a"}}), ShouldBeTrue)
			So(e.IsLeader("node-a", []def.Node{{ID: "node-z"}}), ShouldBeFalse)
		})
	})
}
