package policy

import (
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
	"github.com/polydawn/capsule/snapshot"
)

func TestEngineFire(t *testing.T) {
	Convey("Given an Engine targeting this test process", t, func() {
		casRoot, err := os.MkdirTemp("", "policy-cas-")
		So(err, ShouldBeNil)
		defer os.RemoveAll(casRoot)
		rootfs, err := os.MkdirTemp("", "policy-rootfs-")
		So(err, ShouldBeNil)
		defer os.RemoveAll(rootfs)

		store, err := cas.Open(casRoot)
		So(err, ShouldBeNil)
		mgr := snapshot.NewManager(store)

		var deleted []def.SnapshotKey
		eng := NewEngine(mgr, RetentionRule{KeepPerBucket: map[TimerInterval]int{Daily: 1}}, func(k def.SnapshotKey) error {
			deleted = append(deleted, k)
			return nil
		})
		eng.Target("cap-test", rootfs, os.Getpid())

		Convey("Fire captures a snapshot and tracks it as known", func() {
			err := eng.Fire(BeforeBuild)
			So(err, ShouldBeNil)
			So(eng.known, ShouldHaveLength, 1)
			So(eng.known[0].Metadata["bucket"], ShouldEqual, string(Daily))
		})

		Convey("firing twice past the bucket quota triggers a delete", func() {
			So(eng.Fire(BeforeBuild), ShouldBeNil)
			So(eng.Fire(BeforeBuild), ShouldBeNil)
			So(eng.known, ShouldHaveLength, 1)
			So(deleted, ShouldHaveLength, 1)
		})

		Convey("Fire with no Target set is a no-op", func() {
			eng2 := NewEngine(mgr, RetentionRule{}, nil)
			So(eng2.Fire(BeforeBuild), ShouldBeNil)
			So(eng2.known, ShouldHaveLength, 0)
		})
	})
}
