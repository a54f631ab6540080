package capsule

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func TestNullRuntime(t *testing.T) {
	Convey("Given a NullRuntime", t, func() {
		rt := NewNullRuntime()
		cfg := def.CapsuleConfig{
			Hostname:    "test",
			RootfsImage: "library/alpine:latest",
			Entrypoint:  []string{"/bin/sh"},
		}

		Convey("Create returns a Running capsule with a fresh id", func() {
			c, err := rt.Create(cfg)
			So(err, ShouldBeNil)
			So(c.State, ShouldEqual, def.CapsuleRunning)
			So(c.ID, ShouldNotBeBlank)

			got, ok := rt.Get(c.ID)
			So(ok, ShouldBeTrue)
			So(got.ID, ShouldEqual, c.ID)
		})

		Convey("Stop transitions a created capsule to Stopped", func() {
			c, _ := rt.Create(cfg)
			err := rt.Stop(c.ID)
			So(err, ShouldBeNil)

			got, _ := rt.Get(c.ID)
			So(got.State, ShouldEqual, def.CapsuleStopped)
		})

		Convey("Restart produces a new id but keeps the config", func() {
			c, _ := rt.Create(cfg)
			restarted, err := rt.Restart(c.ID)
			So(err, ShouldBeNil)
			So(restarted.ID, ShouldNotEqual, c.ID)
			So(restarted.Config.RootfsImage, ShouldEqual, cfg.RootfsImage)
			So(restarted.State, ShouldEqual, def.CapsuleRunning)
		})

		Convey("Stop on an unknown id errors", func() {
			err := rt.Stop("does-not-exist")
			So(err, ShouldNotBeNil)
		})
	})
}
