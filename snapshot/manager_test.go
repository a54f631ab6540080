package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/cas"
)

func TestCaptureAndRestore(t *testing.T) {
	Convey("Given a CAS store and a fake rootfs", t, func() {
		casRoot, err := os.MkdirTemp("", "snap-cas-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(casRoot) })

		store, err := cas.Open(casRoot)
		So(err, ShouldBeNil)
		Reset(func() { store.Close() })

		rootfs, err := os.MkdirTemp("", "snap-rootfs-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(rootfs) })
		So(os.WriteFile(filepath.Join(rootfs, "data"), []byte("payload"), 0644), ShouldBeNil)

		m := NewManager(store)

		Convey("Capture with this process's own pid succeeds and Verify passes", func() {
			snap, err := m.Capture("cap-1", rootfs, os.Getpid())
			So(err, ShouldBeNil)
			So(snap.CapsuleID, ShouldEqual, "cap-1")

			err = m.Verify(snap)
			So(err, ShouldBeNil)
		})

		Convey("Restore materializes the captured filesystem at a new path", func() {
			snap, err := m.Capture("cap-1", rootfs, os.Getpid())
			So(err, ShouldBeNil)

			dest, err := os.MkdirTemp("", "snap-restore-")
			So(err, ShouldBeNil)
			Reset(func() { os.RemoveAll(dest) })

			err = m.Restore(snap, dest)
			So(err, ShouldBeNil)

			b, err := os.ReadFile(filepath.Join(dest, "data"))
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "payload")
		})
	})
}
