package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTarRoundTrip(t *testing.T) {
	Convey("Given a small directory tree", t, func() {
		src, err := os.MkdirTemp("", "tardir-src-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(src) })

		So(os.MkdirAll(filepath.Join(src, "etc"), 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(src, "etc", "motd"), []byte("hi\n"), 0644), ShouldBeNil)

		Convey("tarDir then extractTarInto reproduces the file", func() {
			content, err := tarDir(src)
			So(err, ShouldBeNil)

			dest, err := os.MkdirTemp("", "tardir-dest-")
			So(err, ShouldBeNil)
			Reset(func() { os.RemoveAll(dest) })

			err = extractTarInto(content, dest)
			So(err, ShouldBeNil)

			b, err := os.ReadFile(filepath.Join(dest, "etc", "motd"))
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "hi\n")
		})
	})
}
