package capsule

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func buildTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	return buf.Bytes()
}

func TestExtractTar(t *testing.T) {
	Convey("Given a tar archive with a nested file and a breakout attempt", t, func() {
		content := buildTar(t, map[string]string{
			"etc/motd":     "hello\n",
			"../../escape": "should land inside root\n",
		})

		root, err := os.MkdirTemp("", "rootfs-test-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(root) })

		Convey("Extraction places the nested file and neutralizes the breakout path", func() {
			err := extractTar(content, root)
			So(err, ShouldBeNil)

			b, err := os.ReadFile(filepath.Join(root, "etc", "motd"))
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "hello\n")

			// the ../../escape entry must have been clamped to stay
			// under root, never written above it.
			_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape"))
			So(os.IsNotExist(err), ShouldBeTrue)

			b, err = os.ReadFile(filepath.Join(root, "escape"))
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "should land inside root\n")
		})
	})
}

func TestJoinReverse(t *testing.T) {
	Convey("joinReverse orders highest-priority layer first", t, func() {
		got := joinReverse([]string{"/a", "/b", "/c"})
		So(got, ShouldEqual, "/c:/b:/a")
	})
}
