package image_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/cas"
	"github.com/polydawn/capsule/image"
)

type fakeWarehouse struct{ pulls int }

func (w *fakeWarehouse) Pull(ref image.Reference) ([]byte, []image.LayerSource, error) {
	w.pulls++
	return []byte(`{"entrypoint":["/bin/sh"]}`), []image.LayerSource{
		{Bytes: []byte("rootfs-layer-bytes"), MediaType: "application/vnd.capsule.layer.v1"},
	}, nil
}

func TestImageStore(t *testing.T) {
	Convey("Given an image store backed by a fake warehouse", t, func() {
		root, err := os.MkdirTemp("", "image-test-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(root) })

		store, err := cas.Open(filepath.Join(root, "cas"))
		So(err, ShouldBeNil)

		wh := &fakeWarehouse{}
		images, err := image.NewStore(store, wh, root)
		So(err, ShouldBeNil)

		Convey("Resolving a fresh reference pulls config and layers into CAS", func() {
			manifest, err := images.Resolve("nginx:latest")
			So(err, ShouldBeNil)
			So(wh.pulls, ShouldEqual, 1)
			So(len(manifest.Layers), ShouldBeGreaterThanOrEqualTo, 1)
			So(images.IsMaterialized(manifest), ShouldBeTrue)
		})

		Convey("Resolving the same reference twice only pulls once", func() {
			_, err := images.Resolve("nginx:latest")
			So(err, ShouldBeNil)
			_, err = images.Resolve("nginx:latest")
			So(err, ShouldBeNil)
			So(wh.pulls, ShouldEqual, 1)
		})
	})
}
