package surge

import (
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/capsule"
	"github.com/polydawn/capsule/cas"
	"github.com/polydawn/capsule/fabric"
	"github.com/polydawn/capsule/image"
)

type fakeWarehouse struct{}

func (fakeWarehouse) Pull(ref image.Reference) ([]byte, []image.LayerSource, error) {
	return []byte("{}"), []image.LayerSource{{Bytes: []byte("layer"), MediaType: "application/tar"}}, nil
}

func TestSurgeUpDown(t *testing.T) {
	Convey("Given a Surge wired to a NullRuntime and a fake image warehouse", t, func() {
		root, err := os.MkdirTemp("", "surge-test-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(root) })

		store, err := cas.Open(root)
		So(err, ShouldBeNil)
		Reset(func() { store.Close() })

		images, err := image.NewStore(store, fakeWarehouse{}, root)
		So(err, ShouldBeNil)
		Reset(func() { images.Close() })

		runtime := capsule.NewNullRuntime()
		registry := fabric.NewRegistry("cluster.local")
		s := New(runtime, images, registry, nil)

		p, err := ParseProject([]byte(`
name: demo
services:
  db:
    image: library/db:latest
  api:
    image: library/api:latest
    dependsOn: [db]
`))
		So(err, ShouldBeNil)

		Convey("Up starts both services and registers them", func() {
			err := s.Up(p)
			So(err, ShouldBeNil)

			_, ok := registry.Lookup("db")
			So(ok, ShouldBeTrue)
			_, ok = registry.Lookup("api")
			So(ok, ShouldBeTrue)
		})

		Convey("Down after Up stops every capsule and deregisters every service", func() {
			So(s.Up(p), ShouldBeNil)
			err := s.Down(p)
			So(err, ShouldBeNil)

			_, ok := registry.Lookup("db")
			So(ok, ShouldBeFalse)
		})

		Convey("Kill tears everything down regardless of order", func() {
			So(s.Up(p), ShouldBeNil)
			err := s.Kill(p)
			So(err, ShouldBeNil)

			_, ok := registry.Lookup("api")
			So(ok, ShouldBeFalse)
		})
	})
}
