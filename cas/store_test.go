package cas_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
)

func TestStore(t *testing.T) {
	Convey("Given a fresh CAS rooted in a temp dir", t, func() {
		root, err := os.MkdirTemp("", "cas-test-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(root) })

		store, err := cas.Open(root)
		So(err, ShouldBeNil)
		Reset(func() { store.Close() })

		Convey("Putting the same bytes twice dedupes to one object", func() {
			d1, err := store.Put([]byte("hello"), def.KindLayer)
			So(err, ShouldBeNil)
			d2, err := store.Put([]byte("hello"), def.KindLayer)
			So(err, ShouldBeNil)

			So(d1, ShouldEqual, d2)

			var objFiles int
			filepath.Walk(filepath.Join(root, "objects"), func(path string, info os.FileInfo, err error) error {
				if err == nil && !info.IsDir() {
					objFiles++
				}
				return nil
			})
			So(objFiles, ShouldEqual, 1)
		})

		Convey("Round trip: get(put(b)) == b", func() {
			d, err := store.Put([]byte("round trip me"), def.KindConfig)
			So(err, ShouldBeNil)
			got, err := store.Get(d)
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "round trip me")
		})

		Convey("Getting an unknown digest fails NotFound", func() {
			_, err := store.Get(def.NewDigest([]byte("never stored")))
			So(err, ShouldNotBeNil)
		})

		Convey("Corruption on disk is caught and the object quarantined", func() {
			d, err := store.Put([]byte("trustworthy"), def.KindLayer)
			So(err, ShouldBeNil)

			prefix, rest := d.ShardPath()
			path := filepath.Join(root, "objects", prefix, rest)
			So(os.WriteFile(path, []byte("tampered"), 0644), ShouldBeNil)

			_, err = store.Get(d)
			So(err, ShouldNotBeNil)

			_, statErr := os.Stat(path)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("GC sweeps objects unreachable from the given roots", func() {
			kept, err := store.Put([]byte("kept"), def.KindLayer)
			So(err, ShouldBeNil)
			gone, err := store.Put([]byte("gone"), def.KindLayer)
			So(err, ShouldBeNil)

			swept, err := store.GC([]def.Digest{kept})
			So(err, ShouldBeNil)
			So(swept, ShouldEqual, 1)

			_, err = store.Get(kept)
			So(err, ShouldBeNil)
			_, err = store.Get(gone)
			So(err, ShouldNotBeNil)
		})
	})
}
