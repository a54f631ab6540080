package surge

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseProject(t *testing.T) {
	Convey("Given a minimal valid project document", t, func() {
		doc := []byte(`
name: demo
services:
  db:
    image: library/postgres:14
  api:
    image: myteam/api:latest
    dependsOn: [db]
    env:
      PORT: "8080"
`)
		Convey("it parses, normalizes the default network, and validates clean", func() {
			p, err := ParseProject(doc)
			So(err, ShouldBeNil)
			So(p.Name, ShouldEqual, "demo")
			So(p.Services["api"].DependsOn, ShouldResemble, []string{"db"})
			So(p.Networks, ShouldContainKey, defaultBridgeNetwork)
			So(p.Services["api"].Network, ShouldEqual, defaultBridgeNetwork)
			So(p.Services["api"].Replicas, ShouldEqual, 1)
		})
	})

	Convey("Given a project whose service depends on something undefined", t, func() {
		doc := []byte(`
name: demo
services:
  api:
    image: myteam/api:latest
    dependsOn: [ghost]
`)
		Convey("ParseProject rejects it", func() {
			_, err := ParseProject(doc)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a document indented with tabs", t, func() {
		doc := []byte("name: demo\nservices:\n\tdb:\n\t\timage: library/postgres:14\n")

		Convey("the tab-to-space conversion lets it parse anyway", func() {
			p, err := ParseProject(doc)
			So(err, ShouldBeNil)
			So(p.Services["db"].Image, ShouldEqual, "library/postgres:14")
		})
	})
}
