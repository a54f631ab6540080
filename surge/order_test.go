package surge

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOrderServices(t *testing.T) {
	Convey("Given a project with web depending on api depending on db", t, func() {
		p := &Project{
			Name: "demo",
			Services: map[string]ServiceSpec{
				"web": {Image: "library/web:latest", DependsOn: []string{"api"}},
				"api": {Image: "library/api:latest", DependsOn: []string{"db"}},
				"db":  {Image: "library/db:latest"},
			},
		}

		Convey("orderServices puts db before api before web", func() {
			order, err := orderServices(p)
			So(err, ShouldBeNil)
			So(order, ShouldResemble, []string{"db", "api", "web"})
		})
	})

	Convey("Given a project with a dependency cycle", t, func() {
		p := &Project{
			Name: "demo",
			Services: map[string]ServiceSpec{
				"a": {Image: "x:latest", DependsOn: []string{"b"}},
				"b": {Image: "x:latest", DependsOn: []string{"a"}},
			},
		}

		Convey("orderServices reports the cycle instead of looping forever", func() {
			_, err := orderServices(p)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given independent services with no dependencies", t, func() {
		p := &Project{
			Name: "demo",
			Services: map[string]ServiceSpec{
				"zeta":  {Image: "x:latest"},
				"alpha": {Image: "x:latest"},
			},
		}

		Convey("the tie-break falls back to lexicographic order", func() {
			order, err := orderServices(p)
			So(err, ShouldBeNil)
			So(order, ShouldResemble, []string{"alpha", "zeta"})
		})
	})
}
