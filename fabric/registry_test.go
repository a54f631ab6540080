package fabric

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func TestRegistry(t *testing.T) {
	Convey("Given an empty Registry", t, func() {
		r := NewRegistry("cluster.local")

		Convey("Register then Lookup finds the endpoint", func() {
			r.Register("web", def.ServiceEndpoint{Name: "web", Address: "10.0.0.1", Port: 8080})
			eps, ok := r.Lookup("web")
			So(ok, ShouldBeTrue)
			So(eps, ShouldHaveLength, 1)
			So(eps[0].Address, ShouldEqual, "10.0.0.1")
		})

		Convey("Registering the same address/port again replaces rather than duplicates", func() {
			r.Register("web", def.ServiceEndpoint{Name: "web", Address: "10.0.0.1", Port: 8080, Protocol: def.ProtocolTCP})
			r.Register("web", def.ServiceEndpoint{Name: "web", Address: "10.0.0.1", Port: 8080, Protocol: def.ProtocolUDP})
			eps, _ := r.Lookup("web")
			So(eps, ShouldHaveLength, 1)
			So(eps[0].Protocol, ShouldEqual, def.ProtocolUDP)
		})

		Convey("Deregister removes the endpoint, and the empty name entirely", func() {
			r.Register("web", def.ServiceEndpoint{Name: "web", Address: "10.0.0.1", Port: 8080})
			r.Deregister("web", "10.0.0.1", 8080)
			_, ok := r.Lookup("web")
			So(ok, ShouldBeFalse)
		})

		Convey("Lookup on an unregistered name reports not found", func() {
			_, ok := r.Lookup("nope")
			So(ok, ShouldBeFalse)
		})
	})
}
