package fabric

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

type fakeQuerier struct {
	calls int
	eps   []def.ServiceEndpoint
}

func (f *fakeQuerier) QueryPeer(ctx context.Context, peerAddr, name string) ([]def.ServiceEndpoint, error) {
	f.calls++
	return f.eps, nil
}

func TestResolver(t *testing.T) {
	Convey("Given a Resolver over an empty local registry and a stub peer", t, func() {
		local := NewRegistry("cluster.local")
		fq := &fakeQuerier{eps: []def.ServiceEndpoint{{Name: "db", Address: "10.1.1.1", Port: 5432}}}
		r := NewResolver(local, fq, func() []string { return []string{"peer-a:9000"} }, "cluster.local")

		Convey("A name present locally never reaches the peer querier", func() {
			local.Register("web", def.ServiceEndpoint{Name: "web", Address: "10.0.0.1", Port: 80})
			eps, err := r.Resolve(context.Background(), "web")
			So(err, ShouldBeNil)
			So(eps[0].Address, ShouldEqual, "10.0.0.1")
			So(fq.calls, ShouldEqual, 0)
		})

		Convey("A name absent locally falls through to the remote peer and gets cached", func() {
			eps, err := r.Resolve(context.Background(), "db")
			So(err, ShouldBeNil)
			So(eps[0].Address, ShouldEqual, "10.1.1.1")
			So(fq.calls, ShouldEqual, 1)

			// second resolve hits the cache, not the peer again.
			_, err = r.Resolve(context.Background(), "db")
			So(err, ShouldBeNil)
			So(fq.calls, ShouldEqual, 1)
		})
	})

	Convey("Given a Resolver with no peer transport configured", t, func() {
		r := NewResolver(NewRegistry("cluster.local"), nil, nil, "cluster.local")
		Convey("An unresolvable name fails clearly instead of panicking", func() {
			_, err := r.Resolve(context.Background(), "ghost")
			So(err, ShouldNotBeNil)
		})
	})
}
