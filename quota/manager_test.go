package quota

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func TestManager(t *testing.T) {
	Convey("Given a fresh Manager with default scopes", t, func() {
		m := NewManager()
		scopes := []def.ScopeRef{def.DefaultClusterScope(), def.DefaultUserScope()}

		Convey("An allocation within limits succeeds and increments usage on every named scope", func() {
			err := m.Allocate(Request{Scopes: scopes, Amounts: map[def.ResourceKind]float64{def.ResourceCPU: 4}})
			So(err, ShouldBeNil)

			q, ok := m.Get(def.DefaultClusterScope())
			So(ok, ShouldBeTrue)
			So(q.Limits[def.ResourceCPU].Used, ShouldEqual, 4)

			q2, _ := m.Get(def.DefaultUserScope())
			So(q2.Limits[def.ResourceCPU].Used, ShouldEqual, 4)
		})

		Convey("An allocation that would exceed any one scope's hard cap touches none of them", func() {
			m.Put(def.Quota{
				Name: "tiny", Scope: def.ScopeUser, ScopeID: "default",
				Limits: map[def.ResourceKind]*def.Limit{def.ResourceCPU: {Hard: 1}},
			})
			err := m.Allocate(Request{Scopes: scopes, Amounts: map[def.ResourceKind]float64{def.ResourceCPU: 4}})
			So(err, ShouldNotBeNil)

			q, _ := m.Get(def.DefaultClusterScope())
			So(q.Limits[def.ResourceCPU].Used, ShouldEqual, 0)
		})

		Convey("Deallocate floors usage at zero rather than going negative", func() {
			m.Allocate(Request{Scopes: scopes, Amounts: map[def.ResourceKind]float64{def.ResourceCPU: 2}})
			m.Deallocate(Request{Scopes: scopes, Amounts: map[def.ResourceKind]float64{def.ResourceCPU: 10}})

			q, _ := m.Get(def.DefaultClusterScope())
			So(q.Limits[def.ResourceCPU].Used, ShouldEqual, 0)
		})

		Convey("Allocating against an unknown scope fails without panicking", func() {
			err := m.Allocate(Request{
				Scopes:  []def.ScopeRef{{Scope: def.ScopeNamespace, ID: "does-not-exist"}},
				Amounts: map[def.ResourceKind]float64{def.ResourceCPU: 1},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("Crossing a soft threshold emits a warning without failing the allocation", func() {
			soft := 1.0
			m.Put(def.Quota{
				Name: "softy", Scope: def.ScopeUser, ScopeID: "default",
				Limits: map[def.ResourceKind]*def.Limit{def.ResourceCPU: {Hard: 10, Soft: &soft}},
			})
			err := m.Allocate(Request{Scopes: scopes, Amounts: map[def.ResourceKind]float64{def.ResourceCPU: 2}})
			So(err, ShouldBeNil)

			select {
			case w := <-m.Warnings:
				So(w.Resource, ShouldEqual, def.ResourceCPU)
			default:
				t.Fatal("expected a soft warning on the channel")
			}
		})
	})
}
