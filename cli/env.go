package cli

import (
	"github.com/polydawn/capsule/buildcache"
	"github.com/polydawn/capsule/capsule"
	"github.com/polydawn/capsule/cas"
	"github.com/polydawn/capsule/cluster"
	"github.com/polydawn/capsule/fabric"
	"github.com/polydawn/capsule/image"
	"github.com/polydawn/capsule/policy"
	"github.com/polydawn/capsule/quota"
	"github.com/polydawn/capsule/snapshot"
	"github.com/polydawn/capsule/surge"
)

// Env bundles every long-lived component the CLI dispatches commands
// against, built once by cmd/capsulectl's main and threaded through
// every *CommandPattern constructor.
type Env struct {
	CAS       *cas.Store
	Images    *image.Store
	Runtime   *capsule.Runtime
	Builder   *buildcache.Builder
	Registry  *fabric.Registry
	Resolver  *fabric.Resolver
	Quota     *quota.Manager
	Members   *cluster.Membership
	Scheduler *cluster.Scheduler
	Elector   *cluster.Elector
	Surge     *surge.Surge
	Snapshots *snapshot.Manager
	Policy    *policy.Engine
}
