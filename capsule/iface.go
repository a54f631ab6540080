package capsule

import "github.com/polydawn/capsule/api/def"

// LifecycleRuntime is the surface surge and cluster need from a capsule
// runtime; both Runtime (real) and NullRuntime (test double) satisfy it.
type LifecycleRuntime interface {
	Create(cfg def.CapsuleConfig) (*def.Capsule, error)
	Stop(id string) error
	Restart(id string) (*def.Capsule, error)
	Get(id string) (*def.Capsule, bool)
}

var _ LifecycleRuntime = (*Runtime)(nil)
var _ LifecycleRuntime = (*NullRuntime)(nil)
