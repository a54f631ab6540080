package def

import "time"

// ScopeKind is the level a Quota applies to.
type ScopeKind string

const (
	ScopeUser      ScopeKind = "user"
	ScopeNamespace ScopeKind = "namespace"
	ScopeCluster   ScopeKind = "cluster"
	ScopeNode      ScopeKind = "node"
)

// Limit is one resource's hard cap, current usage, and optional soft
// warning threshold within a Quota.
type Limit struct {
	Hard float64  `json:"hard"`
	Used float64  `json:"used"`
	Soft *float64 `json:"soft,omitempty"`
}

/*
	Quota caps resource consumption at a given scope.  `used <= hard` holds
	at every observable instant outside the critical section of an
	allocation; allocation across all quotas applicable to a scope is
	atomic (quota.Manager.Allocate).
*/
type Quota struct {
	Name      string                    `json:"name"`
	Scope     ScopeKind                 `json:"scope"`
	ScopeID   string                    `json:"scopeId"`
	Limits    map[ResourceKind]*Limit   `json:"limits"`
	CreatedAt time.Time                 `json:"createdAt"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// ScopeRef names a concrete scope instance a quota is attached to.
type ScopeRef struct {
	Scope ScopeKind
	ID    string
}

func DefaultClusterScope() ScopeRef   { return ScopeRef{ScopeCluster, "default"} }
func DefaultNamespaceScope() ScopeRef { return ScopeRef{ScopeNamespace, "default"} }
func DefaultUserScope() ScopeRef      { return ScopeRef{ScopeUser, "default"} }
