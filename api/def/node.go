package def

import "time"

// NodeState tracks cluster membership.
type NodeState string

const (
	NodeJoining     NodeState = "joining"
	NodeActive      NodeState = "active"
	NodeDraining    NodeState = "draining"
	NodeFailed      NodeState = "failed"
	NodeMaintenance NodeState = "maintenance"
)

// ResourceKind names a resource dimension tracked by quotas and node
// capacity/usage. Devices are modeled as a resource so that exclusive
// passthrough falls out of the ordinary quota mechanism (DESIGN.md open
// question #2) instead of a bespoke lock.
type ResourceKind string

const (
	ResourceCPU     ResourceKind = "cpu"
	ResourceMemory  ResourceKind = "memory"
	ResourceStorage ResourceKind = "storage"
	ResourceBW      ResourceKind = "bandwidth"
	ResourceDevice  ResourceKind = "device"
)

// Capacity is a resource vector, used both for a node's total capacity and
// its current usage.
type Capacity struct {
	CPUCores  float64 `json:"cpuCores"`
	MemoryGB  float64 `json:"memoryGb"`
	StorageGB float64 `json:"storageGb"`
	BWMbps    float64 `json:"bwMbps"`
}

// CapsuleAssignment is the cluster's weak reference to a capsule running
// on some node: it never owns the capsule, only tracks where it lives and
// what it was debited for.
type CapsuleAssignment struct {
	CapsuleID string   `json:"capsuleId"`
	NodeID    string   `json:"nodeId"`
	CPU       float64  `json:"cpu"`
	MemoryGB  float64  `json:"memoryGb"`
	StorageGB float64  `json:"storageGb"`
}

/*
	Node is a cluster member: its address, declared capacity, observed
	usage, and the assignments it's currently carrying.  The invariant
	`0 <= usage.R <= capacity.R` and `usage.R == sum(assignments.R)` is
	maintained by cluster.Manager, never by Node itself.
*/
type Node struct {
	ID              string            `json:"id"`
	Address         string            `json:"address"`
	Port            int               `json:"port"`
	State           NodeState         `json:"state"`
	Capacity        Capacity          `json:"capacity"`
	Usage           Capacity          `json:"usage"`
	LastHeartbeatAt time.Time         `json:"lastHeartbeatAt"`
	Labels          map[string]string `json:"labels,omitempty"`
	Assignments     []CapsuleAssignment `json:"assignments,omitempty"`
}

// AvailableCores reports the idle CPU capacity on the node.
func (n Node) AvailableCores() float64 { return n.Capacity.CPUCores - n.Usage.CPUCores }

// Utilization returns per-core CPU utilization in [0, 1+].
func (n Node) Utilization() float64 {
	if n.Capacity.CPUCores <= 0 {
		return 1
	}
	return n.Usage.CPUCores / n.Capacity.CPUCores
}

// CanFit reports whether the node has idle capacity for the requested caps.
func (n Node) CanFit(caps ResourceCaps) bool {
	return n.AvailableCores() >= caps.CPUCores &&
		(n.Capacity.MemoryGB-n.Usage.MemoryGB)*1024 >= float64(caps.MemoryMB) &&
		n.Capacity.StorageGB-n.Usage.StorageGB >= float64(caps.StorageGB)
}
