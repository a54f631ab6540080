package def

import "time"

// CapsuleState is the capsule lifecycle state machine:
// Created -> Starting -> Running -> {Paused | Stopping} -> Stopped | Failed.
type CapsuleState string

const (
	CapsuleCreated  CapsuleState = "created"
	CapsuleStarting CapsuleState = "starting"
	CapsuleRunning  CapsuleState = "running"
	CapsulePaused   CapsuleState = "paused"
	CapsuleStopping CapsuleState = "stopping"
	CapsuleStopped  CapsuleState = "stopped"
	CapsuleFailed   CapsuleState = "failed"
)

// Policy enumerates the privilege level a capsule's root process starts
// with.  Every executor must be able to assign a non-zero uid for Routine;
// other levels trade isolation for compatibility with images that expect
// more privilege.
type Policy string

const (
	PolicyRoutine  Policy = "routine"  // low uid, capabilities dropped: the safe default.
	PolicyUidZero  Policy = "uidzero"  // uid 0, capabilities dropped.
	PolicyGovernor Policy = "governor" // uid 0, most capabilities retained.
	PolicySysad    Policy = "sysad"    // uid 0, all capabilities: fully trusted workloads only.
)

// Mount describes a bind mount into the capsule's rootfs.
type Mount struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Writable  bool   `json:"writable"`
	DeviceReq *DeviceRequest `json:"deviceRequest,omitempty"`
}

// DeviceRequest asks the capsule runtime for passthrough access to a
// host device (e.g. a GPU), resolved by the configured device allocator
// capability.  See DESIGN.md for the exclusive-vs-shared decision.
type DeviceRequest struct {
	Name      string `json:"name"`
	Exclusive bool   `json:"exclusive"`
}

// ResourceCaps are the cgroup limits applied at capsule creation.
type ResourceCaps struct {
	CPUCores  float64 `json:"cpuCores"`
	MemoryMB  int64   `json:"memoryMb"`
	StorageGB int64   `json:"storageGb"`
}

/*
	CapsuleConfig is the input to the capsule runtime's create flow: an
	image-materialized rootfs, the process to exec, and the isolation
	knobs governing it.
*/
type CapsuleConfig struct {
	Hostname    string            `json:"hostname"`
	RootfsImage string            `json:"rootfsImage"` // image reference, resolved through image.Store.
	WorkingDir  string            `json:"workingDir"`
	User        string            `json:"user"`
	Entrypoint  []string          `json:"entrypoint"`
	Env         map[string]string `json:"env,omitempty"`
	Mounts      []Mount           `json:"mounts,omitempty"`
	Policy      Policy            `json:"policy,omitempty"`
	Caps        ResourceCaps      `json:"caps"`
	Rootless    bool              `json:"rootless,omitempty"`
}

/*
	Capsule is the runtime record of a running isolated process tree.  It
	is owned exclusively by the node that created it; the cluster only
	ever holds a weak CapsuleAssignment reference to it (see Node).
*/
type Capsule struct {
	ID         string       `json:"id"` // random, url-safe, >=32 bits.
	Config     CapsuleConfig `json:"config"`
	CgroupPath string       `json:"cgroupPath,omitempty"`
	PID        int          `json:"pid,omitempty"`
	State      CapsuleState `json:"state"`
	CreatedAt  time.Time    `json:"createdAt"`
}
