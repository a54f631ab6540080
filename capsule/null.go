package capsule

import (
	"sync"
	"time"

	"github.com/polydawn/capsule/api/def"
)

// NullRuntime is a fake Runtime that never touches namespaces, cgroups,
// or the filesystem: it just bookkeeps state transitions. It exists for
// tests of callers (scheduler placement, surge up/down) that need a
// capsule lifecycle without a real Linux kernel underneath.
type NullRuntime struct {
	mu      sync.Mutex
	byID    map[string]*def.Capsule
}

func NewNullRuntime() *NullRuntime {
	return &NullRuntime{byID: make(map[string]*def.Capsule)}
}

func (n *NullRuntime) Create(cfg def.CapsuleConfig) (*def.Capsule, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := &def.Capsule{
		ID:        newID(),
		Config:    cfg,
		PID:       0,
		State:     def.CapsuleRunning,
		CreatedAt: time.Now(),
	}
	n.byID[c.ID] = c
	return c, nil
}

func (n *NullRuntime) Stop(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.byID[id]
	if !ok {
		return Error.New("no such capsule: %s", id)
	}
	c.State = def.CapsuleStopped
	return nil
}

func (n *NullRuntime) Restart(id string) (*def.Capsule, error) {
	n.mu.Lock()
	c, ok := n.byID[id]
	n.mu.Unlock()
	if !ok {
		return nil, Error.New("no such capsule: %s", id)
	}
	n.Stop(id)
	return n.Create(c.Config)
}

func (n *NullRuntime) Get(id string) (*def.Capsule, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.byID[id]
	return c, ok
}
