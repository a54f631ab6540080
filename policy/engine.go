package policy

import (
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/snapshot"
)

// Engine drives the snapshot policy: timer triggers fire on a
// fixed cadence, operation triggers fire synchronously when the
// platform calls Fire for a named operation, and file-change triggers
// fire through their own FileWatcher. Every fire results in a capture
// through the given snapshot.Manager, followed by a retention sweep.
type Engine struct {
	Snapshots *snapshot.Manager
	Retention RetentionRule
	Delete    func(def.SnapshotKey) error

	mu        sync.Mutex
	known     []def.Snapshot
	watchers  []*FileWatcher
	timers    []*time.Ticker
	log       log15.Logger
	capsuleID string
	rootfs    string
	pid       int
}

func NewEngine(snapshots *snapshot.Manager, retention RetentionRule, del func(def.SnapshotKey) error) *Engine {
	return &Engine{
		Snapshots: snapshots,
		Retention: retention,
		Delete:    del,
		log:       log15.New("module", "policy.engine"),
	}
}

// Known returns a snapshot of the snapshots this Engine has captured
// and not yet deleted via retention, for callers (like the CLI) that
// need to resolve a capsule/timestamp pair back to a full record.
func (e *Engine) Known() []def.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]def.Snapshot, len(e.known))
	copy(out, e.known)
	return out
}

// Target sets which capsule subsequent triggers capture.
func (e *Engine) Target(capsuleID, rootfs string, pid int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capsuleID, e.rootfs, e.pid = capsuleID, rootfs, pid
}

// AddTimer starts a recurring capture on the named cadence.
func (e *Engine) AddTimer(trigger TimerTrigger) {
	d := trigger.Interval.Duration()
	if d <= 0 {
		return
	}
	t := time.NewTicker(d)
	e.mu.Lock()
	e.timers = append(e.timers, t)
	e.mu.Unlock()
	go func() {
		for range t.C {
			e.fire(trigger.Interval)
		}
	}()
}

// AddFileWatch starts a FileChangeTrigger against a bucket label used
// purely for retention grouping (file-change snapshots don't have a
// natural cadence, so they're bucketed under Daily by convention).
func (e *Engine) AddFileWatch(trigger FileChangeTrigger) error {
	w, err := NewFileWatcher(trigger, func() { e.fire(Daily) })
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.watchers = append(e.watchers, w)
	e.mu.Unlock()
	w.Start()
	return nil
}

// Fire is called by the platform immediately before the named operation
// runs, synchronously capturing a snapshot first.
func (e *Engine) Fire(op OperationTrigger) error {
	return e.fireErr(Daily)
}

func (e *Engine) fire(bucket TimerInterval) {
	if err := e.fireErr(bucket); err != nil {
		e.log.Error("policy-triggered capture failed", "err", err)
	}
}

func (e *Engine) fireErr(bucket TimerInterval) error {
	e.mu.Lock()
	capsuleID, rootfs, pid := e.capsuleID, e.rootfs, e.pid
	e.mu.Unlock()
	if capsuleID == "" {
		return nil
	}

	snap, err := e.Snapshots.Capture(capsuleID, rootfs, pid)
	if err != nil {
		return err
	}
	snap.Metadata = map[string]string{"bucket": string(bucket)}

	e.mu.Lock()
	e.known = append(e.known, snap)
	toDelete := e.Retention.Apply(e.known, bucketOf)
	e.known = without(e.known, toDelete)
	e.mu.Unlock()

	for _, k := range toDelete {
		if e.Delete != nil {
			if err := e.Delete(k); err != nil {
				e.log.Error("retention delete failed", "capsule", k.CapsuleID, "err", err)
			}
		}
	}
	return nil
}

func bucketOf(s def.Snapshot) TimerInterval {
	return TimerInterval(s.Metadata["bucket"])
}

func without(snaps []def.Snapshot, deleted []def.SnapshotKey) []def.Snapshot {
	delSet := make(map[def.SnapshotKey]bool, len(deleted))
	for _, k := range deleted {
		delSet[k] = true
	}
	out := snaps[:0]
	for _, s := range snaps {
		if !delSet[s.Key()] {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.watchers {
		w.Stop()
	}
	for _, t := range e.timers {
		t.Stop()
	}
}
