package snapshot

import (
	"github.com/polydawn/capsule/api/def"
)

// Freezer is the subset of capsule's cgroup control migration needs:
// pausing and resuming a capsule's whole process tree atomically.
type Freezer interface {
	Freeze() error
	Thaw() error
}

// MigrationPlan is one live migration's inputs: the source capsule's
// identity and rootfs/pid to snapshot, and a destination root to
// restore into -- ordinarily on a different node, reached by whatever
// transport copies the snapshot's CAS blobs across (left to the
// caller, since that's a fabric/CAS-replication concern, not this
// package's).
type MigrationPlan struct {
	CapsuleID      string
	SourceRootfs   string
	SourcePID      int
	Freezer        Freezer
	DestRootfs     string
}

// Migrate runs the pre-copy/pause/final-snapshot/restore/verify
// pipeline:
//  1. pre-copy: an initial snapshot taken while the capsule keeps running,
//     so the bulk of its filesystem is already transferred before the pause.
//  2. pause: freeze the source so no further writes race the final snapshot.
//  3. final snapshot: capture the (now-static) state precisely.
//  4. transfer + restore: materialize that snapshot at the destination.
//  5. verify: confirm every digest the final snapshot names actually
//     resolves in the Manager's CAS store before declaring success.
// If verification fails, the source is thawed and kept running rather
// than torn down -- an instant rollback to the pre-migration state.
func (m *Manager) Migrate(plan MigrationPlan) (def.Snapshot, error) {
	if _, err := m.Capture(plan.CapsuleID, plan.SourceRootfs, plan.SourcePID); err != nil {
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}

	if err := plan.Freezer.Freeze(); err != nil {
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}

	final, err := m.Capture(plan.CapsuleID, plan.SourceRootfs, plan.SourcePID)
	if err != nil {
		plan.Freezer.Thaw()
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}

	if err := m.Restore(final, plan.DestRootfs); err != nil {
		plan.Freezer.Thaw()
		return def.Snapshot{}, RestoreFailed.Wrap(err)
	}

	if err := m.Verify(final); err != nil {
		// Rollback: the source never left its paused-but-intact state,
		// so thawing it is the entire recovery -- nothing to undo at
		// the destination beyond leaving its half-restored rootfs for
		// the caller to clean up.
		plan.Freezer.Thaw()
		return def.Snapshot{}, VerifyFailed.Wrap(err)
	}

	// A successful migration leaves the source frozen; tearing it down
	// (or thawing it if the caller wants a live source/dest pair
	// briefly, e.g. for a blue/green cutover) is the orchestrator's call.
	return final, nil
}
