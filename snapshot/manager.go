package snapshot

import (
	"os"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
)

// Manager captures and restores capsule snapshots against a CAS store.
// It needs no awareness of the capsule runtime's internals beyond a
// rootfs path and a pid -- Runtime.Create / the capsule's rootfs setup own
// everything about how that path came to exist.
type Manager struct {
	CAS *cas.Store
	log log15.Logger
}

func NewManager(c *cas.Store) *Manager {
	return &Manager{CAS: c, log: log15.New("module", "snapshot")}
}

// Capture takes a consistent snapshot of a running capsule: its rootfs
// contents, process tree, and network state, storing the bulky parts
// (filesystem, and a placeholder memory blob) in CAS and returning a
// Snapshot record carrying their digests.
func (m *Manager) Capture(capsuleID, rootfsPath string, pid int) (def.Snapshot, error) {
	fsBytes, err := tarDir(rootfsPath)
	if err != nil {
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}
	fsDigest, err := m.CAS.Put(fsBytes, def.KindCapsule)
	if err != nil {
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}

	procState, err := captureProcessState(pid)
	if err != nil {
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}
	netState, _ := captureNetworkState(pid)

	// Memory capture is CRIU's job in a full deployment (dumping pages
	// via /proc/<pid>/mem or a kernel checkpoint facility); that
	// integration point is simplified to an explicit empty-but-digested
	// placeholder blob here since no such library exists in the example
	// corpus to ground a real implementation on.
	memDigest, err := m.CAS.Put([]byte{}, def.KindCapsule)
	if err != nil {
		return def.Snapshot{}, CaptureFailed.Wrap(err)
	}

	return def.Snapshot{
		CapsuleID:        capsuleID,
		TakenAt:          time.Now(),
		MemoryDigest:     memDigest,
		FilesystemDigest: fsDigest,
		Network:          netState,
		Process:          procState,
	}, nil
}

// Restore materializes a snapshot's filesystem content into destRoot,
// which the caller (capsule runtime or migration) then treats exactly
// like a freshly extracted image rootfs.
func (m *Manager) Restore(snap def.Snapshot, destRoot string) error {
	fsBytes, err := m.CAS.Get(snap.FilesystemDigest)
	if err != nil {
		return RestoreFailed.Wrap(err)
	}
	if err := os.MkdirAll(destRoot, 0755); err != nil {
		return RestoreFailed.Wrap(err)
	}
	if err := extractTarInto(fsBytes, destRoot); err != nil {
		return RestoreFailed.Wrap(err)
	}
	return nil
}

// Verify re-resolves every digest a Snapshot references, confirming the
// CAS actually holds the bytes before a caller commits to using it --
// the same "don't trust the record, trust what CAS can produce" check
// image.Store.IsMaterialized does for manifests.
func (m *Manager) Verify(snap def.Snapshot) error {
	if _, err := m.CAS.Stat(snap.FilesystemDigest); err != nil {
		return VerifyFailed.Wrap(err)
	}
	if _, err := m.CAS.Stat(snap.MemoryDigest); err != nil {
		return VerifyFailed.Wrap(err)
	}
	return nil
}

