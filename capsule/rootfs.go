package capsule

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
)

// rootfsTree is the private directory tree prepared for one capsule: a
// stack of extracted, read-only layer dirs, an upper dir for the overlay's
// copy-on-write writes, a work dir overlay needs internally, and the
// final merged mountpoint the runtime chroots into.
type rootfsTree struct {
	CapsuleID string
	Root      string // <workRoot>/<id>
	Merged    string // <Root>/merged -- chroot target
	upper     string
	work      string
	lowers    []string
	mounted   bool
	extra     []string // host paths bind-mounted into Merged by bindExtraMounts, unmounted before Merged itself
}

// prepareRootfs extracts every layer named in manifest (lowest first)
// into its own directory under workRoot, then overlay-mounts them
// read-only-below/writable-above into Merged. Single-layer images skip
// the overlay: their one layer directory is bind-mounted onto Merged --
// bind, don't COW, when there's nothing to union.
func prepareRootfs(store *cas.Store, manifest def.ImageManifest, capsuleID, workRoot string) (*rootfsTree, error) {
	root := filepath.Join(workRoot, capsuleID)
	tree := &rootfsTree{CapsuleID: capsuleID, Root: root}

	if len(manifest.Layers) == 0 {
		return nil, MountFailed.New("image manifest %s has no layers", manifest.Digest)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, MountFailed.Wrap(err)
	}

	for i, layer := range manifest.Layers {
		dir := filepath.Join(root, "layer", fmt.Sprintf("%02d", i))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, MountFailed.Wrap(err)
		}
		b, err := store.Get(layer.Digest)
		if err != nil {
			return nil, MountFailed.Wrap(err)
		}
		if err := extractTar(b, dir); err != nil {
			return nil, MountFailed.Wrap(err)
		}
		tree.lowers = append(tree.lowers, dir)
	}

	merged := filepath.Join(root, "merged")
	if err := os.MkdirAll(merged, 0755); err != nil {
		return nil, MountFailed.Wrap(err)
	}
	tree.Merged = merged

	if len(tree.lowers) == 1 {
		// nothing to union; the single layer dir *is* the rootfs. Use a
		// bind mount so later teardown logic is uniform either way.
		if err := syscall.Mount(tree.lowers[0], merged, "", syscall.MS_BIND, ""); err != nil {
			return nil, MountFailed.Wrap(err)
		}
		tree.mounted = true
		return tree, nil
	}

	upper := filepath.Join(root, "upper")
	work := filepath.Join(root, "work")
	if err := os.MkdirAll(upper, 0755); err != nil {
		return nil, MountFailed.Wrap(err)
	}
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, MountFailed.Wrap(err)
	}
	tree.upper, tree.work = upper, work

	// overlay wants a colon-joined list whose *first* entry shadows the
	// rest, i.e. highest priority (the last layer) first.
	lowerdir := joinReverse(tree.lowers)
	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", lowerdir, upper, work)
	if err := syscall.Mount("overlay", merged, "overlay", 0, opts); err != nil {
		return nil, MountFailed.Wrap(err)
	}
	tree.mounted = true
	return tree, nil
}

// bindExtraMounts wires def.CapsuleConfig's Mounts -- additional host
// directories a capsule needs beyond its image rootfs, such as the
// build workdir RunBuild shares in -- as bind mounts into the already
// overlay-or-bind-mounted tree. Writable mounts are remounted rw
// explicitly since the initial bind inherits the source's permissions
// but not necessarily the flags a later MS_RDONLY remount of Merged
// would otherwise leave in place.
func bindExtraMounts(tree *rootfsTree, mounts []def.Mount) error {
	for _, m := range mounts {
		target := filepath.Join(tree.Merged, filepath.Clean("/"+m.Target))
		if err := os.MkdirAll(target, 0755); err != nil {
			return MountFailed.Wrap(err)
		}
		if err := syscall.Mount(m.Source, target, "", syscall.MS_BIND, ""); err != nil {
			return MountFailed.Wrap(err)
		}
		if m.Writable {
			if err := syscall.Mount("", target, "", syscall.MS_BIND|syscall.MS_REMOUNT, ""); err != nil {
				syscall.Unmount(target, 0)
				return MountFailed.Wrap(err)
			}
		}
		tree.extra = append(tree.extra, target)
	}
	return nil
}

func joinReverse(dirs []string) string {
	out := ""
	for i := len(dirs) - 1; i >= 0; i-- {
		if out != "" {
			out += ":"
		}
		out += dirs[i]
	}
	return out
}

// teardown unmounts Merged. Safe to call multiple times and on every exit
// path, matching the cgroup release invariant.
func (t *rootfsTree) teardown() error {
	if t == nil {
		return nil
	}
	for i := len(t.extra) - 1; i >= 0; i-- {
		if err := syscall.Unmount(t.extra[i], 0); err != nil && err != syscall.EINVAL {
			return MountFailed.Wrap(err)
		}
	}
	t.extra = nil
	if !t.mounted {
		return nil
	}
	if err := syscall.Unmount(t.Merged, 0); err != nil && err != syscall.EINVAL {
		return MountFailed.Wrap(err)
	}
	t.mounted = false
	return nil
}

// extractTar unpacks a tar stream onto disk at destBasePath. Entries
// whose path would climb above destBasePath are clamped back under it
// (filepath.Clean of a leading-"/" name drops the ".."), since layer
// contents are untrusted CAS blobs.
func extractTar(content []byte, destBasePath string) error {
	tr := tar.NewReader(bytes.NewReader(content))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		// filepath.Clean on a leading-"/" path collapses any ".." that
		// would climb above root, so target can never escape destBasePath.
		target := filepath.Join(destBasePath, filepath.Clean("/"+hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.CopyN(f, tr, hdr.Size); err != nil && err != io.EOF {
				f.Close()
				return err
			}
			f.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			linkTarget := filepath.Join(destBasePath, filepath.Clean("/"+hdr.Linkname))
			if err := os.Link(linkTarget, target); err != nil {
				return err
			}
		default:
			// device nodes, fifos, etc: skip rather than fail the whole
			// extraction for exotic tar entry types.
		}
	}
}
