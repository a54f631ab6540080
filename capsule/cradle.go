package capsule

import (
	"os"
	"path/filepath"

	"github.com/polydawn/capsule/api/def"
)

/*
	makeCradle ensures the bare minimum a freshly-extracted rootfs needs
	before exec: the working directory exists and is owned by the
	process's eventual uid, a temp dir exists, and (for Routine policy) a
	home directory exists for the synthesized non-root identity.  Many
	rootfs layers start with everything owned 0:0 and no scratch space;
	without this, entrypoints that assume a normal user account fail in
	confusing ways.
*/
func makeCradle(rootfsPath string, cfg def.CapsuleConfig) error {
	uid, gid := uidForPolicy(cfg.Policy)

	cwd := cfg.WorkingDir
	if cwd == "" {
		cwd = "/"
	}
	if err := ensureOwnedDir(filepath.Join(rootfsPath, cwd), uid, gid); err != nil {
		return err
	}
	if err := ensureOwnedDir(filepath.Join(rootfsPath, "tmp"), uid, gid); err != nil {
		return err
	}
	if cfg.Policy == def.PolicyRoutine || cfg.Policy == "" {
		if err := ensureOwnedDir(filepath.Join(rootfsPath, "home", "capsule"), uid, gid); err != nil {
			return err
		}
	}
	return nil
}

// ensureOwnedDir mkdir -p's path and chowns it; failures to chown (e.g.
// under rootless mode where we can't chown to an arbitrary uid) are
// swallowed -- the resulting failure mode is a confusing permission
// error from the contained process, which is an acceptable trade for
// not hard-failing setup over a non-essential convenience.
func ensureOwnedDir(path string, uid, gid int) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}
	_ = os.Chown(path, uid, gid)
	return nil
}
