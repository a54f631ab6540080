package capsule

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/polydawn/capsule/api/def"
)

const cgroupRoot = "/sys/fs/cgroup"

// cgroup owns the lifetime of one capsule's cgroup v2 directory: creation,
// limit assignment, freezer control, and removal. Only the capsule
// runtime that created it ever touches these files.
type cgroup struct {
	path string
}

// createCgroup makes a stable cgroup v2 path for capsuleID and applies the
// memory/cpu caps from config. memory.max = 0 is refused outright: a zero
// cap can never be satisfied and almost certainly signals a
// misconfiguration rather than an intentional limit.
func createCgroup(capsuleID string, caps def.ResourceCaps) (*cgroup, error) {
	if caps.MemoryMB == 0 {
		return nil, InvalidConfiguration.New("memory.max = 0 is not permitted")
	}
	path := filepath.Join(cgroupRoot, "capsule", capsuleID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, CgroupCreationFailed.Wrap(err)
	}
	cg := &cgroup{path: path}

	memBytes := caps.MemoryMB * 1024 * 1024
	if err := cg.write("memory.max", strconv.FormatInt(memBytes, 10)); err != nil {
		cg.Release()
		return nil, CgroupCreationFailed.Wrap(err)
	}

	if caps.CPUCores > 0 {
		// cpu.max is "<quota> <period>"; we use a 100ms period, matching
		// the kernel default, and scale the quota by requested cores.
		const periodUS = 100000
		quota := int64(caps.CPUCores * periodUS)
		if err := cg.write("cpu.max", fmt.Sprintf("%d %d", quota, periodUS)); err != nil {
			cg.Release()
			return nil, CgroupCreationFailed.Wrap(err)
		}
	}
	return cg, nil
}

func (cg *cgroup) write(file, value string) error {
	return os.WriteFile(filepath.Join(cg.path, file), []byte(value), 0644)
}

// AddPID attaches a process to this cgroup.
func (cg *cgroup) AddPID(pid int) error {
	return cg.write("cgroup.procs", strconv.Itoa(pid))
}

// Freeze/Thaw implement the cgroup freezer used by migration's pre-pause
// step: SIGSTOP of the whole process tree without
// racing individual signal delivery.
func (cg *cgroup) Freeze() error { return cg.write("cgroup.freeze", "1") }
func (cg *cgroup) Thaw() error   { return cg.write("cgroup.freeze", "0") }

// Release removes the cgroup directory. Safe to call multiple times and
// on every exit path.
func (cg *cgroup) Release() error {
	if cg == nil || cg.path == "" {
		return nil
	}
	err := os.Remove(cg.path)
	if err != nil && !os.IsNotExist(err) {
		return CgroupCreationFailed.Wrap(err)
	}
	return nil
}
