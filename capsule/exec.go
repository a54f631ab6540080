package capsule

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Exec runs argv inside an already-running capsule's namespaces and
// rootfs, the way `capsulectl exec` attaches a debugging shell. It does
// not go through the reexec/init protocol Create uses: the target
// namespaces already exist, so this just joins them via setns(2) and
// chroots into the live capsule's /proc/<pid>/root.
func (rt *Runtime) Exec(id string, argv []string) ([]byte, error) {
	rt.mu.Lock()
	lc, ok := rt.running[id]
	rt.mu.Unlock()
	if !ok {
		return nil, Error.New("no such capsule: %s", id)
	}
	if len(argv) == 0 {
		return nil, Error.New("exec requires a command")
	}

	pid := lc.cmd.Process.Pid
	self, err := os.Executable()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	cmd := exec.Command(self, reexecMarker+"-attach", fmt.Sprintf("%d", pid))
	cmd.Args = append(cmd.Args, argv...)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return out, ExecFailed.Wrap(err)
	}
	return out, nil
}

// runAttach is the child side of Exec: it joins the mount/UTS/net/pid
// namespaces of an existing capsule process by pid, then execs argv
// inside them. Order matters: the PID namespace must be joined before
// any fork, and the mount namespace must be joined before chroot.
func runAttach(pid int, argv []string) error {
	nsDir := fmt.Sprintf("/proc/%d/ns", pid)
	for _, ns := range []string{"uts", "net", "pid", "mnt"} {
		f, err := os.Open(nsDir + "/" + ns)
		if err != nil {
			return err
		}
		err = setns(f.Fd(), ns)
		f.Close()
		if err != nil {
			return fmt.Errorf("joining %s namespace of pid %d: %w", ns, pid, err)
		}
	}

	root := fmt.Sprintf("/proc/%d/root", pid)
	if err := syscall.Chroot(root); err != nil {
		return err
	}
	if err := os.Chdir("/"); err != nil {
		return err
	}

	bin, err := resolveEntrypoint(argv[0])
	if err != nil {
		return err
	}
	return syscall.Exec(bin, argv, os.Environ())
}

// sysSetns is amd64's setns(2) syscall number; other architectures
// number it differently and would need a build-tagged variant.
const sysSetns = 308

func setns(fd uintptr, _ string) error {
	_, _, errno := syscall.RawSyscall(sysSetns, fd, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
