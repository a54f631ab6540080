package capsule

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// MaybeRunInit must be the first call in any main() that links this
// package. If the process was re-exec'd by Runtime.Create as the
// privileged child side of a capsule (argv[1] == reexecMarker), it
// performs the mount/chroot/exec sequence and never returns; otherwise
// it's a no-op and main() proceeds normally.
func MaybeRunInit() {
	if len(os.Args) < 2 {
		return
	}
	switch os.Args[1] {
	case reexecMarker:
		if err := runInit(); err != nil {
			os.Stderr.WriteString("capsule init failed: " + err.Error() + "\n")
			os.Exit(1)
		}
	case reexecMarker + "-attach":
		pid := 0
		fmt.Sscanf(os.Args[2], "%d", &pid)
		if err := runAttach(pid, os.Args[3:]); err != nil {
			os.Stderr.WriteString("capsule attach failed: " + err.Error() + "\n")
			os.Exit(1)
		}
	default:
		return
	}
	// both branches only return control on failure; success replaces
	// this process image entirely via exec.
	os.Exit(1)
}

// runInit is the child half of Create's fork: it runs inside the freshly
// unshared namespaces, finishes turning rootfs.Merged into a real root
// filesystem, drops privilege, and execs the entrypoint in place. It
// deliberately never returns control to caller code on the success path.
func runInit() error {
	var cfg childInitConfig
	if err := json.Unmarshal([]byte(os.Getenv("CAPSULE_INIT_CONFIG")), &cfg); err != nil {
		return err
	}

	if cfg.Hostname != "" {
		if err := syscall.Sethostname([]byte(cfg.Hostname)); err != nil {
			return err
		}
	}

	if err := mountCapsuleFS(cfg.Merged); err != nil {
		return err
	}

	if err := syscall.Chroot(cfg.Merged); err != nil {
		return err
	}
	wd := cfg.WorkingDir
	if wd == "" {
		wd = "/"
	}
	if err := os.Chdir(wd); err != nil {
		return err
	}

	if err := dropCapabilities(cfg.Caps); err != nil {
		return err
	}
	if err := syscall.Setgid(cfg.GID); err != nil {
		return err
	}
	if err := syscall.Setuid(cfg.UID); err != nil {
		return err
	}

	if len(cfg.Entrypoint) == 0 {
		return Error.New("capsule config has no entrypoint")
	}
	bin, err := resolveEntrypoint(cfg.Entrypoint[0])
	if err != nil {
		return err
	}
	return syscall.Exec(bin, cfg.Entrypoint, cfg.Env)
}

// mountCapsuleFS mounts the standard pseudo-filesystems a capsule's
// rootfs needs before chroot: /proc for the new PID namespace, /sys,
// and a devpts so /dev/pts/* ttys work. /dev itself is expected to
// already be present in the image layer (mirroring what every
// mainstream base image ships); we only add what the namespace
// unshare makes freshly necessary.
func mountCapsuleFS(root string) error {
	if err := os.MkdirAll(root+"/proc", 0755); err != nil {
		return err
	}
	if err := syscall.Mount("proc", root+"/proc", "proc", 0, ""); err != nil {
		return err
	}
	if err := os.MkdirAll(root+"/sys", 0755); err != nil {
		return err
	}
	if err := syscall.Mount("sysfs", root+"/sys", "sysfs", 0, ""); err != nil {
		return err
	}
	if err := os.MkdirAll(root+"/dev/pts", 0755); err != nil {
		return err
	}
	if err := syscall.Mount("devpts", root+"/dev/pts", "devpts", 0, "newinstance,ptmxmode=0666"); err != nil {
		return err
	}
	return nil
}

// capNameToBit maps the subset of capability names this package grants
// to their kernel bit numbers (see linux/capability.h). Anything not
// listed here that a Policy names is simply never raised -- an unknown
// name in capsForPolicy's tables is a bug to fix there, not a reason to
// fail every capsule start.
var capNameToBit = map[string]uintptr{
	"CAP_CHOWN":           0,
	"CAP_DAC_OVERRIDE":    1,
	"CAP_FOWNER":          3,
	"CAP_FSETID":          4,
	"CAP_KILL":            5,
	"CAP_SETGID":          6,
	"CAP_SETUID":          7,
	"CAP_SETPCAP":         8,
	"CAP_NET_BIND_SERVICE": 10,
	"CAP_NET_RAW":         13,
	"CAP_SYS_CHROOT":      18,
	"CAP_SYS_ADMIN":       21,
	"CAP_SYS_BOOT":        22,
	"CAP_SYS_MODULE":      16,
	"CAP_SETFCAP":         31,
	"CAP_AUDIT_WRITE":     29,
}

// dropCapabilities sets the process's permitted and effective
// capability sets to exactly the ones named and clears its inheritable
// set, via the raw capset(2) syscall. CAP_ALL in a policy's list (PolicySysad) leaves every
// capability that was already held untouched instead of narrowing.
func dropCapabilities(keep []string) error {
	for _, name := range keep {
		if name == "CAP_ALL" {
			return nil
		}
	}
	var permitted, effective uint32
	for _, name := range keep {
		bit, ok := capNameToBit[name]
		if !ok {
			continue
		}
		permitted |= 1 << bit
		effective |= 1 << bit
	}
	// capset(2) has no golang.org/x/sys/unix wrapper (it's a rarely
	// used, version-header-carrying syscall), so it's invoked directly
	// the way the few Go programs that touch it do.
	type capHeader struct {
		version uint32
		pid     int32
	}
	type capData struct {
		effective   uint32
		permitted   uint32
		inheritable uint32
	}
	const linuxCapabilityVersion3 = 0x20080522
	const sysCapset = 126

	hdr := capHeader{version: linuxCapabilityVersion3, pid: 0}
	data := [2]capData{{effective: effective, permitted: permitted, inheritable: 0}}
	_, _, errno := syscall.RawSyscall(sysCapset, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data[0])), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func resolveEntrypoint(bin string) (string, error) {
	if bin[0] == '/' {
		return bin, nil
	}
	for _, dir := range []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin", "/sbin", "/bin"} {
		path := dir + "/" + bin
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}
	return "", ExecFailed.New("entrypoint %q not found in rootfs PATH", bin)
}

// haveUnprivilegedUserns reports whether this kernel/user allows
// unprivileged user namespace creation, which rootless mode depends on
// entirely. Some distributions (notably hardened kernels) disable this
// via a sysctl.
func haveUnprivilegedUserns() bool {
	b, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err != nil {
		// Kernels without the sysctl (most non-Debian-derived distros)
		// simply allow it unconditionally.
		return true
	}
	return len(b) > 0 && b[0] == '1'
}
