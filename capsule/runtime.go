package capsule

import (
	"encoding/json"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
	"github.com/polydawn/capsule/image"
)

// reexecMarker is the argv[1] a Runtime uses to recognize that the
// current process invocation is the privileged child side of a Create,
// not a normal capsulectl invocation. Any binary embedding this package
// must call MaybeRunInit() first thing in main().
const reexecMarker = "__capsule_init__"

// Runtime owns every capsule this process has created: their rootfs
// trees, cgroups, and child processes. One Runtime is meant to back one
// node's worth of capsules.
type Runtime struct {
	CAS        *cas.Store
	Images     *image.Store
	WorkRoot   string
	GraceSecs  int    // SIGTERM -> SIGKILL grace period; 0 defaults to 10s.
	BuildImage string // rootfs image RunBuild launches build commands in.
	log        log15.Logger

	mu      sync.Mutex
	running map[string]*liveCapsule
}

type liveCapsule struct {
	capsule *def.Capsule
	cfg     def.CapsuleConfig
	cg      *cgroup
	rootfs  *rootfsTree
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

func NewRuntime(c *cas.Store, images *image.Store, workRoot string) *Runtime {
	return &Runtime{
		CAS:      c,
		Images:   images,
		WorkRoot: workRoot,
		log:      log15.New("module", "capsule"),
		running:  make(map[string]*liveCapsule),
	}
}

// childInitConfig is the wire shape handed to the reexec'd child over an
// environment variable; keeping it to plain data (no behavior) keeps the
// parent/child contract easy to reason about across the fork+exec gap.
type childInitConfig struct {
	Merged     string
	Hostname   string
	WorkingDir string
	Entrypoint []string
	Env        []string
	UID        int
	GID        int
	Caps       []string
}

// Create runs the capsule creation sequence: allocate an
// id, materialize a rootfs from the configured image, create a cgroup,
// and fork off the namespaced child that execs the entrypoint. Every
// error path after rootfs/cgroup creation releases both before
// returning, per the "every exit path releases kernel objects"
// invariant.
func (rt *Runtime) Create(cfg def.CapsuleConfig) (*def.Capsule, error) {
	id := newID()

	manifest, err := rt.Images.Resolve(cfg.RootfsImage)
	if err != nil {
		return nil, MountFailed.Wrap(err)
	}

	rootfs, err := prepareRootfs(rt.CAS, manifest, id, rt.WorkRoot)
	if err != nil {
		return nil, err
	}

	if err := bindExtraMounts(rootfs, cfg.Mounts); err != nil {
		rootfs.teardown()
		return nil, err
	}

	if err := makeCradle(rootfs.Merged, cfg); err != nil {
		rootfs.teardown()
		return nil, err
	}

	cg, err := createCgroup(id, cfg.Caps)
	if err != nil {
		rootfs.teardown()
		return nil, err
	}

	uid, gid := uidForPolicy(cfg.Policy)
	init := childInitConfig{
		Merged:     rootfs.Merged,
		Hostname:   cfg.Hostname,
		WorkingDir: cfg.WorkingDir,
		Entrypoint: cfg.Entrypoint,
		Env:        envSlice(cfg.Env),
		UID:        uid,
		GID:        gid,
		Caps:       capsForPolicy(cfg.Policy),
	}
	payload, err := json.Marshal(init)
	if err != nil {
		cg.Release()
		rootfs.teardown()
		return nil, Error.Wrap(err)
	}

	self, err := os.Executable()
	if err != nil {
		cg.Release()
		rootfs.teardown()
		return nil, Error.Wrap(err)
	}

	cmd := exec.Command(self, reexecMarker)
	cmd.Env = []string{"CAPSULE_INIT_CONFIG=" + string(payload)}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWUTS | syscall.CLONE_NEWPID | syscall.CLONE_NEWNS |
			syscall.CLONE_NEWNET | syscall.CLONE_NEWIPC,
		Pdeathsig: syscall.SIGKILL,
	}
	if cfg.Rootless {
		if !haveUnprivilegedUserns() {
			cg.Release()
			rootfs.teardown()
			return nil, PermissionDenied.New("rootless mode requires user namespace support, which this host/user lacks")
		}
		cmd.SysProcAttr.Cloneflags |= syscall.CLONE_NEWUSER
		cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
		cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cg.Release()
		rootfs.teardown()
		return nil, ExecFailed.Wrap(err)
	}

	if err := cg.AddPID(cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		cg.Release()
		rootfs.teardown()
		return nil, err
	}

	capsule := &def.Capsule{
		ID:         id,
		Config:     cfg,
		CgroupPath: cg.path,
		PID:        cmd.Process.Pid,
		State:      def.CapsuleCreated,
		CreatedAt:  time.Now(),
	}

	rt.mu.Lock()
	rt.running[id] = &liveCapsule{capsule: capsule, cfg: cfg, cg: cg, rootfs: rootfs, cmd: cmd, done: make(chan struct{})}
	rt.mu.Unlock()

	go rt.reap(id, cmd)

	// cmd.Start already succeeded and the pid is in its cgroup by this
	// point; Starting/Running record the child's observed lifecycle
	// rather than gating it, so there's no window where a caller sees
	// the capsule before its process exists.
	rt.mu.Lock()
	capsule.State = def.CapsuleStarting
	rt.mu.Unlock()

	rt.mu.Lock()
	capsule.State = def.CapsuleRunning
	rt.mu.Unlock()

	return capsule, nil
}

// reap waits out a capsule's child in the background so its process
// table entry doesn't linger as a zombie, and marks the capsule Stopped
// once it exits on its own (crash, or a cooperative exit(0)).
func (rt *Runtime) reap(id string, cmd *exec.Cmd) {
	err := cmd.Wait()
	rt.mu.Lock()
	if lc, ok := rt.running[id]; ok {
		lc.capsule.State = def.CapsuleStopped
		lc.waitErr = err
		close(lc.done)
	}
	rt.mu.Unlock()
}

// Wait blocks until a capsule created by Create exits on its own, then
// releases its cgroup and rootfs -- the synchronous counterpart to
// Stop, for short-lived capsules (build commands, one-shot jobs) whose
// caller wants the exit error rather than fire-and-forget tracking.
func (rt *Runtime) Wait(id string) error {
	rt.mu.Lock()
	lc, ok := rt.running[id]
	rt.mu.Unlock()
	if !ok {
		return Error.New("no such capsule: %s", id)
	}

	<-lc.done

	rt.mu.Lock()
	delete(rt.running, id)
	rt.mu.Unlock()

	lc.cg.Release()
	lc.rootfs.teardown()
	return lc.waitErr
}

// RunBuild implements buildcache.Runner: it launches command inside a
// fresh capsule of BuildImage with workdir bind-mounted at the same
// path, and blocks for its exit -- build commands get their process
// isolation from the same runtime every other capsule does, rather
// than shelling out directly.
func (rt *Runtime) RunBuild(workdir string, command []string, env map[string]string) error {
	if rt.BuildImage == "" {
		return Error.New("runtime has no BuildImage configured; set Runtime.BuildImage before running builds")
	}
	cap, err := rt.Create(def.CapsuleConfig{
		Hostname:    "build",
		RootfsImage: rt.BuildImage,
		WorkingDir:  workdir,
		Entrypoint:  command,
		Env:         env,
		Mounts:      []def.Mount{{Source: workdir, Target: workdir, Writable: true}},
		Policy:      def.PolicyRoutine,
		Caps:        def.ResourceCaps{MemoryMB: 512},
	})
	if err != nil {
		return err
	}
	return rt.Wait(cap.ID)
}

// Stop sends SIGTERM, waits up to the configured grace period, then
// escalates to SIGKILL. The cgroup and rootfs mount are always released
// on the way out, win or lose on the graceful path.
func (rt *Runtime) Stop(id string) error {
	rt.mu.Lock()
	lc, ok := rt.running[id]
	rt.mu.Unlock()
	if !ok {
		return Error.New("no such capsule: %s", id)
	}

	lc.capsule.State = def.CapsuleStopping
	grace := time.Duration(rt.GraceSecs) * time.Second
	if grace == 0 {
		grace = 10 * time.Second
	}

	done := make(chan struct{})
	go func() { lc.cmd.Wait(); close(done) }()

	lc.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(grace):
		lc.cmd.Process.Kill()
		<-done
	}

	lc.cg.Release()
	lc.rootfs.teardown()
	lc.capsule.State = def.CapsuleStopped

	rt.mu.Lock()
	delete(rt.running, id)
	rt.mu.Unlock()
	return nil
}

// Restart is a stop followed by a fresh create with the same config --
// a restart gets a new pid and a new rootfs instance, not a resumed one.
func (rt *Runtime) Restart(id string) (*def.Capsule, error) {
	rt.mu.Lock()
	lc, ok := rt.running[id]
	rt.mu.Unlock()
	if !ok {
		return nil, Error.New("no such capsule: %s", id)
	}
	cfg := lc.cfg
	if err := rt.Stop(id); err != nil {
		return nil, err
	}
	return rt.Create(cfg)
}

// Get returns the tracked state of a capsule this Runtime created.
func (rt *Runtime) Get(id string) (*def.Capsule, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	lc, ok := rt.running[id]
	if !ok {
		return nil, false
	}
	return lc.capsule, true
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
