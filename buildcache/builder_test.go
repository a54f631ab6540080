package buildcache_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/buildcache"
	"github.com/polydawn/capsule/cas"
)

// shellRunner runs the build command through /bin/sh, standing in for the
// capsule runtime in tests that don't need real isolation.
type shellRunner struct{ calls int }

func (r *shellRunner) RunBuild(workdir string, command []string, env map[string]string) error {
	r.calls++
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = workdir
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd.Run()
}

func TestBuildCache(t *testing.T) {
	Convey("Given a builder backed by a fresh CAS", t, func() {
		root, err := os.MkdirTemp("", "buildcache-test-")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(root) })

		store, err := cas.Open(filepath.Join(root, "cas"))
		So(err, ShouldBeNil)

		runner := &shellRunner{}
		builder, err := buildcache.NewBuilder(store, runner, filepath.Join(root, "work"), filepath.Join(root, "cache"))
		So(err, ShouldBeNil)

		aDigest, _ := store.Put([]byte("A-contents"), def.KindLayer)
		bDigest, _ := store.Put([]byte("B-contents"), def.KindLayer)

		spec := def.BuildSpec{
			Name: "concat",
			Inputs: []def.BuildInput{
				{Role: "A", Digest: aDigest, Kind: def.InputLayer},
				{Role: "B", Digest: bDigest, Kind: def.InputLayer},
			},
			Outputs: []def.BuildOutput{{Name: "out", Kind: def.OutputBuild}},
			Command: []string{"/bin/sh", "-c", "cat A B > out"},
		}

		Convey("A first build executes the runner and produces the expected output", func() {
			results, err := builder.Build(spec)
			So(err, ShouldBeNil)
			So(runner.calls, ShouldEqual, 1)

			got, err := store.Get(results["out"].Digest)
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "A-contentsB-contents")
		})

		Convey("A second build with the same fingerprint hits the cache without re-running", func() {
			first, err := builder.Build(spec)
			So(err, ShouldBeNil)

			second, err := builder.Build(spec)
			So(err, ShouldBeNil)
			So(runner.calls, ShouldEqual, 1) // still just the first run.
			So(second["out"].Digest, ShouldEqual, first["out"].Digest)
		})

		Convey("A missing input fails DependencyNotFound", func() {
			bad := spec
			bad.Inputs = append([]def.BuildInput{}, spec.Inputs...)
			bad.Inputs[0].Digest = def.NewDigest([]byte("never stored"))
			_, err := builder.Build(bad)
			So(err, ShouldNotBeNil)
			So(strings.Contains(err.Error(), "not found in CAS"), ShouldBeTrue)
		})

		Convey("Reproducible builds that diverge fail NonDeterministic", func() {
			nondet := spec
			nondet.Reproducible = true
			nondet.Command = []string{"/bin/sh", "-c", "head -c4 /dev/urandom | base64 > out"}
			_, err := builder.Build(nondet)
			So(err, ShouldNotBeNil)
		})
	})
}
