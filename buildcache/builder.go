package buildcache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
)

// Runner executes a build command in an isolated directory. The capsule
// runtime satisfies this interface directly; a lightweight sandbox may
// implement it too, as long as it holds to the same namespace discipline.
type Runner interface {
	RunBuild(workdir string, command []string, env map[string]string) error
}

// minimalEnv is the deterministic, allow-listed environment every build
// starts from; a build spec's declared env is overlaid on top of this,
// and wins on key collision.
func minimalEnv(buildDir string) map[string]string {
	return map[string]string{
		"LANG": "C",
		"TZ":   "UTC",
		"PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"HOME": buildDir,
	}
}

// Builder implements the reproducible build protocol against a CAS
// store and a build-cache index.
type Builder struct {
	CAS       *cas.Store
	Runner    Runner
	WorkRoot  string // scratch directory builds execute under; each build gets a fresh subdir.
	entries   *entryStore
	log       log15.Logger
}

// NewBuilder opens the on-disk build-cache index under cacheRoot.
func NewBuilder(c *cas.Store, runner Runner, workRoot, cacheRoot string) (*Builder, error) {
	entries, err := openEntryStore(cacheRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(workRoot, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	return &Builder{
		CAS: c, Runner: runner, WorkRoot: workRoot, entries: entries,
		log: log15.New("component", "buildcache"),
	}, nil
}

func (b *Builder) Close() error { return b.entries.Close() }

/*
	Build fingerprints the spec and looks it up in the cache. A hit
	returns the cached outputs without running anything. On a miss it
	runs the build isolated (twice for a Reproducible spec, comparing the
	two runs' digests), and inserts a newline-delimited output manifest
	into CAS keyed by fingerprint in the cache.
*/
func (b *Builder) Build(spec def.BuildSpec) (def.ResultGroup, error) {
	if len(spec.Command) == 0 {
		return nil, InvalidBuildSpec.New("build spec %q has no command", spec.Name)
	}
	fingerprint := spec.Fingerprint()

	if entry, hit, err := b.entries.Lookup(fingerprint); err != nil {
		return nil, err
	} else if hit {
		digest, err := def.ParseDigest(entry.OutputDigest)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		blob, err := b.CAS.Get(digest)
		if err != nil {
			return nil, CacheMiss.Wrap(err)
		}
		results, err := decodeOutputManifest(blob)
		if err != nil {
			return nil, err
		}
		b.log.Info("build cache hit", "name", spec.Name, "fingerprint", fingerprint)
		return results, nil
	}

	start := time.Now()
	results, err := b.execute(spec)
	if err != nil {
		_ = b.entries.Put(Entry{InputFingerprint: fingerprint, TakenAt: start, Success: false})
		return nil, err
	}

	if spec.Reproducible {
		if err := b.validateReproducible(spec, results); err != nil {
			return nil, err
		}
	}

	manifestDigest, err := b.CAS.Put(encodeOutputManifest(results), def.KindBuild)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := b.entries.Put(Entry{
		InputFingerprint: fingerprint,
		OutputDigest:     manifestDigest.String(),
		TakenAt:          start,
		BuildMS:          time.Since(start).Milliseconds(),
		Success:          true,
	}); err != nil {
		return nil, err
	}
	return results, nil
}

// execute materializes a fresh build directory, copies inputs in,
// executes the command, and collects declared outputs into CAS.
func (b *Builder) execute(spec def.BuildSpec) (def.ResultGroup, error) {
	dir := filepath.Join(b.WorkRoot, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	defer os.RemoveAll(dir)

	for _, in := range spec.Inputs {
		if _, err := b.CAS.Stat(in.Digest); err != nil {
			return nil, DependencyNotFound.New("input %q (%s) not found in CAS", in.Role, in.Digest)
		}
		bytes, err := b.CAS.Get(in.Digest)
		if err != nil {
			return nil, DependencyNotFound.Wrap(err)
		}
		if err := os.WriteFile(filepath.Join(dir, in.Role), bytes, 0644); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	env := minimalEnv(dir)
	for k, v := range spec.Env {
		env[k] = v // spec env wins over the minimal deterministic base.
	}

	if err := b.Runner.RunBuild(dir, spec.Command, env); err != nil {
		return nil, BuildFailed.Wrap(err)
	}

	results := def.ResultGroup{}
	for _, out := range spec.Outputs {
		path := filepath.Join(dir, out.Name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, BuildFailed.New("declared output %q missing after build: %s", out.Name, err)
		}
		digest, err := b.CAS.Put(content, def.ObjectKind(out.Kind))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		results[out.Name] = def.Result{Name: out.Name, Digest: digest, Kind: out.Kind, Size: int64(len(content))}
	}
	return results, nil
}

/*
	validateReproducible is a real second pass, not just logged intent:
	it re-executes the build in a second, equally fresh directory and
	compares digest sets.
*/
func (b *Builder) validateReproducible(spec def.BuildSpec, first def.ResultGroup) error {
	second, err := b.execute(spec)
	if err != nil {
		return ValidationFailed.Wrap(err)
	}
	if len(second) != len(first) {
		return NonDeterministic.New("output count changed between runs of %q: %d vs %d", spec.Name, len(first), len(second))
	}
	for name, res := range first {
		other, ok := second[name]
		if !ok || other.Digest != res.Digest {
			return NonDeterministic.New("output %q diverged between runs of %q: %s vs %s", name, spec.Name, res.Digest, other.Digest)
		}
	}
	return nil
}
