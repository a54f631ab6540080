package def

import (
	"bytes"
	"sort"

	"github.com/ugorji/go/codec"
)

// InputKind and OutputKind distinguish the handful of ways a build's
// inputs/outputs are materialized from/into CAS.
type InputKind string
type OutputKind string

const (
	InputLayer InputKind = "layer"
	InputBuild InputKind = "build"

	OutputLayer OutputKind = "layer"
	OutputBuild OutputKind = "build"
)

// BuildInput names one role-name -> digest binding consumed by a build.
type BuildInput struct {
	Role   string    `json:"role"`
	Digest Digest    `json:"digest"`
	Kind   InputKind `json:"kind"`
}

// BuildOutput declares one path a build is expected to produce, and how its
// captured bytes should be normalized before hashing (see FilterMode).
type BuildOutput struct {
	Name    string     `json:"name"`
	Kind    OutputKind `json:"kind"`
	Filters Filters    `json:"filters,omitempty"`
}

// FilterMode controls whether a BuildOutput attribute is normalized away
// (Use, with a fixed Value), left exactly as produced (Keep), or simply
// not yet configured (Uninitialized, which InitDefaults turns into Keep).
type FilterMode string

const (
	FilterUninitialized FilterMode = ""
	FilterKeep          FilterMode = "keep"
	FilterUse           FilterMode = "use"
)

// Filters declares how uid/gid/mtime of a captured build output are to be
// normalized. buildcache.Builder does not apply them: it hashes each
// output as the raw bytes of the produced file, which carry no ownership
// or timestamp.
type Filters struct {
	UidMode   FilterMode `json:"uidMode,omitempty"`
	Uid       int        `json:"uid,omitempty"`
	GidMode   FilterMode `json:"gidMode,omitempty"`
	Gid       int        `json:"gid,omitempty"`
	MtimeMode FilterMode `json:"mtimeMode,omitempty"`
}

// InitDefaults fills any FilterUninitialized field with FilterKeep --
// the safe default of touching nothing the build didn't ask to normalize.
func (f *Filters) InitDefaults() {
	if f.UidMode == FilterUninitialized {
		f.UidMode = FilterKeep
	}
	if f.GidMode == FilterUninitialized {
		f.GidMode = FilterKeep
	}
	if f.MtimeMode == FilterUninitialized {
		f.MtimeMode = FilterKeep
	}
}

/*
	BuildSpec describes `command(inputs) -> outputs` for the reproducible
	builder.  Its Fingerprint is a canonical hash covering
	everything needed to reproduce the computation; two specs with equal
	Fingerprints that are both Reproducible must converge on equal output
	digest sets.
*/
type BuildSpec struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Inputs       []BuildInput      `json:"inputs"`
	Outputs      []BuildOutput     `json:"outputs"`
	Command      []string          `json:"command"`
	Env          map[string]string `json:"env,omitempty"`
	TargetSystem string            `json:"targetSystem"`
	Reproducible bool              `json:"reproducible"`
}

// canonicalBuildSpec is the shape actually hashed: env and inputs sorted
// into deterministic order, nothing incidental (like warehouse hints)
// included.
type canonicalBuildSpec struct {
	Name         string
	Version      string
	Command      []string
	TargetSystem string
	InputDigests []string
	EnvKeys      []string
	EnvValues    []string
}

/*
	Fingerprint computes the build-cache key: a hash over name, version,
	command, target system, input digests (sorted by printable form), and
	env (sorted lexicographically by key).  Output content is deliberately
	excluded -- the fingerprint identifies the computation, not its result.
*/
func (s BuildSpec) Fingerprint() string {
	digests := make([]string, len(s.Inputs))
	for i, in := range s.Inputs {
		digests[i] = in.Digest.String()
	}
	sort.Strings(digests)

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = s.Env[k]
	}

	canon := canonicalBuildSpec{
		Name:         s.Name,
		Version:      s.Version,
		Command:      s.Command,
		TargetSystem: s.TargetSystem,
		InputDigests: digests,
		EnvKeys:      keys,
		EnvValues:    values,
	}

	var buf bytes.Buffer
	codec.NewEncoder(&buf, &codec.CborHandle{}).MustEncode(canon)
	return NewDigest(buf.Bytes()).String()
}
