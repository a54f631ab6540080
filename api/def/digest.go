package def

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm names a hash function used to produce a Digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
)

/*
	Digest is a printable, totally-ordered cryptographic content identifier:
	`<algo>:<hex>`.  It is the sole handle by which CAS objects, image
	layers, manifests, and snapshot blobs are addressed.
*/
type Digest struct {
	Algo Algorithm
	Hex  string
}

// NewDigest hashes b with SHA-256 and returns its printable Digest.
func NewDigest(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest{Algo: SHA256, Hex: hex.EncodeToString(sum[:])}
}

func (d Digest) String() string {
	if d.Algo == "" && d.Hex == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", d.Algo, d.Hex)
}

func (d Digest) IsZero() bool { return d.Algo == "" && d.Hex == "" }

// Less gives Digest a total order by printable byte value.
func (d Digest) Less(o Digest) bool { return d.String() < o.String() }

// ShardPath returns the two-level directory shard path fragment used to
// lay the object out on disk, e.g. "ab/cdef0011...".
func (d Digest) ShardPath() (string, string) {
	if len(d.Hex) < 2 {
		return d.Hex, ""
	}
	return d.Hex[:2], d.Hex[2:]
}

// ParseDigest parses the printable form `algo:hex` produced by String.
func ParseDigest(s string) (Digest, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Digest{}, fmt.Errorf("invalid digest %q: missing algorithm prefix", s)
	}
	algo := Algorithm(parts[0])
	hexPart := parts[1]
	switch algo {
	case SHA256:
		if len(hexPart) != 64 {
			return Digest{}, fmt.Errorf("invalid digest %q: sha256 requires 64 hex chars", s)
		}
	default:
		return Digest{}, fmt.Errorf("invalid digest %q: unknown algorithm %q", s, algo)
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return Digest{}, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return Digest{Algo: algo, Hex: hexPart}, nil
}

// MarshalText and UnmarshalText let Digest round-trip through YAML/JSON/CBOR
// as its printable form rather than as a struct.
func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Digest{}
		return nil
	}
	parsed, err := ParseDigest(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
