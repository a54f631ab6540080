package capsule

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// newID mints a random, URL-safe capsule id with 80 bits of randomness,
// so collisions within one cluster's lifetime are not worth worrying about.
func newID() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		panic(Error.Wrap(err)) // crypto/rand failing is an environment invariant violation, not operational.
	}
	id := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
	return id
}
