package def_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/capsule/api/def"
)

func TestBuildSpecFingerprint(t *testing.T) {
	Convey("Given two build specs with the same logical content", t, func() {
		a := def.BuildSpec{
			Name:    "widget",
			Version: "1",
			Inputs: []def.BuildInput{
				{Role: "b", Digest: mustDigest("b"), Kind: def.InputLayer},
				{Role: "a", Digest: mustDigest("a"), Kind: def.InputLayer},
			},
			Command: []string{"cp", "A", "B", "out"},
			Env:     map[string]string{"Z": "1", "A": "2"},
		}
		b := a
		b.Env = map[string]string{"A": "2", "Z": "1"} // reordered map literal
		b.Inputs = []def.BuildInput{a.Inputs[1], a.Inputs[0]} // reordered slice

		Convey("Their fingerprints are equal regardless of input/env order", func() {
			So(a.Fingerprint(), ShouldEqual, b.Fingerprint())
		})

		Convey("Changing the command changes the fingerprint", func() {
			c := a
			c.Command = []string{"rm", "-rf", "/"}
			So(a.Fingerprint(), ShouldNotEqual, c.Fingerprint())
		})

		Convey("Declared outputs never affect the fingerprint", func() {
			c := a
			c.Outputs = []def.BuildOutput{{Name: "out", Kind: def.OutputLayer}}
			So(a.Fingerprint(), ShouldEqual, c.Fingerprint())
		})
	})
}

func TestDigestRoundTrip(t *testing.T) {
	Convey("Given a digest computed from bytes", t, func() {
		d := def.NewDigest([]byte("hello"))

		Convey("It prints as algo:hex and reparses to the same value", func() {
			parsed, err := def.ParseDigest(d.String())
			So(err, ShouldBeNil)
			So(parsed, ShouldResemble, d)
		})

		Convey("Its shard path splits the first two hex chars", func() {
			prefix, rest := d.ShardPath()
			So(len(prefix), ShouldEqual, 2)
			So(prefix+rest, ShouldEqual, d.Hex)
		})
	})
}

func mustDigest(s string) def.Digest { return def.NewDigest([]byte(s)) }
