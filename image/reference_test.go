package image_test

import (
	"testing"

	"github.com/polydawn/capsule/image"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		in   string
		want image.Reference
	}{
		{"nginx", image.Reference{Registry: "registry.local", Name: "nginx", Tag: "latest"}},
		{"nginx:1.25", image.Reference{Registry: "registry.local", Name: "nginx", Tag: "1.25"}},
		{"example.com/team/app:v2", image.Reference{Registry: "example.com", Name: "team/app", Tag: "v2"}},
		{"library/nginx:latest", image.Reference{Registry: "registry.local", Name: "library/nginx", Tag: "latest"}},
	}
	for _, c := range cases {
		got := image.ParseReference(c.in)
		if got != c.want {
			t.Errorf("ParseReference(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}
