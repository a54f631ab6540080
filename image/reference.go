package image

import (
	"strings"

	"github.com/polydawn/capsule/api/def"
)

// Reference is a parsed `[registry/]name[:tag]` image reference.
type Reference struct {
	Registry string
	Name     string
	Tag      string
}

func (r Reference) String() string { return r.Registry + "/" + r.Name + ":" + r.Tag }

/*
	ParseReference parses a reference of the form `[registry/]name[:tag]`.
	The tag defaults to "latest"; the registry defaults to
	def.DefaultRegistry when omitted and the name has no dot-separated
	host-looking prefix.
*/
func ParseReference(ref string) Reference {
	registry := def.DefaultRegistry
	rest := ref

	if idx := strings.Index(ref, "/"); idx >= 0 {
		candidate := ref[:idx]
		if strings.Contains(candidate, ".") {
			registry = candidate
			rest = ref[idx+1:]
		}
	}

	name, tag := rest, def.DefaultTag
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		name, tag = rest[:idx], rest[idx+1:]
	}

	return Reference{Registry: registry, Name: name, Tag: tag}
}
