package def

// LayerRef is one entry in an ImageManifest's ordered layer list.
type LayerRef struct {
	Digest    Digest `json:"digest"`
	Size      int64  `json:"size"`
	MediaType string `json:"mediaType"`
}

/*
	ImageManifest resolves a name:tag reference to the set of CAS digests
	that compose it.  The manifest is itself stored as a CAS object of
	kind KindManifest; an image is materialized iff its own digest and
	every digest it references resolve in CAS (see image.Store.Resolve).
*/
type ImageManifest struct {
	Name         string     `json:"name"`
	Tag          string     `json:"tag"`
	Digest       Digest     `json:"digest"`
	Layers       []LayerRef `json:"layers"`
	ConfigDigest Digest     `json:"configDigest"`
}

// DefaultTag is used when a reference omits a tag.
const DefaultTag = "latest"

// DefaultRegistry is assumed when a reference has no registry prefix.
const DefaultRegistry = "registry.local"
