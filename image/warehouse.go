package image

// LayerSource is one pulled layer's raw bytes and media type, ready for
// insertion into CAS.
type LayerSource struct {
	Bytes     []byte
	MediaType string
}

/*
	Warehouse is the pull-side capability image.Store draws layers and
	config from. A concrete Warehouse might read from a local directory
	of OCI layout, a tarball, or a remote registry's wire protocol.
*/
type Warehouse interface {
	// Pull fetches the config blob and ordered layer blobs for ref.
	// Returns NotFound if the warehouse has no such reference.
	Pull(ref Reference) (config []byte, layers []LayerSource, err error)
}
