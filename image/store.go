package image

import (
	"encoding/json"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cas"
)

// Store resolves image references to manifests composed of CAS digests
//, caching the reference -> manifest-digest mapping so a
// repeated Resolve of the same tag is a pure CAS lookup.
type Store struct {
	cas       *cas.Store
	warehouse Warehouse
	db        *badger.DB
	log       log15.Logger
}

func NewStore(c *cas.Store, wh Warehouse, indexRoot string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Join(indexRoot, "imageindex")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{cas: c, warehouse: wh, db: db, log: log15.New("component", "image")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

/*
	Resolve parses ref, and either returns the cached manifest (a hit) or
	pulls layers and config into CAS, writes a manifest referencing them,
	indexes it, and returns it (a miss).  An image is materialized iff its
	manifest digest exists and every digest it references resolves in CAS
	-- IsMaterialized re-verifies that on demand.
*/
func (s *Store) Resolve(refStr string) (def.ImageManifest, error) {
	ref := ParseReference(refStr)

	if cached, ok, err := s.lookupManifestDigest(ref); err != nil {
		return def.ImageManifest{}, err
	} else if ok {
		blob, err := s.cas.Get(cached)
		if err != nil {
			return def.ImageManifest{}, NotFound.Wrap(err)
		}
		var manifest def.ImageManifest
		if err := json.Unmarshal(blob, &manifest); err != nil {
			return def.ImageManifest{}, InvalidFormat.Wrap(err)
		}
		return manifest, nil
	}

	if s.warehouse == nil {
		return def.ImageManifest{}, NotFound.New("image %q not cached and no warehouse configured", ref)
	}
	config, layers, err := s.warehouse.Pull(ref)
	if err != nil {
		return def.ImageManifest{}, NetworkError.Wrap(err)
	}

	configDigest, err := s.cas.Put(config, def.KindConfig)
	if err != nil {
		return def.ImageManifest{}, Error.Wrap(err)
	}
	layerRefs := make([]def.LayerRef, len(layers))
	for i, l := range layers {
		d, err := s.cas.Put(l.Bytes, def.KindLayer)
		if err != nil {
			return def.ImageManifest{}, Error.Wrap(err)
		}
		layerRefs[i] = def.LayerRef{Digest: d, Size: int64(len(l.Bytes)), MediaType: l.MediaType}
	}

	manifest := def.ImageManifest{
		Name: ref.Name, Tag: ref.Tag, Layers: layerRefs, ConfigDigest: configDigest,
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return def.ImageManifest{}, Error.Wrap(err)
	}
	manifestDigest, err := s.cas.Put(manifestBytes, def.KindManifest)
	if err != nil {
		return def.ImageManifest{}, Error.Wrap(err)
	}
	manifest.Digest = manifestDigest

	// Re-serialize and re-store now that Digest is set, so the stored
	// manifest is self-describing.
	manifestBytes, _ = json.Marshal(manifest)
	manifestDigest, err = s.cas.Put(manifestBytes, def.KindManifest)
	if err != nil {
		return def.ImageManifest{}, Error.Wrap(err)
	}
	manifest.Digest = manifestDigest

	if err := s.indexManifestDigest(ref, manifestDigest); err != nil {
		return def.ImageManifest{}, err
	}
	s.log.Info("pulled image", "ref", ref.String(), "layers", len(layerRefs))
	return manifest, nil
}

// IsMaterialized reports whether every digest referenced by manifest
// actually resolves in CAS right now.
func (s *Store) IsMaterialized(manifest def.ImageManifest) bool {
	if _, err := s.cas.Stat(manifest.Digest); err != nil {
		return false
	}
	if _, err := s.cas.Stat(manifest.ConfigDigest); err != nil {
		return false
	}
	for _, l := range manifest.Layers {
		if _, err := s.cas.Stat(l.Digest); err != nil {
			return false
		}
	}
	return true
}

func (s *Store) lookupManifestDigest(ref Reference) (def.Digest, bool, error) {
	var digest def.Digest
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ref.String()))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			parsed, perr := def.ParseDigest(string(val))
			digest = parsed
			return perr
		})
	})
	if err != nil {
		return def.Digest{}, false, Error.Wrap(err)
	}
	return digest, found, nil
}

func (s *Store) indexManifestDigest(ref Reference, digest def.Digest) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(ref.String()), []byte(digest.String()))
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}
