/*
Package cas implements the content-addressed store: durable,
deduplicated blob storage keyed by cryptographic digest, laid out as a
two-level hex-sharded directory tree with write-then-rename atomicity.

The index of known digests (their size, kind, and metadata) lives in an
embedded badger database alongside the object tree, grounded on the
same embedded-KV pattern used for local state elsewhere in the corpus;
the blob bytes themselves are always plain files, never stuffed into
the KV store, so a `get` can stream straight off disk.
*/
package cas

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
)

// Store is a single CAS rooted at a directory. It is safe for concurrent
// use: readers never block on each other, and writes to the same digest
// are serialized by a per-digest lock while writes to different digests
// proceed independently.
type Store struct {
	root string
	db   *badger.DB
	log  log15.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	pathCache sync.Map // absolute path (string) -> def.Digest, put_path memoization
}

// Open creates (if absent) the object/tmp directory layout under root and
// opens its digest index.
func Open(root string) (*Store, error) {
	for _, sub := range []string{"objects", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, StorageError.Wrap(err)
		}
	}
	opts := badger.DefaultOptions(filepath.Join(root, "index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, StorageError.Wrap(err)
	}
	return &Store{
		root:  root,
		db:    db,
		log:   log15.New("component", "cas", "root", root),
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) lockFor(digest string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[digest]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[digest] = mu
	}
	return mu
}

func (s *Store) objectPath(d def.Digest) string {
	prefix, rest := d.ShardPath()
	return filepath.Join(s.root, "objects", prefix, rest)
}

func (s *Store) tmpPath(d def.Digest) string {
	return filepath.Join(s.root, "tmp", d.Hex)
}

/*
Put computes the digest of b, and if absent, persists it atomically
(write to a temp path, then rename into its shard) and indexes its
metadata.  Idempotent: a repeated Put of equal bytes returns the same
digest without rewriting.
*/
func (s *Store) Put(b []byte, kind def.ObjectKind) (def.Digest, error) {
	if kind == "" {
		return def.Digest{}, InvalidContent.New("kind must not be empty")
	}
	digest := def.NewDigest(b)
	mu := s.lockFor(digest.String())
	mu.Lock()
	defer mu.Unlock()

	if obj, err := s.lookup(digest); err == nil {
		_ = obj
		return digest, nil // already present: idempotent no-op.
	}

	dest := s.objectPath(digest)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return def.Digest{}, StorageError.Wrap(err)
	}
	tmp := s.tmpPath(digest)
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return def.Digest{}, StorageError.Wrap(err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return def.Digest{}, StorageError.Wrap(err)
	}

	obj := def.Object{Digest: digest, Size: int64(len(b)), Kind: kind}
	if err := s.index(obj); err != nil {
		return def.Digest{}, err
	}
	s.log.Debug("put", "digest", digest.String(), "size", len(b), "kind", kind)
	return digest, nil
}

/*
PutPath hashes and stores the file at path, exactly like Put, but
memoizes the absolute path -> digest mapping for the Store's lifetime:
a repeated PutPath of the same path (e.g. during a build re-run)
returns the remembered digest without re-reading the file. The memo is
never invalidated, so a file changed on disk after its first PutPath
is not re-hashed.
*/
func (s *Store) PutPath(path string, kind def.ObjectKind) (def.Digest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return def.Digest{}, InvalidContent.Wrap(err)
	}
	if cached, ok := s.pathCache.Load(abs); ok {
		return cached.(def.Digest), nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return def.Digest{}, InvalidContent.Wrap(err)
	}
	defer f.Close()

	tmpName := filepath.Join(s.root, "tmp", uuid.NewString())
	tmpFile, err := os.Create(tmpName)
	if err != nil {
		return def.Digest{}, StorageError.Wrap(err)
	}
	hasher := def.NewDigest
	var buf bytes.Buffer
	n, err := io.Copy(io.MultiWriter(tmpFile, &buf), f)
	tmpFile.Close()
	if err != nil {
		os.Remove(tmpName)
		return def.Digest{}, StorageError.Wrap(err)
	}

	digest := hasher(buf.Bytes())
	dest := s.objectPath(digest)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		os.Remove(tmpName)
		return def.Digest{}, StorageError.Wrap(err)
	}

	mu := s.lockFor(digest.String())
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.lookup(digest); err == nil {
		os.Remove(tmpName)
		s.pathCache.Store(abs, digest)
		return digest, nil
	}

	final := s.tmpPath(digest)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return def.Digest{}, StorageError.Wrap(err)
	}
	if err := os.Rename(final, dest); err != nil {
		os.Remove(final)
		return def.Digest{}, StorageError.Wrap(err)
	}
	if err := s.index(def.Object{Digest: digest, Size: n, Kind: kind}); err != nil {
		return def.Digest{}, err
	}
	s.pathCache.Store(abs, digest)
	return digest, nil
}

// Get reads the bytes stored under digest, re-hashing on read. A
// HashMismatch quarantines (deletes) the offending object so a subsequent
// fetch from elsewhere starts clean.
func (s *Store) Get(digest def.Digest) ([]byte, error) {
	if _, err := s.lookup(digest); err != nil {
		return nil, NotFound.Wrap(err)
	}
	b, err := os.ReadFile(s.objectPath(digest))
	if os.IsNotExist(err) {
		return nil, NotFound.New("digest %s indexed but object missing from disk", digest)
	}
	if err != nil {
		return nil, StorageError.Wrap(err)
	}
	actual := def.NewDigest(b)
	if actual != digest {
		s.quarantine(digest)
		return nil, HashMismatch.New("object stored under %s actually hashes to %s", digest, actual)
	}
	return b, nil
}

// Stat returns the indexed metadata for digest without reading its bytes.
func (s *Store) Stat(digest def.Digest) (def.Object, error) { return s.lookup(digest) }

func (s *Store) quarantine(digest def.Digest) {
	os.Remove(s.objectPath(digest))
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(digest.String()))
	})
	s.log.Warn("quarantined corrupt object", "digest", digest.String())
}

func (s *Store) index(obj def.Object) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return InvalidContent.Wrap(err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(obj.Digest.String()), b)
	})
	if err != nil {
		return StorageError.Wrap(err)
	}
	return nil
}

func (s *Store) lookup(digest def.Digest) (def.Object, error) {
	var obj def.Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(digest.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &obj)
		})
	})
	if err != nil {
		return def.Object{}, NotFound.Wrap(err)
	}
	return obj, nil
}

/*
GC is best-effort garbage collection: it marks every digest reachable
from roots (image manifests, snapshots, build outputs) and sweeps
every indexed object that wasn't marked. Marking expands transitively
through anything cas itself understands the shape of -- a
KindManifest root pulls in its layers and config digest too -- so a
caller passing just an image manifest's digest doesn't have to
separately enumerate the layers underneath it. Roots whose internal
structure cas has no notion of (a buildcache output-group digest,
say) are marked as given; expanding those is the owning package's
job, done before the digest ever reaches GC.
*/
func (s *Store) GC(roots []def.Digest) (swept int, err error) {
	marked := make(map[string]struct{}, len(roots))
	pending := make([]def.Digest, 0, len(roots))
	for _, r := range roots {
		marked[r.String()] = struct{}{}
		pending = append(pending, r)
	}

	for len(pending) > 0 {
		d := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		obj, serr := s.lookup(d)
		if serr != nil || obj.Kind != def.KindManifest {
			continue
		}
		blob, gerr := s.Get(d)
		if gerr != nil {
			continue
		}
		var manifest def.ImageManifest
		if err := json.Unmarshal(blob, &manifest); err != nil {
			continue
		}
		for _, ref := range manifest.Layers {
			if _, ok := marked[ref.Digest.String()]; !ok {
				marked[ref.Digest.String()] = struct{}{}
				pending = append(pending, ref.Digest)
			}
		}
		if cd := manifest.ConfigDigest; cd.String() != "" {
			if _, ok := marked[cd.String()]; !ok {
				marked[cd.String()] = struct{}{}
				pending = append(pending, cd)
			}
		}
	}

	var toDelete []string
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			if _, ok := marked[key]; !ok {
				toDelete = append(toDelete, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, StorageError.Wrap(err)
	}

	for _, key := range toDelete {
		digest, perr := def.ParseDigest(key)
		if perr != nil {
			continue // shouldn't happen; index keys are always our own digests.
		}
		os.Remove(s.objectPath(digest))
		_ = s.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) })
		swept++
	}
	s.log.Info("gc complete", "swept", swept, "kept", len(marked))
	return swept, nil
}
