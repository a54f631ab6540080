package buildcache

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Entry is one build-cache row: an input fingerprint mapped to the CAS
// digest of the output manifest it produced.
type Entry struct {
	InputFingerprint string    `json:"inputFingerprint"`
	OutputDigest     string    `json:"outputDigest"`
	TakenAt          time.Time `json:"takenAt"`
	BuildMS          int64     `json:"buildMs"`
	Success          bool      `json:"success"`
}

// entryStore persists Entry rows keyed by fingerprint in an embedded KV
// store, mirroring the CAS index's badger usage.
type entryStore struct {
	db *badger.DB
}

func openEntryStore(root string) (*entryStore, error) {
	opts := badger.DefaultOptions(filepath.Join(root, "buildcache")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &entryStore{db: db}, nil
}

func (s *entryStore) Close() error { return s.db.Close() }

// Lookup returns the cached entry for fingerprint, if any successful one
// exists.
func (s *entryStore) Lookup(fingerprint string) (Entry, bool, error) {
	var e Entry
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fingerprint))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &e) })
	})
	if err != nil {
		return Entry{}, false, Error.Wrap(err)
	}
	return e, found && e.Success, nil
}

/*
	Put is idempotent: a repeated insert under the same fingerprint
	overwrites the existing row only if the new entry is itself
	successful, so a failed re-run can never clobber a previously-good
	cache hit.
*/
func (s *entryStore) Put(e Entry) error {
	if !e.Success {
		if existing, ok, _ := s.Lookup(e.InputFingerprint); ok {
			_ = existing
			return nil
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return Error.Wrap(err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(e.InputFingerprint), b)
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}
