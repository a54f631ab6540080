package cas

import "github.com/spacemonkeygo/errors"

// grouping, do not instantiate
var Error *errors.ErrorClass = errors.NewClass("CASError")

// NotFound is raised when a digest is requested that the store has no
// record of.
var NotFound *errors.ErrorClass = Error.NewClass("CASNotFound")

// HashMismatch is raised when a Get re-hashes an object's bytes on read
// and finds they no longer match the digest they're stored under.  The
// caller is expected to quarantine (delete) the offending object and
// re-fetch if a source is available.
var HashMismatch *errors.ErrorClass = Error.NewClass("CASHashMismatch")

// InvalidContent is raised when the caller asks the store to do
// something that cannot correspond to any real object, e.g. put(kind=""),
// or put_path of a path that doesn't exist.
var InvalidContent *errors.ErrorClass = Error.NewClass("CASInvalidContent")

// StorageError wraps filesystem I/O failures (permissions, out-of-disk,
// an unreadable shard directory) that aren't about the content itself.
var StorageError *errors.ErrorClass = Error.NewClass("CASStorageError")
