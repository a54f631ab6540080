package snapshot

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("SnapshotError")

var CaptureFailed *errors.ErrorClass = Error.NewClass("SnapshotCaptureFailed")
var RestoreFailed *errors.ErrorClass = Error.NewClass("SnapshotRestoreFailed")
var VerifyFailed *errors.ErrorClass = Error.NewClass("SnapshotVerifyFailed")
var NotFound *errors.ErrorClass = Error.NewClass("SnapshotNotFound")
