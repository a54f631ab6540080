package quota

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("QuotaError")

var NotFound *errors.ErrorClass = Error.NewClass("QuotaNotFound")
var Exceeded *errors.ErrorClass = Error.NewClass("QuotaExceeded")
var InvalidRequest *errors.ErrorClass = Error.NewClass("QuotaInvalidRequest")
