package fabric

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("FabricError")

var ConnectionFailed *errors.ErrorClass = Error.NewClass("FabricConnectionFailed")
var UnknownService *errors.ErrorClass = Error.NewClass("FabricUnknownService")
var ResolutionFailed *errors.ErrorClass = Error.NewClass("FabricResolutionFailed")
var BackpressureExceeded *errors.ErrorClass = Error.NewClass("FabricBackpressureExceeded")
