package surge

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("SurgeError")

var InvalidProject *errors.ErrorClass = Error.NewClass("SurgeInvalidProject")
var DependencyCycle *errors.ErrorClass = Error.NewClass("SurgeDependencyCycle")
var ServiceStartFailed *errors.ErrorClass = Error.NewClass("SurgeServiceStartFailed")
var NodeUnavailable *errors.ErrorClass = Error.NewClass("SurgeNodeUnavailable")
