package buildcache

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("BuildError")

var InvalidBuildSpec *errors.ErrorClass = Error.NewClass("BuildInvalidSpec")
var DependencyNotFound *errors.ErrorClass = Error.NewClass("BuildDependencyNotFound")
var BuildFailed *errors.ErrorClass = Error.NewClass("BuildFailed")
var CacheMiss *errors.ErrorClass = Error.NewClass("BuildCacheMiss")
var ValidationFailed *errors.ErrorClass = Error.NewClass("BuildValidationFailed")
var NonDeterministic *errors.ErrorClass = Error.NewClass("BuildNonDeterministic")
