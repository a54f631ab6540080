package policy

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("PolicyError")
var InvalidPolicy *errors.ErrorClass = Error.NewClass("PolicyInvalidPolicy")
