package capsule

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("CapsuleError")

var NamespaceCreationFailed *errors.ErrorClass = Error.NewClass("CapsuleNamespaceCreationFailed")
var CgroupCreationFailed *errors.ErrorClass = Error.NewClass("CapsuleCgroupCreationFailed")
var MountFailed *errors.ErrorClass = Error.NewClass("CapsuleMountFailed")
var ExecFailed *errors.ErrorClass = Error.NewClass("CapsuleExecFailed")
var InvalidConfiguration *errors.ErrorClass = Error.NewClass("CapsuleInvalidConfiguration")

// PermissionDenied is returned, never silently swallowed, whenever a
// privileged operation (user namespace mapping, device passthrough,
// raising capabilities) can't be completed under rootless mode, so the
// orchestrator can back off instead of limping along half-isolated.
var PermissionDenied *errors.ErrorClass = Error.NewClass("CapsulePermissionDenied")
