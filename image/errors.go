package image

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("ImageError")

var NotFound *errors.ErrorClass = Error.NewClass("ImageNotFound")
var InvalidFormat *errors.ErrorClass = Error.NewClass("ImageInvalidFormat")
var RegistryError *errors.ErrorClass = Error.NewClass("ImageRegistryError")
var NetworkError *errors.ErrorClass = Error.NewClass("ImageNetworkError")
