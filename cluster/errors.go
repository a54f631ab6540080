package cluster

import "github.com/spacemonkeygo/errors"

var Error *errors.ErrorClass = errors.NewClass("ClusterError")

var NoCapacity *errors.ErrorClass = Error.NewClass("ClusterNoCapacity")
var UnknownNode *errors.ErrorClass = Error.NewClass("ClusterUnknownNode")
var NotLeader *errors.ErrorClass = Error.NewClass("ClusterNotLeader")
