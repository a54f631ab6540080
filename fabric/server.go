package fabric

import (
	"net"

	"github.com/inconshreveable/log15"
	"google.golang.org/grpc"
)

// Server is the listening half of the fabric: the grpc.Server every peer's
// Transport dials into, exposing this node's resolver and (when a raft
// step handler is given) its election participant to the rest of the
// cluster.
type Server struct {
	grpcServer *grpc.Server
	log        log15.Logger
}

// NewServer builds a Server exposing resolver against incoming
// Resolver.Query calls, and -- when raftHandler is non-nil -- raftHandler
// against incoming Raft.Step calls.
func NewServer(resolver ResolverServer, raftHandler RaftStepHandler) *Server {
	gs := grpc.NewServer()
	RegisterResolverServer(gs, resolver)
	if raftHandler != nil {
		RegisterRaftStepServer(gs, raftHandler)
	}
	return &Server{grpcServer: gs, log: log15.New("module", "fabric.server")}
}

// ListenAndServe binds addr and serves until Stop is called or the
// listener errors; it's meant to be run in its own goroutine from the
// caller that owns process lifecycle.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return ConnectionFailed.Wrap(err)
	}
	s.log.Info("fabric server listening", "addr", addr)
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() { s.grpcServer.GracefulStop() }
