package fabric

import (
	"context"

	"go.etcd.io/etcd/raft/v3/raftpb"
	"google.golang.org/grpc"

	"github.com/polydawn/capsule/api/def"
)

/*
	fabric serves two unary RPCs over the same grpc.Server, both
	hand-registered with a grpc.ServiceDesc instead of generated from a
	.proto: Resolver.Query answers "what do you have registered under
	this name", and Raft.Step carries one committed-log participant's
	raft message to another. Both ride the same connection and codec a
	peerConn already dials, so a cluster running the election protocol
	doesn't need a second listener.
*/

type queryRequest struct {
	Name string `json:"name"`
}

type queryResponse struct {
	Endpoints []def.ServiceEndpoint `json:"endpoints"`
}

// ResolverServer answers a peer's query against this node's local
// registry; Registry itself satisfies it directly.
type ResolverServer interface {
	Query(ctx context.Context, name string) ([]def.ServiceEndpoint, error)
}

var resolverServiceDesc = grpc.ServiceDesc{
	ServiceName: "fabric.Resolver",
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: resolverQueryHandler},
	},
	Metadata: "fabric/resolver.rpc",
}

func resolverQueryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(queryRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req interface{}) (interface{}, error) {
		eps, err := srv.(ResolverServer).Query(ctx, req.(*queryRequest).Name)
		if err != nil {
			return nil, err
		}
		return &queryResponse{Endpoints: eps}, nil
	}
	if interceptor == nil {
		return handle(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fabric.Resolver/Query"}
	return interceptor(ctx, req, info, handle)
}

// RegisterResolverServer wires a ResolverServer into a grpc.Server --
// the handwritten equivalent of protoc-gen-go-grpc's generated
// RegisterResolverServer for this one method.
func RegisterResolverServer(s *grpc.Server, srv ResolverServer) {
	s.RegisterService(&resolverServiceDesc, srv)
}

// queryPeerRPC is the client half: an Invoke against the method name the
// server above registers, using the same JSON content-subtype codec on
// both ends.
func queryPeerRPC(ctx context.Context, conn *grpc.ClientConn, name string) ([]def.ServiceEndpoint, error) {
	resp := new(queryResponse)
	err := conn.Invoke(ctx, "/fabric.Resolver/Query", &queryRequest{Name: name}, resp, grpc.CallContentSubtype(rpcCodecName))
	if err != nil {
		return nil, err
	}
	return resp.Endpoints, nil
}

// RaftStepHandler is the inbound half of carrying raft messages between
// cluster nodes: cluster.Elector implements it directly (its Step method
// already feeds a message into the underlying raft.Node), so wiring the
// two together needs no import of cluster from fabric.
type RaftStepHandler interface {
	Step(ctx context.Context, msg raftpb.Message) error
}

type stepRequest struct {
	Message raftpb.Message `json:"message"`
}

type stepResponse struct{}

var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: "fabric.Raft",
	HandlerType: (*RaftStepHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Step", Handler: raftStepHandler},
	},
	Metadata: "fabric/raft.rpc",
}

func raftStepHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(stepRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req interface{}) (interface{}, error) {
		if err := srv.(RaftStepHandler).Step(ctx, req.(*stepRequest).Message); err != nil {
			return nil, err
		}
		return &stepResponse{}, nil
	}
	if interceptor == nil {
		return handle(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fabric.Raft/Step"}
	return interceptor(ctx, req, info, handle)
}

// RegisterRaftStepServer wires a RaftStepHandler into a grpc.Server.
func RegisterRaftStepServer(s *grpc.Server, srv RaftStepHandler) {
	s.RegisterService(&raftServiceDesc, srv)
}

// stepPeerRPC delivers msg to the raft node running on the peer at addr
// over conn, the outbound half of the Raft.Step RPC above.
func stepPeerRPC(ctx context.Context, conn *grpc.ClientConn, msg raftpb.Message) error {
	return conn.Invoke(ctx, "/fabric.Raft/Step", &stepRequest{Message: msg}, new(stepResponse), grpc.CallContentSubtype(rpcCodecName))
}
