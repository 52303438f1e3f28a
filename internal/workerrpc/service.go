package workerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// WorkerServer is implemented by anything that can back the three
// worker RPCs; Server (in server.go) is the production implementation
// wrapping a *worker.Worker.
type WorkerServer interface {
	Preprocess(context.Context, *PreprocessRequest) (*PreprocessReply, error)
	Execute(*ExecuteRequest, ExecuteStream) error
	Commit(context.Context, *CommitRequest) (*CommitReply, error)
}

// ExecuteStream is the server-streaming send side of Execute, matching
// the subset of grpc.ServerStream a generated stub would expose.
type ExecuteStream interface {
	Send(*ExecuteUpdate) error
	grpc.ServerStream
}

type executeServerStream struct {
	grpc.ServerStream
}

func (s *executeServerStream) Send(u *ExecuteUpdate) error {
	return s.ServerStream.SendMsg(u)
}

// ServiceDesc is the grpc.ServiceDesc wired by hand against WorkerServer,
// since no .proto-generated descriptor is available in this environment.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "brane.worker.Worker",
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Preprocess",
			Handler:    preprocessHandler,
		},
		{
			MethodName: "Commit",
			Handler:    commitHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Execute",
			Handler:       executeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "brane/worker.proto",
}

func preprocessHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PreprocessRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Preprocess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/brane.worker.Worker/Preprocess"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Preprocess(ctx, req.(*PreprocessRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func commitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Commit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/brane.worker.Worker/Commit"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Commit(ctx, req.(*CommitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executeHandler(srv any, stream grpc.ServerStream) error {
	in := new(ExecuteRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WorkerServer).Execute(in, &executeServerStream{ServerStream: stream})
}
