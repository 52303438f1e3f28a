package workerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is the control-plane-side stub for the worker RPC service.
type Client struct {
	cc *grpc.ClientConn
}

func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) Preprocess(ctx context.Context, req *PreprocessRequest, opts ...grpc.CallOption) (*PreprocessReply, error) {
	out := new(PreprocessReply)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/brane.worker.Worker/Preprocess", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Commit(ctx context.Context, req *CommitRequest, opts ...grpc.CallOption) (*CommitReply, error) {
	out := new(CommitReply)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/brane.worker.Worker/Commit", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteClientStream is the receive side of a streaming Execute call.
type ExecuteClientStream interface {
	Recv() (*ExecuteUpdate, error)
	grpc.ClientStream
}

type executeClientStream struct {
	grpc.ClientStream
}

func (s *executeClientStream) Recv() (*ExecuteUpdate, error) {
	m := new(ExecuteUpdate)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) Execute(ctx context.Context, req *ExecuteRequest, opts ...grpc.CallOption) (ExecuteClientStream, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/brane.worker.Worker/Execute", opts...)
	if err != nil {
		return nil, err
	}
	cs := &executeClientStream{ClientStream: stream}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}
