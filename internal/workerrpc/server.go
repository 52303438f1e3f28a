package workerrpc

import (
	"context"

	"github.com/brane-run/brane/internal/worker"
)

// Server adapts a *worker.Worker to the WorkerServer grpc interface.
type Server struct {
	Worker *worker.Worker
}

func NewServer(w *worker.Worker) *Server {
	return &Server{Worker: w}
}

func (s *Server) Preprocess(ctx context.Context, req *PreprocessRequest) (*PreprocessReply, error) {
	access, err := s.Worker.Preprocess(req.DataName, worker.DataKind(req.Kind), worker.TransferPayload{
		Location: req.Location,
		Address:  req.Address,
	})
	if err != nil {
		return nil, err
	}
	return &PreprocessReply{Path: access.Path}, nil
}

func (s *Server) Execute(req *ExecuteRequest, stream ExecuteStream) error {
	updates := s.Worker.Execute(stream.Context(), worker.ExecuteRequest{
		Package:        req.Package,
		PackageVersion: req.PackageVersion,
		TaskName:       req.TaskName,
		Input:          req.Input,
		Result:         req.Result,
		Args:           req.Args,
	})
	for u := range updates {
		wire := &ExecuteUpdate{Status: int(u.Status), Value: u.Value}
		if u.Failed != nil {
			wire.Code = u.Failed.Code
			wire.Stdout = u.Failed.Stdout
			wire.Stderr = u.Failed.Stderr
		}
		if u.Err != nil {
			wire.ErrText = u.Err.Error()
		}
		if err := stream.Send(wire); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Commit(ctx context.Context, req *CommitRequest) (*CommitReply, error) {
	if err := s.Worker.Commit(worker.CommitRequest{
		ResultName:  req.ResultName,
		DatasetName: req.DatasetName,
	}); err != nil {
		return nil, err
	}
	return &CommitReply{}, nil
}
