package workerrpc

import "github.com/brane-run/brane/internal/ir"

// PreprocessRequest/Reply mirror worker.Worker.Preprocess.
type PreprocessRequest struct {
	DataName string
	Kind     int // worker.DataKind
	Location string
	Address  string
}

type PreprocessReply struct {
	Path string
}

// ExecuteRequest mirrors worker.ExecuteRequest; Args/Input travel as
// their already-JSON-friendly wire projections.
type ExecuteRequest struct {
	Package        string
	PackageVersion string
	TaskName       string
	Input          map[string]ir.AccessKind
	Result         string
	Args           map[string]ir.FullValue
}

// ExecuteUpdate mirrors worker.StatusUpdate for the wire: Err is
// flattened to a string since error isn't itself serializable.
type ExecuteUpdate struct {
	Status  int
	Value   *ir.FullValue
	Code    int64
	Stdout  string
	Stderr  string
	ErrText string
}

// CommitRequest mirrors worker.CommitRequest.
type CommitRequest struct {
	ResultName  string
	DatasetName string
}

type CommitReply struct{}
