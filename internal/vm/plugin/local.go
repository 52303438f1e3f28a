package plugin

import (
	"context"
	"fmt"

	"github.com/brane-run/brane/internal/ir"
)

// TaskFunc is a user-registered implementation of one task name, used
// by Local for tests and single-process deployments that don't need a
// real out-of-process worker.
type TaskFunc func(ctx context.Context, info TaskInfo) (*ir.FullValue, error)

// CommittedResult records one commit_result call, kept for tests and
// single-process callers that want to inspect what a workflow
// committed without a real worker behind Local.
type CommittedResult struct {
	Name  string
	Value ir.FullValue
}

// Local is an in-process Backend: tasks are Go functions registered by
// name, preprocess is a no-op (every dataset is already local), and
// publicize only records that a name was announced.
type Local struct {
	Tasks     map[string]TaskFunc
	published map[string]bool

	// StdoutLines collects every line written via the print/println
	// builtins, in call order.
	StdoutLines []string
	// Committed collects every commit_result call, in call order.
	Committed []CommittedResult
}

func NewLocal() *Local {
	return &Local{Tasks: map[string]TaskFunc{}, published: map[string]bool{}}
}

func (l *Local) Preprocess(ctx context.Context, global, local any, dataName string, spec ir.TransferSpec) (<-chan PreprocessResult, error) {
	ch := make(chan PreprocessResult, 1)
	ch <- PreprocessResult{Access: AccessKind{Path: "/data/" + dataName}}
	close(ch)
	return ch, nil
}

func (l *Local) Execute(ctx context.Context, global, local any, info TaskInfo) (*ir.FullValue, error) {
	fn, ok := l.Tasks[info.Name]
	if !ok {
		return nil, fmt.Errorf("plugin: no local task registered for %q", info.Name)
	}
	return fn(ctx, info)
}

func (l *Local) Publicize(ctx context.Context, global, local any, name string) error {
	l.published[name] = true
	return nil
}

func (l *Local) Stdout(ctx context.Context, global, local any, line string) error {
	l.StdoutLines = append(l.StdoutLines, line)
	return nil
}

func (l *Local) Commit(ctx context.Context, global, local any, name string, value ir.FullValue) error {
	l.Committed = append(l.Committed, CommittedResult{Name: name, Value: value})
	return nil
}
