// Package plugin defines the task-execution backend contract the VM's
// Node edges invoke, and an in-process "local" implementation used by
// tests and single-process deployments. Out-of-process backends
// implement the same interface behind a hashicorp/go-plugin RPC
// boundary (see plugin/rpc.go).
package plugin

import (
	"context"

	"github.com/brane-run/brane/internal/ir"
)

// AccessKind mirrors ir.AccessKind at the plugin boundary.
type AccessKind = ir.AccessKind

// TaskInfo bundles everything a plugin needs to run one task
// invocation.
type TaskInfo struct {
	TaskID       string
	Name         string
	Package      string
	Version      string
	Requirements []string
	Args         map[string]ir.FullValue
	Location     *string
	Input        map[string]AccessKind
	Result       string // "" if the task has no bound result name
}

// Backend is the task-execution contract a Node edge invokes. Global is
// backend-wide state (e.g. a Docker client); Local is per-thread state
// a backend may use to correlate preprocess/execute/commit calls within
// one task invocation.
type Backend interface {
	// Preprocess begins making an unavailable dataset available
	// locally, returning once transfer has started; the VM awaits the
	// returned channel before Execute.
	Preprocess(ctx context.Context, global, local any, dataName string, spec ir.TransferSpec) (<-chan PreprocessResult, error)

	// Execute runs the task itself, returning its value (nil if the
	// task declared no return type) or an error.
	Execute(ctx context.Context, global, local any, info TaskInfo) (*ir.FullValue, error)

	// Publicize announces a freshly produced IntermediateResult so
	// other nodes can later request it via Preprocess/TransferSpec.
	Publicize(ctx context.Context, global, local any, name string) error

	// Stdout writes one line to the task's stdout stream; the print and
	// println builtins dispatch here instead of through Execute.
	Stdout(ctx context.Context, global, local any, line string) error

	// Commit publishes value under name as a committed dataset; the
	// commit_result builtin dispatches here.
	Commit(ctx context.Context, global, local any, name string, value ir.FullValue) error
}

// PreprocessResult is delivered on the channel Preprocess returns once
// the transfer completes.
type PreprocessResult struct {
	Access AccessKind
	Err    error
}
