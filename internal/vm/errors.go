package vm

import "fmt"

// ErrorKind enumerates the VM's fixed error taxonomy. Every VM error is
// fatal to the workflow: it terminates the thread and bubbles up as the
// workflow's result, carrying the edge (and instruction, where
// applicable) that triggered it so an operator can correlate back to
// the IR.
type ErrorKind int

const (
	EmptyStackError ErrorKind = iota
	StackTypeError
	StackLhsRhsTypeError
	CastError
	ArrIdxOutOfBoundsError
	ArrayTypeError
	InstanceTypeError
	VarGetError
	VarSetError
	FunctionTypeError
	ReturnTypeError
	IllegalBranchType
	BranchTypeError
	UnresolvedLocation
	UnknownInput
	UnplannedInput
	UnknownResult
	FrameStackPushError
	FrameStackPopError
	SpawnError
	Custom
)

func (k ErrorKind) String() string {
	names := [...]string{
		"EmptyStackError", "StackTypeError", "StackLhsRhsTypeError", "CastError",
		"ArrIdxOutOfBoundsError", "ArrayTypeError", "InstanceTypeError", "VarGetError",
		"VarSetError", "FunctionTypeError", "ReturnTypeError", "IllegalBranchType",
		"BranchTypeError", "UnresolvedLocation", "UnknownInput", "UnplannedInput",
		"UnknownResult", "FrameStackPushError", "FrameStackPopError", "SpawnError", "Custom",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "UnknownError"
}

// Error is the VM's fatal-error type. EdgeIdx and InstrIdx are -1 when
// not applicable.
type Error struct {
	Kind    ErrorKind
	EdgeIdx int
	InstrIdx int
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.InstrIdx >= 0 {
		return fmt.Sprintf("%s at edge %d instr %d: %s", e.Kind, e.EdgeIdx, e.InstrIdx, e.Message)
	}
	return fmt.Sprintf("%s at edge %d: %s", e.Kind, e.EdgeIdx, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func newErr(kind ErrorKind, edge int, instr int, format string, args ...any) *Error {
	return &Error{Kind: kind, EdgeIdx: edge, InstrIdx: instr, Message: fmt.Sprintf(format, args...)}
}

// WrapPluginError produces the VM's uniform wrapping of a plugin-raised
// error (the Custom{err} taxonomy entry).
func WrapPluginError(edge int, err error) *Error {
	return &Error{Kind: Custom, EdgeIdx: edge, InstrIdx: -1, Message: err.Error(), Wrapped: err}
}
