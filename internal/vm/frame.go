package vm

import (
	"github.com/mitchellh/copystructure"

	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/types"
)

// Frame is pushed on Call and popped on Return: it remembers where to
// resume, a slot for the function's declared return type (Thread.Run
// leaves it unset and does not check it on Return), and the
// function's local variable bindings.
type Frame struct {
	ReturnBody   string
	ReturnOffset ir.EdgeIdx
	ReturnType   types.DataType
	Vars         map[int]ir.Value
}

// FrameStack is a thread's call stack plus its currently-visible local
// variable register (the top frame's Vars).
type FrameStack struct {
	frames []Frame
}

func NewFrameStack() *FrameStack {
	return &FrameStack{frames: []Frame{{Vars: map[int]ir.Value{}}}}
}

func (fs *FrameStack) Push(f Frame, edge int) *Error {
	if f.Vars == nil {
		f.Vars = map[int]ir.Value{}
	}
	fs.frames = append(fs.frames, f)
	return nil
}

func (fs *FrameStack) Pop(edge int) (Frame, *Error) {
	if len(fs.frames) <= 1 {
		return Frame{}, newErr(FrameStackPopError, edge, -1, "cannot pop the outermost frame")
	}
	f := fs.frames[len(fs.frames)-1]
	fs.frames = fs.frames[:len(fs.frames)-1]
	return f, nil
}

func (fs *FrameStack) Top() *Frame {
	return &fs.frames[len(fs.frames)-1]
}

func (fs *FrameStack) VarGet(def int, edge int) (ir.Value, *Error) {
	v, ok := fs.Top().Vars[def]
	if !ok {
		return ir.Value{}, newErr(VarGetError, edge, -1, "variable %d not bound in current frame", def)
	}
	return v, nil
}

func (fs *FrameStack) VarSet(def int, v ir.Value, edge int) *Error {
	fs.Top().Vars[def] = v
	return nil
}

// Fork deep-copies the frame stack for a Parallel branch's child
// thread, so concurrent branches never alias each other's local
// variable bindings.
func (fs *FrameStack) Fork() (*FrameStack, *Error) {
	copied, err := copystructure.Copy(fs.frames)
	if err != nil {
		return nil, &Error{Kind: SpawnError, EdgeIdx: -1, InstrIdx: -1, Message: "fork: " + err.Error(), Wrapped: err}
	}
	frames, ok := copied.([]Frame)
	if !ok {
		return nil, &Error{Kind: SpawnError, EdgeIdx: -1, InstrIdx: -1, Message: "fork: unexpected copy result type"}
	}
	return &FrameStack{frames: frames}, nil
}

func (fs *FrameStack) Depth() int { return len(fs.frames) }
