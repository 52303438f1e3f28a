package vm

import "github.com/brane-run/brane/internal/ir"

// marker is a sentinel pushed by Stack.PushMarker so DynamicPop can
// discard everything above it without knowing the count ahead of time.
// No IR instruction pushes one.
type marker struct{}

// Stack is the VM's operand stack. Values and markers interleave; a
// marker is represented as a marker{} entry.
type Stack struct {
	items []any // either ir.Value or marker
}

func NewStack() *Stack { return &Stack{} }

func (s *Stack) Push(v ir.Value) { s.items = append(s.items, v) }

func (s *Stack) PushMarker() { s.items = append(s.items, marker{}) }

func (s *Stack) Pop(edge int) (ir.Value, *Error) {
	if len(s.items) == 0 {
		return ir.Value{}, newErr(EmptyStackError, edge, -1, "pop from empty stack")
	}
	top := s.items[len(s.items)-1]
	v, ok := top.(ir.Value)
	if !ok {
		return ir.Value{}, newErr(StackTypeError, edge, -1, "expected a value, found a marker")
	}
	s.items = s.items[:len(s.items)-1]
	return v, nil
}

// PopMarker discards the topmost entry, which must be a marker.
func (s *Stack) PopMarker(edge int) *Error {
	if len(s.items) == 0 {
		return newErr(EmptyStackError, edge, -1, "pop marker from empty stack")
	}
	top := s.items[len(s.items)-1]
	if _, ok := top.(marker); !ok {
		return newErr(StackTypeError, edge, -1, "expected a marker, found a value")
	}
	s.items = s.items[:len(s.items)-1]
	return nil
}

// DynamicPop pops values until (and including) the nearest marker,
// returning them in push order.
func (s *Stack) DynamicPop(edge int) ([]ir.Value, *Error) {
	var out []ir.Value
	for {
		if len(s.items) == 0 {
			return nil, newErr(EmptyStackError, edge, -1, "dynamic pop found no marker")
		}
		top := s.items[len(s.items)-1]
		s.items = s.items[:len(s.items)-1]
		if _, ok := top.(marker); ok {
			// reverse into push order
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
			return out, nil
		}
		out = append(out, top.(ir.Value))
	}
}

func (s *Stack) Peek(edge int) (ir.Value, *Error) {
	if len(s.items) == 0 {
		return ir.Value{}, newErr(EmptyStackError, edge, -1, "peek on empty stack")
	}
	top := s.items[len(s.items)-1]
	v, ok := top.(ir.Value)
	if !ok {
		return ir.Value{}, newErr(StackTypeError, edge, -1, "expected a value, found a marker")
	}
	return v, nil
}

func (s *Stack) Len() int { return len(s.items) }
