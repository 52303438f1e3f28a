// Package edgebuild implements the edge-build pass: it walks a
// type-checked AST and produces a flat ir.Workflow by writing into an
// EdgeBuffer, a linked compiler-internal structure, then flattening it.
package edgebuild

import (
	"fmt"

	"github.com/brane-run/brane/internal/ir"
)

// nodeState discriminates what an EdgeBuffer node currently holds.
type nodeState int

const (
	stateNone nodeState = iota
	stateLinear
	stateBranch
	stateParallel
	stateLoop
	stateEnd
	stateStop
)

// node is one arena-allocated EdgeBuffer entry. An arena (indices into
// a slice) avoids reference cycles and serializes trivially, in place
// of refcounted node handles.
type node struct {
	edge  ir.Edge
	state nodeState

	// populated once state != stateNone, indices into buffer.nodes
	next      int // stateLinear, stateLoop (its "next" after the loop)
	trueNext  int // stateBranch
	falseNext int
	join      int // stateBranch, stateParallel
	branches  []int
	loopCond  int
	loopBody  int
}

const none = -1

// Buffer is the EdgeBuffer: a linked structure the edge-builder writes
// into incrementally. start/end are indices into nodes.
type Buffer struct {
	nodes []node
	start int
	end   int
}

// NewBuffer creates an empty buffer with one unwritten node.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.nodes = append(b.nodes, node{state: stateNone})
	b.start = 0
	b.end = 0
	return b
}

// linearlyConnectible reports whether the current end can have a new
// linear edge written after it without an explicit branch/loop point.
func (b *Buffer) linearlyConnectible() bool {
	n := b.nodes[b.end]
	switch n.edge.Kind {
	case ir.EdgeNode, ir.EdgeLinear, ir.EdgeJoin, ir.EdgeCall, ir.EdgeBuiltin:
		return n.state == stateNone
	}
	return n.state == stateNone
}

// WriteLinear appends a Linear edge holding instrs at the current end,
// opening a fresh unwritten node as the new end. Panics (an internal
// compiler error) if the current end is not linearly connectible.
func (b *Buffer) WriteLinear(instrs []ir.Instr) {
	if !b.linearlyConnectible() {
		panic(fmt.Sprintf("edgebuild: internal error: end node %d is not linearly connectible", b.end))
	}
	newIdx := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	cur := &b.nodes[b.end]
	cur.edge = ir.Edge{Kind: ir.EdgeLinear, Instrs: instrs}
	cur.state = stateLinear
	cur.next = newIdx
	b.end = newIdx
}

// WriteNode appends a Node (task-invocation) edge.
func (b *Buffer) WriteNode(task string, at *string, input map[string]*ir.Availability, result string) {
	if !b.linearlyConnectible() {
		panic(fmt.Sprintf("edgebuild: internal error: end node %d is not linearly connectible", b.end))
	}
	newIdx := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	cur := &b.nodes[b.end]
	cur.edge = ir.Edge{Kind: ir.EdgeNode, Task: task, At: at, Input: input, Result: result}
	cur.state = stateLinear // Node behaves like Linear for connectibility purposes
	cur.next = newIdx
	b.end = newIdx
}

// WriteBuiltin appends a Builtin edge: print/println/commit_result,
// dispatched at the Call site instead of through Workflow.Funcs. numArgs
// values must already be on the stack, in push order, above this node.
func (b *Buffer) WriteBuiltin(name string, numArgs int) {
	if !b.linearlyConnectible() {
		panic(fmt.Sprintf("edgebuild: internal error: end node %d is not linearly connectible", b.end))
	}
	newIdx := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	cur := &b.nodes[b.end]
	cur.edge = ir.Edge{Kind: ir.EdgeBuiltin, Builtin: name, NumArgs: numArgs}
	cur.state = stateLinear
	cur.next = newIdx
	b.end = newIdx
}

// WriteCall appends a Call edge (pops a callable, pushes a frame).
func (b *Buffer) WriteCall() {
	if !b.linearlyConnectible() {
		panic(fmt.Sprintf("edgebuild: internal error: end node %d is not linearly connectible", b.end))
	}
	newIdx := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	cur := &b.nodes[b.end]
	cur.edge = ir.Edge{Kind: ir.EdgeCall}
	cur.state = stateLinear
	cur.next = newIdx
	b.end = newIdx
}

// WriteReturn terminates the current path with a Return edge.
func (b *Buffer) WriteReturn() {
	cur := &b.nodes[b.end]
	cur.edge = ir.Edge{Kind: ir.EdgeReturn}
	cur.state = stateEnd
}

// WriteStop terminates the current path with a Stop edge.
func (b *Buffer) WriteStop() {
	cur := &b.nodes[b.end]
	cur.edge = ir.Edge{Kind: ir.EdgeStop}
	cur.state = stateStop
}

// Append splices another buffer's contents at the current end; the
// spliced buffer's start becomes reachable from here, and the combined
// buffer's end becomes the spliced buffer's end.
func (b *Buffer) Append(other *Buffer) {
	base := len(b.nodes)
	for _, n := range other.nodes {
		b.nodes = append(b.nodes, shiftNode(n, base))
	}
	cur := &b.nodes[b.end]
	*cur = b.nodes[base+other.start]
	// the spliced-in start node is now aliased at b.end; its copy at
	// base+other.start is left in place in b.nodes, not removed.
	b.end = base + other.end
}

func shiftNode(n node, base int) node {
	shift := func(i int) int {
		if i == none {
			return none
		}
		return i + base
	}
	n.next = shift(n.next)
	n.trueNext = shift(n.trueNext)
	n.falseNext = shift(n.falseNext)
	n.join = shift(n.join)
	n.loopCond = shift(n.loopCond)
	n.loopBody = shift(n.loopBody)
	for i := range n.branches {
		n.branches[i] = shift(n.branches[i])
	}
	return n
}

// WriteBranch writes a two-way branch: condTrue and condFalse are the
// sub-buffers for the then/else arms (else may be nil for a bare if).
// An implicit empty Linear join is appended unless both arms fully
// return, per the EdgeBuffer invariant.
func (b *Buffer) WriteBranch(condInstrs []ir.Instr, thenBuf, elseBuf *Buffer) {
	b.WriteLinear(condInstrs)

	branchIdx := b.end
	newEnd := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	b.end = newEnd

	thenFullyReturns := thenBuf.FullyReturns()
	elseFullyReturns := elseBuf != nil && elseBuf.FullyReturns()

	thenStart := b.spliceSub(thenBuf)

	var elseStart int
	if elseBuf != nil {
		elseStart = b.spliceSub(elseBuf)
	} else {
		elseStart = none
	}

	joinIdx := none
	if !(thenFullyReturns && elseFullyReturns) {
		joinIdx = len(b.nodes)
		b.nodes = append(b.nodes, node{state: stateNone})
		b.linkDeadEnd(thenBuf, thenStart, joinIdx)
		if elseBuf != nil {
			b.linkDeadEnd(elseBuf, elseStart, joinIdx)
		} else {
			// a bare if's false arm falls straight through to the join.
			elseStart = joinIdx
		}
		b.end = joinIdx
	}

	b.nodes[branchIdx] = node{
		edge:      ir.Edge{Kind: ir.EdgeBranch},
		state:     stateBranch,
		trueNext:  thenStart,
		falseNext: elseStart,
		join:      joinIdx,
	}
}

// spliceSub copies sub's nodes into b (without aliasing b.end) and
// returns the index of sub's start node within b.
func (b *Buffer) spliceSub(sub *Buffer) int {
	base := len(b.nodes)
	for _, n := range sub.nodes {
		b.nodes = append(b.nodes, shiftNode(n, base))
	}
	return base + sub.start
}

// linkDeadEnd patches sub's dangling end node (the one still in state
// stateNone, i.e. its final unwritten continuation) to point at join.
func (b *Buffer) linkDeadEnd(sub *Buffer, startInB int, join int) {
	endInB := startInB + (sub.end - sub.start)
	if b.nodes[endInB].state == stateNone {
		b.nodes[endInB] = node{edge: ir.Edge{Kind: ir.EdgeLinear}, state: stateLinear, next: join}
	}
}

// WriteParallel writes a Parallel edge fanning out to each branch
// sub-buffer, followed by a Join edge applying strategy.
func (b *Buffer) WriteParallel(branchBufs []*Buffer, strategy ir.MergeStrategy) {
	parallelIdx := b.end
	newEnd := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	b.end = newEnd

	var branchStarts []int
	for _, bb := range branchBufs {
		start := b.spliceSub(bb)
		branchStarts = append(branchStarts, start)
	}

	joinIdx := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	for i, bb := range branchBufs {
		b.linkDeadEnd(bb, branchStarts[i], joinIdx)
	}

	afterJoin := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	b.nodes[joinIdx] = node{
		edge:  ir.Edge{Kind: ir.EdgeJoin, JoinStrategy: strategy},
		state: stateLinear,
		next:  afterJoin,
	}

	b.nodes[parallelIdx] = node{
		edge:     ir.Edge{Kind: ir.EdgeParallel},
		state:    stateParallel,
		branches: branchStarts,
		join:     joinIdx,
	}
	b.end = afterJoin
}

// WriteLoop writes a classic pre-test loop: condInstrs compute the
// condition in a Linear node the Loop edge points at, and bodyBuf runs
// the loop body, whose end links back to the Loop edge itself.
func (b *Buffer) WriteLoop(condInstrs []ir.Instr, bodyBuf *Buffer) {
	loopIdx := b.end
	condIdx := len(b.nodes)
	b.nodes = append(b.nodes, node{edge: ir.Edge{Kind: ir.EdgeLinear, Instrs: condInstrs}, state: stateLinear})

	bodyStart := b.spliceSub(bodyBuf)
	bodyEnd := bodyStart + (bodyBuf.end - bodyBuf.start)
	if b.nodes[bodyEnd].state == stateNone {
		// Loop back by reaching the Loop edge itself (loopIdx), not the
		// condition sub-path directly: the VM re-evaluates the
		// condition explicitly every time it dispatches a Loop edge.
		b.nodes[bodyEnd] = node{edge: ir.Edge{Kind: ir.EdgeLinear}, state: stateLinear, next: loopIdx}
	}

	afterLoop := len(b.nodes)
	b.nodes = append(b.nodes, node{state: stateNone})
	b.nodes[condIdx].next = none // condition's continuation is resolved via the Loop edge, not a Linear.next

	b.nodes[loopIdx] = node{
		edge:     ir.Edge{Kind: ir.EdgeLoop},
		state:    stateLoop,
		loopCond: condIdx,
		loopBody: bodyStart,
		next:     afterLoop,
	}
	b.end = afterLoop
}

// FullyReturns determines whether every path through the buffer reaches
// Stop or Return. Cycles (loop back-edges) are treated conservatively
// as "does not fully return".
func (b *Buffer) FullyReturns() bool {
	visiting := map[int]bool{}
	var walk func(i int) bool
	walk = func(i int) bool {
		if i == none {
			return false
		}
		if visiting[i] {
			return false // cycle: conservatively does not fully return
		}
		visiting[i] = true
		defer delete(visiting, i)

		n := b.nodes[i]
		switch n.edge.Kind {
		case ir.EdgeStop, ir.EdgeReturn:
			return true
		case ir.EdgeLinear, ir.EdgeCall, ir.EdgeNode, ir.EdgeBuiltin:
			if n.state == stateNone {
				return false // dangling continuation: falls off the end
			}
			return walk(n.next)
		case ir.EdgeBranch:
			if n.join == none {
				return true // both arms already fully return
			}
			return walk(n.join)
		case ir.EdgeParallel:
			return walk(n.join)
		case ir.EdgeLoop:
			// a pre-test loop may execute zero times, so it never fully
			// returns on its own; continuation depends on n.next.
			return walk(n.next)
		default:
			return false
		}
	}
	return walk(b.start)
}
