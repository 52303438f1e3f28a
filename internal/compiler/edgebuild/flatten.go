package edgebuild

import "github.com/brane-run/brane/internal/ir"

// Flatten assigns integer indices to every reachable node and resolves
// symbolic "next" pointers to ir.EdgeIdx, producing the []ir.Edge slice
// stored in a Workflow's Graph or a function's edge list.
func (b *Buffer) Flatten() []ir.Edge {
	mergeLinear(b)

	order := map[int]int{}
	var edges []ir.Edge

	var visit func(i int)
	visit = func(i int) {
		if i == none {
			return
		}
		if _, ok := order[i]; ok {
			return
		}
		idx := len(edges)
		order[i] = idx
		edges = append(edges, ir.Edge{}) // placeholder, patched below
		n := b.nodes[i]
		switch n.edge.Kind {
		case ir.EdgeLinear, ir.EdgeCall, ir.EdgeNode, ir.EdgeJoin, ir.EdgeBuiltin:
			visit(n.next)
		case ir.EdgeBranch:
			visit(n.trueNext)
			visit(n.falseNext)
		case ir.EdgeParallel:
			for _, br := range n.branches {
				visit(br)
			}
			visit(n.join)
		case ir.EdgeLoop:
			visit(n.loopCond)
			visit(n.loopBody)
			visit(n.next)
		}
		edges[idx] = resolveEdge(n, order)
	}
	visit(b.start)

	return edges
}

func idxOf(order map[int]int, i int) ir.EdgeIdx {
	if i == none {
		return ir.NoEdge
	}
	v, ok := order[i]
	if !ok {
		return ir.NoEdge
	}
	return ir.EdgeIdx(v)
}

func resolveEdge(n node, order map[int]int) ir.Edge {
	e := n.edge
	switch e.Kind {
	case ir.EdgeLinear, ir.EdgeCall, ir.EdgeNode, ir.EdgeJoin, ir.EdgeBuiltin:
		e.Next = idxOf(order, n.next)
	case ir.EdgeBranch:
		e.TrueNext = idxOf(order, n.trueNext)
		e.FalseNext = idxOf(order, n.falseNext)
		e.Merge = idxOf(order, n.join)
	case ir.EdgeParallel:
		for _, br := range n.branches {
			e.Branches = append(e.Branches, idxOf(order, br))
		}
		e.Merge = idxOf(order, n.join)
	case ir.EdgeLoop:
		e.Cond = idxOf(order, n.loopCond)
		e.Body = idxOf(order, n.loopBody)
		e.Next = idxOf(order, n.next)
	}
	return e
}

// mergeLinear folds any chain of consecutive Linear edges with no other
// incoming references into a single Linear, so the flattened graph
// never contains two adjacent Linear edges — a documented invariant of
// the edge-build pass.
func mergeLinear(b *Buffer) {
	refCount := map[int]int{}
	var count func(i int)
	counted := map[int]bool{}
	count = func(i int) {
		if i == none || counted[i] {
			if i != none {
				refCount[i]++
			}
			return
		}
		counted[i] = true
		n := b.nodes[i]
		switch n.edge.Kind {
		case ir.EdgeLinear, ir.EdgeCall, ir.EdgeNode, ir.EdgeJoin, ir.EdgeBuiltin:
			if n.next != none {
				refCount[n.next]++
				count(n.next)
			}
		case ir.EdgeBranch:
			refCount[n.trueNext]++
			count(n.trueNext)
			if n.falseNext != none {
				refCount[n.falseNext]++
				count(n.falseNext)
			}
			if n.join != none {
				refCount[n.join]++
				count(n.join)
			}
		case ir.EdgeParallel:
			for _, br := range n.branches {
				refCount[br]++
				count(br)
			}
			refCount[n.join]++
			count(n.join)
		case ir.EdgeLoop:
			refCount[n.loopCond]++
			count(n.loopCond)
			refCount[n.loopBody]++
			count(n.loopBody)
			if n.next != none {
				refCount[n.next]++
				count(n.next)
			}
		}
	}
	count(b.start)

	for i := range b.nodes {
		n := &b.nodes[i]
		for n.edge.Kind == ir.EdgeLinear && n.next != none {
			next := &b.nodes[n.next]
			if next.edge.Kind != ir.EdgeLinear || refCount[n.next] > 1 {
				break
			}
			n.edge.Instrs = append(n.edge.Instrs, next.edge.Instrs...)
			n.next = next.next
		}
	}
}
