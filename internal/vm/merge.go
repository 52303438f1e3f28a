package vm

import "github.com/brane-run/brane/internal/ir"

// branchResult pairs a parallel branch's index (for list-order
// tie-breaking) with the value it produced, or an error if the branch
// failed.
type branchResult struct {
	index int
	value ir.Value
	err   *Error
}

// applyMerge reduces a completed set of branch results per strategy.
// The conservative First/FirstBlocking implementation documented in the
// spec waits for every branch and then picks the first in list order —
// this is observable (a branch's side effects are never skipped to
// honor "first"), and is what this implementation does.
func applyMerge(strategy ir.MergeStrategy, results []branchResult, edge int) (ir.Value, *Error) {
	for _, r := range results {
		if r.err != nil {
			return ir.Value{}, r.err
		}
	}

	switch strategy {
	case ir.MergeFirst, ir.MergeFirstBlocking, ir.MergeLast:
		if len(results) == 0 {
			return ir.Void(), nil
		}
		if strategy == ir.MergeLast {
			return results[len(results)-1].value, nil
		}
		return results[0].value, nil

	case ir.MergeSum, ir.MergeProduct, ir.MergeMax, ir.MergeMin:
		return mergeNumeric(strategy, results, edge)

	case ir.MergeAll:
		vs := make([]ir.Value, len(results))
		for i, r := range results {
			vs[i] = r.value
		}
		return ir.Arr(vs), nil

	case ir.MergeNone:
		return ir.Void(), nil

	default:
		return ir.Value{}, newErr(BranchTypeError, edge, -1, "unknown merge strategy %d", strategy)
	}
}

func mergeNumeric(strategy ir.MergeStrategy, results []branchResult, edge int) (ir.Value, *Error) {
	if len(results) == 0 {
		return ir.Void(), nil
	}
	isReal := false
	for _, r := range results {
		if r.value.Kind == ir.VReal {
			isReal = true
		} else if r.value.Kind != ir.VInteger {
			return ir.Value{}, newErr(StackTypeError, edge, -1, "merge %d requires numeric branch results", strategy)
		}
	}

	toReal := func(v ir.Value) float64 {
		if v.Kind == ir.VReal {
			return v.Real
		}
		return float64(v.Int)
	}

	var acc float64
	switch strategy {
	case ir.MergeSum:
		for _, r := range results {
			acc += toReal(r.value)
		}
	case ir.MergeProduct:
		acc = 1
		for _, r := range results {
			acc *= toReal(r.value)
		}
	case ir.MergeMax:
		acc = toReal(results[0].value)
		for _, r := range results[1:] {
			if v := toReal(r.value); v > acc {
				acc = v
			}
		}
	case ir.MergeMin:
		acc = toReal(results[0].value)
		for _, r := range results[1:] {
			if v := toReal(r.value); v < acc {
				acc = v
			}
		}
	}

	if isReal {
		return ir.Real(acc), nil
	}
	return ir.Int(int64(acc)), nil
}
