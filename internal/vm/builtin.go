package vm

import (
	"context"

	"github.com/brane-run/brane/internal/ir"
)

// execBuiltin runs one of the four names the compiler recognizes at the
// Call site instead of routing through Workflow.Funcs: print/println
// format their single argument and hand it to the plugin's Stdout,
// commit_result hands its IntermediateResult/name pair to the plugin's
// Commit. len never reaches here — it is pure, so the edge-build pass
// lowers it to an OpLen instruction instead.
func (t *Thread) execBuiltin(ctx context.Context, edge ir.Edge, edgeIdx int) *Error {
	args := make([]ir.Value, edge.NumArgs)
	for i := edge.NumArgs - 1; i >= 0; i-- {
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return err
		}
		args[i] = v
	}

	switch edge.Builtin {
	case "print", "println":
		line := stringify(args[0])
		if edge.Builtin == "println" {
			line += "\n"
		}
		if err := t.Backend.Stdout(ctx, t.Global, t.Local, line); err != nil {
			return WrapPluginError(edgeIdx, err)
		}
		return nil

	case "commit_result":
		fv, ferr := ir.ToFullValue(args[0])
		if ferr != nil {
			return newErr(StackTypeError, edgeIdx, -1, "commit_result: %s", ferr.Error())
		}
		if args[1].Kind != ir.VString {
			return newErr(StackTypeError, edgeIdx, -1, "commit_result: result name is not a String")
		}
		if err := t.Backend.Commit(ctx, t.Global, t.Local, args[1].Str, fv); err != nil {
			return WrapPluginError(edgeIdx, err)
		}
		return nil

	default:
		return newErr(StackTypeError, edgeIdx, -1, "unknown builtin %q", edge.Builtin)
	}
}
