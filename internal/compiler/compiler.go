// Package compiler sequences the three middle-end passes — resolve,
// type-check, edge-build — into a single compilation of one workflow
// snippet into its IR representation.
package compiler

import (
	"fmt"
	"strings"

	"github.com/brane-run/brane/internal/ast"
	"github.com/brane-run/brane/internal/compiler/edgebuild"
	"github.com/brane-run/brane/internal/compiler/resolve"
	"github.com/brane-run/brane/internal/compiler/typecheck"
	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/symtab"
)

// Result is what a snippet compiles to: the finished workflow IR, or
// the diagnostics collected across whichever passes ran before the
// first one that found errors. A successful Result's Errors holds any
// type-check warnings (entries prefixed "warning ").
type Result struct {
	Workflow ir.Workflow
	Errors   []error
}

// Compile runs resolve, then type-check, then edge-build over block in
// order, short-circuiting after any pass that reports errors: a
// snippet with unresolved names is never type-checked, and one that
// fails type-checking is never lowered to IR, since each later pass
// assumes the former's invariants hold. Type-check warnings do not
// stop compilation.
func Compile(state *symtab.CompileState, pkgs resolve.PackageIndex, data resolve.DataIndex, block *ast.Block, offset int) Result {
	r := resolve.New(state, pkgs, data)
	r.Resolve(block, offset)
	if errs := r.Errors(); len(errs) > 0 {
		return Result{Errors: errs}
	}

	c := typecheck.New()
	c.Check(block)
	var warnings []error
	for _, e := range c.Errors() {
		if !strings.HasPrefix(e.Error(), "warning ") {
			return Result{Errors: c.Errors()}
		}
		warnings = append(warnings, e)
	}

	b := edgebuild.New()
	wf := b.Build(block)
	if errs := b.Errors(); len(errs) > 0 {
		return Result{Errors: errs}
	}

	return Result{Workflow: wf, Errors: warnings}
}

// ErrorStrings renders a Result's errors for display, one per line.
func ErrorStrings(res Result) []string {
	out := make([]string, len(res.Errors))
	for i, e := range res.Errors {
		out[i] = fmt.Sprint(e)
	}
	return out
}
