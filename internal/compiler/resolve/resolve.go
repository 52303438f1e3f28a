// Package resolve implements the resolve pass: it walks the AST,
// creates scoped symbol tables, and attaches a symtab entry to every
// name-reference node.
package resolve

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	hcversion "github.com/hashicorp/go-version"

	"github.com/brane-run/brane/internal/ast"
	"github.com/brane-run/brane/internal/diag"
	"github.com/brane-run/brane/internal/symtab"
	"github.com/brane-run/brane/internal/types"
)

// PackageInfo is the metadata the resolver needs from an imported
// package: the functions and classes it exports.
type PackageInfo struct {
	Name    string
	Version string
	Funcs   []symtab.FuncEntry
	Classes []symtab.ClassEntry
}

// PackageIndex resolves a (name, version) pair to its exported symbols.
type PackageIndex interface {
	Lookup(name, version string) (PackageInfo, error)
}

// DataIndex reports whether a dataset name is known.
type DataIndex interface {
	Has(name string) bool
}

// Resolver threads the pass-specific state (Table.9 "small struct")
// through one compilation snippet: the CompileState back-reference, the
// package and data indexes, and the accumulating error list.
type Resolver struct {
	State   *symtab.CompileState
	Packages PackageIndex
	Data    DataIndex

	errs *multierror.Error
}

func New(state *symtab.CompileState, pkgs PackageIndex, data DataIndex) *Resolver {
	return &Resolver{State: state, Packages: pkgs, Data: data}
}

// Errors returns the accumulated diagnostics as error values; the pass
// runs to completion even on error so every diagnostic is available.
func (r *Resolver) Errors() []error {
	if r.errs == nil {
		return nil
	}
	return r.errs.Errors
}

func (r *Resolver) fail(err error) {
	r.errs = multierror.Append(r.errs, err)
}

// Resolve runs the resolve pass over a single top-level block (a
// snippet's program, or a function body called recursively). offset
// is the range-offset to apply (CompileState.LineOffset() for the
// top-level call).
func (r *Resolver) Resolve(block *ast.Block, offset int) {
	block.Rng = block.Rng.Offset(offset)
	if block.Table == nil {
		block.Table = r.State.NewSnippetTable()
	}
	for _, stmt := range block.Stmts {
		r.offsetAndResolveStmt(stmt, block.Table, offset)
	}
}

func (r *Resolver) offsetAndResolveStmt(stmt ast.Stmt, table *symtab.Table, offset int) {
	r.resolveStmt(stmt, table, offset)
}

func (r *Resolver) resolveStmt(stmt ast.Stmt, table *symtab.Table, offset int) {
	switch s := stmt.(type) {
	case *ast.ImportStmt:
		r.resolveImport(s, table, offset)
	case *ast.FuncDef:
		r.resolveFuncDef(s, table, offset)
	case *ast.ClassDef:
		r.resolveClassDef(s, table, offset)
	case *ast.LetAssign:
		r.resolveExprIn(s.Value, table, offset)
		s.VarIdx = table.DefineVariable(symtab.VarEntry{Name: s.Name, Range: s.Range().Offset(offset), Type: types.Any})
	case *ast.Assign:
		r.resolveExprIn(s.Target, table, offset)
		r.resolveExprIn(s.Value, table, offset)
	case *ast.If:
		r.resolveExprIn(s.Cond, table, offset)
		r.resolveChildBlock(s.Then, table, offset)
		if s.Else != nil {
			r.resolveChildBlock(s.Else, table, offset)
		}
	case *ast.For:
		child := symtab.NewTable(table)
		if s.Init != nil {
			r.resolveStmt(s.Init, child, offset)
		}
		if s.Cond != nil {
			r.resolveExprIn(s.Cond, child, offset)
		}
		if s.Post != nil {
			r.resolveStmt(s.Post, child, offset)
		}
		s.Body.Table = child
		r.Resolve(s.Body, offset)
	case *ast.While:
		r.resolveExprIn(s.Cond, table, offset)
		r.resolveChildBlock(s.Body, table, offset)
	case *ast.On:
		r.resolveExprIn(s.Location, table, offset)
		r.resolveChildBlock(s.Body, table, offset)
	case *ast.Parallel:
		if s.Result != "" {
			s.ResultVarIdx = table.DefineVariable(symtab.VarEntry{
				Name: s.Result, Range: s.Range().Offset(offset), Type: types.Any,
			})
		}
		if s.MergeRaw != "" {
			m, ok := ast.ParseMergeStrategy(s.MergeRaw)
			if !ok {
				r.fail(fmt.Errorf("UnknownMergeStrategy: %q at %s", s.MergeRaw, s.Range().Offset(offset)))
			}
			s.Merge = m
		}
		for _, branch := range s.Branches {
			r.resolveChildBlock(branch, table, offset)
		}
	case *ast.Return:
		if s.Value != nil {
			r.resolveExprIn(s.Value, table, offset)
		}
	case *ast.ExprStmt:
		r.resolveExprIn(s.Value, table, offset)
	}
}

func (r *Resolver) resolveChildBlock(b *ast.Block, parent *symtab.Table, offset int) {
	b.Table = symtab.NewTable(parent)
	r.Resolve(b, offset)
}

func (r *Resolver) resolveImport(s *ast.ImportStmt, table *symtab.Table, offset int) {
	if s.Version != "" && s.Version != "latest" {
		if _, err := hcversion.NewSemver(s.Version); err != nil {
			r.fail(fmt.Errorf("InvalidVersionError: %s@%s is not a valid semantic version: %w", s.Name, s.Version, err))
			return
		}
	}

	info, err := r.Packages.Lookup(s.Name, s.Version)
	if err != nil {
		r.fail(fmt.Errorf("UnknownPackageError: %s@%s: %w", s.Name, s.Version, err))
		return
	}
	for _, fe := range info.Funcs {
		fe.Package, fe.Version = s.Name, s.Version
		fe.IsTask = true
		table.DefineFunction(fe)
	}
	for _, ce := range info.Classes {
		table.DefineClass(ce)
	}
}

func (r *Resolver) resolveFuncDef(s *ast.FuncDef, table *symtab.Table, offset int) {
	argTypes := make([]types.DataType, len(s.Params))
	for i := range argTypes {
		argTypes[i] = types.Any
	}
	s.FuncIdx = table.DefineFunction(symtab.FuncEntry{
		Name: s.Name, Range: s.Range().Offset(offset), ArgTypes: argTypes, ReturnType: s.ReturnType,
	})

	body := symtab.NewTable(table)
	for _, p := range s.Params {
		body.DefineVariable(symtab.VarEntry{Name: p.Name, Range: p.Rng.Offset(offset), Type: types.Any, IsParam: true})
	}
	s.Body.Table = body
	r.Resolve(s.Body, offset)
}

func (r *Resolver) resolveClassDef(s *ast.ClassDef, table *symtab.Table, offset int) {
	classTable := symtab.NewTable(table)
	seen := map[string]bool{}

	for _, p := range s.Properties {
		if seen[p.Name] {
			r.fail(fmt.Errorf("DuplicateMethodAndProperty: %s.%s at %s", s.Name, p.Name, p.Rng.Offset(offset)))
			continue
		}
		seen[p.Name] = true
		classTable.DefineVariable(symtab.VarEntry{Name: p.Name, Range: p.Rng.Offset(offset), Type: p.Type, IsProperty: true})
	}

	for _, m := range s.Methods {
		if seen[m.Name] {
			r.fail(fmt.Errorf("DuplicateMethodAndProperty: %s.%s at %s", s.Name, m.Name, m.Range().Offset(offset)))
			continue
		}
		seen[m.Name] = true

		if len(m.Params) == 0 || m.Params[0].Name != "self" {
			r.fail(fmt.Errorf("MissingSelf: method %s.%s must declare self as its first parameter", s.Name, m.Name))
		}
		for i, p := range m.Params {
			if i > 0 && p.Name == "self" {
				r.fail(fmt.Errorf("IllegalSelf: self may only be the first parameter (%s.%s)", s.Name, m.Name))
			}
		}
		r.resolveFuncDef(m, classTable, offset)
	}

	s.ClassIdx = table.DefineClass(symtab.ClassEntry{Name: s.Name, Range: s.Range().Offset(offset), Table: classTable})
}

func (r *Resolver) resolveExprIn(e ast.Expr, table *symtab.Table, offset int) {
	switch ex := e.(type) {
	case *ast.Identifier:
		if v, idx, ok := table.LookupVariable(ex.Name); ok {
			_ = v
			i := idx
			ex.ResolvedVar = &i
			return
		}
		if _, idx, ok := table.LookupFunction(ex.Name); ok {
			i := idx
			ex.ResolvedFunc = &i
			return
		}
		suggestion := diag.Suggestion(ex.Name, table.KnownVariableNames())
		msg := fmt.Sprintf("UndefinedVariable: %q at %s", ex.Name, ex.Range().Offset(offset))
		if suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		r.fail(fmt.Errorf("%s", msg))
	case *ast.Literal:
	case *ast.BinOp:
		r.resolveExprIn(ex.Left, table, offset)
		r.resolveExprIn(ex.Right, table, offset)
	case *ast.UnOp:
		r.resolveExprIn(ex.Operand, table, offset)
	case *ast.Call:
		if id, ok := ex.Callee.(*ast.Identifier); ok {
			if _, idx, ok := table.LookupFunction(id.Name); ok {
				i := idx
				ex.ResolvedFunc = &i
				id.ResolvedFunc = &i
			} else {
				r.fail(fmt.Errorf("UndefinedVariable: function %q not found at %s", id.Name, id.Range().Offset(offset)))
			}
		} else {
			r.resolveExprIn(ex.Callee, table, offset)
		}
		for _, a := range ex.Args {
			r.resolveExprIn(a, table, offset)
		}
	case *ast.Proj:
		r.resolveProj(ex, table, offset)
	case *ast.Index:
		r.resolveExprIn(ex.Array, table, offset)
		r.resolveExprIn(ex.Idx, table, offset)
	case *ast.ArrayLit:
		for _, el := range ex.Elems {
			r.resolveExprIn(el, table, offset)
		}
	case *ast.NewInstance:
		if _, idx, ok := table.LookupClass(ex.ClassName); ok {
			i := idx
			ex.ResolvedClass = &i
		} else {
			r.fail(fmt.Errorf("NonClassProjection: unknown class %q at %s", ex.ClassName, ex.Range().Offset(offset)))
		}
		for _, v := range ex.Fields {
			r.resolveExprIn(v, table, offset)
		}
	case *ast.DataLit:
		if ex.Name == "" {
			r.fail(fmt.Errorf("DataNameNotAStringError: Data name must be a string literal at %s", ex.Range().Offset(offset)))
			return
		}
		if !r.Data.Has(ex.Name) {
			r.fail(fmt.Errorf("UnknownDataError: dataset %q not in data index at %s", ex.Name, ex.Range().Offset(offset)))
		}
	case *ast.Cast:
		r.resolveExprIn(ex.Value, table, offset)
	}
}

// resolveProj resolves `a.b`: the LHS must resolve to a class instance
// (or a nested projection on one); the field is looked up in that
// class's table.
func (r *Resolver) resolveProj(ex *ast.Proj, table *symtab.Table, offset int) {
	r.resolveExprIn(ex.Left, table, offset)

	className := classNameOf(ex.Left, table)
	if className == "" {
		r.fail(fmt.Errorf("NonClassProjection: left-hand side of .%s is not a class instance at %s", ex.Field, ex.Range().Offset(offset)))
		return
	}
	ce, _, ok := table.LookupClass(className)
	if !ok {
		r.fail(fmt.Errorf("NonClassProjection: unknown class %q at %s", className, ex.Range().Offset(offset)))
		return
	}
	if _, idx, ok := ce.Table.LookupVariable(ex.Field); ok {
		i := idx
		ex.ResolvedClass = &i
		return
	}
	if _, idx, ok := ce.Table.LookupFunction(ex.Field); ok {
		i := idx
		ex.ResolvedClass = &i
		return
	}
	suggestion := diag.Suggestion(ex.Field, ce.Table.KnownVariableNames())
	msg := fmt.Sprintf("UnknownField: %s.%s at %s", className, ex.Field, ex.Range().Offset(offset))
	if suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	r.fail(fmt.Errorf("%s", msg))
}

// classNameOf best-effort determines the class name of an expression
// known (from a prior resolve/type-check step) to be a class instance.
// Identifier resolves via its variable's declared Class type once
// type-check has run; during resolve itself, only NewInstance and
// nested Proj chains carry an immediately known class name.
func classNameOf(e ast.Expr, table *symtab.Table) string {
	switch v := e.(type) {
	case *ast.NewInstance:
		return v.ClassName
	case *ast.Identifier:
		if v.Typ.Kind == types.KindClass {
			return v.Typ.ClassName
		}
	case *ast.Proj:
		if v.Typ.Kind == types.KindClass {
			return v.Typ.ClassName
		}
	}
	return ""
}
