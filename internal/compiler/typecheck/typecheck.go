// Package typecheck implements the type-check pass: it assigns a
// DataType to every expression, verifies compatibility, and inserts
// implicit Cast wrappers where a coercion is allowed.
package typecheck

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/brane-run/brane/internal/ast"
	"github.com/brane-run/brane/internal/symtab"
	"github.com/brane-run/brane/internal/types"
)

type Checker struct {
	errs *multierror.Error
	// returnStack holds one entry per enclosing function body or
	// parallel branch; each entry accumulates the type of every
	// `return e;` seen in it, so all its returns can be unified.
	returnStack [][]types.DataType
}

func New() *Checker {
	return &Checker{}
}

func (c *Checker) Errors() []error {
	if c.errs == nil {
		return nil
	}
	return c.errs.Errors
}

func (c *Checker) fail(code, format string, args ...any) {
	c.errs = multierror.Append(c.errs, fmt.Errorf("%s: %s", code, fmt.Sprintf(format, args...)))
}

func (c *Checker) warn(code, format string, args ...any) {
	// Warnings are non-fatal; still surfaced through the same channel
	// with a distinguishable prefix since this pass only returns errors.
	c.errs = multierror.Append(c.errs, fmt.Errorf("warning %s: %s", code, fmt.Sprintf(format, args...)))
}

// Check runs the type-check pass over a top-level block (or, via
// recursion, a function body).
func (c *Checker) Check(block *ast.Block) {
	for _, s := range block.Stmts {
		c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ImportStmt:
		// nothing to type-check; resolve already validated the package.
	case *ast.FuncDef:
		c.returnStack = append(c.returnStack, nil)
		c.Check(s.Body)
		rets := c.returnStack[len(c.returnStack)-1]
		c.returnStack = c.returnStack[:len(c.returnStack)-1]
		s.ReturnType = c.unifyReturns(s.Name, rets)
	case *ast.ClassDef:
		for _, m := range s.Methods {
			c.checkStmt(m)
		}
	case *ast.LetAssign:
		c.checkExpr(s.Value)
	case *ast.Assign:
		c.checkExpr(s.Target)
		c.checkExpr(s.Value)
		s.Value = c.coerce(s.Value, s.Target.Type())
	case *ast.If:
		c.checkExpr(s.Cond)
		s.Cond = c.coerce(s.Cond, types.Boolean)
		c.Check(s.Then)
		if s.Else != nil {
			c.Check(s.Else)
		}
	case *ast.For:
		if s.Init != nil {
			c.checkStmt(s.Init)
		}
		if s.Cond != nil {
			c.checkExpr(s.Cond)
			s.Cond = c.coerce(s.Cond, types.Boolean)
		}
		if s.Post != nil {
			c.checkStmt(s.Post)
		}
		c.Check(s.Body)
	case *ast.While:
		c.checkExpr(s.Cond)
		s.Cond = c.coerce(s.Cond, types.Boolean)
		c.Check(s.Body)
	case *ast.On:
		c.checkExpr(s.Location)
		s.Location = c.coerce(s.Location, types.Array(types.String))
		c.Check(s.Body)
	case *ast.Parallel:
		c.checkParallel(s)
	case *ast.Return:
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
		if len(c.returnStack) > 0 {
			t := types.Void
			if s.Value != nil {
				t = s.Value.Type()
			}
			top := len(c.returnStack) - 1
			c.returnStack[top] = append(c.returnStack[top], t)
		}
	case *ast.ExprStmt:
		c.checkExpr(s.Value)
	}
}

// unifyReturns folds every observed return type into one function
// return type with types.Unify, reporting incompatible combinations as
// IncompatibleReturns. It inserts no casts at the Return statements.
func (c *Checker) unifyReturns(funcName string, rets []types.DataType) types.DataType {
	if len(rets) == 0 {
		return types.Void
	}
	result := rets[0]
	for _, t := range rets[1:] {
		u, ok := types.Unify(result, t)
		if !ok {
			c.fail("IncompatibleReturns", "function %s: incompatible return types %s and %s", funcName, result, t)
			continue
		}
		result = u
	}
	return result
}

func (c *Checker) checkParallel(s *ast.Parallel) {
	var branchTypes []types.DataType
	for _, branch := range s.Branches {
		c.returnStack = append(c.returnStack, nil)
		c.Check(branch)
		rets := c.returnStack[len(c.returnStack)-1]
		c.returnStack = c.returnStack[:len(c.returnStack)-1]
		branchTypes = append(branchTypes, c.unifyReturns("parallel branch", rets))
	}

	if s.MergeRaw == "" {
		allVoid := true
		for _, t := range branchTypes {
			if t.Kind != types.KindVoid {
				allVoid = false
			}
		}
		if !allVoid {
			c.warn("UnusedMergeStrategy", "parallel has branch returns but no merge strategy declared")
		}
		return
	}

	switch s.Merge {
	case ast.MergeFirst, ast.MergeFirstBlocking, ast.MergeLast:
		for _, t := range branchTypes {
			if t.Kind == types.KindVoid {
				c.fail("IncompatibleReturns", "merge %s requires every branch to return a value", s.Merge)
			}
		}
	case ast.MergeSum, ast.MergeProduct, ast.MergeMax, ast.MergeMin:
		for _, t := range branchTypes {
			if !t.CoercesTo(types.Numeric) {
				c.fail("IncompatibleReturns", "merge %s requires numeric branch returns, got %s", s.Merge, t)
			}
		}
	case ast.MergeAll:
		// element type inferred from the first branch; all must match.
		if len(branchTypes) > 0 {
			for _, t := range branchTypes[1:] {
				if !t.Equal(branchTypes[0]) {
					c.fail("IncompatibleReturns", "merge all requires every branch to return the same type, got %s and %s", branchTypes[0], t)
				}
			}
		}
	case ast.MergeNone:
		for _, t := range branchTypes {
			if t.Kind != types.KindVoid {
				c.fail("IncompatibleReturns", "merge none forbids branch returns, got %s", t)
			}
		}
	}
}

// coerce wraps e in a Cast if needed and legal; it reports a failure
// and returns e unchanged if the coercion is illegal.
func (c *Checker) coerce(e ast.Expr, target types.DataType) ast.Expr {
	if e.Type().Equal(target) {
		return e
	}
	if !e.Type().CoercesTo(target) {
		c.fail("StackTypeError", "cannot use %s where %s is expected", e.Type(), target)
		return e
	}
	cast := &ast.Cast{Value: e, To: target}
	cast.SetType(target)
	return cast
}

func (c *Checker) checkExpr(e ast.Expr) {
	switch ex := e.(type) {
	case *ast.Identifier:
		if ex.ResolvedVar != nil {
			// Variable type is carried on the symtab entry; callers of
			// Check that have the owning Table can re-annotate, but for
			// a self-contained expr walk we default to Any unless the
			// node already carries a concrete type from a prior pass.
			if ex.Type().Kind == types.KindVoid {
				ex.SetType(types.Any)
			}
		}
	case *ast.Literal:
		switch ex.Kind {
		case types.KindBoolean:
			ex.SetType(types.Boolean)
		case types.KindInteger:
			ex.SetType(types.Integer)
		case types.KindReal:
			ex.SetType(types.Real)
		case types.KindString:
			ex.SetType(types.String)
		case types.KindNull:
			ex.SetType(types.Null)
		default:
			ex.SetType(types.Any)
		}
	case *ast.BinOp:
		c.checkBinOp(ex)
	case *ast.UnOp:
		c.checkUnOp(ex)
	case *ast.Call:
		c.checkCall(ex)
	case *ast.Proj:
		c.checkExpr(ex.Left)
		ex.SetType(types.Any)
	case *ast.Index:
		c.checkExpr(ex.Array)
		c.checkExpr(ex.Idx)
		ex.Idx = c.coerce(ex.Idx, types.Integer)
		if ex.Array.Type().Kind == types.KindArray {
			ex.SetType(*ex.Array.Type().Elem)
		} else {
			c.fail("ArrayTypeError", "index target is not an array (got %s)", ex.Array.Type())
			ex.SetType(types.Any)
		}
	case *ast.ArrayLit:
		c.checkArrayLit(ex)
	case *ast.NewInstance:
		c.checkExpr0All(ex.Fields)
		ex.SetType(types.Class(ex.ClassName))
	case *ast.DataLit:
		ex.SetType(types.Data)
	case *ast.Cast:
		c.checkExpr(ex.Value)
	}
}

func (c *Checker) checkExpr0All(fields map[string]ast.Expr) {
	for k, v := range fields {
		c.checkExpr(v)
		fields[k] = v
	}
}

func (c *Checker) checkArrayLit(ex *ast.ArrayLit) {
	if len(ex.Elems) == 0 {
		ex.SetType(types.Array(types.Any))
		return
	}
	for _, el := range ex.Elems {
		c.checkExpr(el)
	}
	elemType := ex.Elems[0].Type()
	for i := 1; i < len(ex.Elems); i++ {
		u, ok := types.Unify(elemType, ex.Elems[i].Type())
		if !ok {
			c.fail("ArrayTypeError", "array element %d has incompatible type %s (expected %s)", i, ex.Elems[i].Type(), elemType)
			continue
		}
		elemType = u
	}
	for i, el := range ex.Elems {
		ex.Elems[i] = c.coerce(el, elemType)
	}
	ex.SetType(types.Array(elemType))
}

func (c *Checker) checkBinOp(ex *ast.BinOp) {
	c.checkExpr(ex.Left)
	c.checkExpr(ex.Right)

	switch ex.Op {
	case "+":
		if ex.Left.Type().Kind == types.KindString || ex.Right.Type().Kind == types.KindString {
			ex.Left = c.coerce(ex.Left, types.String)
			ex.Right = c.coerce(ex.Right, types.String)
			ex.SetType(types.String)
			return
		}
		fallthrough
	case "-", "*", "/":
		ex.SetType(c.numericBinOp(ex))
	case "%":
		ex.Left = c.coerce(ex.Left, types.Integer)
		ex.Right = c.coerce(ex.Right, types.Integer)
		ex.SetType(types.Integer)
	case "<", "<=", ">", ">=":
		c.numericBinOp(ex)
		ex.SetType(types.Boolean)
	case "==", "!=":
		ex.SetType(types.Boolean)
	case "&&", "||":
		ex.Left = c.coerce(ex.Left, types.Boolean)
		ex.Right = c.coerce(ex.Right, types.Boolean)
		ex.SetType(types.Boolean)
	default:
		c.fail("StackTypeError", "unknown binary operator %q", ex.Op)
		ex.SetType(types.Any)
	}
}

// numericBinOp promotes Integer/Integer to Integer and anything mixed
// with Real to Real, inserting casts as needed; returns the result type.
func (c *Checker) numericBinOp(ex *ast.BinOp) types.DataType {
	l, r := ex.Left.Type(), ex.Right.Type()
	result := types.Integer
	if l.Kind == types.KindReal || r.Kind == types.KindReal {
		result = types.Real
	}
	ex.Left = c.coerce(ex.Left, result)
	ex.Right = c.coerce(ex.Right, result)
	return result
}

func (c *Checker) checkUnOp(ex *ast.UnOp) {
	c.checkExpr(ex.Operand)
	switch ex.Op {
	case "-":
		if ex.Operand.Type().Kind != types.KindInteger && ex.Operand.Type().Kind != types.KindReal {
			c.fail("StackTypeError", "unary - requires Integer or Real, got %s", ex.Operand.Type())
		}
		ex.SetType(ex.Operand.Type())
	case "!":
		ex.Operand = c.coerce(ex.Operand, types.Boolean)
		ex.SetType(types.Boolean)
	default:
		c.fail("StackTypeError", "unknown unary operator %q", ex.Op)
		ex.SetType(types.Any)
	}
}

func (c *Checker) checkCall(ex *ast.Call) {
	c.checkExpr(ex.Callee)
	for i, a := range ex.Args {
		c.checkExpr(a)
		ex.Args[i] = a
	}
	// No arity or signature check happens here: the call gets an Any
	// result type. CheckCallSignature does that check given a resolved
	// FuncEntry, and neither this pass nor the edge-build pass calls it.
	ex.SetType(types.Any)
}

// CheckCallSignature verifies arity and force-casts each argument to
// its declared parameter type, per a resolved FuncEntry. It rewrites
// ex.Args in place, sets ex's type to fe.ReturnType, and reports any
// failure through c; it returns nothing.
func CheckCallSignature(c *Checker, ex *ast.Call, fe symtab.FuncEntry) {
	want := len(fe.ArgTypes)
	got := len(ex.Args)
	if fe.Params != nil && len(fe.Params) > 0 && fe.Params[0].IsParam && fe.Params[0].Name == "self" {
		// self is supplied implicitly by the receiver, not counted
		// against the caller's argument list.
		want--
	}
	if got != want {
		c.fail("FunctionTypeError", "wrong number of arguments: got %d, want %d", got, want)
	}
	n := got
	if want < n {
		n = want
	}
	for i := 0; i < n; i++ {
		ex.Args[i] = c.coerce(ex.Args[i], fe.ArgTypes[i])
	}
	if fe.IsTask && fe.ReturnType.Kind == types.KindData {
		c.fail("IllegalDataReturnError", "imported function %s must not declare a Data return type", fe.Name)
	}
	ex.SetType(fe.ReturnType)
}
