package edgebuild

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/brane-run/brane/internal/ast"
	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/symtab"
	"github.com/brane-run/brane/internal/types"
)

// Builder drives the edge-build pass over a type-checked AST.
type Builder struct {
	errs *multierror.Error
}

func New() *Builder { return &Builder{} }

func (b *Builder) Errors() []error {
	if b.errs == nil {
		return nil
	}
	return b.errs.Errors
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = multierror.Append(b.errs, fmt.Errorf(format, args...))
}

// Build compiles the top-level block and every FuncDef found within it
// (top-level funcs only — methods are compiled alongside their class's
// functions) into a flat ir.Workflow.
func (b *Builder) Build(block *ast.Block) ir.Workflow {
	wf := ir.Workflow{Funcs: map[string][]ir.Edge{}, Results: map[string]ir.EdgeIdx{}}

	topBuf := b.buildBlock(block)
	topBuf.WriteStop()
	wf.Graph = topBuf.Flatten()

	for _, s := range block.Stmts {
		b.collectFuncs(s, &wf)
	}
	return wf
}

func (b *Builder) collectFuncs(stmt ast.Stmt, wf *ir.Workflow) {
	switch s := stmt.(type) {
	case *ast.FuncDef:
		wf.FuncDefOf(s.Name)
		wf.Funcs[s.Name] = b.buildFunc(s)
	case *ast.ClassDef:
		for _, m := range s.Methods {
			name := s.Name + "." + m.Name
			wf.FuncDefOf(name)
			wf.Funcs[name] = b.buildFunc(m)
		}
	}
}

func (b *Builder) buildFunc(fn *ast.FuncDef) []ir.Edge {
	buf := b.buildBlock(fn.Body)
	if !buf.FullyReturns() {
		buf.WriteReturn()
	}
	return buf.Flatten()
}

// buildBlock walks a statement sequence, writing into a fresh buffer.
func (b *Builder) buildBlock(block *ast.Block) *Buffer {
	buf := NewBuffer()
	for _, stmt := range block.Stmts {
		b.buildStmt(buf, stmt, block.Table)
	}
	return buf
}

func (b *Builder) buildStmt(buf *Buffer, stmt ast.Stmt, table *symtab.Table) {
	switch s := stmt.(type) {
	case *ast.ImportStmt, *ast.FuncDef, *ast.ClassDef:
		// compile-time only; FuncDef/ClassDef bodies are compiled
		// separately via collectFuncs.
	case *ast.LetAssign:
		instrs := b.exprInstrs(s.Value)
		instrs = append(instrs, ir.Instr{Op: ir.OpVarSet, VarDef: s.VarIdx})
		buf.WriteLinear(instrs)
	case *ast.Assign:
		instrs := b.exprInstrs(s.Value)
		instrs = append(instrs, b.assignTargetInstrs(s.Target)...)
		buf.WriteLinear(instrs)
	case *ast.If:
		thenBuf := b.buildBlock(s.Then)
		var elseBuf *Buffer
		if s.Else != nil {
			elseBuf = b.buildBlock(s.Else)
		}
		buf.WriteBranch(b.exprInstrs(s.Cond), thenBuf, elseBuf)
	case *ast.For:
		if s.Init != nil {
			b.buildStmt(buf, s.Init, table)
		}
		bodyBuf := NewBuffer()
		for _, st := range s.Body.Stmts {
			b.buildStmt(bodyBuf, st, s.Body.Table)
		}
		if s.Post != nil {
			b.buildStmt(bodyBuf, s.Post, table)
		}
		cond := []ir.Instr{{Op: ir.OpPushBoolean, Bool: true}}
		if s.Cond != nil {
			cond = b.exprInstrs(s.Cond)
		}
		buf.WriteLoop(cond, bodyBuf)
	case *ast.While:
		bodyBuf := b.buildBlock(s.Body)
		buf.WriteLoop(b.exprInstrs(s.Cond), bodyBuf)
	case *ast.On:
		// `on location { ... }` scopes the block to a location. The
		// location is not recorded anywhere in the IR: On only splices
		// its body's statements into buf.
		for _, st := range s.Body.Stmts {
			b.buildStmt(buf, st, s.Body.Table)
		}
	case *ast.Parallel:
		var branchBufs []*Buffer
		for _, br := range s.Branches {
			bb := b.buildBlock(br)
			if s.Result != "" {
				// the branch's final expression value is left on the
				// stack for the Join to collect; buildBlock's last
				// statement is expected to be an ExprStmt/Return whose
				// value instructions already pushed it.
			}
			branchBufs = append(branchBufs, bb)
		}
		buf.WriteParallel(branchBufs, toIRMerge(s.Merge))
		if s.Result != "" {
			buf.WriteLinear([]ir.Instr{{Op: ir.OpVarSet, VarDef: s.ResultVarIdx}})
		}
	case *ast.Return:
		var instrs []ir.Instr
		if s.Value != nil {
			instrs = b.exprInstrs(s.Value)
		}
		if len(instrs) > 0 {
			buf.WriteLinear(instrs)
		}
		buf.WriteReturn()
	case *ast.ExprStmt:
		if call, ok := s.Value.(*ast.Call); ok {
			b.buildCallStmt(buf, call)
			return
		}
		instrs := b.exprInstrs(s.Value)
		instrs = append(instrs, ir.Instr{Op: ir.OpPop})
		buf.WriteLinear(instrs)
	default:
		b.fail("edgebuild: unhandled statement type %T", stmt)
	}
}

func toIRMerge(m ast.MergeStrategy) ir.MergeStrategy {
	switch m {
	case ast.MergeFirst:
		return ir.MergeFirst
	case ast.MergeFirstBlocking:
		return ir.MergeFirstBlocking
	case ast.MergeLast:
		return ir.MergeLast
	case ast.MergeSum:
		return ir.MergeSum
	case ast.MergeProduct:
		return ir.MergeProduct
	case ast.MergeMax:
		return ir.MergeMax
	case ast.MergeMin:
		return ir.MergeMin
	case ast.MergeAll:
		return ir.MergeAll
	default:
		return ir.MergeNone
	}
}

// builtinNames are dispatched inline at the Call site (thread.go's
// EdgeBuiltin handling) rather than routed through Workflow.Funcs. len
// is handled separately: it is pure, so exprInstrs lowers it straight
// to an OpLen instruction instead of an edge.
var builtinNames = map[string]bool{
	"print": true, "println": true, "commit_result": true,
}

// buildCallStmt lowers a statement-level function call. A builtin
// (print, println, commit_result) emits its argument instructions
// followed by a Builtin edge; a call to a user function emits argument
// instructions followed by a Call/Return pair (Return belongs to the
// callee's own buffer).
func (b *Builder) buildCallStmt(buf *Buffer, call *ast.Call) {
	if id, ok := call.Callee.(*ast.Identifier); ok && builtinNames[id.Name] {
		var instrs []ir.Instr
		for _, a := range call.Args {
			instrs = append(instrs, b.exprInstrs(a)...)
		}
		if len(instrs) > 0 {
			buf.WriteLinear(instrs)
		}
		buf.WriteBuiltin(id.Name, len(call.Args))
		return
	}
	if id, ok := call.Callee.(*ast.Identifier); ok && id.Name == "len" {
		instrs := append(b.exprInstrs(call.Args[0]), ir.Instr{Op: ir.OpLen}, ir.Instr{Op: ir.OpPop})
		buf.WriteLinear(instrs)
		return
	}
	instrs := b.exprInstrs(call.Callee)
	for _, a := range call.Args {
		instrs = append(instrs, b.exprInstrs(a)...)
	}
	buf.WriteLinear(instrs)
	buf.WriteCall()
}

func (b *Builder) assignTargetInstrs(target ast.Expr) []ir.Instr {
	switch t := target.(type) {
	case *ast.Identifier:
		if t.ResolvedVar != nil {
			return []ir.Instr{{Op: ir.OpVarSet, VarDef: *t.ResolvedVar}}
		}
		return []ir.Instr{{Op: ir.OpVarSet}}
	case *ast.Proj:
		return append(b.exprInstrs(t.Left), ir.Instr{Op: ir.OpProj, Field: t.Field})
	default:
		b.fail("edgebuild: unsupported assignment target %T", target)
		return nil
	}
}

// exprInstrs lowers an expression into a sequence of stack-machine
// instructions that leave exactly one value on the stack.
func (b *Builder) exprInstrs(e ast.Expr) []ir.Instr {
	switch ex := e.(type) {
	case *ast.Literal:
		return []ir.Instr{literalInstr(ex)}
	case *ast.Identifier:
		if ex.ResolvedFunc != nil && ex.ResolvedVar == nil {
			return []ir.Instr{{Op: ir.OpPushFunction, Str: ex.Name}}
		}
		def := 0
		if ex.ResolvedVar != nil {
			def = *ex.ResolvedVar
		}
		return []ir.Instr{{Op: ir.OpVarGet, VarDef: def}}
	case *ast.BinOp:
		instrs := append(b.exprInstrs(ex.Left), b.exprInstrs(ex.Right)...)
		return append(instrs, ir.Instr{Op: binOpOp(ex.Op)})
	case *ast.UnOp:
		instrs := b.exprInstrs(ex.Operand)
		op := ir.OpNeg
		if ex.Op == "!" {
			op = ir.OpNot
		}
		return append(instrs, ir.Instr{Op: op})
	case *ast.Call:
		if id, ok := ex.Callee.(*ast.Identifier); ok && id.Name == "len" {
			return append(b.exprInstrs(ex.Args[0]), ir.Instr{Op: ir.OpLen})
		}
		instrs := b.exprInstrs(ex.Callee)
		for _, a := range ex.Args {
			instrs = append(instrs, b.exprInstrs(a)...)
		}
		// value-position calls are lowered the same as statement-level
		// calls from the stack-machine's point of view: Call consumes
		// the callee and args, Return leaves the result on the stack.
		return instrs
	case *ast.Proj:
		instrs := b.exprInstrs(ex.Left)
		return append(instrs, ir.Instr{Op: ir.OpProj, Field: ex.Field})
	case *ast.Index:
		instrs := append(b.exprInstrs(ex.Array), b.exprInstrs(ex.Idx)...)
		return append(instrs, ir.Instr{Op: ir.OpArrayIndex, CastType: ex.Type()})
	case *ast.ArrayLit:
		var instrs []ir.Instr
		for _, el := range ex.Elems {
			instrs = append(instrs, b.exprInstrs(el)...)
		}
		elemType := ex.Type()
		if elemType.Elem != nil {
			elemType = *elemType.Elem
		}
		return append(instrs, ir.Instr{Op: ir.OpArray, ArrayLen: len(ex.Elems), CastType: elemType})
	case *ast.NewInstance:
		var instrs []ir.Instr
		def := 0
		if ex.ResolvedClass != nil {
			def = *ex.ResolvedClass
		}
		names := make([]string, 0, len(ex.Fields))
		for name := range ex.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			instrs = append(instrs, b.exprInstrs(ex.Fields[name])...)
		}
		return append(instrs, ir.Instr{Op: ir.OpInstance, Def: def, ClassName: ex.ClassName, FieldNames: names})
	case *ast.DataLit:
		return []ir.Instr{{Op: ir.OpPushString, Str: ex.Name}}
	case *ast.Cast:
		instrs := b.exprInstrs(ex.Value)
		return append(instrs, ir.Instr{Op: ir.OpCast, CastType: ex.To})
	default:
		b.fail("edgebuild: unhandled expression type %T", e)
		return nil
	}
}

func literalInstr(lit *ast.Literal) ir.Instr {
	switch lit.Type().Kind {
	case types.KindBoolean:
		return ir.Instr{Op: ir.OpPushBoolean, Bool: lit.Bool}
	case types.KindInteger:
		return ir.Instr{Op: ir.OpPushInteger, Int: lit.Int}
	case types.KindReal:
		return ir.Instr{Op: ir.OpPushReal, Real: lit.Real}
	case types.KindString:
		return ir.Instr{Op: ir.OpPushString, Str: lit.Str}
	default:
		return ir.Instr{Op: ir.OpPushNull}
	}
}

func binOpOp(op string) ir.InstrOp {
	switch op {
	case "+":
		return ir.OpAdd
	case "-":
		return ir.OpSub
	case "*":
		return ir.OpMul
	case "/":
		return ir.OpDiv
	case "%":
		return ir.OpMod
	case "==":
		return ir.OpEq
	case "!=":
		return ir.OpNe
	case "<":
		return ir.OpLt
	case "<=":
		return ir.OpLe
	case ">":
		return ir.OpGt
	case ">=":
		return ir.OpGe
	case "&&":
		return ir.OpAnd
	case "||":
		return ir.OpOr
	default:
		return ir.OpAdd
	}
}
