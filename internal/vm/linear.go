package vm

import (
	"strconv"

	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/types"
)

// execLinear runs every instruction in a Linear edge's payload
// in order, updating t.Stack (and t.Frames' top variable register via
// VarGet/VarSet). A local instruction pointer supports Branch/BranchNot
// jumps within the same Linear (used by short-circuit && / ||
// lowering, though this implementation's binOpOp lowering does not
// currently emit them — kept for forward compatibility and tests that
// exercise the instruction set directly).
func (t *Thread) execLinear(edge ir.Edge, edgeIdx int) *Error {
	ip := 0
	for ip < len(edge.Instrs) {
		in := edge.Instrs[ip]
		jumped, err := t.execInstr(in, edgeIdx, ip)
		if err != nil {
			return err
		}
		if jumped >= 0 {
			ip = jumped
			continue
		}
		ip++
	}
	return nil
}

// execInstr executes one instruction. It returns (jumpTo, err) where
// jumpTo is the next local instruction index to resume at for
// Branch/BranchNot, or -1 to simply advance to ip+1.
func (t *Thread) execInstr(in ir.Instr, edgeIdx, ip int) (int, *Error) {
	switch in.Op {
	case ir.OpPushNull:
		t.Stack.Push(ir.Void())
	case ir.OpPushBoolean:
		t.Stack.Push(ir.Bool(in.Bool))
	case ir.OpPushInteger:
		t.Stack.Push(ir.Int(in.Int))
	case ir.OpPushReal:
		t.Stack.Push(ir.Real(in.Real))
	case ir.OpPushString:
		t.Stack.Push(ir.Str(in.Str))
	case ir.OpPushFunction:
		t.Stack.Push(ir.Value{Kind: ir.VFunction, FuncName: in.Str})

	case ir.OpPop:
		if _, err := t.Stack.Pop(edgeIdx); err != nil {
			return 0, err
		}
	case ir.OpPopMarker:
		if err := t.Stack.PopMarker(edgeIdx); err != nil {
			return 0, err
		}
	case ir.OpDynamicPop:
		if _, err := t.Stack.DynamicPop(edgeIdx); err != nil {
			return 0, err
		}

	case ir.OpBranch:
		return in.LocalNext, nil
	case ir.OpBranchNot:
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if v.Kind != ir.VBoolean {
			return 0, newErr(StackTypeError, edgeIdx, ip, "branch_not operand is not Boolean")
		}
		if !v.Bool {
			return in.LocalNext, nil
		}

	case ir.OpNot:
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if v.Kind != ir.VBoolean {
			return 0, newErr(StackTypeError, edgeIdx, ip, "not operand is not Boolean")
		}
		t.Stack.Push(ir.Bool(!v.Bool))

	case ir.OpNeg:
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		switch v.Kind {
		case ir.VInteger:
			t.Stack.Push(ir.Int(-v.Int))
		case ir.VReal:
			t.Stack.Push(ir.Real(-v.Real))
		default:
			return 0, newErr(StackTypeError, edgeIdx, ip, "neg operand is not numeric")
		}

	case ir.OpAnd, ir.OpOr:
		r, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		l, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if l.Kind != ir.VBoolean || r.Kind != ir.VBoolean {
			return 0, newErr(StackLhsRhsTypeError, edgeIdx, ip, "and/or requires Boolean operands")
		}
		if in.Op == ir.OpAnd {
			t.Stack.Push(ir.Bool(l.Bool && r.Bool))
		} else {
			t.Stack.Push(ir.Bool(l.Bool || r.Bool))
		}

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod:
		if err := t.execArith(in.Op, edgeIdx, ip); err != nil {
			return 0, err
		}

	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		if err := t.execCompare(in.Op, edgeIdx, ip); err != nil {
			return 0, err
		}

	case ir.OpArray:
		vals := make([]ir.Value, in.ArrayLen)
		for i := in.ArrayLen - 1; i >= 0; i-- {
			v, err := t.Stack.Pop(edgeIdx)
			if err != nil {
				return 0, err
			}
			vals[i] = v
		}
		t.Stack.Push(ir.Arr(vals))

	case ir.OpArrayIndex:
		idx, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		arr, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if arr.Kind != ir.VArray {
			return 0, newErr(ArrayTypeError, edgeIdx, ip, "index target is not an Array")
		}
		if idx.Kind != ir.VInteger {
			return 0, newErr(StackTypeError, edgeIdx, ip, "array index is not Integer")
		}
		if idx.Int < 0 || int(idx.Int) >= len(arr.Arr) {
			return 0, newErr(ArrIdxOutOfBoundsError, edgeIdx, ip, "index %d out of bounds (len %d)", idx.Int, len(arr.Arr))
		}
		t.Stack.Push(arr.Arr[idx.Int])

	case ir.OpInstance:
		fields := make(map[string]ir.Value, len(in.FieldNames))
		for i := len(in.FieldNames) - 1; i >= 0; i-- {
			v, err := t.Stack.Pop(edgeIdx)
			if err != nil {
				return 0, err
			}
			fields[in.FieldNames[i]] = v
		}
		t.Stack.Push(ir.Instance(in.ClassName, fields))

	case ir.OpProj:
		recv, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if recv.Kind != ir.VInstance {
			return 0, newErr(InstanceTypeError, edgeIdx, ip, "projection target is not an Instance")
		}
		fv, ok := recv.Fields[in.Field]
		if !ok {
			return 0, newErr(InstanceTypeError, edgeIdx, ip, "unknown field %q on instance of %s", in.Field, recv.ClassName)
		}
		t.Stack.Push(fv)

	case ir.OpVarGet:
		v, err := t.Frames.VarGet(in.VarDef, edgeIdx)
		if err != nil {
			return 0, err
		}
		t.Stack.Push(v)

	case ir.OpVarSet:
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if err := t.Frames.VarSet(in.VarDef, v, edgeIdx); err != nil {
			return 0, err
		}

	case ir.OpLen:
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		if v.Kind != ir.VArray {
			return 0, newErr(ArrayTypeError, edgeIdx, ip, "len operand is not an Array")
		}
		t.Stack.Push(ir.Int(int64(len(v.Arr))))

	case ir.OpCast:
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return 0, err
		}
		cast, cerr := castValue(v, in.CastType)
		if cerr != nil {
			return 0, newErr(CastError, edgeIdx, ip, "%s", cerr.Error())
		}
		t.Stack.Push(cast)

	default:
		return 0, newErr(StackTypeError, edgeIdx, ip, "unknown instruction op %d", in.Op)
	}
	return -1, nil
}

func (t *Thread) execArith(op ir.InstrOp, edgeIdx, ip int) *Error {
	r, err := t.Stack.Pop(edgeIdx)
	if err != nil {
		return err
	}
	l, err := t.Stack.Pop(edgeIdx)
	if err != nil {
		return err
	}

	if op == ir.OpAdd && l.Kind == ir.VString && r.Kind == ir.VString {
		t.Stack.Push(ir.Str(l.Str + r.Str))
		return nil
	}
	if op == ir.OpMod {
		if l.Kind != ir.VInteger || r.Kind != ir.VInteger {
			return newErr(StackLhsRhsTypeError, edgeIdx, ip, "mod requires Integer operands")
		}
		if r.Int == 0 {
			return newErr(StackLhsRhsTypeError, edgeIdx, ip, "mod by zero")
		}
		t.Stack.Push(ir.Int(l.Int % r.Int))
		return nil
	}

	if l.Kind == ir.VInteger && r.Kind == ir.VInteger {
		var res int64
		switch op {
		case ir.OpAdd:
			res = l.Int + r.Int
		case ir.OpSub:
			res = l.Int - r.Int
		case ir.OpMul:
			res = l.Int * r.Int
		case ir.OpDiv:
			if r.Int == 0 {
				return newErr(StackLhsRhsTypeError, edgeIdx, ip, "division by zero")
			}
			res = l.Int / r.Int
		}
		t.Stack.Push(ir.Int(res))
		return nil
	}

	lr, lok := toReal(l)
	rr, rok := toReal(r)
	if !lok || !rok {
		return newErr(StackLhsRhsTypeError, edgeIdx, ip, "arithmetic requires numeric operands")
	}
	var res float64
	switch op {
	case ir.OpAdd:
		res = lr + rr
	case ir.OpSub:
		res = lr - rr
	case ir.OpMul:
		res = lr * rr
	case ir.OpDiv:
		res = lr / rr
	}
	t.Stack.Push(ir.Real(res))
	return nil
}

func (t *Thread) execCompare(op ir.InstrOp, edgeIdx, ip int) *Error {
	r, err := t.Stack.Pop(edgeIdx)
	if err != nil {
		return err
	}
	l, err := t.Stack.Pop(edgeIdx)
	if err != nil {
		return err
	}

	if op == ir.OpEq || op == ir.OpNe {
		eq := valuesEqual(l, r)
		if op == ir.OpNe {
			eq = !eq
		}
		t.Stack.Push(ir.Bool(eq))
		return nil
	}

	lr, lok := toReal(l)
	rr, rok := toReal(r)
	if !lok || !rok {
		return newErr(StackLhsRhsTypeError, edgeIdx, ip, "comparison requires numeric operands")
	}
	var res bool
	switch op {
	case ir.OpLt:
		res = lr < rr
	case ir.OpLe:
		res = lr <= rr
	case ir.OpGt:
		res = lr > rr
	case ir.OpGe:
		res = lr >= rr
	}
	t.Stack.Push(ir.Bool(res))
	return nil
}

func toReal(v ir.Value) (float64, bool) {
	switch v.Kind {
	case ir.VInteger:
		return float64(v.Int), true
	case ir.VReal:
		return v.Real, true
	default:
		return 0, false
	}
}

func valuesEqual(a, b ir.Value) bool {
	if a.Kind != b.Kind {
		af, aok := toReal(a)
		bf, bok := toReal(b)
		if aok && bok {
			return af == bf
		}
		return false
	}
	switch a.Kind {
	case ir.VBoolean:
		return a.Bool == b.Bool
	case ir.VInteger:
		return a.Int == b.Int
	case ir.VReal:
		return a.Real == b.Real
	case ir.VString, ir.VData, ir.VIntermediateResult:
		return a.Str == b.Str
	case ir.VVoid:
		return true
	case ir.VArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !valuesEqual(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func castValue(v ir.Value, target types.DataType) (ir.Value, error) {
	switch target.Kind {
	case types.KindReal:
		if v.Kind == ir.VInteger {
			return ir.Real(float64(v.Int)), nil
		}
		return v, nil
	case types.KindString:
		return ir.Str(stringify(v)), nil
	case types.KindIntermediateResult:
		if v.Kind == ir.VData {
			return ir.IntermediateResult(v.Str), nil
		}
		return v, nil
	default:
		return v, nil
	}
}

func stringify(v ir.Value) string {
	switch v.Kind {
	case ir.VString:
		return v.Str
	case ir.VBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case ir.VInteger:
		return strconv.FormatInt(v.Int, 10)
	case ir.VReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case ir.VVoid:
		return "null"
	default:
		return ""
	}
}
