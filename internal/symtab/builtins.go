package symtab

import "github.com/brane-run/brane/internal/types"

// builtinFuncs are the functions every compile unit resolves without an
// import. print/println and commit_result are dispatched inline at the
// Call site (see internal/vm/thread.go's EdgeBuiltin handling); len is
// pure and is lowered straight to an OpLen instruction.
var builtinFuncs = []FuncEntry{
	{Name: "print", ArgTypes: []types.DataType{types.Any}, ReturnType: types.Void},
	{Name: "println", ArgTypes: []types.DataType{types.Any}, ReturnType: types.Void},
	{Name: "len", ArgTypes: []types.DataType{types.Array(types.Any)}, ReturnType: types.Integer},
	{Name: "commit_result", ArgTypes: []types.DataType{types.IntermediateResult, types.String}, ReturnType: types.Void},
}

func seedBuiltins(root *Table) {
	for _, fe := range builtinFuncs {
		root.DefineFunction(fe)
	}
}
