package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/ast"
	"github.com/brane-run/brane/internal/compiler/resolve"
	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/symtab"
	"github.com/brane-run/brane/internal/types"
	"github.com/brane-run/brane/internal/vm"
	"github.com/brane-run/brane/internal/vm/plugin"
)

// emptyPackages/emptyData satisfy resolve.PackageIndex/resolve.DataIndex
// for a snippet that imports nothing and references no datasets.
type emptyPackages struct{}

func (emptyPackages) Lookup(name, version string) (resolve.PackageInfo, error) {
	return resolve.PackageInfo{}, nil
}

type emptyData struct{}

func (emptyData) Has(name string) bool { return false }

func intLit(v int64) *ast.Literal {
	return &ast.Literal{Kind: types.KindInteger, Int: v}
}

func TestCompile_SimpleArithmeticReturn(t *testing.T) {
	block := &ast.Block{
		Stmts: []ast.Stmt{
			&ast.Return{
				Value: &ast.BinOp{
					Op:    "+",
					Left:  intLit(1),
					Right: intLit(2),
				},
			},
		},
	}

	state := symtab.NewCompileState()
	res := Compile(state, emptyPackages{}, emptyData{}, block, 0)
	require.Empty(t, ErrorStrings(res), "compile errors: %v", res.Errors)

	th := vm.NewThread(&res.Workflow, plugin.NewLocal(), nil)
	v, verr := th.Run(context.Background())
	require.Nil(t, verr)
	assert.Equal(t, ir.Int(3), v)
}

func TestCompile_UndefinedVariableFails(t *testing.T) {
	block := &ast.Block{
		Stmts: []ast.Stmt{
			&ast.ExprStmt{Value: &ast.Identifier{Name: "nope"}},
		},
	}
	state := symtab.NewCompileState()
	res := Compile(state, emptyPackages{}, emptyData{}, block, 0)
	assert.NotEmpty(t, res.Errors)
}
