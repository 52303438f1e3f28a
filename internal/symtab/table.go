package symtab

import "github.com/brane-run/brane/internal/diag"
import "github.com/brane-run/brane/internal/types"

// FuncEntry describes a resolved function or task signature.
type FuncEntry struct {
	Name       string
	Range      diag.Range
	Params     []VarEntry
	ArgTypes   []types.DataType
	ReturnType types.DataType
	// IsTask marks an imported (external) function invoked via a Node
	// edge rather than a Call/Return pair.
	IsTask bool
	// Package/Version identify the imported package this task came
	// from; empty for user-defined functions.
	Package string
	Version string
}

// VarEntry describes a resolved variable, function parameter, or class
// property.
type VarEntry struct {
	Name       string
	Range      diag.Range
	Type       types.DataType
	IsParam    bool
	IsProperty bool
}

// ClassEntry describes a resolved class: its own property/method table.
type ClassEntry struct {
	Name  string
	Range diag.Range
	Table *Table
}

// Table is one lexical scope: a block, function body, or class body.
// Scopes are parented; lookups walk up to the root (which, for the
// outermost block of a snippet, is the injected CompileState table).
type Table struct {
	Parent *Table

	Functions map[string]int // name -> index into owning FuncEntry TableList
	Tasks     map[string]int
	Classes   map[string]int
	Variables map[string]int

	Funcs *TableList[FuncEntry]
	Cls   *TableList[ClassEntry]
	Vars  *TableList[VarEntry]
}

// NewTable creates a fresh child scope under parent. If parent is nil
// this is a root scope and owns fresh TableLists at offset 0; otherwise
// it shares the parent's TableLists (appending grows the shared list,
// keeping indices globally addressable across the whole compile).
func NewTable(parent *Table) *Table {
	t := &Table{
		Parent:    parent,
		Functions: map[string]int{},
		Tasks:     map[string]int{},
		Classes:   map[string]int{},
		Variables: map[string]int{},
	}
	if parent == nil {
		t.Funcs = NewTableList[FuncEntry](0)
		t.Cls = NewTableList[ClassEntry](0)
		t.Vars = NewTableList[VarEntry](0)
	} else {
		t.Funcs = parent.Funcs
		t.Cls = parent.Cls
		t.Vars = parent.Vars
	}
	return t
}

func (t *Table) DefineFunction(e FuncEntry) int {
	idx := t.Funcs.Push(e)
	if e.IsTask {
		t.Tasks[e.Name] = idx
	} else {
		t.Functions[e.Name] = idx
	}
	return idx
}

func (t *Table) DefineVariable(e VarEntry) int {
	idx := t.Vars.Push(e)
	t.Variables[e.Name] = idx
	return idx
}

func (t *Table) DefineClass(e ClassEntry) int {
	idx := t.Cls.Push(e)
	t.Classes[e.Name] = idx
	return idx
}

// LookupVariable walks this scope and its ancestors.
func (t *Table) LookupVariable(name string) (VarEntry, int, bool) {
	for s := t; s != nil; s = s.Parent {
		if idx, ok := s.Variables[name]; ok {
			return t.Vars.Index(idx), idx, true
		}
	}
	return VarEntry{}, 0, false
}

func (t *Table) LookupFunction(name string) (FuncEntry, int, bool) {
	for s := t; s != nil; s = s.Parent {
		if idx, ok := s.Functions[name]; ok {
			return t.Funcs.Index(idx), idx, true
		}
		if idx, ok := s.Tasks[name]; ok {
			return t.Funcs.Index(idx), idx, true
		}
	}
	return FuncEntry{}, 0, false
}

func (t *Table) LookupClass(name string) (ClassEntry, int, bool) {
	for s := t; s != nil; s = s.Parent {
		if idx, ok := s.Classes[name]; ok {
			return t.Cls.Index(idx), idx, true
		}
	}
	return ClassEntry{}, 0, false
}

// KnownVariableNames collects every variable name visible from t,
// nearest scope first — used to build "did you mean" suggestions.
func (t *Table) KnownVariableNames() []string {
	var names []string
	seen := map[string]bool{}
	for s := t; s != nil; s = s.Parent {
		for name := range s.Variables {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
