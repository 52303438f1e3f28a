package symtab

// CompileState remembers definitions from prior REPL snippets and
// injects them into the next snippet's global table, with a
// line-number offset applied to all ranges so diagnostics stay correct
// in the concatenated session source.
type CompileState struct {
	root       *Table
	lineOffset int
}

// NewCompileState creates a fresh session state for a fresh REPL
// session (or a one-shot, non-REPL compile), with the builtin functions
// (print, println, len, commit_result) already defined in its root
// table.
func NewCompileState() *CompileState {
	root := NewTable(nil)
	seedBuiltins(root)
	return &CompileState{root: root}
}

// RootTable returns the persistent table prior snippets have been
// merged into. A new snippet's outermost block table is parented to
// this.
func (c *CompileState) RootTable() *Table {
	return c.root
}

// LineOffset is the number of lines contributed by all prior snippets;
// a fresh snippet's ranges are offset by this amount before merging.
func (c *CompileState) LineOffset() int {
	return c.lineOffset
}

// Advance records that the just-compiled snippet contributed
// lineCount lines, so the next snippet's offset accounts for it.
func (c *CompileState) Advance(lineCount int) {
	c.lineOffset += lineCount
}

// NewSnippetTable returns a fresh outermost-block table for the next
// snippet, parented to the persistent root so names from prior
// snippets resolve.
func (c *CompileState) NewSnippetTable() *Table {
	return NewTable(c.root)
}
