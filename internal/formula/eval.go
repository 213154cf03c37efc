// Package formula implements the calculated-column expression language.
//
// Formulas are tokenized, parsed by recursive descent into a tree of
// literal, column, comparison and function nodes, and evaluated bottom-up
// against one row at a time. Evaluation never panics: callers of Evaluate
// receive ErrorValue when anything goes wrong.
package formula

import (
	"math"
	"regexp"
)

var sanitizeRegex = regexp.MustCompile(`[^A-Za-z0-9]`)

// Sanitize replaces every non-alphanumeric character with '_'.
func Sanitize(name string) string {
	return sanitizeRegex.ReplaceAllString(name, "_")
}

// Resolve looks up a column value in row. An exact name match wins,
// otherwise the first column whose sanitized name equals the sanitized
// reference is used. A row shorter than columns yields nil for the
// missing cells.
func Resolve(name string, row []any, columns []string) (any, bool) {
	i := columnIndex(name, columns)
	if i < 0 {
		return nil, false
	}
	return cellAt(row, i), true
}

func columnIndex(name string, columns []string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	want := Sanitize(name)
	for i, c := range columns {
		if Sanitize(c) == want {
			return i
		}
	}
	return -1
}

func cellAt(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

// env is the evaluation context of a single row.
type env struct {
	row     []any
	columns []string
	index   map[string]int // pre-resolved references, nil when unbound
}

func (e *env) lookup(name string) (any, bool) {
	if e.index != nil {
		i, ok := e.index[name]
		if !ok {
			return nil, false
		}
		return cellAt(e.row, i), true
	}
	return Resolve(name, e.row, e.columns)
}

// Program is a compiled formula, safe for concurrent use.
type Program struct {
	source string
	root   Node
	refs   []string
}

// Compile parses a formula once so it can be evaluated against many rows.
func Compile(formula string) (*Program, error) {
	root, err := Parse(formula)
	if err != nil {
		return nil, err
	}

	var refs []string
	seen := make(map[string]bool)
	walk(root, func(n Node) {
		if c, ok := n.(*ColumnNode); ok && !seen[c.Name] {
			seen[c.Name] = true
			refs = append(refs, c.Name)
		}
	})

	return &Program{source: formula, root: root, refs: refs}, nil
}

// Source returns the formula text the program was compiled from.
func (p *Program) Source() string { return p.source }

// String returns the normalized form of the parsed expression.
func (p *Program) String() string { return p.root.String() }

// References lists the column names the formula reads, in first-use order.
func (p *Program) References() []string {
	out := make([]string, len(p.refs))
	copy(out, p.refs)
	return out
}

// Eval evaluates the program against one row.
func (p *Program) Eval(row []any, columns []string) (any, error) {
	return p.run(&env{row: row, columns: columns})
}

// Bind resolves column references against a fixed header once. References
// that do not resolve are left out and fail at evaluation time.
func (p *Program) Bind(columns []string) *Bound {
	index := make(map[string]int, len(p.refs))
	for _, ref := range p.refs {
		if i := columnIndex(ref, columns); i >= 0 {
			index[ref] = i
		}
	}
	return &Bound{prog: p, columns: columns, index: index}
}

// Unresolved returns the references that do not match any of columns.
func (p *Program) Unresolved(columns []string) []string {
	var missing []string
	for _, ref := range p.refs {
		if columnIndex(ref, columns) < 0 {
			missing = append(missing, ref)
		}
	}
	return missing
}

func (p *Program) run(e *env) (any, error) {
	v, err := p.root.Eval(e)
	if err != nil {
		return nil, err
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, ErrNotFinite
	}
	return v, nil
}

// Bound is a program bound to a header, for evaluating many rows.
type Bound struct {
	prog    *Program
	columns []string
	index   map[string]int
}

// Eval evaluates the bound program against one row.
func (b *Bound) Eval(row []any) (any, error) {
	return b.prog.run(&env{row: row, columns: b.columns, index: b.index})
}

// Value evaluates one row and substitutes ErrorValue on failure.
func (b *Bound) Value(row []any) any {
	v, err := b.Eval(row)
	if err != nil {
		return ErrorValue
	}
	return v
}

// Evaluate parses and evaluates formula against a single row. It never
// fails: any parse or evaluation error yields ErrorValue.
func Evaluate(formula string, row []any, columns []string) any {
	prog, err := Compile(formula)
	if err != nil {
		return ErrorValue
	}
	v, err := prog.Eval(row, columns)
	if err != nil {
		return ErrorValue
	}
	return v
}
