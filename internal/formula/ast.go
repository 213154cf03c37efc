package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wrkportal/sheetengine/internal/cell"
)

// Value is the result of evaluating a node: float64, string, bool or nil.
type Value = any

// Node is an expression tree node. Evaluation is post-order: a function
// node evaluates its arguments before itself, so the innermost call always
// runs first.
type Node interface {
	Eval(env *env) (Value, error)
	String() string
}

// NumberNode is a numeric literal.
type NumberNode struct {
	Value float64
}

func (n *NumberNode) Eval(*env) (Value, error) { return n.Value, nil }

func (n *NumberNode) String() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// StringNode is a double-quoted literal, used verbatim.
type StringNode struct {
	Value string
}

func (n *StringNode) Eval(*env) (Value, error) { return n.Value, nil }

func (n *StringNode) String() string {
	return `"` + strings.ReplaceAll(n.Value, `"`, `""`) + `"`
}

// ColumnNode references a column of the current row by name.
type ColumnNode struct {
	Name string
}

func (n *ColumnNode) Eval(e *env) (Value, error) {
	v, ok := e.lookup(n.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedColumn, n.Name)
	}
	return v, nil
}

func (n *ColumnNode) String() string {
	return "[" + n.Name + "]"
}

// CallNode applies a registered function to its argument nodes.
type CallNode struct {
	Func *Func
	Args []Node
}

func (n *CallNode) Eval(e *env) (Value, error) {
	if n.Func.lazy != nil {
		return n.Func.lazy(e, n.Args)
	}

	args := make([]Value, len(n.Args))
	for i, arg := range n.Args {
		v, err := arg.Eval(e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return n.Func.Call(args)
}

func (n *CallNode) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Func.Name + "(" + strings.Join(args, ", ") + ")"
}

// CompareNode is a binary comparison, the condition form used by IF.
type CompareNode struct {
	Op    string
	Left  Node
	Right Node
}

func (n *CompareNode) Eval(e *env) (Value, error) {
	left, err := n.Left.Eval(e)
	if err != nil {
		return nil, err
	}
	right, err := n.Right.Eval(e)
	if err != nil {
		return nil, err
	}
	return compare(n.Op, left, right)
}

func (n *CompareNode) String() string {
	return n.Left.String() + " " + n.Op + " " + n.Right.String()
}

// compare uses numeric ordering when both sides are numbers and falls back
// to case-sensitive string ordering otherwise.
func compare(op string, left, right Value) (bool, error) {
	var c int
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		switch {
		case ln < rn:
			c = -1
		case ln > rn:
			c = 1
		}
	} else {
		c = strings.Compare(cell.String(left), cell.String(right))
	}

	switch op {
	case ">":
		return c > 0, nil
	case "<":
		return c < 0, nil
	case ">=":
		return c >= 0, nil
	case "<=":
		return c <= 0, nil
	case "==", "=":
		return c == 0, nil
	case "!=", "<>":
		return c != 0, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

// walk visits every node in pre-order.
func walk(n Node, visit func(Node)) {
	visit(n)
	switch x := n.(type) {
	case *CallNode:
		for _, a := range x.Args {
			walk(a, visit)
		}
	case *CompareNode:
		walk(x.Left, visit)
		walk(x.Right, visit)
	}
}
