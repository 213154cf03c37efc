package formula

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/wrkportal/sheetengine/internal/cell"
)

// Variadic marks a function without an upper argument limit.
const Variadic = -1

// Func is a registered formula function. Call receives already evaluated
// arguments; functions that must control evaluation of their own
// arguments (IF) are built in.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int
	Call    func(args []Value) (Value, error)

	lazy func(e *env, args []Node) (Value, error)
}

func (f *Func) checkArity(n int) error {
	if n < f.MinArgs || (f.MaxArgs != Variadic && n > f.MaxArgs) {
		return fmt.Errorf("%w: %s takes %s, got %d", ErrArity, f.Name, f.arityText(), n)
	}
	return nil
}

func (f *Func) arityText() string {
	switch {
	case f.MaxArgs == Variadic:
		return fmt.Sprintf("at least %d", f.MinArgs)
	case f.MinArgs == f.MaxArgs:
		return strconv.Itoa(f.MinArgs)
	default:
		return fmt.Sprintf("%d to %d", f.MinArgs, f.MaxArgs)
	}
}

var (
	registry   = make(map[string]*Func)
	registryMu sync.RWMutex
)

// Register adds a function to the registry. Names are case-insensitive.
// Panics if a function with the same name is already registered.
func Register(f Func) {
	registryMu.Lock()
	defer registryMu.Unlock()

	f.Name = strings.ToUpper(f.Name)
	if _, exists := registry[f.Name]; exists {
		panic(fmt.Sprintf("formula function already registered: %s", f.Name))
	}
	if f.Call == nil && f.lazy == nil {
		panic(fmt.Sprintf("formula function %s has no implementation", f.Name))
	}
	registry[f.Name] = &f
}

// Lookup returns a registered function by name, ignoring case.
func Lookup(name string) (*Func, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := registry[strings.ToUpper(strings.TrimSpace(name))]
	return f, ok
}

// Names returns every registered function name, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	for _, f := range builtins() {
		Register(f)
	}
}

func builtins() []Func {
	return []Func{
		{Name: "SUM", MinArgs: 1, MaxArgs: Variadic, Call: fnSum},
		{Name: "SUBTRACT", MinArgs: 2, MaxArgs: 2, Call: fnSubtract},
		{Name: "MULTIPLY", MinArgs: 1, MaxArgs: Variadic, Call: fnMultiply},
		{Name: "DIVIDE", MinArgs: 2, MaxArgs: 2, Call: fnDivide},
		{Name: "AVERAGE", MinArgs: 1, MaxArgs: Variadic, Call: fnAverage},
		{Name: "PERCENT", MinArgs: 2, MaxArgs: 2, Call: fnPercent},
		{Name: "MAX", MinArgs: 1, MaxArgs: Variadic, Call: fnMax},
		{Name: "MIN", MinArgs: 1, MaxArgs: Variadic, Call: fnMin},
		{Name: "CONCAT", MinArgs: 1, MaxArgs: Variadic, Call: fnConcat},
		{Name: "ROUND", MinArgs: 1, MaxArgs: 2, Call: fnRound},
		{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Call: fnUpper},
		{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Call: fnLower},
		{Name: "ABS", MinArgs: 1, MaxArgs: 1, Call: fnAbs},
		{Name: "LEN", MinArgs: 1, MaxArgs: 1, Call: fnLen},
		{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Call: fnTrim},
		{Name: "IF", MinArgs: 2, MaxArgs: 3, lazy: fnIf},
	}
}

// toNumber coerces an argument. Booleans are not numbers.
func toNumber(v Value) (float64, bool) {
	return cell.ParseNumber(v)
}

// divScale is the number of fractional digits kept by division.
const divScale = 32

var hundred = decimal.NewFromInt(100)

// toDecimal coerces an argument for exact arithmetic. ParseNumber never
// yields NaN or Inf, so the conversion cannot fail.
func toDecimal(v Value) (decimal.Decimal, bool) {
	f, ok := toNumber(v)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func decimals(args []Value) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(args))
	for _, a := range args {
		if d, ok := toDecimal(a); ok {
			out = append(out, d)
		}
	}
	return out
}

func numbers(args []Value) []float64 {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if n, ok := toNumber(a); ok {
			out = append(out, n)
		}
	}
	return out
}

func fnSum(args []Value) (Value, error) {
	return decimal.Sum(decimal.Zero, decimals(args)...).InexactFloat64(), nil
}

func fnSubtract(args []Value) (Value, error) {
	a, aok := toDecimal(args[0])
	b, bok := toDecimal(args[1])
	if !aok || !bok {
		return 0.0, nil
	}
	return a.Sub(b).InexactFloat64(), nil
}

func fnMultiply(args []Value) (Value, error) {
	product := decimal.NewFromInt(1)
	for _, a := range args {
		d, ok := toDecimal(a)
		if !ok {
			return 0.0, nil
		}
		product = product.Mul(d)
	}
	return product.InexactFloat64(), nil
}

func fnDivide(args []Value) (Value, error) {
	a, aok := toDecimal(args[0])
	b, bok := toDecimal(args[1])
	if !aok || !bok || b.IsZero() {
		return 0.0, nil
	}
	return a.DivRound(b, divScale).InexactFloat64(), nil
}

func fnAverage(args []Value) (Value, error) {
	nums := decimals(args)
	if len(nums) == 0 {
		return 0.0, nil
	}
	sum := decimal.Sum(decimal.Zero, nums...)
	return sum.DivRound(decimal.NewFromInt(int64(len(nums))), divScale).InexactFloat64(), nil
}

func fnPercent(args []Value) (Value, error) {
	a, aok := toDecimal(args[0])
	b, bok := toDecimal(args[1])
	if !aok || !bok || b.IsZero() {
		return 0.0, nil
	}
	return a.Mul(hundred).DivRound(b, divScale).InexactFloat64(), nil
}

func fnMax(args []Value) (Value, error) {
	nums := numbers(args)
	if len(nums) == 0 {
		return 0.0, nil
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = math.Max(m, n)
	}
	return m, nil
}

func fnMin(args []Value) (Value, error) {
	nums := numbers(args)
	if len(nums) == 0 {
		return 0.0, nil
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = math.Min(m, n)
	}
	return m, nil
}

func fnConcat(args []Value) (Value, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(cell.String(a))
	}
	return b.String(), nil
}

// fnRound rounds half away from zero. A non-numeric value rounds to 0; a
// non-numeric digit count is an error.
func fnRound(args []Value) (Value, error) {
	digits := 0.0
	if len(args) == 2 {
		d, ok := toNumber(args[1])
		if !ok {
			return nil, fmt.Errorf("ROUND: decimals %q is not a number", cell.String(args[1]))
		}
		digits = math.Trunc(d)
	}
	digits = math.Max(-15, math.Min(15, digits))

	v, ok := toDecimal(args[0])
	if !ok {
		return 0.0, nil
	}
	return v.Round(int32(digits)).InexactFloat64(), nil
}

func fnUpper(args []Value) (Value, error) {
	return strings.ToUpper(cell.String(args[0])), nil
}

func fnLower(args []Value) (Value, error) {
	return strings.ToLower(cell.String(args[0])), nil
}

func fnAbs(args []Value) (Value, error) {
	v, ok := toNumber(args[0])
	if !ok {
		return 0.0, nil
	}
	return math.Abs(v), nil
}

func fnLen(args []Value) (Value, error) {
	return float64(utf8.RuneCountInString(cell.String(args[0]))), nil
}

// fnTrim strips surrounding whitespace and collapses inner runs to one space.
func fnTrim(args []Value) (Value, error) {
	return strings.Join(strings.Fields(cell.String(args[0])), " "), nil
}

// fnIf evaluates only the branch that is taken. With no else branch a
// false condition yields FALSE.
func fnIf(e *env, args []Node) (Value, error) {
	cond, err := args[0].Eval(e)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return args[1].Eval(e)
	}
	if len(args) == 3 {
		return args[2].Eval(e)
	}
	return false, nil
}

// Truthy reports whether a value counts as true in a condition: true,
// a non-zero number, yes/true/1, or any other non-empty text.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	if b, ok := cell.ParseBool(v); ok {
		return b
	}
	if n, ok := toNumber(v); ok {
		return n != 0
	}
	return !cell.IsBlank(v)
}
