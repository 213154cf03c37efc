package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_Tokenize(t *testing.T) {
	tokens, err := NewLexer(`IF([Unit Price] >= 10, "say ""hi""", Total Sales)`).Tokenize()
	require.NoError(t, err)

	var types []TokenType
	var values []string
	for _, tok := range tokens {
		types = append(types, tok.Type)
		values = append(values, tok.Value)
	}

	assert.Equal(t, []TokenType{
		TokenName, TokenLeftParen, TokenBracketName, TokenCompare, TokenNumber, TokenComma,
		TokenString, TokenComma, TokenName, TokenRightParen, TokenEOF,
	}, types)
	assert.Equal(t, []string{
		"IF", "(", "Unit Price", ">=", "10", ",", `say "hi"`, ",", "Total Sales", ")", "",
	}, values)
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `CONCAT("abc`},
		{"unterminated bracket", `SUM([Price`},
		{"empty bracket", `SUM([ ])`},
		{"stray closing bracket", `SUM(A])`},
		{"lone bang", `IF(A ! B, 1, 2)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input).Tokenize()
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
		})
	}
}

func TestLexer_NumericLookingNames(t *testing.T) {
	tokens, err := NewLexer("SUM(Inf, NaN, 1e3, -2)").Tokenize()
	require.NoError(t, err)

	assert.Equal(t, TokenName, tokens[2].Type)
	assert.Equal(t, TokenName, tokens[4].Type)
	assert.Equal(t, TokenNumber, tokens[6].Type)
	assert.Equal(t, TokenNumber, tokens[8].Type)
}

func TestParse_Normalizes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SUM(A,B)", "SUM([A], [B])"},
		{"=sum( a , b )", "SUM([a], [b])"},
		{"ROUND(DIVIDE(SUM(A,B),C),2)", "ROUND(DIVIDE(SUM([A], [B]), [C]), 2)"},
		{`IF(Sales > 1000, "High", "Low")`, `IF([Sales] > 1000, "High", "Low")`},
		{`CONCAT(First Name, " ", [Last Name])`, `CONCAT([First Name], " ", [Last Name])`},
		{"(A)", "[A]"},
		{"42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "   "},
		{name: "only equals", input: "="},
		{name: "unmatched open paren", input: "SUM(A,B"},
		{name: "extra close paren", input: "SUM(A,B))"},
		{name: "dangling comma", input: "SUM(A,)"},
		{name: "missing right operand", input: "IF(A >, 1, 2)"},
		{name: "two terms", input: `A "x"`},
		{name: "unknown function", input: "FOO(A)", wantErr: ErrUnknownFunction},
		{name: "too few args", input: "DIVIDE(A)", wantErr: ErrArity},
		{name: "too many args", input: "UPPER(A, B)", wantErr: ErrArity},
		{name: "no args", input: "SUM()", wantErr: ErrArity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var syn *SyntaxError
			assert.ErrorAs(t, err, &syn)
		})
	}
}

func TestRegistry(t *testing.T) {
	fn, ok := Lookup("concat")
	require.True(t, ok)
	assert.Equal(t, "CONCAT", fn.Name)

	names := Names()
	for _, want := range []string{"SUM", "SUBTRACT", "MULTIPLY", "DIVIDE", "AVERAGE", "PERCENT",
		"MAX", "MIN", "CONCAT", "ROUND", "UPPER", "LOWER", "IF"} {
		assert.Contains(t, names, want)
	}

	assert.Panics(t, func() {
		Register(Func{Name: "sum", MinArgs: 1, MaxArgs: 1, Call: fnAbs})
	})
}
