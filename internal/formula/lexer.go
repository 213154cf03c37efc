package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenName        // function name or bare column reference
	TokenBracketName // [Column Name]
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenCompare
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of formula"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenName:
		return "name"
	case TokenBracketName:
		return "bracketed name"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenComma:
		return "','"
	case TokenCompare:
		return "comparison operator"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

// Token is a single lexical unit with its byte offset in the source.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// nameDelimiters end a bare name. Spaces are allowed inside names so that
// column headers like "Unit Price" can be referenced without quoting.
const nameDelimiters = `(),"[]<>=!`

// Lexer turns formula text into tokens.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the whole input. The final token is always TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return Token{Type: TokenLeftParen, Value: "(", Pos: start}, nil
	case ')':
		l.pos++
		return Token{Type: TokenRightParen, Value: ")", Pos: start}, nil
	case ',':
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: start}, nil
	case '"':
		return l.scanString()
	case '[':
		return l.scanBracketName()
	case ']':
		return Token{}, &SyntaxError{Pos: start, Msg: "unexpected ']'"}
	case '<', '>', '=', '!':
		return l.scanCompare()
	}

	return l.scanWord(), nil
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

// scanString reads a double-quoted literal. A doubled quote inside the
// literal stands for one quote character.
func (l *Lexer) scanString() (Token, error) {
	start := l.pos
	l.pos++ // opening quote

	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '"' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '"' {
				b.WriteByte('"')
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: TokenString, Value: b.String(), Pos: start}, nil
		}
		b.WriteByte(ch)
		l.pos++
	}
	return Token{}, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
}

func (l *Lexer) scanBracketName() (Token, error) {
	start := l.pos
	end := strings.IndexByte(l.input[start+1:], ']')
	if end < 0 {
		return Token{}, &SyntaxError{Pos: start, Msg: "unterminated column reference"}
	}
	name := strings.TrimSpace(l.input[start+1 : start+1+end])
	l.pos = start + 1 + end + 1
	if name == "" {
		return Token{}, &SyntaxError{Pos: start, Msg: "empty column reference"}
	}
	return Token{Type: TokenBracketName, Value: name, Pos: start}, nil
}

func (l *Lexer) scanCompare() (Token, error) {
	start := l.pos
	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case ">=", "<=", "==", "!=", "<>":
		l.pos += 2
		return Token{Type: TokenCompare, Value: two, Pos: start}, nil
	}

	ch := l.input[l.pos]
	if ch == '!' {
		return Token{}, &SyntaxError{Pos: start, Msg: "unexpected '!'"}
	}
	l.pos++
	return Token{Type: TokenCompare, Value: string(ch), Pos: start}, nil
}

// scanWord reads a bare name or number up to the next delimiter. Trailing
// whitespace is not part of the word.
func (l *Lexer) scanWord() Token {
	start := l.pos
	for l.pos < len(l.input) && !strings.ContainsRune(nameDelimiters, rune(l.input[l.pos])) {
		l.pos++
	}
	word := strings.TrimRight(l.input[start:l.pos], " \t\r\n")

	if looksNumeric(word) {
		return Token{Type: TokenNumber, Value: word, Pos: start}
	}
	return Token{Type: TokenName, Value: word, Pos: start}
}

// looksNumeric rejects words like "Inf" or "NaN" that strconv would accept.
func looksNumeric(word string) bool {
	if word == "" {
		return false
	}
	switch c := word[0]; {
	case c >= '0' && c <= '9', c == '.', c == '-', c == '+':
	default:
		return false
	}
	_, err := strconv.ParseFloat(word, 64)
	return err == nil
}
