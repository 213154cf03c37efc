package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser builds an expression tree from tokens by recursive descent.
//
//	expr       := comparison
//	comparison := term [op term]
//	term       := NUMBER | STRING | [name] | NAME '(' args ')' | NAME | '(' expr ')'
type Parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses a formula. A leading '=' is ignored.
func Parse(input string) (Node, error) {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "=")
	if strings.TrimSpace(input) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "empty formula"}
	}

	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		return nil, err
	}

	p := &Parser{tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s %q", tok.Type, tok.Value)}
	}
	return node, nil
}

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		if tt == TokenRightParen {
			return tok, &SyntaxError{Pos: tok.Pos, Msg: "unmatched parenthesis"}
		}
		return tok, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("expected %s, got %s", tt, tok.Type)}
	}
	return tok, nil
}

func (p *Parser) parseExpr() (Node, error) {
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != TokenCompare {
		return left, nil
	}

	op := p.advance().Value
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return &CompareNode{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseTerm() (Node, error) {
	tok := p.advance()

	switch tok.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("invalid number %q", tok.Value)}
		}
		return &NumberNode{Value: f}, nil

	case TokenString:
		return &StringNode{Value: tok.Value}, nil

	case TokenBracketName:
		return &ColumnNode{Name: tok.Value}, nil

	case TokenName:
		if p.peek().Type == TokenLeftParen {
			return p.parseCall(tok)
		}
		return &ColumnNode{Name: tok.Value}, nil

	case TokenLeftParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return inner, nil

	case TokenEOF:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: "unexpected end of formula"}

	default:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s", tok.Type)}
	}
}

func (p *Parser) parseCall(name Token) (Node, error) {
	fn, ok := Lookup(name.Value)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name.Value)
	}
	p.advance() // (

	var args []Node
	if p.peek().Type != TokenRightParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Type != TokenComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return nil, err
	}

	if err := fn.checkArity(len(args)); err != nil {
		return nil, err
	}
	return &CallNode{Func: fn, Args: args}, nil
}
