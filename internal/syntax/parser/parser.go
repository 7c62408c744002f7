// Package parser implements the recursive descent parser for Builder
// expressions, producing a [syntax.Expr] AST.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/builder/internal/syntax/scanner"
	"go.followtheprocess.codes/builder/internal/syntax/token"
)

// ErrParse is a generic parsing error, details on the error are passed
// to the parser's [syntax.ErrorHandler] at the moment it occurs.
var ErrParse = errors.New("parse error")

// Parser is the expression parser.
type Parser struct {
	handler   syntax.ErrorHandler // The error handler
	scanner   *scanner.Scanner    // Scanner to generate tokens
	name      string              // Name of the source being parsed
	src       string              // Raw expression text
	current   token.Token         // Current token under inspection
	next      token.Token         // Next token in the stream
	hadErrors bool                // Whether we encountered parse errors
}

// New returns a new [Parser] for a single expression.
func New(name, src string, handler syntax.ErrorHandler) *Parser {
	p := &Parser{
		handler: handler,
		name:    name,
		src:     src,
		scanner: scanner.New(name, []byte(src), handler),
	}

	// Read 2 tokens so current and next are set
	p.advance()
	p.advance()

	return p
}

// Parse parses the source as a single complete expression.
//
// The returned error will simply signify whether or not there were parse errors,
// the error handler passed to [New] should be preferred for detail.
func (p *Parser) Parse() (syntax.Expr, error) {
	expr := p.parseExpression()

	if !p.hadErrors && p.current.Kind != token.EOF {
		p.errorf("unexpected %s after expression", p.current.Kind)
	}

	// Drain the scanner so its goroutine always finishes, even on error
	for p.current.Kind != token.EOF {
		p.advance()
	}

	if p.hadErrors {
		return nil, ErrParse
	}

	return expr, nil
}

// advance advances the parser by a single token.
func (p *Parser) advance() {
	p.current = p.next
	p.next = p.scanner.Scan()

	if p.current.Kind == token.Error {
		// The scanner has already reported the detail via the handler
		p.hadErrors = true
	}
}

// position returns the parser's current position in the input as a [syntax.Position].
//
// The position is calculated based on the start offset of the current token.
func (p *Parser) position() syntax.Position {
	line := 1              // Line counter
	lastNewLineOffset := 0 // The byte offset of the (end of the) last newline seen
	for index := 0; index < len(p.src) && index < p.current.Start; index++ {
		if p.src[index] == '\n' {
			lastNewLineOffset = index + 1 // +1 to account for len("\n")
			line++
		}
	}

	// If we're at EOF, point just past the current token as in "something
	// should have gone here"
	start := p.current.Start
	end := p.current.End
	if p.current.Kind == token.EOF {
		end = start + 1
	}

	// +1 because editor columns start at 1
	startCol := 1 + start - lastNewLineOffset
	endCol := 1 + end - lastNewLineOffset

	return syntax.Position{
		Name:     p.name,
		Line:     line,
		StartCol: startCol,
		EndCol:   endCol,
	}
}

// error calculates the current position and calls the installed error handler
// with the correct information.
func (p *Parser) error(msg string) {
	if p.hadErrors {
		// One error is enough, everything after it is likely cascade noise
		return
	}
	p.hadErrors = true

	if p.handler == nil {
		return
	}

	p.handler(p.position(), msg)
}

// errorf calls error with a formatted message.
func (p *Parser) errorf(format string, a ...any) {
	p.error(fmt.Sprintf(format, a...))
}

// expect asserts that the current token is of the given kind, emitting a
// syntax error if not. The parser is advanced past the token on success.
func (p *Parser) expect(kind token.Kind) bool {
	if p.current.Kind != kind {
		p.errorf("expected %s, got %s", kind, p.current.Kind)
		return false
	}
	p.advance()
	return true
}

// text returns the chunk of source text described by the p.current token.
func (p *Parser) text() string {
	return p.src[p.current.Start:p.current.End]
}

// parseExpression parses a full expression, the ternary conditional sits at
// the lowest precedence level.
func (p *Parser) parseExpression() syntax.Expr {
	cond := p.parseOr()

	if p.current.Kind != token.Question {
		return cond
	}
	p.advance() // '?'

	then := p.parseExpression()
	if !p.expect(token.Colon) {
		return nil
	}
	alt := p.parseExpression()

	return syntax.CondExpr{Cond: cond, Then: then, Else: alt}
}

// parseOr parses a chain of '||' operations.
func (p *Parser) parseOr() syntax.Expr {
	lhs := p.parseAnd()
	for p.current.Kind == token.Or {
		p.advance()
		rhs := p.parseAnd()
		lhs = syntax.BinaryExpr{LHS: lhs, Op: token.Or, RHS: rhs}
	}
	return lhs
}

// parseAnd parses a chain of '&&' operations.
func (p *Parser) parseAnd() syntax.Expr {
	lhs := p.parseEquality()
	for p.current.Kind == token.And {
		p.advance()
		rhs := p.parseEquality()
		lhs = syntax.BinaryExpr{LHS: lhs, Op: token.And, RHS: rhs}
	}
	return lhs
}

// parseEquality parses '==' and '!=' operations.
func (p *Parser) parseEquality() syntax.Expr {
	lhs := p.parseComparison()
	for p.current.Kind == token.Eq || p.current.Kind == token.NotEq {
		op := p.current.Kind
		p.advance()
		rhs := p.parseComparison()
		lhs = syntax.BinaryExpr{LHS: lhs, Op: op, RHS: rhs}
	}
	return lhs
}

// parseComparison parses '<', '>', '<=' and '>=' operations.
func (p *Parser) parseComparison() syntax.Expr {
	lhs := p.parseAdditive()
	for p.current.Kind == token.Less || p.current.Kind == token.Greater ||
		p.current.Kind == token.LessEq || p.current.Kind == token.GreaterEq {
		op := p.current.Kind
		p.advance()
		rhs := p.parseAdditive()
		lhs = syntax.BinaryExpr{LHS: lhs, Op: op, RHS: rhs}
	}
	return lhs
}

// parseAdditive parses '+' and '-' operations.
func (p *Parser) parseAdditive() syntax.Expr {
	lhs := p.parseMultiplicative()
	for p.current.Kind == token.Plus || p.current.Kind == token.Minus {
		op := p.current.Kind
		p.advance()
		rhs := p.parseMultiplicative()
		lhs = syntax.BinaryExpr{LHS: lhs, Op: op, RHS: rhs}
	}
	return lhs
}

// parseMultiplicative parses '*', '/' and '%' operations.
func (p *Parser) parseMultiplicative() syntax.Expr {
	lhs := p.parseUnary()
	for p.current.Kind == token.Star || p.current.Kind == token.ForwardSlash ||
		p.current.Kind == token.Percent {
		op := p.current.Kind
		p.advance()
		rhs := p.parseUnary()
		lhs = syntax.BinaryExpr{LHS: lhs, Op: op, RHS: rhs}
	}
	return lhs
}

// parseUnary parses the prefix operators '+', '-' and '!'.
func (p *Parser) parseUnary() syntax.Expr {
	switch p.current.Kind {
	case token.Plus, token.Minus, token.Bang:
		op := p.current.Kind
		p.advance()
		operand := p.parseUnary()
		return syntax.UnaryExpr{Op: op, Operand: operand}
	default:
		return p.parsePostfix()
	}
}

// parsePostfix parses postfix member access: '.name' and '[expr]'.
func (p *Parser) parsePostfix() syntax.Expr {
	expr := p.parsePrimary()

	for {
		switch p.current.Kind {
		case token.Dot:
			p.advance()
			if p.current.Kind != token.Ident {
				p.errorf("expected member name after '.', got %s", p.current.Kind)
				return expr
			}
			expr = syntax.MemberExpr{Target: expr, Member: p.text()}
			p.advance()
		case token.OpenBracket:
			p.advance()
			index := p.parseExpression()
			if !p.expect(token.CloseBracket) {
				return expr
			}
			expr = syntax.IndexExpr{Target: expr, Index: index}
		default:
			return expr
		}
	}
}

// parsePrimary parses the primary expressions: literals, identifiers, calls,
// parenthesised expressions and array literals.
func (p *Parser) parsePrimary() syntax.Expr {
	switch p.current.Kind {
	case token.Number:
		value, err := strconv.ParseFloat(p.text(), 64)
		if err != nil {
			p.errorf("bad number literal: %v", err)
			return nil
		}
		p.advance()
		return syntax.NumberLit{Value: value}

	case token.String:
		value := unquote(p.text())
		p.advance()
		return syntax.StringLit{Value: value}

	case token.True:
		p.advance()
		return syntax.BoolLit{Value: true}

	case token.False:
		p.advance()
		return syntax.BoolLit{Value: false}

	case token.Null:
		p.advance()
		return syntax.NullLit{}

	case token.Ident:
		name := p.text()
		p.advance()
		if p.current.Kind == token.OpenParen {
			return p.parseCall(name)
		}
		return syntax.Ident{Name: name}

	case token.OpenParen:
		p.advance()
		expr := p.parseExpression()
		p.expect(token.CloseParen)
		return expr

	case token.OpenBracket:
		return p.parseArray()

	default:
		p.errorf("unexpected %s, expected an expression", p.current.Kind)
		p.advance() // Don't get stuck on the offending token
		return nil
	}
}

// parseCall parses the argument list of a call to fn, the parser is sat on
// the opening paren.
func (p *Parser) parseCall(fn string) syntax.Expr {
	p.advance() // '('

	var args []syntax.Expr
	if p.current.Kind != token.CloseParen {
		for {
			args = append(args, p.parseExpression())
			if p.current.Kind != token.Comma {
				break
			}
			p.advance() // ','
		}
	}

	p.expect(token.CloseParen)
	return syntax.CallExpr{Fn: fn, Args: args}
}

// parseArray parses an array literal, the parser is sat on the opening bracket.
func (p *Parser) parseArray() syntax.Expr {
	p.advance() // '['

	var elems []syntax.Expr
	if p.current.Kind != token.CloseBracket {
		for {
			elems = append(elems, p.parseExpression())
			if p.current.Kind != token.Comma {
				break
			}
			p.advance() // ','
		}
	}

	p.expect(token.CloseBracket)
	return syntax.ArrayLit{Elems: elems}
}

// unquote strips the quotes from a string literal and processes the escape
// sequences. The scanner has already validated both.
func unquote(s string) string {
	s = s[1 : len(s)-1] // The surrounding quotes

	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			// \\, \" and \' are all literal
			b.WriteByte(s[i])
		}
	}

	return b.String()
}
