// Package scanner implements the lexical scanner for Builder expressions.
//
// Expressions occur in directive lines and inside inline `@{...}` splices,
// they are scanned independently of the host language text around them.
package scanner

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/builder/internal/syntax/token"
)

const (
	bufferSize = 32       // Token buffer size, expressions are short
	eof        = rune(-1) // eof signifies we have reached the end of the input
)

// scanFn represents the state of the scanner as a function that returns the next state.
type scanFn func(*Scanner) scanFn

// Scanner is the expression scanner.
type Scanner struct {
	handler   syntax.ErrorHandler // The error handler, if any
	tokens    chan token.Token    // Channel on which to emit scanned tokens
	name      string              // Name of the source the expression came from
	src       []byte              // Raw expression text
	start     int                 // The start position of the current token
	pos       int                 // Current scanner position in src (bytes, 0 indexed)
	line      int                 // Current line number (1 indexed)
	lineStart int                 // Offset at which the current line started
	width     int                 // Width of the last rune read from input, so we can backup
}

// New returns a new [Scanner] that scans src.
func New(name string, src []byte, handler syntax.ErrorHandler) *Scanner {
	s := &Scanner{
		handler: handler,
		tokens:  make(chan token.Token, bufferSize),
		name:    name,
		src:     src,
		start:   0,
		pos:     0,
		line:    1,
		width:   0,
	}

	// run terminates when the scanning state machine is finished and all the tokens
	// drained from s.tokens so no wg.Add needed here
	go s.run()
	return s
}

// Scan scans the input and returns the next token.
func (s *Scanner) Scan() token.Token {
	return <-s.tokens
}

// next returns, and consumes, the next character in the input or [eof].
func (s *Scanner) next() rune {
	if s.pos >= len(s.src) {
		return eof
	}

	char, width := utf8.DecodeRune(s.src[s.pos:])
	if char == utf8.RuneError {
		s.errorf("invalid utf8 char: %U", char)
		// Advance to the end to prevent cascade errors
		s.pos = len(s.src)
		return eof
	}

	s.width = width
	s.pos += width
	if char == '\n' {
		s.line++
		s.lineStart = s.pos
	}

	return char
}

// char returns the character the scanner is currently sat on or [eof].
func (s *Scanner) char() rune {
	if s.pos >= len(s.src) {
		return eof
	}
	char, _ := utf8.DecodeRune(s.src[s.pos:])
	return char
}

// peek returns, but does not consume, the character after the current one or [eof].
func (s *Scanner) peek() rune {
	if s.pos >= len(s.src) {
		return eof
	}

	_, width := utf8.DecodeRune(s.src[s.pos:])

	peekPos := s.pos + width
	if peekPos >= len(s.src) {
		return eof
	}

	peekChar, _ := utf8.DecodeRune(s.src[peekPos:])

	return peekChar
}

// skip ignores any characters for which the predicate returns true, stopping at the
// first one that returns false such that after it returns, s.char returns the
// first 'false' char.
//
// The scanner start position is brought up to the current position before returning, effectively
// ignoring everything it's travelled over in the meantime.
func (s *Scanner) skip(predicate func(r rune) bool) {
	for predicate(s.char()) {
		s.next()
	}
	s.start = s.pos
}

// emit passes a token over the tokens channel, using the scanner's internal
// state to populate position information.
func (s *Scanner) emit(kind token.Kind) {
	s.tokens <- token.Token{
		Kind:  kind,
		Start: s.start,
		End:   s.pos,
	}
	s.start = s.pos
}

// run starts the state machine for the scanner, it runs with each [scanFn] returning the next
// state until one returns nil (typically an error or eof), at which point the tokens channel
// is closed as a signal to the receiver that no more tokens will be sent.
func (s *Scanner) run() {
	for state := scanStart; state != nil; {
		state = state(s)
	}
	s.tokens <- token.Token{Kind: token.EOF, Start: s.pos, End: s.pos}
	close(s.tokens)
}

// error calculates the position information and arranges for s.handler to be called
// with the information.
func (s *Scanner) error(msg string) {
	if s.handler == nil {
		return
	}

	// Column is the number of bytes between the last newline and the current position
	// +1 because columns are 1 indexed
	startCol := 1 + s.start - s.lineStart
	endCol := 1 + s.pos - s.lineStart

	position := syntax.Position{
		Name:     s.name,
		Line:     s.line,
		StartCol: startCol,
		EndCol:   endCol,
	}

	s.handler(position, msg)
}

// errorf calls error with a formatted message.
func (s *Scanner) errorf(format string, a ...any) {
	s.error(fmt.Sprintf(format, a...))
}

// scanStart is the initial state of the scanner.
func scanStart(s *Scanner) scanFn {
	s.skip(unicode.IsSpace)

	switch char := s.char(); {
	case char == eof:
		return nil // Break the state machine
	case char == '/':
		return scanSlash
	case char == '"' || char == '\'':
		return scanString
	case isDigit(char):
		return scanNumber
	case isIdentStart(char):
		return scanIdent
	default:
		return scanOperator
	}
}

// scanSlash scans a '/' character, which is either the division operator or
// the start of a comment.
//
// Comments are legal in expression regions and are simply discarded.
func scanSlash(s *Scanner) scanFn {
	switch s.peek() {
	case '/':
		// A '//' comment runs to the end of the input line
		for s.char() != '\n' && s.char() != eof {
			s.next()
		}
		s.start = s.pos
		return scanStart
	case '*':
		return scanBlockComment
	default:
		s.next()
		s.emit(token.ForwardSlash)
		return scanStart
	}
}

// scanBlockComment scans a '/* ... */' comment, discarding it.
//
// Block comments do not nest.
func scanBlockComment(s *Scanner) scanFn {
	s.next() // '/'
	s.next() // '*'

	for {
		char := s.next()
		if char == eof {
			s.error("unterminated block comment")
			s.emit(token.Error)
			return nil
		}
		if char == '*' && s.char() == '/' {
			s.next()
			s.start = s.pos
			return scanStart
		}
	}
}

// scanString scans a single or double quoted string literal, including both quotes.
func scanString(s *Scanner) scanFn {
	quote := s.next() // Consume the opening quote

	for {
		char := s.next()
		switch char {
		case eof, '\n':
			s.error("unterminated string literal")
			s.emit(token.Error)
			return nil
		case '\\':
			switch s.char() {
			case 'n', 't', 'r', '\\', '"', '\'':
				s.next()
			default:
				s.errorf("unrecognised escape sequence: %q", "\\"+string(s.char()))
				s.emit(token.Error)
				return nil
			}
		case quote:
			s.emit(token.String)
			return scanStart
		}
	}
}

// scanNumber scans a decimal number literal with optional fraction and exponent.
func scanNumber(s *Scanner) scanFn {
	for isDigit(s.char()) {
		s.next()
	}

	if s.char() == '.' {
		s.next() // Consume the '.'
		if !isDigit(s.char()) {
			s.error("bad number literal")
			s.emit(token.Error)
			return nil
		}
		for isDigit(s.char()) {
			s.next()
		}
	}

	if s.char() == 'e' || s.char() == 'E' {
		s.next() // Consume the 'e'
		if s.char() == '+' || s.char() == '-' {
			s.next()
		}
		if !isDigit(s.char()) {
			s.error("bad exponent in number literal")
			s.emit(token.Error)
			return nil
		}
		for isDigit(s.char()) {
			s.next()
		}
	}

	s.emit(token.Number)
	return scanStart
}

// scanIdent scans an identifier or keyword.
func scanIdent(s *Scanner) scanFn {
	for isIdent(s.char()) {
		s.next()
	}

	text := string(s.src[s.start:s.pos])
	kind, _ := token.Keyword(text)
	s.emit(kind)
	return scanStart
}

// scanOperator scans the operator and punctuation tokens.
func scanOperator(s *Scanner) scanFn {
	char := s.next()

	switch char {
	case '+':
		s.emit(token.Plus)
	case '-':
		s.emit(token.Minus)
	case '*':
		s.emit(token.Star)
	case '%':
		s.emit(token.Percent)
	case '?':
		s.emit(token.Question)
	case ':':
		s.emit(token.Colon)
	case ',':
		s.emit(token.Comma)
	case '.':
		s.emit(token.Dot)
	case '(':
		s.emit(token.OpenParen)
	case ')':
		s.emit(token.CloseParen)
	case '[':
		s.emit(token.OpenBracket)
	case ']':
		s.emit(token.CloseBracket)
	case '!':
		if s.char() == '=' {
			s.next()
			s.emit(token.NotEq)
		} else {
			s.emit(token.Bang)
		}
	case '=':
		if s.char() == '=' {
			s.next()
			s.emit(token.Eq)
		} else {
			s.emit(token.Assign)
		}
	case '<':
		if s.char() == '=' {
			s.next()
			s.emit(token.LessEq)
		} else {
			s.emit(token.Less)
		}
	case '>':
		if s.char() == '=' {
			s.next()
			s.emit(token.GreaterEq)
		} else {
			s.emit(token.Greater)
		}
	case '&':
		if s.char() == '&' {
			s.next()
			s.emit(token.And)
		} else {
			s.error("unexpected token '&'")
			s.emit(token.Error)
			return nil
		}
	case '|':
		if s.char() == '|' {
			s.next()
			s.emit(token.Or)
		} else {
			s.error("unexpected token '|'")
			s.emit(token.Error)
			return nil
		}
	default:
		s.errorf("unexpected token %q", string(char))
		s.emit(token.Error)
		return nil
	}

	return scanStart
}

// isIdentStart reports whether r can start an identifier.
func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// isIdent reports whether r is a valid identifier character.
func isIdent(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}

// isDigit reports whether r is a valid ASCII digit.
func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
