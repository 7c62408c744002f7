// Package token provides the set of lexical tokens for Builder expressions.
package token

import "fmt"

// Kind is the kind of a token.
type Kind int

//go:generate stringer -type Kind -linecomment
const (
	EOF          Kind = iota // EOF
	Error                    // Error
	Ident                    // Ident
	Number                   // Number
	String                   // String
	True                     // true
	False                    // false
	Null                     // null
	Plus                     // +
	Minus                    // -
	Star                     // *
	ForwardSlash             // /
	Percent                  // %
	Bang                     // !
	Eq                       // ==
	NotEq                    // !=
	Less                     // <
	Greater                  // >
	LessEq                   // <=
	GreaterEq                // >=
	And                      // &&
	Or                       // ||
	Question                 // ?
	Colon                    // :
	Comma                    // ,
	Dot                      // .
	Assign                   // =
	OpenParen                // (
	CloseParen               // )
	OpenBracket              // [
	CloseBracket             // ]
)

// Token is a lexical token in a Builder expression.
type Token struct {
	Kind  Kind // The kind of token this is
	Start int  // Byte offset from the start of the expression to the start of this token
	End   int  // Byte offset from the start of the expression to the end of this token
}

// String returns a string representation of a [Token].
func (t Token) String() string {
	return fmt.Sprintf("<Token::%s start=%d, end=%d>", t.Kind, t.Start, t.End)
}

// Keyword reports whether a string is an expression keyword, returning its
// [Kind] and true if it is. Otherwise [Ident] and false are returned.
func Keyword(text string) (kind Kind, ok bool) {
	switch text {
	case "true":
		return True, true
	case "false":
		return False, true
	case "null":
		return Null, true
	default:
		return Ident, false
	}
}
