package scanner_test

import (
	"slices"
	"testing"

	"go.followtheprocess.codes/builder/internal/syntax/scanner"
	"go.followtheprocess.codes/builder/internal/syntax/token"
	"go.followtheprocess.codes/test"
)

func TestScanner(t *testing.T) {
	tests := []struct {
		name string        // Name of the test case
		src  string        // Source text to scan
		want []token.Token // Expected tokens
	}{
		{
			name: "empty",
			src:  "",
			want: []token.Token{
				{Kind: token.EOF, Start: 0, End: 0},
			},
		},
		{
			name: "number",
			src:  "123",
			want: []token.Token{
				{Kind: token.Number, Start: 0, End: 3},
				{Kind: token.EOF, Start: 3, End: 3},
			},
		},
		{
			name: "float with exponent",
			src:  "1.5e-3",
			want: []token.Token{
				{Kind: token.Number, Start: 0, End: 6},
				{Kind: token.EOF, Start: 6, End: 6},
			},
		},
		{
			name: "double quoted string",
			src:  `"hello"`,
			want: []token.Token{
				{Kind: token.String, Start: 0, End: 7},
				{Kind: token.EOF, Start: 7, End: 7},
			},
		},
		{
			name: "single quoted string",
			src:  `'hi'`,
			want: []token.Token{
				{Kind: token.String, Start: 0, End: 4},
				{Kind: token.EOF, Start: 4, End: 4},
			},
		},
		{
			name: "string with escapes",
			src:  `"a\n\t\\"`,
			want: []token.Token{
				{Kind: token.String, Start: 0, End: 9},
				{Kind: token.EOF, Start: 9, End: 9},
			},
		},
		{
			name: "keywords",
			src:  "true false null",
			want: []token.Token{
				{Kind: token.True, Start: 0, End: 4},
				{Kind: token.False, Start: 5, End: 10},
				{Kind: token.Null, Start: 11, End: 15},
				{Kind: token.EOF, Start: 15, End: 15},
			},
		},
		{
			name: "identifier",
			src:  "__FILE__",
			want: []token.Token{
				{Kind: token.Ident, Start: 0, End: 8},
				{Kind: token.EOF, Start: 8, End: 8},
			},
		},
		{
			name: "arithmetic",
			src:  "1 + 2 * 3",
			want: []token.Token{
				{Kind: token.Number, Start: 0, End: 1},
				{Kind: token.Plus, Start: 2, End: 3},
				{Kind: token.Number, Start: 4, End: 5},
				{Kind: token.Star, Start: 6, End: 7},
				{Kind: token.Number, Start: 8, End: 9},
				{Kind: token.EOF, Start: 9, End: 9},
			},
		},
		{
			name: "comparison operators",
			src:  "<= >= == != < >",
			want: []token.Token{
				{Kind: token.LessEq, Start: 0, End: 2},
				{Kind: token.GreaterEq, Start: 3, End: 5},
				{Kind: token.Eq, Start: 6, End: 8},
				{Kind: token.NotEq, Start: 9, End: 11},
				{Kind: token.Less, Start: 12, End: 13},
				{Kind: token.Greater, Start: 14, End: 15},
				{Kind: token.EOF, Start: 15, End: 15},
			},
		},
		{
			name: "logical operators",
			src:  "a && b || !c",
			want: []token.Token{
				{Kind: token.Ident, Start: 0, End: 1},
				{Kind: token.And, Start: 2, End: 4},
				{Kind: token.Ident, Start: 5, End: 6},
				{Kind: token.Or, Start: 7, End: 9},
				{Kind: token.Bang, Start: 10, End: 11},
				{Kind: token.Ident, Start: 11, End: 12},
				{Kind: token.EOF, Start: 12, End: 12},
			},
		},
		{
			name: "call",
			src:  "min(1, 2)",
			want: []token.Token{
				{Kind: token.Ident, Start: 0, End: 3},
				{Kind: token.OpenParen, Start: 3, End: 4},
				{Kind: token.Number, Start: 4, End: 5},
				{Kind: token.Comma, Start: 5, End: 6},
				{Kind: token.Number, Start: 7, End: 8},
				{Kind: token.CloseParen, Start: 8, End: 9},
				{Kind: token.EOF, Start: 9, End: 9},
			},
		},
		{
			name: "member and index",
			src:  "s.length[0]",
			want: []token.Token{
				{Kind: token.Ident, Start: 0, End: 1},
				{Kind: token.Dot, Start: 1, End: 2},
				{Kind: token.Ident, Start: 2, End: 8},
				{Kind: token.OpenBracket, Start: 8, End: 9},
				{Kind: token.Number, Start: 9, End: 10},
				{Kind: token.CloseBracket, Start: 10, End: 11},
				{Kind: token.EOF, Start: 11, End: 11},
			},
		},
		{
			name: "line comment discarded",
			src:  "1 // a comment",
			want: []token.Token{
				{Kind: token.Number, Start: 0, End: 1},
				{Kind: token.EOF, Start: 14, End: 14},
			},
		},
		{
			name: "block comment discarded",
			src:  "1 /* comment */ + 2",
			want: []token.Token{
				{Kind: token.Number, Start: 0, End: 1},
				{Kind: token.Plus, Start: 16, End: 17},
				{Kind: token.Number, Start: 18, End: 19},
				{Kind: token.EOF, Start: 19, End: 19},
			},
		},
		{
			name: "division not comment",
			src:  "4/2",
			want: []token.Token{
				{Kind: token.Number, Start: 0, End: 1},
				{Kind: token.ForwardSlash, Start: 1, End: 2},
				{Kind: token.Number, Start: 2, End: 3},
				{Kind: token.EOF, Start: 3, End: 3},
			},
		},
		{
			name: "ternary",
			src:  "a ? 1 : 2",
			want: []token.Token{
				{Kind: token.Ident, Start: 0, End: 1},
				{Kind: token.Question, Start: 2, End: 3},
				{Kind: token.Number, Start: 4, End: 5},
				{Kind: token.Colon, Start: 6, End: 7},
				{Kind: token.Number, Start: 8, End: 9},
				{Kind: token.EOF, Start: 9, End: 9},
			},
		},
		{
			name: "lone ampersand is an error",
			src:  "a & b",
			want: []token.Token{
				{Kind: token.Ident, Start: 0, End: 1},
				{Kind: token.Error, Start: 2, End: 3},
				{Kind: token.EOF, Start: 3, End: 3},
			},
		},
		{
			name: "unterminated string is an error",
			src:  `"oops`,
			want: []token.Token{
				{Kind: token.Error, Start: 0, End: 5},
				{Kind: token.EOF, Start: 5, End: 5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := scanner.New(tt.name, []byte(tt.src), nil)

			var tokens []token.Token
			for {
				tok := scanner.Scan()
				tokens = append(tokens, tok)
				if tok.Kind == token.EOF {
					break
				}
			}

			test.EqualFunc(t, tokens, tt.want, slices.Equal, test.Context("token stream mismatch"))
		})
	}
}
