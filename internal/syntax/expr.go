package syntax

import (
	"strconv"
	"strings"

	"go.followtheprocess.codes/builder/internal/syntax/token"
)

// Expr is a node in the expression AST.
//
// Every node renders itself back to a canonical, fully parenthesised source
// form via String, which the parser tests lean on heavily.
type Expr interface {
	String() string
	exprNode()
}

// Ident is a bare identifier, e.g. a variable reference.
type Ident struct {
	Name string
}

// StringLit is a string literal with escapes already processed.
type StringLit struct {
	Value string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// BoolLit is the literal true or false.
type BoolLit struct {
	Value bool
}

// NullLit is the literal null.
type NullLit struct{}

// ArrayLit is an array literal, e.g. [1, 2, 3].
type ArrayLit struct {
	Elems []Expr
}

// UnaryExpr is a prefix operator applied to an operand, e.g. !x or -1.
type UnaryExpr struct {
	Operand Expr
	Op      token.Kind
}

// BinaryExpr is an infix operator with two operands.
type BinaryExpr struct {
	LHS Expr
	RHS Expr
	Op  token.Kind
}

// CondExpr is the ternary conditional cond ? then : else.
type CondExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// CallExpr is a call to a named function, e.g. min(1, 2).
type CallExpr struct {
	Fn   string
	Args []Expr
}

// MemberExpr is property access by name, e.g. s.length.
type MemberExpr struct {
	Target Expr
	Member string
}

// IndexExpr is member access by computed index, e.g. s[0].
type IndexExpr struct {
	Target Expr
	Index  Expr
}

func (Ident) exprNode()      {}
func (StringLit) exprNode()  {}
func (NumberLit) exprNode()  {}
func (BoolLit) exprNode()    {}
func (NullLit) exprNode()    {}
func (ArrayLit) exprNode()   {}
func (UnaryExpr) exprNode()  {}
func (BinaryExpr) exprNode() {}
func (CondExpr) exprNode()   {}
func (CallExpr) exprNode()   {}
func (MemberExpr) exprNode() {}
func (IndexExpr) exprNode()  {}

func (i Ident) String() string     { return i.Name }
func (s StringLit) String() string { return strconv.Quote(s.Value) }
func (n NumberLit) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }
func (b BoolLit) String() string   { return strconv.FormatBool(b.Value) }
func (NullLit) String() string     { return "null" }

func (a ArrayLit) String() string {
	elems := make([]string, 0, len(a.Elems))
	for _, elem := range a.Elems {
		elems = append(elems, elem.String())
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func (u UnaryExpr) String() string {
	return "(" + u.Op.String() + u.Operand.String() + ")"
}

func (b BinaryExpr) String() string {
	return "(" + b.LHS.String() + " " + b.Op.String() + " " + b.RHS.String() + ")"
}

func (c CondExpr) String() string {
	return "(" + c.Cond.String() + " ? " + c.Then.String() + " : " + c.Else.String() + ")"
}

func (c CallExpr) String() string {
	args := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		args = append(args, arg.String())
	}
	return c.Fn + "(" + strings.Join(args, ", ") + ")"
}

func (m MemberExpr) String() string {
	return m.Target.String() + "." + m.Member
}

func (i IndexExpr) String() string {
	return i.Target.String() + "[" + i.Index.String() + "]"
}
