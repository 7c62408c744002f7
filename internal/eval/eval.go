package eval

import (
	"errors"
	"fmt"
	"math"

	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/builder/internal/syntax/token"
)

var (
	// ErrType is the error returned when an operator or builtin is applied
	// to operands of the wrong type or arity.
	ErrType = errors.New("type error")

	// ErrName is the error returned for a call to an unknown function.
	//
	// An unknown variable is not an error, it evaluates to null.
	ErrName = errors.New("unknown function")
)

// Eval evaluates an expression against the environment.
//
// pos is the source position of the line the expression came from, it is
// what the reserved identifiers __FILE__ and __LINE__ evaluate to.
func Eval(expr syntax.Expr, env *Environment, pos syntax.Position) (Value, error) {
	switch expr := expr.(type) {
	case syntax.NullLit:
		return Null, nil

	case syntax.BoolLit:
		return Bool(expr.Value), nil

	case syntax.NumberLit:
		return Number(expr.Value), nil

	case syntax.StringLit:
		return String(expr.Value), nil

	case syntax.Ident:
		return evalIdent(expr, env, pos), nil

	case syntax.ArrayLit:
		elems := make([]Value, 0, len(expr.Elems))
		for _, elem := range expr.Elems {
			value, err := Eval(elem, env, pos)
			if err != nil {
				return Null, err
			}
			elems = append(elems, value)
		}
		return Array(elems...), nil

	case syntax.UnaryExpr:
		return evalUnary(expr, env, pos)

	case syntax.BinaryExpr:
		return evalBinary(expr, env, pos)

	case syntax.CondExpr:
		cond, err := Eval(expr.Cond, env, pos)
		if err != nil {
			return Null, err
		}
		if cond.Truthy() {
			return Eval(expr.Then, env, pos)
		}
		return Eval(expr.Else, env, pos)

	case syntax.MemberExpr:
		target, err := Eval(expr.Target, env, pos)
		if err != nil {
			return Null, err
		}
		return evalMember(target, expr.Member), nil

	case syntax.IndexExpr:
		target, err := Eval(expr.Target, env, pos)
		if err != nil {
			return Null, err
		}
		index, err := Eval(expr.Index, env, pos)
		if err != nil {
			return Null, err
		}
		return evalIndex(target, index), nil

	case syntax.CallExpr:
		return evalCall(expr, env, pos)

	default:
		return Null, fmt.Errorf("%w: cannot evaluate %T", ErrType, expr)
	}
}

// evalIdent resolves an identifier. The reserved pseudo identifiers
// __FILE__ and __LINE__ evaluate to the current source location, anything
// unbound evaluates to null.
func evalIdent(ident syntax.Ident, env *Environment, pos syntax.Position) Value {
	switch ident.Name {
	case "__FILE__":
		return String(pos.Name)
	case "__LINE__":
		return Number(float64(pos.Line))
	}

	value, _ := env.Lookup(ident.Name)
	return value
}

func evalUnary(expr syntax.UnaryExpr, env *Environment, pos syntax.Position) (Value, error) {
	operand, err := Eval(expr.Operand, env, pos)
	if err != nil {
		return Null, err
	}

	switch expr.Op {
	case token.Bang:
		return Bool(!operand.Truthy()), nil
	case token.Minus:
		if operand.Kind() != KindNumber {
			return Null, fmt.Errorf("%w: unary '-' is not defined on %s", ErrType, operand.Kind())
		}
		return Number(-operand.AsNumber()), nil
	case token.Plus:
		if operand.Kind() != KindNumber {
			return Null, fmt.Errorf("%w: unary '+' is not defined on %s", ErrType, operand.Kind())
		}
		return operand, nil
	default:
		return Null, fmt.Errorf("%w: bad unary operator %s", ErrType, expr.Op)
	}
}

func evalBinary(expr syntax.BinaryExpr, env *Environment, pos syntax.Position) (Value, error) {
	// '&&' and '||' short circuit, the result is the last evaluated operand
	if expr.Op == token.And || expr.Op == token.Or {
		lhs, err := Eval(expr.LHS, env, pos)
		if err != nil {
			return Null, err
		}
		if expr.Op == token.And && !lhs.Truthy() {
			return lhs, nil
		}
		if expr.Op == token.Or && lhs.Truthy() {
			return lhs, nil
		}
		return Eval(expr.RHS, env, pos)
	}

	lhs, err := Eval(expr.LHS, env, pos)
	if err != nil {
		return Null, err
	}
	rhs, err := Eval(expr.RHS, env, pos)
	if err != nil {
		return Null, err
	}

	switch expr.Op {
	case token.Eq:
		return Bool(lhs.Equal(rhs)), nil
	case token.NotEq:
		return Bool(!lhs.Equal(rhs)), nil
	case token.Plus:
		return evalAdd(lhs, rhs)
	case token.Minus, token.Star, token.ForwardSlash, token.Percent:
		return evalArithmetic(expr.Op, lhs, rhs)
	case token.Less, token.Greater, token.LessEq, token.GreaterEq:
		return evalCompare(expr.Op, lhs, rhs)
	default:
		return Null, fmt.Errorf("%w: bad binary operator %s", ErrType, expr.Op)
	}
}

// evalAdd implements '+': addition on two numbers, concatenation when either
// operand is a string. The non-string operand is coerced through its
// canonical string form.
func evalAdd(lhs, rhs Value) (Value, error) {
	if lhs.Kind() == KindNumber && rhs.Kind() == KindNumber {
		return Number(lhs.AsNumber() + rhs.AsNumber()), nil
	}

	if lhs.Kind() == KindString || rhs.Kind() == KindString {
		return String(lhs.String() + rhs.String()), nil
	}

	return Null, fmt.Errorf("%w: '+' is not defined on %s and %s", ErrType, lhs.Kind(), rhs.Kind())
}

func evalArithmetic(op token.Kind, lhs, rhs Value) (Value, error) {
	if lhs.Kind() != KindNumber || rhs.Kind() != KindNumber {
		return Null, fmt.Errorf("%w: %s is not defined on %s and %s", ErrType, op, lhs.Kind(), rhs.Kind())
	}

	a, b := lhs.AsNumber(), rhs.AsNumber()
	switch op {
	case token.Minus:
		return Number(a - b), nil
	case token.Star:
		return Number(a * b), nil
	case token.ForwardSlash:
		if b == 0 {
			return Number(math.NaN()), nil
		}
		return Number(a / b), nil
	default: // '%'
		if b == 0 {
			return Number(math.NaN()), nil
		}
		return Number(math.Mod(a, b)), nil
	}
}

// evalCompare implements the order comparisons, defined only on two numbers
// or two strings (lexicographic).
func evalCompare(op token.Kind, lhs, rhs Value) (Value, error) {
	var less, equal bool

	switch {
	case lhs.Kind() == KindNumber && rhs.Kind() == KindNumber:
		less = lhs.AsNumber() < rhs.AsNumber()
		equal = lhs.AsNumber() == rhs.AsNumber()
	case lhs.Kind() == KindString && rhs.Kind() == KindString:
		less = lhs.AsString() < rhs.AsString()
		equal = lhs.AsString() == rhs.AsString()
	default:
		return Null, fmt.Errorf("%w: %s is not defined on %s and %s", ErrType, op, lhs.Kind(), rhs.Kind())
	}

	switch op {
	case token.Less:
		return Bool(less), nil
	case token.Greater:
		return Bool(!less && !equal), nil
	case token.LessEq:
		return Bool(less || equal), nil
	default: // '>='
		return Bool(!less), nil
	}
}

// evalMember implements property access by name.
//
// Strings and arrays have a numeric length property, anything else yields
// null.
func evalMember(target Value, member string) Value {
	switch target.Kind() {
	case KindString:
		if member == "length" {
			return Number(float64(len(target.AsString())))
		}
	case KindArray:
		if member == "length" {
			return Number(float64(len(target.Elems())))
		}
	}
	return Null
}

// evalIndex implements member access by computed index.
//
// A string indexed by an integer yields a one character string, an array
// yields the element. Anything out of range or non-indexable yields null.
func evalIndex(target, index Value) Value {
	if index.Kind() != KindNumber {
		return Null
	}

	i := int(index.AsNumber())
	if float64(i) != index.AsNumber() || i < 0 {
		return Null
	}

	switch target.Kind() {
	case KindString:
		s := target.AsString()
		if i >= len(s) {
			return Null
		}
		return String(s[i : i+1])
	case KindArray:
		elems := target.Elems()
		if i >= len(elems) {
			return Null
		}
		return elems[i]
	default:
		return Null
	}
}

// evalCall dispatches a call to one of the builtin functions.
//
// defined is special cased because its argument is an identifier token, not
// a value.
func evalCall(call syntax.CallExpr, env *Environment, pos syntax.Position) (Value, error) {
	if call.Fn == "defined" {
		if len(call.Args) != 1 {
			return Null, fmt.Errorf("%w: defined takes exactly 1 argument, got %d", ErrType, len(call.Args))
		}
		ident, ok := call.Args[0].(syntax.Ident)
		if !ok {
			return Null, fmt.Errorf("%w: the argument to defined must be an identifier", ErrType)
		}
		_, bound := env.Lookup(ident.Name)
		return Bool(bound), nil
	}

	args := make([]Value, 0, len(call.Args))
	for _, arg := range call.Args {
		value, err := Eval(arg, env, pos)
		if err != nil {
			return Null, err
		}
		args = append(args, value)
	}

	switch call.Fn {
	case "min":
		return minMax(call.Fn, args, func(best, next float64) bool { return next < best })
	case "max":
		return minMax(call.Fn, args, func(best, next float64) bool { return next > best })
	case "abs":
		if len(args) != 1 {
			return Null, fmt.Errorf("%w: abs takes exactly 1 argument, got %d", ErrType, len(args))
		}
		if args[0].Kind() != KindNumber {
			return Null, fmt.Errorf("%w: abs is not defined on %s", ErrType, args[0].Kind())
		}
		return Number(math.Abs(args[0].AsNumber())), nil
	default:
		return Null, fmt.Errorf("%w: %s", ErrName, call.Fn)
	}
}

// minMax implements the min and max builtins over 1 or more numeric args.
func minMax(fn string, args []Value, better func(best, next float64) bool) (Value, error) {
	if len(args) == 0 {
		return Null, fmt.Errorf("%w: %s requires at least 1 argument", ErrType, fn)
	}

	for _, arg := range args {
		if arg.Kind() != KindNumber {
			return Null, fmt.Errorf("%w: %s is not defined on %s", ErrType, fn, arg.Kind())
		}
	}

	best := args[0].AsNumber()
	for _, arg := range args[1:] {
		if better(best, arg.AsNumber()) {
			best = arg.AsNumber()
		}
	}

	return Number(best), nil
}
