package eval_test

import (
	"errors"
	"math"
	"testing"

	"go.followtheprocess.codes/builder/internal/eval"
	"go.followtheprocess.codes/builder/internal/syntax"
	"go.followtheprocess.codes/builder/internal/syntax/parser"
	"go.followtheprocess.codes/test"
)

// evaluate is a test helper that parses and evaluates a single expression
// against an environment.
func evaluate(tb testing.TB, src string, env *eval.Environment) (eval.Value, error) {
	tb.Helper()

	expr, err := parser.New("test", src, func(pos syntax.Position, msg string) {
		tb.Logf("%s: %s", pos, msg)
	}).Parse()
	test.Ok(tb, err, test.Context("expression %q did not parse", src))

	pos := syntax.Position{Name: "test.nut", Line: 7, StartCol: 1, EndCol: 1}
	return eval.Eval(expr, env, pos)
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string     // Name of the test case
		src  string     // Expression source
		env  func(*eval.Environment)
		want eval.Value // Expected result
	}{
		{name: "number", src: "42", want: eval.Number(42)},
		{name: "string", src: `"hi"`, want: eval.String("hi")},
		{name: "bool", src: "true", want: eval.Bool(true)},
		{name: "null", src: "null", want: eval.Null},
		{name: "addition", src: "1 + 2", want: eval.Number(3)},
		{name: "multiplication", src: "123 * 456", want: eval.Number(56088)},
		{name: "precedence", src: "2 + 3 * 4", want: eval.Number(14)},
		{name: "subtraction", src: "10 - 4", want: eval.Number(6)},
		{name: "division", src: "10 / 4", want: eval.Number(2.5)},
		{name: "modulo", src: "10 % 3", want: eval.Number(1)},
		{name: "unary minus", src: "-(1 + 2)", want: eval.Number(-3)},
		{name: "unary plus", src: "+4", want: eval.Number(4)},
		{name: "concat", src: `"foo" + "bar"`, want: eval.String("foobar")},
		{name: "concat number", src: `"n = " + 4`, want: eval.String("n = 4")},
		{name: "concat number lhs", src: `4 + "s"`, want: eval.String("4s")},
		{name: "concat null", src: `"v: " + nothing`, want: eval.String("v: null")},
		{name: "concat bool", src: `"is " + true`, want: eval.String("is true")},
		{name: "equality", src: "1 == 1", want: eval.Bool(true)},
		{name: "inequality", src: "1 != 2", want: eval.Bool(true)},
		{name: "cross kind never equal", src: `1 == "1"`, want: eval.Bool(false)},
		{name: "null equals null", src: "null == null", want: eval.Bool(true)},
		{name: "less than", src: "1 < 2", want: eval.Bool(true)},
		{name: "string compare", src: `"abc" < "abd"`, want: eval.Bool(true)},
		{name: "greater equal", src: "2 >= 2", want: eval.Bool(true)},
		{name: "and short circuit", src: "0 && boom()", want: eval.Number(0)},
		{name: "or short circuit", src: `"yes" || boom()`, want: eval.String("yes")},
		{name: "and result is operand", src: `1 && "two"`, want: eval.String("two")},
		{name: "or falls through", src: `null || "fallback"`, want: eval.String("fallback")},
		{name: "not", src: "!0", want: eval.Bool(true)},
		{name: "not string", src: `!"text"`, want: eval.Bool(false)},
		{name: "ternary true", src: "1 ? 'a' : 'b'", want: eval.String("a")},
		{name: "ternary false", src: `"" ? 'a' : 'b'`, want: eval.String("b")},
		{name: "undefined is null", src: "nope", want: eval.Null},
		{
			name: "bound variable",
			src:  "FOO + 1",
			env: func(env *eval.Environment) {
				env.SetGlobal("FOO", eval.Number(41))
			},
			want: eval.Number(42),
		},
		{name: "string length", src: `"hello".length`, want: eval.Number(5)},
		{name: "string index", src: `"hello"[1]`, want: eval.String("e")},
		{name: "string index out of range", src: `"hi"[10]`, want: eval.Null},
		{name: "unknown member", src: `"hi".size`, want: eval.Null},
		{name: "array length", src: "[1, 2, 3].length", want: eval.Number(3)},
		{name: "array index", src: "[1, 2, 3][1]", want: eval.Number(2)},
		{name: "array out of range", src: "[1][5]", want: eval.Null},
		{name: "min", src: "min(1, 2, 3)", want: eval.Number(1)},
		{name: "max", src: "max(1, 2, 3)", want: eval.Number(3)},
		{name: "abs", src: "abs(-4)", want: eval.Number(4)},
		{name: "defined unbound", src: "defined(NOPE)", want: eval.Bool(false)},
		{
			name: "defined bound",
			src:  "defined(FOO)",
			env: func(env *eval.Environment) {
				env.SetGlobal("FOO", eval.Null)
			},
			want: eval.Bool(true),
		},
		{name: "file pseudo ident", src: "__FILE__", want: eval.String("test.nut")},
		{name: "line pseudo ident", src: "__LINE__", want: eval.Number(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := eval.NewEnvironment()
			if tt.env != nil {
				tt.env(env)
			}

			got, err := evaluate(t, tt.src, env)
			test.Ok(t, err)

			test.EqualFunc(t, got, tt.want, eval.Value.Equal, test.Context("evaluated to %s", got))
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		src  string // Expression source
		want error  // Expected error kind
	}{
		{name: "add bools", src: "true + false", want: eval.ErrType},
		{name: "subtract strings", src: `"a" - "b"`, want: eval.ErrType},
		{name: "compare mixed", src: `1 < "2"`, want: eval.ErrType},
		{name: "negate string", src: `-"x"`, want: eval.ErrType},
		{name: "min no args", src: "min()", want: eval.ErrType},
		{name: "min bad arg", src: `min(1, "2")`, want: eval.ErrType},
		{name: "abs arity", src: "abs(1, 2)", want: eval.ErrType},
		{name: "abs bad arg", src: "abs(null)", want: eval.ErrType},
		{name: "defined on value", src: "defined(1)", want: eval.ErrType},
		{name: "unknown function", src: "frobnicate(1)", want: eval.ErrName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := eval.NewEnvironment()

			_, err := evaluate(t, tt.src, env)
			test.Err(t, err)
			test.True(t, errors.Is(err, tt.want), test.Context("got %v, wanted %v", err, tt.want))
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	env := eval.NewEnvironment()

	for _, src := range []string{"1 / 0", "1 % 0"} {
		got, err := evaluate(t, src, env)
		test.Ok(t, err)

		test.Equal(t, got.Kind(), eval.KindNumber)
		test.True(t, math.IsNaN(got.AsNumber()), test.Context("%s did not yield NaN", src))
	}
}

func TestScoping(t *testing.T) {
	env := eval.NewEnvironment()
	env.SetGlobal("x", eval.Number(1))

	// An inner scope shadows
	env.Push(map[string]eval.Value{"x": eval.Number(2)})

	got, ok := env.Lookup("x")
	test.True(t, ok)
	test.EqualFunc(t, got, eval.Number(2), eval.Value.Equal)

	// Assignment always writes to the global scope, the shadow wins on lookup
	env.SetGlobal("x", eval.Number(3))

	got, _ = env.Lookup("x")
	test.EqualFunc(t, got, eval.Number(2), eval.Value.Equal)

	// Popping the scope reveals the global again
	env.Pop()

	got, _ = env.Lookup("x")
	test.EqualFunc(t, got, eval.Number(3), eval.Value.Equal)
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value eval.Value // Input value
		want  string     // Expected canonical string
	}{
		{value: eval.Null, want: "null"},
		{value: eval.Bool(true), want: "true"},
		{value: eval.Bool(false), want: "false"},
		{value: eval.Number(1), want: "1"},
		{value: eval.Number(2.5), want: "2.5"},
		{value: eval.Number(56088), want: "56088"},
		{value: eval.String("text"), want: "text"},
		{value: eval.Array(eval.Number(1), eval.String("a")), want: "[1, a]"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			test.Equal(t, tt.value.String(), tt.want)
		})
	}
}
