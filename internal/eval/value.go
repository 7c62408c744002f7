// Package eval implements the Builder expression evaluator: dynamically
// typed values, the scoped variable environment and a tree walk over the
// [syntax.Expr] AST.
package eval

import "strconv"

// Kind is the kind of a [Value].
type Kind int

const (
	KindNull   Kind = iota // null
	KindBool               // bool
	KindNumber             // number
	KindString             // string
	KindArray              // array
)

// String returns a human readable name for the kind, used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a dynamically typed expression result, a tagged sum over null,
// bool, number, string and array.
//
// The zero value is null.
type Value struct {
	str     string
	array   []Value
	number  float64
	kind    Kind
	boolean bool
}

// Null is the null [Value].
var Null = Value{}

// Bool returns a bool [Value].
func Bool(b bool) Value {
	return Value{kind: KindBool, boolean: b}
}

// Number returns a number [Value].
func Number(f float64) Value {
	return Value{kind: KindNumber, number: f}
}

// String returns a string [Value].
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Array returns an array [Value] over the given elements.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, array: elems}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsNumber returns the numeric content, only meaningful when Kind is [KindNumber].
func (v Value) AsNumber() float64 {
	return v.number
}

// AsString returns the string content, only meaningful when Kind is [KindString].
func (v Value) AsString() string {
	return v.str
}

// AsBool returns the bool content, only meaningful when Kind is [KindBool].
func (v Value) AsBool() bool {
	return v.boolean
}

// Elems returns the elements of an array value.
func (v Value) Elems() []Value {
	return v.array
}

// Truthy converts the value to a bool: null, false, 0 and "" are false,
// everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.boolean
	case KindNumber:
		return v.number != 0
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// Equal reports whether two values are equal, values of different kinds are
// never equal and numeric strings do not auto-coerce.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindNumber:
		return v.number == other.number
	case KindString:
		return v.str == other.str
	default:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}
		return true
	}
}

// String returns the canonical string form of a value: "null" for null,
// "true"/"false" for bools, the shortest round trip decimal for numbers.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.boolean)
	case KindNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case KindString:
		return v.str
	default:
		s := "["
		for i, elem := range v.array {
			if i > 0 {
				s += ", "
			}
			s += elem.String()
		}
		return s + "]"
	}
}
