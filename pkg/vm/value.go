package vm

import "fmt"

// ValueKind discriminates the tagged stack cell.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindLong
	KindFloat
	KindDouble
	KindRef
	KindNull
)

// Value is one operand-stack or local-variable cell. The required
// instruction set is integer-only; the wider kinds carry constants
// loaded with ldc/ldc2_w and widened arguments.
type Value struct {
	Kind   ValueKind
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Ref    interface{}
}

// IntValue creates an int cell.
func IntValue(v int32) Value {
	return Value{Kind: KindInt, Int: v}
}

// LongValue creates a long cell.
func LongValue(v int64) Value {
	return Value{Kind: KindLong, Long: v}
}

// FloatValue creates a float cell.
func FloatValue(v float32) Value {
	return Value{Kind: KindFloat, Float: v}
}

// DoubleValue creates a double cell.
func DoubleValue(v float64) Value {
	return Value{Kind: KindDouble, Double: v}
}

// RefValue creates a reference cell.
func RefValue(ref interface{}) Value {
	return Value{Kind: KindRef, Ref: ref}
}

// NullValue creates a null reference cell.
func NullValue() Value {
	return Value{Kind: KindNull}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindLong:
		return fmt.Sprintf("%dL", v.Long)
	case KindFloat:
		return fmt.Sprintf("%gf", v.Float)
	case KindDouble:
		return fmt.Sprintf("%g", v.Double)
	case KindRef:
		return fmt.Sprintf("ref(%v)", v.Ref)
	default:
		return "null"
	}
}
