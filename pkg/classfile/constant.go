package classfile

import (
	"fmt"
	"math"
)

// ConstantKind discriminates typed constants produced by AsTyped.
type ConstantKind int

const (
	KindInt ConstantKind = iota
	KindLong
	KindFloat
	KindDouble
	KindString
	KindNull
)

// Constant is a typed constant-pool value. Primitive kinds carry both
// the interpreted value and the raw on-disk bits.
type Constant struct {
	Kind   ConstantKind
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Str    string
	Bits   uint64
}

// IntConstant builds an Integer constant from its 32 raw bits.
func IntConstant(bits uint32) Constant {
	return Constant{Kind: KindInt, Int: int32(bits), Bits: uint64(bits)}
}

// LongConstant reassembles a Long from its high and low halves.
func LongConstant(high, low uint32) Constant {
	bits := uint64(high)<<32 | uint64(low)
	return Constant{Kind: KindLong, Long: int64(bits), Bits: bits}
}

// FloatConstant reinterprets 32 raw bits as an IEEE-754 single.
func FloatConstant(bits uint32) Constant {
	return Constant{Kind: KindFloat, Float: math.Float32frombits(bits), Bits: uint64(bits)}
}

// DoubleConstant reassembles high and low halves and reinterprets them
// as an IEEE-754 double.
func DoubleConstant(high, low uint32) Constant {
	bits := uint64(high)<<32 | uint64(low)
	return Constant{Kind: KindDouble, Double: math.Float64frombits(bits), Bits: bits}
}

// StringConstant wraps resolved text.
func StringConstant(s string) Constant {
	return Constant{Kind: KindString, Str: s}
}

// NullConstant marks the dead slot after a Long or Double.
func NullConstant() Constant {
	return Constant{Kind: KindNull}
}

func (c Constant) String() string {
	switch c.Kind {
	case KindInt:
		return fmt.Sprintf("int %d", c.Int)
	case KindLong:
		return fmt.Sprintf("long %d", c.Long)
	case KindFloat:
		return fmt.Sprintf("float %g", c.Float)
	case KindDouble:
		return fmt.Sprintf("double %g", c.Double)
	case KindString:
		return fmt.Sprintf("string %q", c.Str)
	default:
		return "null"
	}
}
