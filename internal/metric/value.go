package metric

import (
	"math"
	"strings"
)

// Kind is the declared value type of a metric.
type Kind uint8

const (
	KindUint32 Kind = iota
	KindUint64
	KindFloat
	KindDouble
	KindBool
	KindEnum
	KindPercentage
	KindRate
)

var kindNames = [...]string{
	KindUint32:     "uint32",
	KindUint64:     "uint64",
	KindFloat:      "float",
	KindDouble:     "double",
	KindBool:       "bool",
	KindEnum:       "enum",
	KindPercentage: "percentage",
	KindRate:       "rate",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// Value holds a single sample. Which accessor is meaningful is decided by
// the Kind of the metric that owns the value; reading it through another
// accessor reinterprets the raw bits.
type Value struct {
	bits uint64
}

func Uint32Value(v uint32) Value  { return Value{bits: uint64(v)} }
func Uint64Value(v uint64) Value  { return Value{bits: v} }
func FloatValue(v float32) Value  { return Value{bits: uint64(math.Float32bits(v))} }
func DoubleValue(v float64) Value { return Value{bits: math.Float64bits(v)} }
func EnumValue(v uint32) Value    { return Value{bits: uint64(v)} }
func BoolValue(v bool) Value {
	if v {
		return Value{bits: 1}
	}
	return Value{}
}

func (v Value) Uint32() uint32  { return uint32(v.bits) }
func (v Value) Uint64() uint64  { return v.bits }
func (v Value) Float() float32  { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }
func (v Value) Enum() uint32    { return uint32(v.bits) }
func (v Value) Bool() bool      { return v.bits&1 == 1 }

// FromFloat64 builds a Value of the given kind from a sampled reading.
// Negative readings clamp to zero for unsigned kinds.
func FromFloat64(kind Kind, f float64) Value {
	switch kind {
	case KindUint32, KindEnum:
		return Uint32Value(uint32(clamp(f, math.MaxUint32)))
	case KindUint64:
		if f >= math.MaxUint64 {
			return Uint64Value(math.MaxUint64)
		}
		return Uint64Value(uint64(clamp(f, math.MaxUint64)))
	case KindFloat, KindPercentage, KindRate:
		return FloatValue(float32(f))
	case KindDouble:
		return DoubleValue(f)
	case KindBool:
		return BoolValue(f != 0)
	}
	return Value{}
}

// Float64 widens v according to kind. ok is false for unknown kinds.
func (v Value) Float64(kind Kind) (float64, bool) {
	switch kind {
	case KindUint32:
		return float64(v.Uint32()), true
	case KindEnum:
		return float64(v.Enum()), true
	case KindUint64:
		return float64(v.Uint64()), true
	case KindFloat, KindPercentage, KindRate:
		return float64(v.Float()), true
	case KindDouble:
		return v.Double(), true
	case KindBool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func clamp(f, upper float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > upper {
		return upper
	}
	return f
}
