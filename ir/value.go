package ir

import (
	"fmt"
	"strings"

	"github.com/qpuforge/qpuc/hwinfo"
)

// ValueKind discriminates the Value union.
type ValueKind int

const (
	ValueLiteral ValueKind = iota
	ValueSmallImmediate
	ValueRegister
	ValueLocal
	ValueContainer
	ValueUndefined
)

// Value is the operand abstraction: a literal, small immediate, register,
// local reference, container of values, or undefined — always carrying a
// type.
type Value struct {
	Kind ValueKind
	Type DataType

	Lit      Literal
	SmallImm SmallImmediate
	Reg      hwinfo.Register
	Local    *Local
	Elems    []Value // ValueContainer: one per lane, lane count == Type.VectorWidth
}

func LiteralValue(t DataType, l Literal) Value {
	return Value{Kind: ValueLiteral, Type: t, Lit: l}
}

func SmallImmValue(t DataType, s SmallImmediate) Value {
	return Value{Kind: ValueSmallImmediate, Type: t, SmallImm: s}
}

func RegisterValue(t DataType, r hwinfo.Register) Value {
	return Value{Kind: ValueRegister, Type: t, Reg: r}
}

func LocalValue(l *Local) Value {
	return Value{Kind: ValueLocal, Type: l.Type, Local: l}
}

// ContainerValue builds a vector constant. Panics if the element count
// does not match the vector type's width.
func ContainerValue(t DataType, elems []Value) Value {
	if t.Kind == TypeVector && len(elems) != t.VectorWidth {
		panic(fmt.Sprintf("container value has %d elements, type wants %d", len(elems), t.VectorWidth))
	}
	return Value{Kind: ValueContainer, Type: t, Elems: elems}
}

func UndefinedValue(t DataType) Value {
	return Value{Kind: ValueUndefined, Type: t}
}

// IsUndefined reports whether the value itself is undefined; the lanes of
// a container are not inspected. Lowering helpers that special-case
// undefined masks consult this.
func (v Value) IsUndefined() bool {
	return v.Kind == ValueUndefined
}

// IsLiteral reports whether a value is a compile-time-known scalar literal.
func (v Value) IsLiteral() bool {
	return v.Kind == ValueLiteral
}

// IsConstant reports whether a value is fully known at compile time: a
// literal, or a container whose every lane is constant (recursively). This
// is the predicate the intrinsics pass and the opcode-table Precalc hook
// use to decide whether to fold.
func (v Value) IsConstant() bool {
	switch v.Kind {
	case ValueLiteral:
		return true
	case ValueContainer:
		for _, e := range v.Elems {
			if !e.IsConstant() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ConstantLane returns the scalar literal at lane i of a constant value: the
// literal itself for a scalar, or Elems[i].Lit for a container. The value
// must be IsConstant(); this is not checked here, so callers check first.
func (v Value) ConstantLane(i int) Literal {
	if v.Kind == ValueLiteral {
		return v.Lit
	}
	return v.Elems[i].Lit
}

// LaneValue returns the Value at lane i: Elems[i] for a container, or the
// value itself (ignoring i) for a scalar. Unlike ConstantLane, this does not
// require the lane to be a known literal - callers that must distinguish an
// undefined lane from a literal one (e.g. a partially-undefined shuffle
// mask) use this instead.
func (v Value) LaneValue(i int) Value {
	if v.Kind == ValueContainer {
		return v.Elems[i]
	}
	return v
}

// ReplicatedLiteral reports whether a constant value has the same literal
// value in every lane (true trivially for a scalar), returning that
// literal. Used by the "all lanes identical" fast paths for vector
// rotation and replication.
func (v Value) ReplicatedLiteral() (Literal, bool) {
	if v.Kind == ValueLiteral {
		return v.Lit, true
	}
	if v.Kind != ValueContainer || len(v.Elems) == 0 {
		return Literal{}, false
	}
	first, ok := v.Elems[0].ReplicatedLiteral()
	if !ok {
		return Literal{}, false
	}
	for _, e := range v.Elems[1:] {
		lit, ok := e.ReplicatedLiteral()
		if !ok || lit != first {
			return Literal{}, false
		}
	}
	return first, true
}

func (v Value) String() string {
	switch v.Kind {
	case ValueLiteral:
		return v.Lit.String()
	case ValueSmallImmediate:
		return v.SmallImm.String()
	case ValueRegister:
		return v.Reg.String()
	case ValueLocal:
		if v.Local != nil {
			return "%" + v.Local.Name
		}
		return "%<nil>"
	case ValueContainer:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return "<" + strings.Join(parts, ", ") + ">"
	case ValueUndefined:
		return "undef"
	default:
		return "?"
	}
}
