package ir

import "fmt"

// SmallImmKind discriminates the SmallImmediate union.
type SmallImmKind int

const (
	SmallImmInt SmallImmKind = iota // signed 5-bit integer in [-16,15]
	SmallImmFloat                   // one of a small set of small floats
	SmallImmRotate                  // vector-rotation amount in [1,15]
	SmallImmRotateR5                // "rotate by accumulator r5"
)

// smallFloats is the fixed set of small floats representable in a
// SmallImmediate, mirroring the handful of exact values the real ISA's
// 6-bit small-immediate encoding carries for floats (powers of two and
// their negations, the values that show up in practice as multiply/divide
// identities and clamp bounds).
var smallFloats = [...]float64{
	1.0, 2.0, 4.0, 8.0, 16.0, 32.0, 64.0, 128.0,
	1.0 / 256.0, 1.0 / 128.0, 1.0 / 64.0, 1.0 / 32.0,
	1.0 / 16.0, 1.0 / 8.0, 1.0 / 4.0, 1.0 / 2.0,
}

// SmallImmediate is an encoding slot shared by at most one operand per ALU
// per packed instruction: both ALU operands of a single packed instruction
// share at most one SmallImmediate, and if both need one they must
// reference the same encoded value.
type SmallImmediate struct {
	Kind   SmallImmKind
	Int    int32 // SmallImmInt
	Float  float64 // SmallImmFloat
	Rotate int // SmallImmRotate: 1..15
}

// SmallImmFromInt builds a SmallImmInt if v fits in [-16,15].
func SmallImmFromInt(v int64) (SmallImmediate, bool) {
	if v < -16 || v > 15 {
		return SmallImmediate{}, false
	}
	return SmallImmediate{Kind: SmallImmInt, Int: int32(v)}, true
}

// SmallImmFromFloat builds a SmallImmFloat if v is one of the representable
// small floats.
func SmallImmFromFloat(v float64) (SmallImmediate, bool) {
	for _, f := range smallFloats {
		if f == v {
			return SmallImmediate{Kind: SmallImmFloat, Float: v}, true
		}
	}
	return SmallImmediate{}, false
}

// SmallImmFromRotate builds a SmallImmRotate for a compile-time rotation
// amount in [1,15] (0 collapses to a move, handled by the caller).
func SmallImmFromRotate(amount int) (SmallImmediate, bool) {
	if amount < 1 || amount > 15 {
		return SmallImmediate{}, false
	}
	return SmallImmediate{Kind: SmallImmRotate, Rotate: amount}, true
}

// SmallImmRotateByR5 is the "rotate by accumulator r5" encoding used when
// the rotation offset is only known at runtime.
func SmallImmRotateByR5() SmallImmediate {
	return SmallImmediate{Kind: SmallImmRotateR5}
}

// Encode packs the SmallImmediate into its 6-bit hardware field value.
// Integers take 0x00-0x1F (5-bit two's complement), floats 0x20-0x2F and
// rotations 0x30-0x3F, so the ranges never overlap.
func (s SmallImmediate) Encode() (uint8, error) {
	switch s.Kind {
	case SmallImmInt:
		if s.Int < -16 || s.Int > 15 {
			return 0, fmt.Errorf("small immediate int %d out of range [-16,15]", s.Int)
		}
		return uint8(s.Int) & 0x1F, nil
	case SmallImmFloat:
		for i, f := range smallFloats {
			if f == s.Float {
				return 0x20 | uint8(i), nil
			}
		}
		return 0, fmt.Errorf("small immediate float %v is not representable", s.Float)
	case SmallImmRotate:
		if s.Rotate < 1 || s.Rotate > 15 {
			return 0, fmt.Errorf("small immediate rotate %d out of range [1,15]", s.Rotate)
		}
		return 0x30 | uint8(s.Rotate), nil
	case SmallImmRotateR5:
		return 0x30, nil
	default:
		return 0, fmt.Errorf("unknown small immediate kind %d", s.Kind)
	}
}

// Equal reports whether two SmallImmediates encode to the same hardware
// value (the constraint imposed when both ALU operands need one).
func (s SmallImmediate) Equal(o SmallImmediate) bool {
	se, err1 := s.Encode()
	oe, err2 := o.Encode()
	return err1 == nil && err2 == nil && se == oe
}

func (s SmallImmediate) String() string {
	switch s.Kind {
	case SmallImmInt:
		return fmt.Sprintf("%d", s.Int)
	case SmallImmFloat:
		return fmt.Sprintf("%g", s.Float)
	case SmallImmRotate:
		return fmt.Sprintf("rot%d", s.Rotate)
	case SmallImmRotateR5:
		return "rot_r5"
	default:
		return "?"
	}
}
