// Package lowering implements the canonical multi-instruction sequences
// used to express any operation that isn't a single ALU instruction: vector
// rotate, extract, insert, shuffle, replication, sign handling, extension,
// saturation, and pointer-arithmetic index calculation. Every helper
// consumes and returns an *ir.InstructionWalker, so helpers compose like
// bitfields: each one is a small, single-purpose transform over a shared
// cursor.
package lowering

import (
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// Direction is the rotation direction requested by a caller of Rotate.
type Direction int

const (
	Up Direction = iota
	Down
)

// Rotate writes dest with the 16 lanes of src rotated by offset lanes in
// the given direction. Hardware constraints honored here: the rotation is
// a mul-ALU move with a small
// immediate; its input must be an accumulator (callers are expected to have
// already materialized src into one, as every lowering helper that builds a
// rotation input does); a rotation may not read a register written by the
// immediately preceding instruction, so a Nop(wait-register) precedes every
// non-zero rotation.
func Rotate(w *ir.InstructionWalker, dest *ir.Local, src, offset ir.Value, dir Direction) *ir.InstructionWalker {
	// Case (a): src is a literal - all lanes identical, emit a plain move.
	if lit, ok := src.ReplicatedLiteral(); ok {
		w = w.Emplace(ir.NewMove(dest, ir.LiteralValue(src.Type, lit)))
		w.NextInBlock()
		return w
	}

	// Case (b): offset is a compile-time literal.
	if offset.Kind == ir.ValueLiteral {
		amount := int(offset.Lit.AsInt64()) % hwinfo.VectorWidth
		if dir == Down {
			amount = (hwinfo.VectorWidth - amount) % hwinfo.VectorWidth
		}
		if amount == 0 {
			w = w.Emplace(ir.NewMove(dest, src))
			w.NextInBlock()
			return w
		}
		simm, ok := ir.SmallImmFromRotate(amount)
		if !ok {
			panic("rotate amount out of range after normalization")
		}
		return emitRotation(w, dest, src, ir.SmallImmValue(dest.Type, simm))
	}

	// Case (c): offset is already an r5-rotation small immediate - reuse it.
	if offset.Kind == ir.ValueSmallImmediate && offset.SmallImm.Kind == ir.SmallImmRotateR5 {
		return emitRotation(w, dest, src, offset)
	}

	// Case (d): offset is dynamic - move it (or 16-offset for down, with a
	// conditional fix-up to avoid 16-0=16) into the rotation accumulator.
	rotLocal := dest.Method.AddNewLocal(offset.Type, "rot_amount")
	if dir == Up {
		w = w.Emplace(ir.NewMove(rotLocal, offset))
		w.NextInBlock()
	} else {
		sixteen := ir.LiteralValue(offset.Type, ir.IntLiteral(hwinfo.VectorWidth))
		sub := ir.NewAddOperation(rotLocal, hwinfo.AddSub, sixteen, offset)
		sub.SetFlags = true
		w = w.Emplace(sub)
		w.NextInBlock()

		// Fix-up: 16-0 == 16 must wrap to 0. The subtract's own flags reflect
		// (16-offset), which is zero when offset==16, not when offset==0, so
		// test offset itself against zero to gate the wrap-around.
		zeroCheck := dest.Method.AddNewLocal(offset.Type, "rot_offset_zero")
		zeroIns := ir.NewAddOperation(zeroCheck, hwinfo.AddXor, offset, ir.LiteralValue(offset.Type, ir.IntLiteral(0)))
		zeroIns.SetFlags = true
		w = w.Emplace(zeroIns)
		w.NextInBlock()

		fixup := ir.NewMove(rotLocal, ir.LiteralValue(offset.Type, ir.IntLiteral(0)))
		fixup.Cond = hwinfo.CondZeroSet
		w = w.Emplace(fixup)
		w.NextInBlock()
	}
	r5 := dest.Method.FixedLocal(hwinfo.RegRotationAcc, offset.Type)
	w = w.Emplace(ir.NewMove(r5, ir.LocalValue(rotLocal)))
	w.NextInBlock()
	return emitRotation(w, dest, src, ir.SmallImmValue(offset.Type, ir.SmallImmRotateByR5()))
}

// emitRotation inserts the mandatory wait-register Nop and the rotation
// move itself: the mul-ALU pipeline takes an extra cycle to latch a value
// written by the immediately preceding instruction, so every rotation whose
// input isn't already sitting in an accumulator needs the Nop first.
func emitRotation(w *ir.InstructionWalker, dest *ir.Local, src, rotAmount ir.Value) *ir.InstructionWalker {
	w = w.Emplace(ir.NewNop(hwinfo.NopWaitRegister))
	w.NextInBlock()
	w = w.Emplace(ir.NewVectorRotation(dest, src, rotAmount))
	w.NextInBlock()
	return w
}
