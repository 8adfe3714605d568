package lowering

import (
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/ir"
)

// Shuffle lowers a per-lane gather over two source vectors according to
// mask, one entry per destination lane, into dest. A mask entry below
// source0's width addresses source0 at that index; an entry at or above
// source0's width addresses source1 at (entry - width(source0)). mask must
// be a compile-time container of literal and/or undefined lanes; a lane
// read from a register or local (a genuinely dynamic mask) is conservatively
// rejected, since the hardware has no gather instruction to lower a
// dynamic-index version to. Individual undefined lanes are not rejected:
// per-lane, they just leave the corresponding destination lane at its
// pre-zeroed value.
func Shuffle(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, src0, src1, mask ir.Value) (*ir.InstructionWalker, error) {
	if mask.IsUndefined() {
		return nil, compileerror.Newf(compileerror.StepOptimizer, "shuffle mask is entirely undefined")
	}
	if !isConcreteMask(mask) {
		return nil, compileerror.Newf(compileerror.StepOptimizer, "shuffle mask %s is not a compile-time constant", mask)
	}

	width := mask.Type.VectorWidth
	if width == 0 {
		width = 1
	}
	src0Width := src0.Type.VectorWidth
	if src0Width == 0 {
		src0Width = 1
	}

	// sourceFor maps a combined-index mask entry to the source vector it
	// addresses and that source's own local lane index.
	sourceFor := func(entry int64) (ir.Value, int64) {
		if entry < int64(src0Width) {
			return src0, entry
		}
		return src1, entry - int64(src0Width)
	}

	// The fast-path special cases below only apply when every lane is a
	// known literal; a mask with any undefined lane falls straight to the
	// general per-lane case, which already knows how to skip those lanes.
	if mask.IsConstant() {
		// All-zero mask: every destination lane reads source0 lane 0 - a replication.
		allZero := true
		for i := 0; i < width; i++ {
			if mask.ConstantLane(i).AsInt64() != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			tmp := method.AddNewLocal(dest.Type, "shuffle_lane0")
			w = Extract(w, tmp, src0, ir.LiteralValue(ir.Int32, ir.IntLiteral(0)))
			return Replicate(w, method, ir.LocalValue(tmp), dest), nil
		}

		// All lanes select the same index: also a replication, from whichever
		// source that index addresses.
		if lit, ok := mask.ReplicatedLiteral(); ok {
			src, localIdx := sourceFor(lit.AsInt64())
			tmp := method.AddNewLocal(dest.Type, "shuffle_lane")
			w = Extract(w, tmp, src, ir.LiteralValue(ir.Int32, ir.IntLiteral(localIdx)))
			return Replicate(w, method, ir.LocalValue(tmp), dest), nil
		}

		// Ascending 0..width-1 mask addressing source0 is the identity permutation.
		// Only valid when every index stays within source0; once width exceeds
		// source0's own width the tail necessarily reaches into source1.
		ascending := width <= src0Width
		for i := 0; ascending && i < width; i++ {
			if mask.ConstantLane(i).AsInt64() != int64(i) {
				ascending = false
			}
		}
		if ascending {
			w = w.Emplace(ir.NewMove(dest, src0))
			w.NextInBlock()
			return w, nil
		}
	}

	// General case: zero dest, then extract+insert lane by lane from
	// whichever source each mask entry addresses. An undefined mask lane is
	// skipped, per spec, leaving that destination lane at its zeroed value.
	w = w.Emplace(ir.NewMove(dest, ir.LiteralValue(dest.Type, ir.IntLiteral(0))))
	w.NextInBlock()
	for i := 0; i < width; i++ {
		lane := mask.LaneValue(i)
		if lane.IsUndefined() {
			continue
		}
		src, localIdx := sourceFor(lane.Lit.AsInt64())
		tmp := method.AddNewLocal(dest.Type, "shuffle_elem")
		w = Extract(w, tmp, src, ir.LiteralValue(ir.Int32, ir.IntLiteral(localIdx)))
		w = Insert(w, method, dest, ir.LocalValue(dest), ir.LocalValue(tmp), ir.LiteralValue(ir.Int32, ir.IntLiteral(int64(i))))
	}
	return w, nil
}

// isConcreteMask reports whether every lane of v is either a known literal
// or explicitly undefined - never a register or local, which would make the
// mask a genuinely dynamic (runtime-valued) gather the hardware cannot do.
func isConcreteMask(v ir.Value) bool {
	switch v.Kind {
	case ir.ValueLiteral, ir.ValueUndefined:
		return true
	case ir.ValueContainer:
		for _, e := range v.Elems {
			if e.Kind != ir.ValueLiteral && e.Kind != ir.ValueUndefined {
				return false
			}
		}
		return true
	default:
		return false
	}
}
