package lowering

import (
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// ZeroExtend widens a narrow value to 32 bits by masking to its source
// width: AND with the source-width mask.
func ZeroExtend(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, src ir.Value, srcWidth int) *ir.InstructionWalker {
	if lit, ok := src.ReplicatedLiteral(); ok {
		mask := int64(1)<<uint(srcWidth) - 1
		folded := ir.IntLiteral(lit.AsInt64() & mask)
		w = w.Emplace(ir.NewMove(dest, ir.LiteralValue(dest.Type, folded)))
		w.NextInBlock()
		return w
	}
	mask := ir.LiteralValue(src.Type, ir.IntLiteral(int64(1)<<uint(srcWidth)-1))
	w = w.Emplace(ir.NewAddOperation(dest, hwinfo.AddAnd, src, mask))
	w.NextInBlock()
	return w
}

// SignExtend widens a narrow value to 32 bits preserving its sign: shl by
// (32-srcWidth) then arithmetic-shift-right by the same amount.
func SignExtend(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, src ir.Value, srcWidth int) *ir.InstructionWalker {
	shift := 32 - srcWidth
	if lit, ok := src.ReplicatedLiteral(); ok {
		v := int64(int32(lit.AsInt64()) << uint(shift) >> uint(shift))
		w = w.Emplace(ir.NewMove(dest, ir.LiteralValue(dest.Type, ir.IntLiteral(v))))
		w.NextInBlock()
		return w
	}
	shiftAmount := ir.LiteralValue(src.Type, ir.IntLiteral(int64(shift)))
	shifted := method.AddNewLocal(src.Type, "sext_shl")
	w = w.Emplace(ir.NewAddOperation(shifted, hwinfo.AddShl, src, shiftAmount))
	w.NextInBlock()
	w = w.Emplace(ir.NewAddOperation(dest, hwinfo.AddAsr, ir.LocalValue(shifted), shiftAmount))
	w.NextInBlock()
	return w
}

// SaturatePack chooses the destination pack mode from the destination's
// width and signedness and emits a move carrying it. Literal sources are
// saturated statically at compile time with C-style clamping instead of
// relying on the hardware pack unit.
func SaturatePack(w *ir.InstructionWalker, dest *ir.Local, src ir.Value, destWidth int, destSigned bool) *ir.InstructionWalker {
	mode := packModeFor(destWidth, destSigned)
	if lit, ok := src.ReplicatedLiteral(); ok {
		var folded ir.Literal
		if destSigned {
			folded = ir.IntLiteral(ir.ClampSigned(lit.AsInt64(), destWidth))
		} else {
			folded = ir.UintLiteral(ir.ClampUnsigned(lit.AsInt64(), destWidth))
		}
		w = w.Emplace(ir.NewMove(dest, ir.LiteralValue(dest.Type, folded)))
		w.NextInBlock()
		return w
	}
	mv := ir.NewMove(dest, src)
	mv.Pack = mode
	mv.AddDecoration(ir.DecorSaturatedConversion)
	w = w.Emplace(mv)
	w.NextInBlock()
	return w
}

func packModeFor(destWidth int, destSigned bool) hwinfo.PackMode {
	switch {
	case destWidth <= 8 && destSigned:
		return hwinfo.PackToChar
	case destWidth <= 8 && !destSigned:
		return hwinfo.PackToUCharSaturate
	case destWidth <= 16 && destSigned:
		return hwinfo.PackToShortSaturate
	case destWidth <= 16 && !destSigned:
		return hwinfo.PackToUShortTruncate
	default:
		return hwinfo.PackToIntSaturate
	}
}
