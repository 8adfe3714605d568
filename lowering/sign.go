package lowering

import (
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// MakePositive computes |x| without branching into dest: set flags from
// the sign bit, then under the negative predicate compute bitwise-NOT
// then +1 (two's complement), else copy x unchanged.
func MakePositive(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, x ir.Value) *ir.InstructionWalker {
	return invertUnderSign(w, method, dest, x, hwinfo.CondNegativeSet)
}

// InvertSign applies the same two's-complement pattern as MakePositive but
// gated on an externally supplied condition code, rather than deriving the
// predicate from x's own sign bit.
func InvertSign(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, x ir.Value, cond hwinfo.Condition) *ir.InstructionWalker {
	return invertUnderSign(w, method, dest, x, cond)
}

func invertUnderSign(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, x ir.Value, cond hwinfo.Condition) *ir.InstructionWalker {
	if cond == hwinfo.CondNegativeSet {
		width := x.Type.ScalarBitWidth()
		signBit := ir.LiteralValue(x.Type, ir.IntLiteral(int64(width-1)))
		signCheck := method.AddNewLocal(x.Type, "sign_check")
		shiftIns := ir.NewAddOperation(signCheck, hwinfo.AddAsr, x, signBit)
		shiftIns.SetFlags = true
		w = w.Emplace(shiftIns)
		w.NextInBlock()
	}

	inverted := method.AddNewLocal(x.Type, "not_tmp")
	w = w.Emplace(ir.NewAddOperation(inverted, hwinfo.AddNot, x))
	w.NextInBlock()

	negated := method.AddNewLocal(x.Type, "negate_tmp")
	one := ir.LiteralValue(x.Type, ir.IntLiteral(1))
	negIns := ir.NewAddOperation(negated, hwinfo.AddAdd, ir.LocalValue(inverted), one)
	negIns.Cond = cond
	w = w.Emplace(negIns)
	w.NextInBlock()

	copyIns := ir.NewMove(dest, x)
	copyIns.Cond = invertCondition(cond)
	w = w.Emplace(copyIns)
	w.NextInBlock()

	selectIns := ir.NewMove(dest, ir.LocalValue(negated))
	selectIns.Cond = cond
	w = w.Emplace(selectIns)
	w.NextInBlock()
	return w
}

// invertCondition returns the logical complement of a condition code, used
// to express "copy unchanged when NOT negative" as a second predicated move
// alongside the negated-predicate one.
func invertCondition(cond hwinfo.Condition) hwinfo.Condition {
	switch cond {
	case hwinfo.CondZeroSet:
		return hwinfo.CondZeroClear
	case hwinfo.CondZeroClear:
		return hwinfo.CondZeroSet
	case hwinfo.CondNegativeSet:
		return hwinfo.CondNegativeClear
	case hwinfo.CondNegativeClear:
		return hwinfo.CondNegativeSet
	case hwinfo.CondCarrySet:
		return hwinfo.CondCarryClear
	case hwinfo.CondCarryClear:
		return hwinfo.CondCarrySet
	default:
		return hwinfo.CondAlways
	}
}
