package lowering

import (
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// Extract reads lane index out of src into dest. A constant-index extract
// is a rotate-down by index followed by reading lane 0 implicitly (the
// result is broadcast into every lane of dest; callers that need a scalar
// treat lane 0 as authoritative, matching the hardware's per-lane SIMD
// execution model); a dynamic index goes through the same Rotate path
// with a non-literal offset.
func Extract(w *ir.InstructionWalker, dest *ir.Local, src ir.Value, index ir.Value) *ir.InstructionWalker {
	return Rotate(w, dest, src, index, Down)
}

// Insert writes value into lane index of base, yielding dest, by rotating
// value up by index into a temporary and conditionally moving it into dest
// only on the lane where the element-number register equals index; every
// other lane keeps base's value unmodified via a prior plain copy. The
// resulting instruction carries DecorElementInsertion so later passes can
// recognize the pattern.
func Insert(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, base, value, index ir.Value) *ir.InstructionWalker {
	// Copy base into dest unconditionally: every lane but `index` keeps it.
	w = w.Emplace(ir.NewMove(dest, base))
	w.NextInBlock()

	rotated := method.AddNewLocal(dest.Type, "insert_rot")
	w = Rotate(w, rotated, value, index, Up)

	elemNum := method.FixedLocal(hwinfo.RegElementNumber, dest.Type)
	cmp := method.AddNewLocal(dest.Type, "insert_cmp")
	cmpIns := ir.NewAddOperation(cmp, hwinfo.AddXor, ir.LocalValue(elemNum), index)
	cmpIns.SetFlags = true
	w = w.Emplace(cmpIns)
	w.NextInBlock()

	sel := ir.NewMove(dest, ir.LocalValue(rotated))
	sel.Cond = hwinfo.CondZeroSet
	sel.AddDecoration(ir.DecorElementInsertion)
	w = w.Emplace(sel)
	w.NextInBlock()
	return w
}
