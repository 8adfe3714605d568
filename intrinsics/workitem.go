package intrinsics

import (
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// wellKnownLocal finds (or, if absent, synthesizes as an IsParameter local
// so HasWriter() holds without a real writer instruction) the method-wide
// UNIFORM-backed local by name: %work_dim, %num_groups_{x,y,z},
// %group_id_{x,y,z}, %global_offset_{x,y,z}, %local_sizes, %local_ids.
// These are populated by the runtime before kernel dispatch, so within the
// compiler they behave exactly like parameters.
func wellKnownLocal(method *ir.Method, name string, t ir.DataType) *ir.Local {
	for _, l := range method.Locals() {
		if l.Name == name {
			return l
		}
	}
	return method.AddParameter(name, t, 0)
}

var dimAxis = [3]string{"x", "y", "z"}

// lowerWorkItemBuiltin rewrites work_dim/num_groups/group_id/global_offset/
// local_size/local_id/global_size/global_id calls.
func lowerWorkItemBuiltin(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	switch ins.CallName {
	case "work_dim":
		src := wellKnownLocal(method, "%work_dim", ir.Int32)
		mv := ir.NewMove(ins.Out, ir.LocalValue(src))
		mv.AddDecoration(ir.DecorBuiltinWorkDim)
		return true, w.Reset(mv), nil
	case "num_groups":
		return lowerDimQuery(w, method, ins, "%num_groups_", ir.DecorBuiltinNumGroups)
	case "group_id":
		return lowerDimQuery(w, method, ins, "%group_id_", ir.DecorBuiltinGroupID)
	case "global_offset":
		return lowerDimQuery(w, method, ins, "%global_offset_", ir.DecorBuiltinGlobalOffset)
	case "local_size":
		return lowerPackedDimQuery(w, method, ins, "%local_sizes", ir.DecorBuiltinLocalSize)
	case "local_id":
		return lowerPackedDimQuery(w, method, ins, "%local_ids", ir.DecorBuiltinLocalID)
	case "global_size":
		return lowerGlobalSize(w, method, ins)
	case "global_id":
		return lowerGlobalID(w, method, ins)
	}
	return false, w, nil
}

// lowerDimQuery handles a query over three per-axis well-known locals: a
// direct move when dim is a literal in {0,1,2}, else a small decision tree
// that sets flags by XOR-ing dim against 0, 1, 2 in turn.
func lowerDimQuery(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, prefix string, decor ir.Decoration) (bool, *ir.InstructionWalker, error) {
	dim := ins.Args[0]
	if dim.IsLiteral() {
		axis := int(dim.Lit.AsInt64())
		if axis < 0 || axis > 2 {
			return false, w, compileerror.Newf(compileerror.StepOptimizer, "work-item dimension %d out of range [0,2]", axis).WithContext(ins.String())
		}
		src := wellKnownLocal(method, prefix+dimAxis[axis], ir.Int32)
		mv := ir.NewMove(ins.Out, ir.LocalValue(src))
		mv.AddDecoration(decor)
		return true, w.Reset(mv), nil
	}

	w = w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ir.Int32, ir.IntLiteral(0))))
	w.NextInBlock()
	for axis := 0; axis < 3; axis++ {
		cmp := method.AddNewLocal(ir.Int32, "dim_cmp")
		cmpIns := ir.NewAddOperation(cmp, hwinfo.AddXor, dim, ir.LiteralValue(ir.Int32, ir.IntLiteral(int64(axis))))
		cmpIns.SetFlags = true
		w = w.Emplace(cmpIns)
		w.NextInBlock()
		src := wellKnownLocal(method, prefix+dimAxis[axis], ir.Int32)
		sel := ir.NewMove(ins.Out, ir.LocalValue(src))
		sel.Cond = hwinfo.CondZeroSet
		sel.AddDecoration(decor)
		w = w.Emplace(sel)
		w.NextInBlock()
	}
	return true, w, nil
}

// lowerPackedDimQuery handles local_size/local_id, both packed three bytes
// into one UNIFORM word and extracted by (info >> (dim*8)) & 0xFF.
func lowerPackedDimQuery(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, name string, decor ir.Decoration) (bool, *ir.InstructionWalker, error) {
	dim := ins.Args[0]
	packed := wellKnownLocal(method, name, ir.Int32)

	var shiftAmount ir.Value
	if dim.IsLiteral() {
		shiftAmount = ir.LiteralValue(ir.Int32, ir.IntLiteral(dim.Lit.AsInt64()*8))
	} else {
		shifted := method.AddNewLocal(ir.Int32, "dim_shift")
		w = w.Emplace(ir.NewMulOperation(shifted, hwinfo.MulMul24, dim, ir.LiteralValue(ir.Int32, ir.IntLiteral(8))))
		w.NextInBlock()
		shiftAmount = ir.LocalValue(shifted)
	}

	shr := method.AddNewLocal(ir.Int32, "dim_extract")
	w = w.Emplace(ir.NewAddOperation(shr, hwinfo.AddShr, ir.LocalValue(packed), shiftAmount))
	w.NextInBlock()

	mask := ir.NewAddOperation(ins.Out, hwinfo.AddAnd, ir.LocalValue(shr), ir.LiteralValue(ir.Int32, ir.IntLiteral(0xFF)))
	mask.AddDecoration(decor)
	w = w.Reset(mask)
	return true, w, nil
}

// lowerGlobalSize rewrites global_size(dim) = local_size(dim) *
// num_groups(dim).
func lowerGlobalSize(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	dim := ins.Args[0]
	localSize := method.AddNewLocal(ir.Int32, "gsz_local")
	w, err := expandCall(w, method, localSize, "local_size", dim)
	if err != nil {
		return false, w, err
	}
	numGroups := method.AddNewLocal(ir.Int32, "gsz_groups")
	w, err = expandCall(w, method, numGroups, "num_groups", dim)
	if err != nil {
		return false, w, err
	}
	mul := ir.NewMulOperation(ins.Out, hwinfo.MulMul24, ir.LocalValue(localSize), ir.LocalValue(numGroups))
	mul.AddDecoration(ir.DecorBuiltinGlobalSize)
	w = w.Reset(mul)
	return true, w, nil
}

// lowerGlobalID rewrites global_id(dim) = global_offset(dim) +
// group_id(dim) * local_size(dim) + local_id(dim).
func lowerGlobalID(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	dim := ins.Args[0]
	offset := method.AddNewLocal(ir.Int32, "gid_offset")
	w, err := expandCall(w, method, offset, "global_offset", dim)
	if err != nil {
		return false, w, err
	}
	groupID := method.AddNewLocal(ir.Int32, "gid_group")
	w, err = expandCall(w, method, groupID, "group_id", dim)
	if err != nil {
		return false, w, err
	}
	localSize := method.AddNewLocal(ir.Int32, "gid_localsize")
	w, err = expandCall(w, method, localSize, "local_size", dim)
	if err != nil {
		return false, w, err
	}
	localID := method.AddNewLocal(ir.Int32, "gid_localid")
	w, err = expandCall(w, method, localID, "local_id", dim)
	if err != nil {
		return false, w, err
	}

	prod := method.AddNewLocal(ir.Int32, "gid_prod")
	w = w.Emplace(ir.NewMulOperation(prod, hwinfo.MulMul24, ir.LocalValue(groupID), ir.LocalValue(localSize)))
	w.NextInBlock()

	sum := method.AddNewLocal(ir.Int32, "gid_sum")
	w = w.Emplace(ir.NewAddOperation(sum, hwinfo.AddAdd, ir.LocalValue(offset), ir.LocalValue(prod)))
	w.NextInBlock()

	final := ir.NewAddOperation(ins.Out, hwinfo.AddAdd, ir.LocalValue(sum), ir.LocalValue(localID))
	final.AddDecoration(ir.DecorBuiltinGlobalID)
	w = w.Reset(final)
	return true, w, nil
}

// expandCall inlines one work-item builtin call into dest at the walker's
// current position, used when one builtin's lowering needs another's
// result as a sub-expression (global_size, global_id). The returned walker
// points back at the instruction that was current on entry, so the caller
// keeps emitting before it and finally replaces it.
func expandCall(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, name string, args ...ir.Value) (*ir.InstructionWalker, error) {
	orig := w.Get()
	call := ir.NewMethodCall(dest, name, args...)
	w = w.Emplace(call)
	rewrote, next, err := lowerWorkItemBuiltin(w, method, call)
	if err != nil {
		return w, err
	}
	if !rewrote {
		return w, compileerror.Newf(compileerror.StepOptimizer, "internal: expandCall could not lower %q", name)
	}
	return next.Block().WalkerAt(orig), nil
}
