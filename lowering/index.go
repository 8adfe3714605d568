package lowering

import (
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// Index walks a chain of indices into a pointer/array/struct container,
// producing dest (spec.md §4.D "Index / GEP calculation"): for pointer or
// array steps, offset += index * element-physical-width, with a
// literal*literal fold; for struct steps the index must be literal and
// offset += struct-layout-offset-of(index). A final add of container and
// offset produces the pointer. dest records a back-reference to base and
// the first index so later passes can recover which parameter the pointer
// aliases.
func Index(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, base *ir.Local, container ir.Value, indices []ir.Value) (*ir.InstructionWalker, error) {
	t := container.Type
	offset := ir.LiteralValue(ir.Int32, ir.IntLiteral(0))

	for step, idx := range indices {
		var stepOffset ir.Value
		switch t.Kind {
		case ir.TypePointer, ir.TypeArray:
			elemWidth := int64(1)
			if t.Elem != nil {
				elemWidth = int64(t.Elem.PhysicalWidth())
			}
			if idx.IsLiteral() {
				stepOffset = ir.LiteralValue(ir.Int32, ir.IntLiteral(idx.Lit.AsInt64()*elemWidth))
			} else {
				width := ir.LiteralValue(ir.Int32, ir.IntLiteral(elemWidth))
				tmp := method.AddNewLocal(ir.Int32, "gep_scale")
				w = w.Emplace(ir.NewMulOperation(tmp, hwinfo.MulMul24, idx, width))
				w.NextInBlock()
				stepOffset = ir.LocalValue(tmp)
			}
			if t.Elem != nil {
				t = *t.Elem
			}
		case ir.TypeStruct:
			if !idx.IsLiteral() {
				return nil, compileerror.Newf(compileerror.StepOptimizer, "struct index at GEP step %d is not a compile-time literal", step)
			}
			i := int(idx.Lit.AsInt64())
			if i < 0 || i >= len(t.StructElems) {
				return nil, compileerror.Newf(compileerror.StepOptimizer, "struct index %d out of range", i)
			}
			structOffset := int64(0)
			for j := 0; j < i; j++ {
				structOffset += int64(t.StructElems[j].PhysicalWidth())
			}
			stepOffset = ir.LiteralValue(ir.Int32, ir.IntLiteral(structOffset))
			t = t.StructElems[i]
		default:
			return nil, compileerror.Newf(compileerror.StepOptimizer, "cannot index into type %s", t)
		}

		if offset.IsLiteral() && stepOffset.IsLiteral() {
			offset = ir.LiteralValue(ir.Int32, ir.IntLiteral(offset.Lit.AsInt64()+stepOffset.Lit.AsInt64()))
			continue
		}
		sum := method.AddNewLocal(ir.Int32, "gep_offset")
		w = w.Emplace(ir.NewAddOperation(sum, hwinfo.AddAdd, offset, stepOffset))
		w.NextInBlock()
		offset = ir.LocalValue(sum)
	}

	w = w.Emplace(ir.NewAddOperation(dest, hwinfo.AddAdd, container, offset))
	w.NextInBlock()

	dest.RefBase = base
	if len(indices) > 0 {
		dest.RefIndex = indices[0]
	}
	return w, nil
}
