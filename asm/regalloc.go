package asm

import (
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// RegisterFileSize is the number of addressable slots this encoder assumes
// per file (spec.md §3 "Register": "a tiny register file split into two
// files A/B"). The real ISA's exact count is implementation-defined; 32
// matches the VideoCore QPU this design is patterned on.
const RegisterFileSize = 32

// Allocation maps every Local in a method to the concrete hardware register
// the encoder should read or write for it.
type Allocation map[*ir.Local]hwinfo.Register

// Allocate assigns a register to every Local in method that does not already
// carry a FixedReg pin. This is a single linear pass with no live-range
// reuse: each local gets its own slot, alternating between file A and file
// B, for the lifetime of the method. Register pressure (a kernel with more
// than 2*RegisterFileSize locals in total) is reported as an error
// rather than silently miscompiled, since spilling to the stack is not
// implemented.
func Allocate(method *ir.Method) (Allocation, error) {
	alloc := make(Allocation)
	nextA, nextB := uint8(0), uint8(0)
	useA := true

	for _, l := range method.Locals() {
		if l.FixedReg != nil {
			alloc[l] = *l.FixedReg
			continue
		}
		if useA {
			if int(nextA) >= RegisterFileSize {
				return nil, compileerror.Newf(compileerror.StepCodeGeneration, "method %q: register file A exhausted allocating %q", method.Name, l.Name)
			}
			alloc[l] = hwinfo.Register{File: hwinfo.FileA, Index: nextA}
			nextA++
		} else {
			if int(nextB) >= RegisterFileSize {
				return nil, compileerror.Newf(compileerror.StepCodeGeneration, "method %q: register file B exhausted allocating %q", method.Name, l.Name)
			}
			alloc[l] = hwinfo.Register{File: hwinfo.FileB, Index: nextB}
			nextB++
		}
		useA = !useA
	}
	return alloc, nil
}

// Register looks up l's assigned register, falling back to its FixedReg pin.
func (a Allocation) Register(l *ir.Local) (hwinfo.Register, bool) {
	if l.FixedReg != nil {
		return *l.FixedReg, true
	}
	r, ok := a[l]
	return r, ok
}
