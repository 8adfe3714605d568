// Package asm implements the fixed-function SIMD processor's packed
// instruction-word encoding and module binary format. Bitfield composition
// uses named bit-position constants and shift-and-OR packing, with no
// intermediate struct-of-bits representation.
package asm

import (
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// wordClass is the top-level discriminant of a packed 64-bit instruction
// word, carried in its top two bits. The real ISA distinguishes these
// through signaling bits rather than a clean tag field; this encoder keeps
// them explicit so decoding (needed only for the assembler/hex comments and
// for tests) does not have to re-derive the variant from opcode values.
type wordClass uint64

const (
	classALU wordClass = iota
	classBranch
	classSignal
	classLoadImmediate
)

const (
	shiftClass = 62 // bits 62-63

	// classALU layout, bits 0-61.
	shiftALUAddOp  = 0  // bits 0-7
	shiftALUMulOp  = 8  // bits 8-15
	shiftALUReadA  = 16 // bits 16-23
	shiftALUReadB  = 24 // bits 24-31
	shiftALUWrite  = 32 // bits 32-39
	shiftALUSmall  = 40 // bits 40-45 (6 bits)
	bitALUSmallOK  = 46
	shiftALUCond   = 47 // bits 47-49 (3 bits)
	bitALUSetFlags = 50
	shiftALUPack   = 51 // bits 51-53 (3 bits)
	shiftALUUnpack = 54 // bits 54-55 (2 bits)

	// classBranch layout, bits 0-61.
	shiftBranchOffset = 0  // bits 0-31, signed word-relative displacement
	shiftBranchCond   = 32 // bits 32-34

	// classSignal layout, bits 0-61.
	shiftSignalKind   = 0 // bits 0-3
	shiftSignalReason = 4 // bits 4-7 (NopReason)
	shiftSignalSemID  = 8 // bits 8-11

	// classLoadImmediate layout, bits 0-61.
	shiftImmWrite    = 0  // bits 0-7
	shiftImmValue    = 8  // bits 8-39 (32 bits)
	shiftImmCond     = 40 // bits 40-42
	bitImmSetFlags   = 43
	shiftImmPack     = 44 // bits 44-46
)

// signalKind tags which pseudo-op a classSignal word carries.
type signalKind uint64

const (
	signalNop signalKind = iota
	signalSemaphoreInc
	signalSemaphoreDec
	signalMutexAcquire
	signalMutexRelease
	signalReturn
)

func mask(bits uint) uint64 { return (uint64(1) << bits) - 1 }

// registerByte packs a (file, index) pair into one byte: file in the top 2
// bits, index in the low 6.
func registerByte(r hwinfo.Register) byte {
	return byte(uint8(r.File)&0x3)<<6 | (r.Index & 0x3F)
}

func decodeRegisterByte(b byte) hwinfo.Register {
	return hwinfo.Register{File: hwinfo.RegisterFile((b >> 6) & 0x3), Index: b & 0x3F}
}

// operand resolves one instruction argument to either a register read or a
// small-immediate field. Literal arguments that are not representable as a
// SmallImmediate must already have been split into a LoadImmediate by an
// earlier pass; EncodeInstruction reports an error rather than silently
// dropping the value.
func operand(alloc Allocation, v ir.Value) (reg hwinfo.Register, small uint8, hasSmall bool, err error) {
	switch v.Kind {
	case ir.ValueLocal:
		r, ok := alloc.Register(v.Local)
		if !ok {
			return hwinfo.Register{}, 0, false, compileerror.Newf(compileerror.StepCodeGeneration, "no register allocated for local %q", v.Local.Name)
		}
		return r, 0, false, nil
	case ir.ValueRegister:
		return v.Reg, 0, false, nil
	case ir.ValueSmallImmediate:
		enc, encErr := v.SmallImm.Encode()
		if encErr != nil {
			return hwinfo.Register{}, 0, false, compileerror.Newf(compileerror.StepCodeGeneration, "%v", encErr)
		}
		return hwinfo.Register{}, enc, true, nil
	case ir.ValueLiteral:
		if imm, ok := ir.SmallImmFromInt(v.Lit.AsInt64()); ok {
			enc, _ := imm.Encode()
			return hwinfo.Register{}, enc, true, nil
		}
		if imm, ok := ir.SmallImmFromFloat(v.Lit.AsFloat64()); ok {
			enc, _ := imm.Encode()
			return hwinfo.Register{}, enc, true, nil
		}
		return hwinfo.Register{}, 0, false, compileerror.Newf(compileerror.StepCodeGeneration, "literal %s is not representable as a small immediate; expected a LoadImmediate", v.Lit.String())
	default:
		return hwinfo.Register{}, 0, false, compileerror.Newf(compileerror.StepCodeGeneration, "operand kind %d cannot reach instruction encoding", v.Kind)
	}
}

// EncodeInstruction packs one legalized, register-allocated instruction into
// its 64-bit hardware word. branchOffset is the signed word-relative
// displacement to the instruction's branch target, resolved by the caller
// (package asm's emitter, which knows the final instruction layout); it is
// ignored for every Kind but KindBranch.
func EncodeInstruction(ins *ir.Instruction, alloc Allocation, branchOffset int32) (uint64, error) {
	switch ins.Kind {
	case ir.KindMove, ir.KindVectorRotation:
		return encodeMulMove(ins, alloc)
	case ir.KindOperation:
		return encodeALU(ins, alloc)
	case ir.KindBranch:
		return encodeBranch(ins, branchOffset), nil
	case ir.KindReturn:
		return encodeSignal(signalReturn, ins, 0), nil
	case ir.KindNop:
		return uint64(classSignal)<<shiftClass | uint64(signalNop) | uint64(ins.NopReason)<<shiftSignalReason, nil
	case ir.KindSemaphoreAdjustment:
		return encodeSemaphore(ins)
	case ir.KindMutexLock:
		kind := signalMutexRelease
		if ins.MutexAcquire {
			kind = signalMutexAcquire
		}
		return encodeSignal(kind, ins, 0), nil
	case ir.KindLoadImmediate:
		return encodeLoadImmediate(ins, alloc)
	case ir.KindMethodCall:
		return 0, compileerror.Newf(compileerror.StepCodeGeneration, "internal: unresolved call %q survived to instruction encoding", ins.CallName)
	case ir.KindBranchLabel:
		return 0, compileerror.New(compileerror.StepCodeGeneration, "internal: branch label is not an encodable word")
	default:
		return 0, compileerror.Newf(compileerror.StepCodeGeneration, "internal: unknown instruction kind %d", ins.Kind)
	}
}

func encodeALU(ins *ir.Instruction, alloc Allocation) (uint64, error) {
	word := uint64(classALU) << shiftClass
	switch ins.Side {
	case hwinfo.SideAdd:
		word |= uint64(ins.AddOp) << shiftALUAddOp
		word |= uint64(hwinfo.MulNop) << shiftALUMulOp
	case hwinfo.SideMul:
		word |= uint64(hwinfo.AddNop) << shiftALUAddOp
		word |= uint64(ins.MulOp) << shiftALUMulOp
	default:
		return 0, compileerror.Newf(compileerror.StepCodeGeneration, "operation %q has no resolved ALU side", hwinfo.AddOpTable[ins.AddOp].Name)
	}
	if err := packOperandsAndWrite(&word, ins, alloc); err != nil {
		return 0, err
	}
	return word, nil
}

func encodeMulMove(ins *ir.Instruction, alloc Allocation) (uint64, error) {
	word := uint64(classALU)<<shiftClass | uint64(hwinfo.AddNop)<<shiftALUAddOp | uint64(hwinfo.MulMove)<<shiftALUMulOp
	if err := packOperandsAndWrite(&word, ins, alloc); err != nil {
		return 0, err
	}
	return word, nil
}

// packOperandsAndWrite resolves ins.Args[0] (and Args[1] if present) into
// the read-A/read-B/small-immediate fields and ins.Out into the write field,
// then ORs in the shared condition/set-flags/pack/unpack fields. Both
// operands share a single small-immediate slot: if both need one, they must
// encode to the same value, otherwise this returns an error.
func packOperandsAndWrite(word *uint64, ins *ir.Instruction, alloc Allocation) error {
	firstSmall, hadSmall := uint8(0), false
	if len(ins.Args) > 0 {
		reg, small, hasSmall, err := operand(alloc, ins.Args[0])
		if err != nil {
			return err
		}
		if hasSmall {
			*word |= uint64(small)<<shiftALUSmall | 1<<bitALUSmallOK
			firstSmall, hadSmall = small, true
		} else {
			*word |= uint64(registerByte(reg)) << shiftALUReadA
		}
	}
	if len(ins.Args) > 1 {
		reg, small, hasSmall, err := operand(alloc, ins.Args[1])
		if err != nil {
			return err
		}
		if hasSmall {
			if hadSmall && small != firstSmall {
				return compileerror.Newf(compileerror.StepCodeGeneration, "operands need different small immediates (%#x and %#x) but share one slot", firstSmall, small)
			}
			*word |= uint64(small)<<shiftALUSmall | 1<<bitALUSmallOK
		} else {
			*word |= uint64(registerByte(reg)) << shiftALUReadB
		}
	}
	if ins.Out != nil {
		reg, ok := alloc.Register(ins.Out)
		if !ok {
			return compileerror.Newf(compileerror.StepCodeGeneration, "no register allocated for output local %q", ins.Out.Name)
		}
		*word |= uint64(registerByte(reg)) << shiftALUWrite
	}
	*word |= uint64(ins.Cond) << shiftALUCond
	if ins.SetFlags {
		*word |= 1 << bitALUSetFlags
	}
	*word |= uint64(ins.Pack) << shiftALUPack
	*word |= uint64(ins.Unpack) << shiftALUUnpack
	return nil
}

func encodeBranch(ins *ir.Instruction, offset int32) uint64 {
	word := uint64(classBranch) << shiftClass
	word |= (uint64(uint32(offset)) & mask(32)) << shiftBranchOffset
	word |= uint64(ins.Cond) << shiftBranchCond
	return word
}

func encodeSignal(kind signalKind, ins *ir.Instruction, semID uint8) uint64 {
	_ = ins
	return uint64(classSignal)<<shiftClass | uint64(kind)<<shiftSignalKind | uint64(semID)<<shiftSignalSemID
}

func encodeSemaphore(ins *ir.Instruction) (uint64, error) {
	if !ins.SemaphoreID.IsLiteral() {
		return 0, compileerror.New(compileerror.StepCodeGeneration, "semaphore id must be a compile-time literal")
	}
	id := ins.SemaphoreID.Lit.AsInt64()
	if id < 0 || id > hwinfo.MaxSemaphoreID {
		return 0, compileerror.Newf(compileerror.StepCodeGeneration, "semaphore id %d out of range [0,%d]", id, hwinfo.MaxSemaphoreID)
	}
	kind := signalSemaphoreDec
	if ins.SemaphoreIncrement {
		kind = signalSemaphoreInc
	}
	return encodeSignal(kind, ins, uint8(id)), nil
}

func encodeLoadImmediate(ins *ir.Instruction, alloc Allocation) (uint64, error) {
	if ins.Out == nil || len(ins.Args) != 1 || !ins.Args[0].IsLiteral() {
		return 0, compileerror.New(compileerror.StepCodeGeneration, "malformed LoadImmediate instruction")
	}
	reg, ok := alloc.Register(ins.Out)
	if !ok {
		return 0, compileerror.Newf(compileerror.StepCodeGeneration, "no register allocated for %q", ins.Out.Name)
	}
	word := uint64(classLoadImmediate) << shiftClass
	word |= uint64(registerByte(reg)) << shiftImmWrite
	word |= uint64(ins.Args[0].Lit.ToImmediate32()) << shiftImmValue
	word |= uint64(ins.Cond) << shiftImmCond
	if ins.SetFlags {
		word |= 1 << bitImmSetFlags
	}
	word |= uint64(ins.Pack) << shiftImmPack
	return word, nil
}
