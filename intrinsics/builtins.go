package intrinsics

import (
	"math"

	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
	"github.com/qpuforge/qpuc/lowering"
)

// singleArgALU maps a named unary intrinsic to its concrete add-ALU opcode
// and optional pack/unpack mode (spec.md §4.E item 2: "Single-arg ALU
// intrinsics ... rewrite the call to an Operation carrying a specific
// opcode and optionally a pack- or unpack-mode").
type singleArgALU struct {
	op      hwinfo.AddOp
	pack    hwinfo.PackMode
	unpack  hwinfo.UnpackMode
	decor   ir.Decoration
}

var singleArgALUTable = map[string]singleArgALU{
	"ftoi":                  {op: hwinfo.AddFToI},
	"itof":                  {op: hwinfo.AddIToF},
	"clz":                   {op: hwinfo.AddClz},
	"unpack_char_to_int":    {op: hwinfo.AddOr, unpack: hwinfo.UnpackCharToInt},
	"unpack_short_to_int":   {op: hwinfo.AddOr, unpack: hwinfo.UnpackShortToInt},
	"saturate_char":         {op: hwinfo.AddOr, pack: hwinfo.PackToChar, decor: ir.DecorSaturatedConversion},
	"saturate_uchar":        {op: hwinfo.AddOr, pack: hwinfo.PackToUCharSaturate, decor: ir.DecorSaturatedConversion},
	"saturate_short":        {op: hwinfo.AddOr, pack: hwinfo.PackToShortSaturate, decor: ir.DecorSaturatedConversion},
	"saturate_ushort":       {op: hwinfo.AddOr, pack: hwinfo.PackToUShortTruncate, decor: ir.DecorSaturatedConversion},
	"saturate_int":          {op: hwinfo.AddOr, pack: hwinfo.PackToIntSaturate, decor: ir.DecorSaturatedConversion},
}

// twoArgALU maps a named binary intrinsic to its concrete opcode (spec.md
// §4.E item 2: "Two-arg ALU intrinsics ... same pattern").
type twoArgALU struct {
	addOp hwinfo.AddOp
	mulOp hwinfo.MulOp
	side  hwinfo.ALUSide
}

var twoArgALUTable = map[string]twoArgALU{
	"fmax":    {addOp: hwinfo.AddFMax, side: hwinfo.SideAdd},
	"fmin":    {addOp: hwinfo.AddFMin, side: hwinfo.SideAdd},
	"fmaxabs": {addOp: hwinfo.AddFMaxAbs, side: hwinfo.SideAdd},
	"fminabs": {addOp: hwinfo.AddFMinAbs, side: hwinfo.SideAdd},
	"shr":     {addOp: hwinfo.AddShr, side: hwinfo.SideAdd},
	"asr":     {addOp: hwinfo.AddAsr, side: hwinfo.SideAdd},
	"ror":     {addOp: hwinfo.AddRor, side: hwinfo.SideAdd},
	"shl":     {addOp: hwinfo.AddShl, side: hwinfo.SideAdd},
	"min":     {addOp: hwinfo.AddMin, side: hwinfo.SideAdd},
	"max":     {addOp: hwinfo.AddMax, side: hwinfo.SideAdd},
	"and":     {addOp: hwinfo.AddAnd, side: hwinfo.SideAdd},
	"mul24":   {mulOp: hwinfo.MulMul24, side: hwinfo.SideMul},
	"adds_sat": {addOp: hwinfo.AddV8Adds, side: hwinfo.SideAdd},
	"subs_sat": {addOp: hwinfo.AddV8Subs, side: hwinfo.SideAdd},
}

// sfuTable maps an SFU intrinsic name to its input register; literal
// folding with standard math is done separately by foldSFU (spec.md §4.E item 2: "SFU
// intrinsics ... insert: move arg to the SFU input register, two
// Nop(wait-sfu) bubbles, then a move from the SFU output register").
var sfuTable = map[string]hwinfo.Register{
	"recip":   hwinfo.RegSFURecip,
	"rsqrt":   hwinfo.RegSFURecipSqrt,
	"exp2":    hwinfo.RegSFUExp2,
	"log2":    hwinfo.RegSFULog2,
}

// typeCastTable maps a bitcast intrinsic to the destination bit width it
// truncates to, or 0 for a plain move with no truncation needed (spec.md
// §4.E item 2: "Type-cast intrinsics ... become either a plain move or a
// mask-and depending on whether the narrow bits need truncation").
var typeCastTable = map[string]int{
	"bitcast_uchar":  8,
	"bitcast_ushort": 16,
	"bitcast_int":    0,
	"bitcast_float":  0,
}

// lowerNamedBuiltin dispatches mutex/semaphore forms, element-number/
// QPU-number reads, single/two-arg ALU intrinsics, SFU sequences, DMA
// access, and type-cast intrinsics.
func lowerNamedBuiltin(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	switch ins.CallName {
	case "mutex_acquire", "mutex_lock":
		return true, w.Reset(ir.NewMutexLock(true)), nil
	case "mutex_release", "mutex_unlock":
		return true, w.Reset(ir.NewMutexLock(false)), nil
	case "semaphore_increment", "semaphore_inc":
		return lowerSemaphore(w, ins, true)
	case "semaphore_decrement", "semaphore_dec":
		return lowerSemaphore(w, ins, false)
	case "element_number":
		src := method.FixedLocal(hwinfo.RegElementNumber, ins.Out.Type)
		return true, w.Reset(ir.NewMove(ins.Out, ir.LocalValue(src))), nil
	case "qpu_number":
		src := method.FixedLocal(hwinfo.RegQPUNumber, ins.Out.Type)
		return true, w.Reset(ir.NewMove(ins.Out, ir.LocalValue(src))), nil
	case "dma_read", "dma_write", "dma_copy":
		return lowerDMA(w, method, ins)
	case "shuffle":
		next, err := lowering.Shuffle(w.Erase(), method, ins.Out, ins.Args[0], ins.Args[0], ins.Args[1])
		if err != nil {
			return false, w, err
		}
		return true, next, nil
	case "shuffle2":
		next, err := lowering.Shuffle(w.Erase(), method, ins.Out, ins.Args[0], ins.Args[1], ins.Args[2])
		if err != nil {
			return false, w, err
		}
		return true, next, nil
	}

	if info, ok := singleArgALUTable[ins.CallName]; ok {
		return lowerSingleArgALU(w, ins, info)
	}
	if info, ok := twoArgALUTable[ins.CallName]; ok {
		return lowerTwoArgALU(w, ins, info)
	}
	if reg, ok := sfuTable[ins.CallName]; ok {
		return lowerSFU(w, method, ins, reg)
	}
	if width, ok := typeCastTable[ins.CallName]; ok {
		return lowerTypeCast(w, ins, width)
	}
	return false, w, nil
}

func lowerSemaphore(w *ir.InstructionWalker, ins *ir.Instruction, increment bool) (bool, *ir.InstructionWalker, error) {
	id := ins.Args[0]
	if !id.IsLiteral() {
		return false, w, compileerror.Newf(compileerror.StepOptimizer, "semaphore id must be a compile-time literal").WithContext(ins.String())
	}
	n := id.Lit.AsInt64()
	if n < 0 || n > hwinfo.MaxSemaphoreID {
		return false, w, compileerror.Newf(compileerror.StepOptimizer, "semaphore id %d out of range [0,%d]", n, hwinfo.MaxSemaphoreID).WithContext(ins.String())
	}
	return true, w.Reset(ir.NewSemaphoreAdjustment(id, increment)), nil
}

func lowerSingleArgALU(w *ir.InstructionWalker, ins *ir.Instruction, info singleArgALU) (bool, *ir.InstructionWalker, error) {
	if ins.Args[0].IsConstant() {
		if folded, ok := foldAdd(info.op, ins.Args[0]); ok {
			mv := ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, folded))
			return true, w.Reset(mv), nil
		}
	}
	op := ir.NewAddOperation(ins.Out, info.op, ins.Args[0])
	op.Pack = info.pack
	op.Unpack = info.unpack
	if info.decor != 0 {
		op.AddDecoration(info.decor)
	}
	return true, w.Reset(op), nil
}

func lowerTwoArgALU(w *ir.InstructionWalker, ins *ir.Instruction, info twoArgALU) (bool, *ir.InstructionWalker, error) {
	if ins.Args[0].IsConstant() && ins.Args[1].IsConstant() {
		var folded ir.Literal
		var ok bool
		if info.side == hwinfo.SideMul {
			folded, ok = foldMul(info.mulOp, ins.Args[0], ins.Args[1])
		} else {
			folded, ok = foldAdd(info.addOp, ins.Args[0], ins.Args[1])
		}
		if ok {
			return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, folded))), nil
		}
	}
	var op *ir.Instruction
	if info.side == hwinfo.SideMul {
		op = ir.NewMulOperation(ins.Out, info.mulOp, ins.Args[0], ins.Args[1])
	} else {
		op = ir.NewAddOperation(ins.Out, info.addOp, ins.Args[0], ins.Args[1])
	}
	return true, w.Reset(op), nil
}

// lowerSFU emits the mandatory move-in / two wait-sfu nops / move-out
// sequence, folding at compile time when the argument is constant (spec.md
// §4.E item 2, §8 invariant 4).
func lowerSFU(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, reg hwinfo.Register) (bool, *ir.InstructionWalker, error) {
	if lit, ok := ins.Args[0].ReplicatedLiteral(); ok {
		if folded, ok := foldSFU(ins.CallName, lit.AsFloat64()); ok {
			return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, ir.FloatLiteral(folded)))), nil
		}
	}

	sfuIn := method.FixedLocal(reg, ins.Args[0].Type)
	w = w.Reset(ir.NewMove(sfuIn, ins.Args[0]))
	w.NextInBlock()
	w = w.Emplace(ir.NewNop(hwinfo.NopWaitSFU))
	w.NextInBlock()
	w = w.Emplace(ir.NewNop(hwinfo.NopWaitSFU))
	w.NextInBlock()
	sfuOut := method.FixedLocal(hwinfo.RegSFUOutput, ins.Out.Type)
	w = w.Emplace(ir.NewMove(ins.Out, ir.LocalValue(sfuOut)))
	w.NextInBlock()
	return true, w, nil
}

func lowerTypeCast(w *ir.InstructionWalker, ins *ir.Instruction, narrowWidth int) (bool, *ir.InstructionWalker, error) {
	if narrowWidth == 0 {
		return true, w.Reset(ir.NewMove(ins.Out, ins.Args[0])), nil
	}
	mask := ir.LiteralValue(ins.Args[0].Type, ir.IntLiteral(int64(1)<<uint(narrowWidth)-1))
	return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddAnd, ins.Args[0], mask)), nil
}

// lowerDMA inserts the VPM/TMU-mediated read/write/copy sequence and erases
// the original call (spec.md §4.E item 2). The full DMA/VPM bridge
// protocol (stride setup, address computation) is out of this pass's
// scope; it emits the mailbox handshake the hardware requires around a
// transfer.
func lowerDMA(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	var mailbox hwinfo.Register
	switch ins.CallName {
	case "dma_read":
		mailbox = hwinfo.RegVPMMailbox
	case "dma_write":
		mailbox = hwinfo.RegTMUMailbox
	default:
		mailbox = hwinfo.RegDMAMailbox
	}
	addrReg := method.FixedLocal(mailbox, ins.Args[0].Type)
	w = w.Reset(ir.NewMove(addrReg, ins.Args[0]))
	w.NextInBlock()
	w = w.Emplace(ir.NewNop(hwinfo.NopDMAFence))
	w.NextInBlock()
	if ins.Out != nil {
		w = w.Emplace(ir.NewMove(ins.Out, ir.LocalValue(addrReg)))
		w.NextInBlock()
	}
	return true, w, nil
}

func foldAdd(op hwinfo.AddOp, args ...ir.Value) (ir.Literal, bool) {
	info := hwinfo.AddOpTable[op]
	if info.Precalc == nil {
		return ir.Literal{}, false
	}
	hw := make([]hwinfo.Literal64, len(args))
	for i, a := range args {
		lit, ok := a.ReplicatedLiteral()
		if !ok {
			return ir.Literal{}, false
		}
		hw[i] = lit.HW()
	}
	result, ok := info.Precalc(hw)
	if !ok {
		return ir.Literal{}, false
	}
	return literalFromHWResult(result), true
}

func foldMul(op hwinfo.MulOp, args ...ir.Value) (ir.Literal, bool) {
	info := hwinfo.MulOpTable[op]
	if info.Precalc == nil {
		return ir.Literal{}, false
	}
	hw := make([]hwinfo.Literal64, len(args))
	for i, a := range args {
		lit, ok := a.ReplicatedLiteral()
		if !ok {
			return ir.Literal{}, false
		}
		hw[i] = lit.HW()
	}
	result, ok := info.Precalc(hw)
	if !ok {
		return ir.Literal{}, false
	}
	return literalFromHWResult(result), true
}

func literalFromHWResult(h hwinfo.Literal64) ir.Literal {
	if h.IsFloat {
		return ir.FloatLiteral(h.Float)
	}
	if h.IsUint {
		return ir.UintLiteral(h.Uint)
	}
	return ir.IntLiteral(h.Int)
}

func foldSFU(name string, x float64) (float64, bool) {
	switch name {
	case "recip":
		if x == 0 {
			return 0, false
		}
		return 1 / x, true
	case "rsqrt":
		if x <= 0 {
			return 0, false
		}
		return 1 / math.Sqrt(x), true
	case "exp2":
		return math.Exp2(x), true
	case "log2":
		if x <= 0 {
			return 0, false
		}
		return math.Log2(x), true
	default:
		return 0, false
	}
}
