package intrinsics

import (
	"math"

	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
	"github.com/qpuforge/qpuc/lowering"
)

// reciprocalK is the empirical constant the multiply-by-reciprocal
// division routine uses to pick a shift amount: shift = ceil(log2(d*K)),
// with K chosen large enough the pre-correction quotient error stays
// within one ULP.
const reciprocalK = 16100.0

// lowerArithmetic applies the generic arithmetic legalization rewrites to
// an abstract opcode represented as a MethodCall (see package doc in
// pass.go for why).
func lowerArithmetic(w *ir.InstructionWalker, method *ir.Method, cfg Config, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	switch ins.CallName {
	case "mul":
		return lowerMul(w, method, ins, true)
	case "umul":
		return lowerMul(w, method, ins, false)
	case "udiv":
		return lowerUDiv(w, method, ins, false)
	case "urem":
		return lowerUDiv(w, method, ins, true)
	case "sdiv":
		return lowerSDiv(w, method, ins, false)
	case "srem":
		return lowerSDiv(w, method, ins, true)
	case "fdiv":
		return lowerFDiv(w, method, cfg, ins)
	case "trunc":
		return lowerTrunc(w, ins)
	case "fptrunc":
		folded, ok := func() (ir.Literal, bool) {
			if lit, ok := ins.Args[0].ReplicatedLiteral(); ok {
				return ir.FloatLiteral(float64(float32(lit.AsFloat64()))), true
			}
			return ir.Literal{}, false
		}()
		if ok {
			return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, folded))), nil
		}
		return true, w.Reset(ir.NewMove(ins.Out, ins.Args[0])), nil
	case "ashr":
		return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddAsr, ins.Args[0], ins.Args[1])), nil
	case "lshr":
		return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddShr, ins.Args[0], ins.Args[1])), nil
	case "sitofp":
		return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddIToF, ins.Args[0])), nil
	case "uitofp":
		return lowerUIToFP(w, method, ins)
	case "fptosi", "fptoui":
		return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddFToI, ins.Args[0])), nil
	case "sext":
		width := int(ins.Args[1].Lit.AsInt64())
		return true, lowering.SignExtend(w.Erase(), method, ins.Out, ins.Args[0], width), nil
	case "zext":
		width := int(ins.Args[1].Lit.AsInt64())
		return true, lowering.ZeroExtend(w.Erase(), method, ins.Out, ins.Args[0], width), nil
	}
	return false, w, nil
}

// lowerMul legalizes `mul`/`umul`. Signed multiplication make-positives
// both operands, runs the unsigned routine on a temporary, then
// XOR-of-signs conditionally inverts the temp into dest.
func lowerMul(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, signed bool) (bool, *ir.InstructionWalker, error) {
	a, b := ins.Args[0], ins.Args[1]
	if a.IsConstant() && b.IsConstant() {
		if folded, ok := foldMul(hwinfo.MulMul24, a, b); ok {
			return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, folded))), nil
		}
	}

	if !signed {
		w = lowerUnsignedMul(w, method, ins.Out, a, b)
		return true, w.Erase(), nil
	}

	width := a.Type.ScalarBitWidth()
	signBit := ir.LiteralValue(a.Type, ir.IntLiteral(int64(width-1)))

	signA := method.AddNewLocal(a.Type, "mul_signa")
	signAIns := ir.NewAddOperation(signA, hwinfo.AddAsr, a, signBit)
	signAIns.SetFlags = true
	w = w.Emplace(signAIns)
	w.NextInBlock()

	signB := method.AddNewLocal(b.Type, "mul_signb")
	signBIns := ir.NewAddOperation(signB, hwinfo.AddAsr, b, signBit)
	signBIns.SetFlags = true
	w = w.Emplace(signBIns)
	w.NextInBlock()

	posA := method.AddNewLocal(a.Type, "mul_posa")
	w = lowering.MakePositive(w, method, posA, a)
	posB := method.AddNewLocal(b.Type, "mul_posb")
	w = lowering.MakePositive(w, method, posB, b)

	tmp := method.AddNewLocal(ins.Out.Type, "mul_tmp")
	w = lowerUnsignedMul(w, method, tmp, ir.LocalValue(posA), ir.LocalValue(posB))

	signXor := method.AddNewLocal(a.Type, "mul_signxor")
	xorIns := ir.NewAddOperation(signXor, hwinfo.AddXor, ir.LocalValue(signA), ir.LocalValue(signB))
	xorIns.SetFlags = true
	w = w.Emplace(xorIns)
	w.NextInBlock()

	w = lowering.InvertSign(w, method, ins.Out, ir.LocalValue(tmp), hwinfo.CondNegativeSet)
	return true, w.Erase(), nil
}

// lowerUnsignedMul splits both 32-bit operands into high/low 16-bit halves
// and emits out = a_lo*b_lo + (a_lo*b_hi<<16) + (a_hi*b_lo<<16). The 24-bit
// hardware multiplier can only take 16-bit-clean inputs, hence the split.
func lowerUnsignedMul(w *ir.InstructionWalker, method *ir.Method, dest *ir.Local, a, b ir.Value) *ir.InstructionWalker {
	t := dest.Type
	lowMask := ir.LiteralValue(t, ir.IntLiteral(0xFFFF))
	shift16 := ir.LiteralValue(t, ir.IntLiteral(16))

	aLo := method.AddNewLocal(t, "mul_alo")
	w = w.Emplace(ir.NewAddOperation(aLo, hwinfo.AddAnd, a, lowMask))
	w.NextInBlock()
	aHi := method.AddNewLocal(t, "mul_ahi")
	w = w.Emplace(ir.NewAddOperation(aHi, hwinfo.AddShr, a, shift16))
	w.NextInBlock()
	bLo := method.AddNewLocal(t, "mul_blo")
	w = w.Emplace(ir.NewAddOperation(bLo, hwinfo.AddAnd, b, lowMask))
	w.NextInBlock()
	bHi := method.AddNewLocal(t, "mul_bhi")
	w = w.Emplace(ir.NewAddOperation(bHi, hwinfo.AddShr, b, shift16))
	w.NextInBlock()

	loLo := method.AddNewLocal(t, "mul_lolo")
	w = w.Emplace(ir.NewMulOperation(loLo, hwinfo.MulMul24, ir.LocalValue(aLo), ir.LocalValue(bLo)))
	w.NextInBlock()

	loHiProd := method.AddNewLocal(t, "mul_lohi")
	w = w.Emplace(ir.NewMulOperation(loHiProd, hwinfo.MulMul24, ir.LocalValue(aLo), ir.LocalValue(bHi)))
	w.NextInBlock()
	loHi := method.AddNewLocal(t, "mul_lohi_shl")
	w = w.Emplace(ir.NewAddOperation(loHi, hwinfo.AddShl, ir.LocalValue(loHiProd), shift16))
	w.NextInBlock()

	hiLoProd := method.AddNewLocal(t, "mul_hilo")
	w = w.Emplace(ir.NewMulOperation(hiLoProd, hwinfo.MulMul24, ir.LocalValue(aHi), ir.LocalValue(bLo)))
	w.NextInBlock()
	hiLo := method.AddNewLocal(t, "mul_hilo_shl")
	w = w.Emplace(ir.NewAddOperation(hiLo, hwinfo.AddShl, ir.LocalValue(hiLoProd), shift16))
	w.NextInBlock()

	partial := method.AddNewLocal(t, "mul_partial")
	w = w.Emplace(ir.NewAddOperation(partial, hwinfo.AddAdd, ir.LocalValue(loLo), ir.LocalValue(loHi)))
	w.NextInBlock()
	w = w.Emplace(ir.NewAddOperation(dest, hwinfo.AddAdd, ir.LocalValue(partial), ir.LocalValue(hiLo)))
	w.NextInBlock()
	return w
}

// lowerUDiv legalizes `udiv`/`urem`: literal fold, power-of-two divisor
// shortcut, constant-reciprocal multiply for a constant divisor, else
// iterative restoring division.
func lowerUDiv(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, remainder bool) (bool, *ir.InstructionWalker, error) {
	n, d := ins.Args[0], ins.Args[1]
	width := n.Type.ScalarBitWidth()

	if n.IsConstant() && d.IsConstant() {
		nLit, _ := n.ReplicatedLiteral()
		dLit, _ := d.ReplicatedLiteral()
		if dLit.AsInt64() != 0 {
			nv, dv := uint64(nLit.AsInt64()), uint64(dLit.AsInt64())
			result := nv / dv
			if remainder {
				result = nv % dv
			}
			return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, ir.UintLiteral(result)))), nil
		}
	}

	if dLit, ok := d.ReplicatedLiteral(); ok {
		dv := dLit.AsInt64()
		if dv > 0 && dv&(dv-1) == 0 {
			shift := ir.LiteralValue(n.Type, ir.IntLiteral(int64(bitLen(dv)-1)))
			if remainder {
				mask := ir.LiteralValue(n.Type, ir.IntLiteral(dv-1))
				return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddAnd, n, mask)), nil
			}
			return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddShr, n, shift)), nil
		}
		if dv > 0 && width <= 16 {
			w = lowerReciprocalDivide(w, method, ins, n, dv, remainder)
			return true, w.Erase(), nil
		}
	}

	w = lowerRestoringDivide(w, method, ins, n, d, width, remainder)
	return true, w.Erase(), nil
}

// lowerSDiv wraps the unsigned routines with a sign-aware adjustment,
// the same make-positive/invert-by-sign shape lowerMul uses.
func lowerSDiv(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, remainder bool) (bool, *ir.InstructionWalker, error) {
	n, d := ins.Args[0], ins.Args[1]

	posN := method.AddNewLocal(n.Type, "div_posn")
	w = lowering.MakePositive(w, method, posN, n)
	posD := method.AddNewLocal(d.Type, "div_posd")
	w = lowering.MakePositive(w, method, posD, d)

	width := n.Type.ScalarBitWidth()
	tmp := method.AddNewLocal(ins.Out.Type, "div_tmp")
	w = lowerRestoringDivide(w, method, &ir.Instruction{Out: tmp}, ir.LocalValue(posN), ir.LocalValue(posD), width, remainder)

	signN := method.AddNewLocal(n.Type, "div_signn")
	signBit := ir.LiteralValue(n.Type, ir.IntLiteral(int64(width-1)))
	signNIns := ir.NewAddOperation(signN, hwinfo.AddAsr, n, signBit)
	signNIns.SetFlags = true
	w = w.Emplace(signNIns)
	w.NextInBlock()

	// Remainder's sign follows the dividend alone (signN's flags, already
	// set above); quotient's sign follows XOR of both operands' signs.
	if !remainder {
		signD := method.AddNewLocal(d.Type, "div_signd")
		signDIns := ir.NewAddOperation(signD, hwinfo.AddAsr, d, signBit)
		signDIns.SetFlags = true
		w = w.Emplace(signDIns)
		w.NextInBlock()
		signXor := method.AddNewLocal(n.Type, "div_signxor")
		xorIns := ir.NewAddOperation(signXor, hwinfo.AddXor, ir.LocalValue(signN), ir.LocalValue(signD))
		xorIns.SetFlags = true
		w = w.Emplace(xorIns)
		w.NextInBlock()
	}

	w = lowering.InvertSign(w, method, ins.Out, ir.LocalValue(tmp), hwinfo.CondNegativeSet)
	return true, w.Erase(), nil
}

// reciprocalShiftFactor picks the shift and multiply-by-reciprocal factor
// lowerReciprocalDivide needs for divisor d: shift = ceil(log2(d*K)),
// factor = round(2^shift / d), with empirical K chosen large enough that
// the resulting quotient is off by at most one before correction. shift
// must stay small enough that n*factor never exceeds 32 bits for any
// n in [0,65535], since the emitted multiply is mul24's true 32-bit-
// truncating hardware multiply, not an unbounded one.
func reciprocalShiftFactor(d int64) (shift int, factor int64) {
	shift = int(math.Ceil(math.Log2(float64(d) * reciprocalK)))
	factor = int64(math.Round(math.Pow(2, float64(shift)) / float64(d)))
	return shift, factor
}

// reciprocalDivideCorrected mirrors lowerReciprocalDivide's instruction
// sequence in plain Go: the approximate quotient from the multiply-shift,
// then the same one-step corrections the emitted code performs (down when
// r<0, up when r>=d). Used directly by
// lowerReciprocalDivide's tests to property-check the algorithm across many
// divisors without needing to execute the emitted instruction stream.
func reciprocalDivideCorrected(n, d int64) (q, r int64) {
	shift, factor := reciprocalShiftFactor(d)
	// mul24 truncates its product to 32 bits in hardware; mirror that here
	// so a shift/factor choice that overflows is actually caught, rather
	// than silently computed correctly in Go's unbounded int64.
	prod := uint32(n * factor)
	q = int64(prod) >> uint(shift)
	r = n - q*d
	if r < 0 {
		q--
		r = n - q*d
	}
	if r >= d {
		q++
		r = n - q*d
	}
	return q, r
}

// lowerReciprocalDivide implements the multiply-by-reciprocal routine for
// a constant divisor fitting width<=16.
func lowerReciprocalDivide(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, n ir.Value, d int64, remainder bool) *ir.InstructionWalker {
	shift, factor := reciprocalShiftFactor(d)

	prod := method.AddNewLocal(n.Type, "div_prod")
	w = w.Emplace(ir.NewMulOperation(prod, hwinfo.MulMul24, n, ir.LiteralValue(n.Type, ir.IntLiteral(factor))))
	w.NextInBlock()
	q := method.AddNewLocal(n.Type, "div_q")
	w = w.Emplace(ir.NewAddOperation(q, hwinfo.AddShr, ir.LocalValue(prod), ir.LiteralValue(n.Type, ir.IntLiteral(int64(shift)))))
	w.NextInBlock()

	// Correction: r = n - q*d; the estimate is off by at most one in either
	// direction. If r < 0, q -= 1. Otherwise, if d - r <= 0, q += 1.
	// Comparing (d-1) - r against negative catches both r > d and r == d in
	// one test, since r is always an integer: (d-1)-r < 0  <=>  r >= d.
	// A negative r leaves (d-1)-r positive, so at most one correction fires.
	qd := method.AddNewLocal(n.Type, "div_qd")
	w = w.Emplace(ir.NewMulOperation(qd, hwinfo.MulMul24, ir.LocalValue(q), ir.LiteralValue(n.Type, ir.IntLiteral(d))))
	w.NextInBlock()
	r := method.AddNewLocal(n.Type, "div_r")
	rIns := ir.NewAddOperation(r, hwinfo.AddSub, n, ir.LocalValue(qd))
	rIns.SetFlags = true
	w = w.Emplace(rIns)
	w.NextInBlock()
	qDown := method.AddNewLocal(n.Type, "div_qdown")
	w = w.Emplace(ir.NewAddOperation(qDown, hwinfo.AddSub, ir.LocalValue(q), ir.LiteralValue(n.Type, ir.IntLiteral(1))))
	w.NextInBlock()
	selDown := ir.NewMove(q, ir.LocalValue(qDown))
	selDown.Cond = hwinfo.CondNegativeSet
	w = w.Emplace(selDown)
	w.NextInBlock()
	cmp := method.AddNewLocal(n.Type, "div_cmp")
	cmpIns := ir.NewAddOperation(cmp, hwinfo.AddSub, ir.LiteralValue(n.Type, ir.IntLiteral(d-1)), ir.LocalValue(r))
	cmpIns.SetFlags = true
	w = w.Emplace(cmpIns)
	w.NextInBlock()
	qFixed := method.AddNewLocal(n.Type, "div_qfixed")
	w = w.Emplace(ir.NewAddOperation(qFixed, hwinfo.AddAdd, ir.LocalValue(q), ir.LiteralValue(n.Type, ir.IntLiteral(1))))
	w.NextInBlock()
	sel := ir.NewMove(q, ir.LocalValue(qFixed))
	sel.Cond = hwinfo.CondNegativeSet
	w = w.Emplace(sel)
	w.NextInBlock()

	if !remainder {
		w = w.Emplace(ir.NewMove(ins.Out, ir.LocalValue(q)))
		w.NextInBlock()
		return w
	}
	qdFinal := method.AddNewLocal(n.Type, "div_qd_final")
	w = w.Emplace(ir.NewMulOperation(qdFinal, hwinfo.MulMul24, ir.LocalValue(q), ir.LiteralValue(n.Type, ir.IntLiteral(d))))
	w.NextInBlock()
	w = w.Emplace(ir.NewAddOperation(ins.Out, hwinfo.AddSub, n, ir.LocalValue(qdFinal)))
	w.NextInBlock()
	return w
}

// lowerRestoringDivide implements the general-case iterative restoring
// division: for i from width-1 down to 0, shift remainder left, OR in bit i
// of numerator, conditionally subtract divisor and set quotient bit i based
// on the sign of the compare. ins.Out is the only field read from ins, so
// sdiv/srem's caller (already operating on made-positive operands) may pass
// a throwaway Instruction carrying just a destination local.
func lowerRestoringDivide(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction, n, d ir.Value, width int, remainder bool) *ir.InstructionWalker {
	t := n.Type
	quotient := method.AddNewLocal(t, "divr_q")
	w = w.Emplace(ir.NewMove(quotient, ir.LiteralValue(t, ir.IntLiteral(0))))
	w.NextInBlock()
	rem := method.AddNewLocal(t, "divr_r")
	w = w.Emplace(ir.NewMove(rem, ir.LiteralValue(t, ir.IntLiteral(0))))
	w.NextInBlock()

	for i := width - 1; i >= 0; i-- {
		shifted := method.AddNewLocal(t, "divr_shift")
		w = w.Emplace(ir.NewAddOperation(shifted, hwinfo.AddShl, ir.LocalValue(rem), ir.LiteralValue(t, ir.IntLiteral(1))))
		w.NextInBlock()

		bit := method.AddNewLocal(t, "divr_bit")
		w = w.Emplace(ir.NewAddOperation(bit, hwinfo.AddShr, n, ir.LiteralValue(t, ir.IntLiteral(int64(i)))))
		w.NextInBlock()
		bitMasked := method.AddNewLocal(t, "divr_bitmask")
		w = w.Emplace(ir.NewAddOperation(bitMasked, hwinfo.AddAnd, ir.LocalValue(bit), ir.LiteralValue(t, ir.IntLiteral(1))))
		w.NextInBlock()
		orIns := method.AddNewLocal(t, "divr_or")
		w = w.Emplace(ir.NewAddOperation(orIns, hwinfo.AddOr, ir.LocalValue(shifted), ir.LocalValue(bitMasked)))
		w.NextInBlock()

		cmp := method.AddNewLocal(t, "divr_cmp")
		cmpIns := ir.NewAddOperation(cmp, hwinfo.AddSub, ir.LocalValue(orIns), d)
		cmpIns.SetFlags = true
		w = w.Emplace(cmpIns)
		w.NextInBlock()

		subIns := ir.NewMove(rem, ir.LocalValue(cmp))
		subIns.Cond = hwinfo.CondNegativeClear
		w = w.Emplace(subIns)
		w.NextInBlock()
		keepIns := ir.NewMove(rem, ir.LocalValue(orIns))
		keepIns.Cond = hwinfo.CondNegativeSet
		w = w.Emplace(keepIns)
		w.NextInBlock()

		shiftedQ := method.AddNewLocal(t, "divr_qshift")
		w = w.Emplace(ir.NewAddOperation(shiftedQ, hwinfo.AddShl, ir.LocalValue(quotient), ir.LiteralValue(t, ir.IntLiteral(1))))
		w.NextInBlock()
		setBit := method.AddNewLocal(t, "divr_qset")
		w = w.Emplace(ir.NewAddOperation(setBit, hwinfo.AddOr, ir.LocalValue(shiftedQ), ir.LiteralValue(t, ir.IntLiteral(1))))
		w.NextInBlock()
		sel := ir.NewMove(quotient, ir.LocalValue(setBit))
		sel.Cond = hwinfo.CondNegativeClear
		w = w.Emplace(sel)
		w.NextInBlock()
		keepQ := ir.NewMove(quotient, ir.LocalValue(shiftedQ))
		keepQ.Cond = hwinfo.CondNegativeSet
		w = w.Emplace(keepQ)
		w.NextInBlock()
	}

	if remainder {
		w = w.Emplace(ir.NewMove(ins.Out, ir.LocalValue(rem)))
	} else {
		w = w.Emplace(ir.NewMove(ins.Out, ir.LocalValue(quotient)))
	}
	w.NextInBlock()
	return w
}

// lowerFDiv legalizes `fdiv`: literal folds; divisor literal multiplies by
// its reciprocal; fast-math/allow-reciprocal uses a single SFU recip;
// otherwise five-iteration Newton-Raphson seeded by SFU recip.
func lowerFDiv(w *ir.InstructionWalker, method *ir.Method, cfg Config, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	n, d := ins.Args[0], ins.Args[1]

	if nLit, ok := n.ReplicatedLiteral(); ok {
		if dLit, ok := d.ReplicatedLiteral(); ok {
			return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, ir.FloatLiteral(nLit.AsFloat64()/dLit.AsFloat64())))), nil
		}
	}
	if dLit, ok := d.ReplicatedLiteral(); ok {
		recip := ir.LiteralValue(d.Type, ir.FloatLiteral(1/dLit.AsFloat64()))
		return true, w.Reset(ir.NewMulOperation(ins.Out, hwinfo.MulFMul, n, recip)), nil
	}

	recipCall := ir.NewMethodCall(method.AddNewLocal(d.Type, "fdiv_recip0"), "recip", d)
	w = w.Emplace(recipCall)
	_, w, err := lowerSFU(w, method, recipCall, hwinfo.RegSFURecip)
	if err != nil {
		return false, w, err
	}
	p := recipCall.Out

	if cfg.AllowReciprocal || cfg.FastMath {
		mul := ir.NewMulOperation(ins.Out, hwinfo.MulFMul, n, ir.LocalValue(p))
		mul.AddDecoration(ir.DecorAllowReciprocal)
		return true, w.Reset(mul), nil
	}

	two := ir.LiteralValue(d.Type, ir.FloatLiteral(2))
	for iter := 0; iter < 5; iter++ {
		dp := method.AddNewLocal(d.Type, "fdiv_dp")
		w = w.Emplace(ir.NewMulOperation(dp, hwinfo.MulFMul, d, ir.LocalValue(p)))
		w.NextInBlock()
		twoMinusDp := method.AddNewLocal(d.Type, "fdiv_2mdp")
		w = w.Emplace(ir.NewAddOperation(twoMinusDp, hwinfo.AddFSub, two, ir.LocalValue(dp)))
		w.NextInBlock()
		pNext := method.AddNewLocal(d.Type, "fdiv_p")
		w = w.Emplace(ir.NewMulOperation(pNext, hwinfo.MulFMul, ir.LocalValue(p), ir.LocalValue(twoMinusDp)))
		w.NextInBlock()
		p = pNext
	}

	final := ir.NewMulOperation(ins.Out, hwinfo.MulFMul, n, ir.LocalValue(p))
	final.AddDecoration(ir.DecorFastMath)
	return true, w.Reset(final), nil
}

// lowerTrunc legalizes `trunc`: saturated form uses the saturation
// helper; 64->32 narrowing is a move (upper bits already discarded);
// narrowing below 32 masks to the destination width.
func lowerTrunc(w *ir.InstructionWalker, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	destWidth := ins.Out.Type.ScalarBitWidth()
	if ins.HasDecoration(ir.DecorSaturatedConversion) {
		w = lowering.SaturatePack(w.Erase(), ins.Out, ins.Args[0], destWidth, ins.Out.Type.Signed)
		return true, w, nil
	}
	if destWidth >= 32 {
		return true, w.Reset(ir.NewMove(ins.Out, ins.Args[0])), nil
	}
	mask := ir.LiteralValue(ins.Args[0].Type, ir.IntLiteral(int64(1)<<uint(destWidth)-1))
	return true, w.Reset(ir.NewAddOperation(ins.Out, hwinfo.AddAnd, ins.Args[0], mask)), nil
}

// lowerUIToFP applies the MSB fix-up unsigned-to-float conversion needs:
// `itof` interprets its 32-bit input as signed, so a value with the sign
// bit set is converted with that bit masked off and then has 2^31 added
// back to recover the correct unsigned magnitude.
func lowerUIToFP(w *ir.InstructionWalker, method *ir.Method, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	x := ins.Args[0]
	if lit, ok := x.ReplicatedLiteral(); ok {
		v := float64(uint32(lit.AsInt64()))
		return true, w.Reset(ir.NewMove(ins.Out, ir.LiteralValue(ins.Out.Type, ir.FloatLiteral(v)))), nil
	}

	signBit := ir.LiteralValue(x.Type, ir.IntLiteral(31))
	msb := method.AddNewLocal(x.Type, "uitofp_msb")
	msbIns := ir.NewAddOperation(msb, hwinfo.AddAsr, x, signBit)
	msbIns.SetFlags = true
	w = w.Emplace(msbIns)
	w.NextInBlock()

	raw := method.AddNewLocal(ins.Out.Type, "uitofp_raw")
	w = w.Emplace(ir.NewAddOperation(raw, hwinfo.AddIToF, x))
	w.NextInBlock()

	low := method.AddNewLocal(x.Type, "uitofp_low")
	w = w.Emplace(ir.NewAddOperation(low, hwinfo.AddAnd, x, ir.LiteralValue(x.Type, ir.IntLiteral(0x7FFFFFFF))))
	w.NextInBlock()
	rawLow := method.AddNewLocal(ins.Out.Type, "uitofp_rawlow")
	w = w.Emplace(ir.NewAddOperation(rawLow, hwinfo.AddIToF, ir.LocalValue(low)))
	w.NextInBlock()

	fixed := method.AddNewLocal(ins.Out.Type, "uitofp_fixed")
	twoPow31 := ir.LiteralValue(ins.Out.Type, ir.FloatLiteral(2147483648.0))
	w = w.Emplace(ir.NewAddOperation(fixed, hwinfo.AddFAdd, ir.LocalValue(rawLow), twoPow31))
	w.NextInBlock()

	selFixed := ir.NewMove(ins.Out, ir.LocalValue(fixed))
	selFixed.Cond = hwinfo.CondNegativeSet
	w = w.Emplace(selFixed)
	w.NextInBlock()
	selRaw := ir.NewMove(ins.Out, ir.LocalValue(raw))
	selRaw.Cond = hwinfo.CondNegativeClear
	w = w.Emplace(selRaw)
	w.NextInBlock()

	return true, w.Erase(), nil
}

func bitLen(v int64) int {
	n := 0
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}
