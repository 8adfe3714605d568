package intrinsics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

func singleCallMethod(name string, args ...ir.Value) (*ir.Module, *ir.Method) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	method.IsKernel = true
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, name, args...))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())
	return module, method
}

func hasKind(method *ir.Method, kind ir.Kind) bool {
	for _, block := range method.Blocks {
		for w := block.Walker(); !w.AtEnd(); w.NextInBlock() {
			if w.Get().Kind == kind {
				return true
			}
		}
	}
	return false
}

func countKind(method *ir.Method, kind ir.Kind) int {
	n := 0
	for _, block := range method.Blocks {
		for w := block.Walker(); !w.AtEnd(); w.NextInBlock() {
			if w.Get().Kind == kind {
				n++
			}
		}
	}
	return n
}

func TestRunReachesFixedPointWithNoMethodCallsLeft(t *testing.T) {
	module, method := singleCallMethod("element_number")
	require.NoError(t, Run(module, method, Config{}))
	assert.False(t, hasKind(method, ir.KindMethodCall))
}

func TestRunRejectsUnresolvedCall(t *testing.T) {
	module, method := singleCallMethod("totally_unknown_builtin")
	err := Run(module, method, Config{})
	assert.Error(t, err)
}

func TestRunAllowsCallToRealMethod(t *testing.T) {
	module := ir.NewModule()
	helper := module.AddMethod("helper")
	helper.Entry().Append(ir.NewReturn())

	method := module.AddMethod("k")
	method.IsKernel = true
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "helper"))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, hasKind(method, ir.KindMethodCall), "an unresolved-but-real call to another method survives legalization")
}

func TestElementNumberBuiltinBecomesMoveFromFixedRegister(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "element_number"))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, hasKind(method, ir.KindMove))
	assert.False(t, hasKind(method, ir.KindMethodCall))
}

func TestSemaphoreBuiltinRequiresLiteralID(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	dynamicID := method.AddNewLocal(ir.Int32, "id")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "semaphore_increment", ir.LocalValue(dynamicID)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	err := Run(module, method, Config{})
	assert.Error(t, err)
}

func TestSemaphoreBuiltinRejectsOutOfRangeID(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "semaphore_increment", ir.LiteralValue(ir.Int32, ir.IntLiteral(99))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	err := Run(module, method, Config{})
	assert.Error(t, err)
}

func TestSemaphoreBuiltinLowersToAdjustment(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "semaphore_decrement", ir.LiteralValue(ir.Int32, ir.IntLiteral(3))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, hasKind(method, ir.KindSemaphoreAdjustment))
}

func TestSFUBuiltinFoldsConstantArgument(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "recip", ir.LiteralValue(ir.Float32, ir.FloatLiteral(4))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.False(t, hasKind(method, ir.KindNop), "a constant SFU argument folds away entirely, no wait-sfu needed")
}

func TestSFUBuiltinDynamicArgumentEmitsWaitBubbles(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.Float32, "src")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "rsqrt", ir.LocalValue(src)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.Equal(t, 2, countKind(method, ir.KindNop))
}

func TestShuffleBuiltinDispatchesToLoweringShuffle(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.Vector(ir.Int32, 2), "src")
	out := method.AddNewLocal(ir.Vector(ir.Int32, 2), "out")
	mask := ir.ContainerValue(ir.Vector(ir.Int32, 2), []ir.Value{
		ir.LiteralValue(ir.Int32, ir.IntLiteral(0)),
		ir.LiteralValue(ir.Int32, ir.IntLiteral(1)),
	})
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "shuffle", ir.LocalValue(src), mask))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.False(t, hasKind(method, ir.KindMethodCall))
}

func TestShuffle2BuiltinDispatchesToLoweringShuffleWithTwoSources(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src0 := method.AddNewLocal(ir.Vector(ir.Int32, 2), "src0")
	src1 := method.AddNewLocal(ir.Vector(ir.Int32, 2), "src1")
	out := method.AddNewLocal(ir.Vector(ir.Int32, 2), "out")
	mask := ir.ContainerValue(ir.Vector(ir.Int32, 2), []ir.Value{
		ir.LiteralValue(ir.Int32, ir.IntLiteral(2)),
		ir.LiteralValue(ir.Int32, ir.IntLiteral(3)),
	})
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "shuffle2", ir.LocalValue(src0), ir.LocalValue(src1), mask))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.False(t, hasKind(method, ir.KindMethodCall))
}

func TestWorkItemWorkDimBecomesMoveFromUniform(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "work_dim"))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, hasKind(method, ir.KindMove))
}

func TestWorkItemGlobalIDExpandsThroughFourSubBuiltins(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "global_id", ir.LiteralValue(ir.Int32, ir.IntLiteral(0))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.False(t, hasKind(method, ir.KindMethodCall))
	assert.True(t, countKind(method, ir.KindOperation) > 0)
}

func TestArithmeticMulFoldsConstants(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "mul",
		ir.LiteralValue(ir.Int32, ir.IntLiteral(6)),
		ir.LiteralValue(ir.Int32, ir.IntLiteral(7)),
	))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.Equal(t, ir.KindMove, insns[1].Kind)
	assert.EqualValues(t, 42, insns[1].Args[0].Lit.AsInt64())
}

func TestArithmeticUnsignedMulExpandsToPartialProducts(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	a := method.AddNewLocal(ir.Int32, "a")
	b := method.AddNewLocal(ir.Int32, "b")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "umul", ir.LocalValue(a), ir.LocalValue(b)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, countKind(method, ir.KindOperation) > 0)
	assert.False(t, hasKind(method, ir.KindMethodCall))
}

func TestArithmeticUDivPowerOfTwoBecomesShift(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	n := method.AddNewLocal(ir.UInt32, "n")
	out := method.AddNewLocal(ir.UInt32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "udiv", ir.LocalValue(n), ir.LiteralValue(ir.UInt32, ir.IntLiteral(8))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.Equal(t, ir.KindOperation, insns[1].Kind)
	assert.Equal(t, hwinfo.SideAdd, insns[1].Side)
	assert.Equal(t, hwinfo.AddShr, insns[1].AddOp)
}

func TestArithmeticUDivConstantFolds(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.UInt32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "udiv",
		ir.LiteralValue(ir.UInt32, ir.IntLiteral(17)),
		ir.LiteralValue(ir.UInt32, ir.IntLiteral(5)),
	))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.EqualValues(t, 3, insns[1].Args[0].Lit.AsInt64())
}

func TestArithmeticSDivIsSignAware(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	n := method.AddNewLocal(ir.Int32, "n")
	d := method.AddNewLocal(ir.Int32, "d")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "sdiv", ir.LocalValue(n), ir.LocalValue(d)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.False(t, hasKind(method, ir.KindMethodCall))
	assert.True(t, countKind(method, ir.KindOperation) > 0)
}

func TestArithmeticFDivConstantFolds(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "fdiv",
		ir.LiteralValue(ir.Float32, ir.FloatLiteral(10)),
		ir.LiteralValue(ir.Float32, ir.FloatLiteral(4)),
	))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.Equal(t, 2.5, insns[1].Args[0].Lit.AsFloat64())
}

func TestArithmeticFDivLiteralDivisorBecomesMultiplyByReciprocal(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	n := method.AddNewLocal(ir.Float32, "n")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "fdiv", ir.LocalValue(n), ir.LiteralValue(ir.Float32, ir.FloatLiteral(2))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.Equal(t, ir.KindOperation, insns[1].Kind)
	assert.Equal(t, hwinfo.SideMul, insns[1].Side)
}

func TestArithmeticFDivAllowReciprocalUsesSingleSFU(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	n := method.AddNewLocal(ir.Float32, "n")
	d := method.AddNewLocal(ir.Float32, "d")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "fdiv", ir.LocalValue(n), ir.LocalValue(d)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{AllowReciprocal: true}))
	assert.Equal(t, 2, countKind(method, ir.KindNop), "one SFU recip sequence, no Newton-Raphson refinement")
}

func TestArithmeticFDivStrictRunsNewtonRaphsonRefinement(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	n := method.AddNewLocal(ir.Float32, "n")
	d := method.AddNewLocal(ir.Float32, "d")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "fdiv", ir.LocalValue(n), ir.LocalValue(d)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, countKind(method, ir.KindOperation) > 10, "five Newton-Raphson iterations produce many more ops than the fast path")
}

func TestArithmeticSextLowersThroughShiftPair(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.Int8, "src")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "sext", ir.LocalValue(src), ir.LiteralValue(ir.Int32, ir.IntLiteral(8))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.Equal(t, 2, countKind(method, ir.KindOperation))
}

func TestArithmeticZextMasksSourceWidth(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.UInt8, "src")
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "zext", ir.LocalValue(src), ir.LiteralValue(ir.Int32, ir.IntLiteral(8))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.Equal(t, 1, countKind(method, ir.KindOperation))
}

func TestArithmeticTruncNarrowingMasksAndWideningMoves(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.Int32, "src")
	narrow := method.AddNewLocal(ir.Int8, "narrow")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(narrow, "trunc", ir.LocalValue(src)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.True(t, hasKind(method, ir.KindOperation))
}

func TestArithmeticUIToFPFixesUpMSB(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.UInt32, "src")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "uitofp", ir.LocalValue(src)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	assert.Equal(t, 2, countKind(method, ir.KindMove), "two predicated moves select the fixed-up or raw conversion")
}

func TestArithmeticUIToFPFoldsConstant(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	out := method.AddNewLocal(ir.Float32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "uitofp", ir.LiteralValue(ir.UInt32, ir.UintLiteral(4294967295))))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.InDelta(t, 4294967295.0, insns[1].Args[0].Lit.AsFloat64(), 1)
}

func TestArithmeticAshrAndLshrRewriteDirectly(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("k")
	src := method.AddNewLocal(ir.Int32, "src")
	shift := ir.LiteralValue(ir.Int32, ir.IntLiteral(2))
	out := method.AddNewLocal(ir.Int32, "out")
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMethodCall(out, "ashr", ir.LocalValue(src), shift))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())

	require.NoError(t, Run(module, method, Config{}))
	insns := method.Entry().Instructions()
	require.Len(t, insns, 3)
	assert.Equal(t, hwinfo.AddAsr, insns[1].AddOp)
}
