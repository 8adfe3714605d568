package hwinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterStringFormatsFileAndIndex(t *testing.T) {
	assert.Equal(t, "a0", Register{FileA, 0}.String())
	assert.Equal(t, "b3", Register{FileB, 3}.String())
	assert.Equal(t, "acc5", RegRotationAcc.String())
	assert.Equal(t, "periph0", RegElementNumber.String())
}

func TestConditionStringUsesDotPrefix(t *testing.T) {
	assert.Equal(t, "", CondAlways.String())
	assert.Equal(t, ".zs", CondZeroSet.String())
	assert.Equal(t, ".cc", CondCarryClear.String())
}

func TestNopReasonString(t *testing.T) {
	assert.Equal(t, "wait-register", NopWaitRegister.String())
	assert.Equal(t, "wait-sfu", NopWaitSFU.String())
	assert.Equal(t, "dma-fence", NopDMAFence.String())
	assert.Equal(t, "nop", NopGeneric.String())
}

func TestAddOpTablePrecalcFoldsLiterals(t *testing.T) {
	result, ok := AddOpTable[AddAdd].Precalc([]Literal64{intLit(2), intLit(3)})
	assert.True(t, ok)
	assert.EqualValues(t, 5, result.Int)

	result, ok = AddOpTable[AddFSub].Precalc([]Literal64{fltLit(5), fltLit(2)})
	assert.True(t, ok)
	assert.Equal(t, 3.0, result.Float)

	result, ok = AddOpTable[AddClz].Precalc([]Literal64{intLit(1)})
	assert.True(t, ok)
	assert.EqualValues(t, 31, result.Int)
}

func TestAddOpTableRorHasNoStaticPrecalc(t *testing.T) {
	assert.Nil(t, AddOpTable[AddRor].Precalc, "rotate amount is runtime-only, no constant fold exists")
}

func TestMulOpTableMoveIsIdentity(t *testing.T) {
	result, ok := MulOpTable[MulMove].Precalc([]Literal64{intLit(9)})
	assert.True(t, ok)
	assert.EqualValues(t, 9, result.Int)
	assert.Equal(t, "mov", MulOpTable[MulMove].Name)
}

func TestMulOpTableMul24Multiplies(t *testing.T) {
	result, ok := MulOpTable[MulMul24].Precalc([]Literal64{intLit(6), intLit(7)})
	assert.True(t, ok)
	assert.EqualValues(t, 42, result.Int)
}

func TestOpTableOperandCountsMatchMnemonicArity(t *testing.T) {
	assert.Equal(t, 2, AddOpTable[AddAdd].Operands)
	assert.Equal(t, 1, AddOpTable[AddNot].Operands)
	assert.Equal(t, 0, AddOpTable[AddNop].Operands)
	assert.Equal(t, 1, MulOpTable[MulMove].Operands)
}

func TestClz32EdgeCases(t *testing.T) {
	assert.Equal(t, 32, clz32(0))
	assert.Equal(t, 0, clz32(0x80000000))
	assert.Equal(t, 31, clz32(1))
}
