package asm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

func buildSampleModule() *ir.Module {
	module := ir.NewModule()
	method := module.AddMethod("square")
	method.IsKernel = true
	method.RequiredWorkGroupSize = ir.WorkGroupSize{X: 16, Y: 1, Z: 1, Known: true}

	in := method.AddParameter("in", ir.Pointer(ir.Int32, ir.AddressGlobal, 4), ir.ParamReadOnly)
	out := method.AddParameter("out", ir.Pointer(ir.Int32, ir.AddressGlobal, 4), ir.ParamWriteOnly)

	w := method.Entry().Walker()
	loaded := method.AddNewLocal(ir.Int32, "val")
	w = w.Reset(ir.NewMove(loaded, ir.LocalValue(in)))
	w.NextInBlock()

	squared := method.AddNewLocal(ir.Int32, "sq")
	w = w.Emplace(ir.NewMulOperation(squared, hwinfo.MulMul24, ir.LocalValue(loaded), ir.LocalValue(loaded)))
	w.NextInBlock()

	w = w.Emplace(ir.NewMove(out, ir.LocalValue(squared)))
	w.NextInBlock()

	w = w.Emplace(ir.NewReturn())

	module.AddGlobal("table", ir.Int32, 4, ir.LiteralValue(ir.Int32, ir.IntLiteral(42)))
	return module
}

// buildBranchingModule gives encodeKernels' two-pass label layout something
// to resolve: a backward branch over a label that sits before it in program
// order.
func buildBranchingModule() *ir.Module {
	module := ir.NewModule()
	method := module.AddMethod("loop")
	method.IsKernel = true

	counter := method.AddParameter("counter", ir.Int32, 0)

	w := method.Entry().Walker()
	w = w.Reset(ir.NewBranchLabel("top"))
	w.NextInBlock()

	dec := method.AddNewLocal(ir.Int32, "dec")
	w = w.Emplace(ir.NewAddOperation(dec, hwinfo.AddSub, ir.LocalValue(counter), ir.LiteralValue(ir.Int32, ir.IntLiteral(1))))
	w.NextInBlock()

	w = w.Emplace(ir.NewMove(counter, ir.LocalValue(dec)))
	w.NextInBlock()

	w = w.Emplace(ir.NewBranch("top", hwinfo.CondZeroClear))
	w.NextInBlock()

	w = w.Emplace(ir.NewReturn())
	return module
}

func TestEncodeInstructionRoundTripsOperands(t *testing.T) {
	module := buildSampleModule()
	method := module.Methods[0]
	alloc, err := Allocate(method)
	require.NoError(t, err)

	for _, block := range method.Blocks {
		for w := block.Walker(); !w.AtEnd(); w.NextInBlock() {
			ins := w.Get()
			if ins.Kind == ir.KindBranchLabel {
				continue
			}
			word, err := EncodeInstruction(ins, alloc, 0)
			require.NoErrorf(t, err, "EncodeInstruction(%s)", ins)
			if word>>shiftClass == uint64(classALU) && ins.Out != nil {
				reg, _ := alloc.Register(ins.Out)
				got := decodeRegisterByte(byte(word >> shiftALUWrite))
				assert.Equalf(t, reg, got, "instruction %s: write field", ins)
			}
		}
	}
}

func TestEmitBinaryParseHeaderRoundTrip(t *testing.T) {
	module := buildSampleModule()
	var buf bytes.Buffer
	require.NoError(t, Emit(module, Options{Mode: Binary, StackFrameSize: 0}, &buf))

	info, kernels, err := ParseHeader(buf.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.KernelCount)
	assert.EqualValues(t, 1, info.GlobalCount)
	require.Len(t, kernels, 1)

	k := kernels[0]
	assert.Equal(t, "square", k.Name)
	assert.Len(t, k.Params, 2)
	assert.EqualValues(t, 16, k.WorkGroupSizeX)
	assert.EqualValues(t, 1, k.WorkGroupSizeY)
	assert.EqualValues(t, 1, k.WorkGroupSizeZ)
	assert.NotZero(t, k.Info.Flags&KernelFlagRequiredWorkGroupSize)
	assert.NotZero(t, k.Info.LengthInstructions)
}

func TestEmitHexModeProducesOneWordPerLine(t *testing.T) {
	module := buildSampleModule()
	var buf bytes.Buffer
	require.NoError(t, Emit(module, Options{Mode: Hex}, &buf))
	require.NotZero(t, buf.Len())
	for _, line := range bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n")) {
		assert.Truef(t, bytes.HasPrefix(line, []byte("0x")), "hex line %q does not start with 0x", line)
	}
}

func TestAllocateExhaustionReportsError(t *testing.T) {
	module := ir.NewModule()
	method := module.AddMethod("many_locals")
	for i := 0; i < 2*RegisterFileSize+1; i++ {
		method.AddNewLocal(ir.Int32, "v")
	}
	_, err := Allocate(method)
	require.Error(t, err)
}

func TestMagicMismatchIsRejected(t *testing.T) {
	data := make([]byte, 64)
	_, _, err := ParseHeader(data)
	require.Error(t, err)
}

func TestEmitBinaryEncodesBranchOffsetAndLabel(t *testing.T) {
	module := buildBranchingModule()
	var buf bytes.Buffer
	require.NoError(t, Emit(module, Options{Mode: Binary}, &buf))

	_, kernels, err := ParseHeader(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	// The label consumes zero words, so three real instructions (sub, move,
	// branch) plus the trailing return compile down to four words.
	assert.EqualValues(t, 4, kernels[0].Info.LengthInstructions)
}

func TestEmitAssemblerModeRendersLabelAndKernelComment(t *testing.T) {
	module := buildBranchingModule()
	var buf bytes.Buffer
	require.NoError(t, Emit(module, Options{Mode: Assembler, IncludeComments: true}, &buf))
	out := buf.String()
	assert.Contains(t, out, "top:")
	assert.Contains(t, out, "loop")
}
