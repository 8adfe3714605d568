package compile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpuforge/qpuc/asm"
	"github.com/qpuforge/qpuc/config"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// stubFrontEnd builds a fixed module regardless of input, letting compile
// tests exercise orchestration without a real parser.
type stubFrontEnd struct {
	build func() (*ir.Module, error)
}

func (s stubFrontEnd) Parse(blob []byte) (*ir.Module, error) { return s.build() }

func simpleModule() *ir.Module {
	module := ir.NewModule()
	method := module.AddMethod("identity")
	method.IsKernel = true
	in := method.AddParameter("in", ir.Int32, 0)
	out := method.AddParameter("out", ir.Int32, 0)
	w := method.Entry().Walker()
	w = w.Reset(ir.NewMove(out, ir.LocalValue(in)))
	w.NextInBlock()
	w.Emplace(ir.NewReturn())
	return module
}

func defaultOptions(t *testing.T) *config.Options {
	t.Helper()
	opts, err := config.DefaultConfig().ToOptions()
	require.NoError(t, err)
	return opts
}

func TestCompileEmitsBinaryForSimpleModule(t *testing.T) {
	opts := defaultOptions(t)
	opts.VerifyOutput = false
	ctx := NewContext(opts, nil)
	fe := stubFrontEnd{build: func() (*ir.Module, error) { return simpleModule(), nil }}

	var out bytes.Buffer
	require.NoError(t, Compile(ctx, nil, fe, nil, &out))
	assert.NotZero(t, out.Len())

	_, _, err := asm.ParseHeader(out.Bytes())
	require.NoError(t, err)
}

func TestCompilePropagatesFrontEndError(t *testing.T) {
	opts := defaultOptions(t)
	ctx := NewContext(opts, nil)
	wantErr := errors.New("bad input")
	fe := stubFrontEnd{build: func() (*ir.Module, error) { return nil, wantErr }}

	var out bytes.Buffer
	err := Compile(ctx, nil, fe, nil, &out)
	assert.ErrorIs(t, err, wantErr)
}

func TestCompilePropagatesLegalizationError(t *testing.T) {
	opts := defaultOptions(t)
	ctx := NewContext(opts, nil)
	fe := stubFrontEnd{build: func() (*ir.Module, error) {
		module := ir.NewModule()
		method := module.AddMethod("unsupported")
		method.IsKernel = true
		out := method.AddParameter("out", ir.Int32, 0)
		w := method.Entry().Walker()
		w = w.Reset(ir.NewMethodCall(out, "not_a_real_builtin"))
		w.NextInBlock()
		w.Emplace(ir.NewReturn())
		return module, nil
	}}

	var buf bytes.Buffer
	err := Compile(ctx, nil, fe, nil, &buf)
	assert.Error(t, err)
}

func TestVerifierIsConsultedWhenEnabled(t *testing.T) {
	opts := defaultOptions(t)
	opts.VerifyOutput = true
	ctx := NewContext(opts, nil)
	fe := stubFrontEnd{build: func() (*ir.Module, error) { return simpleModule(), nil }}

	wantErr := errors.New("verification failed")
	verifier := failingVerifier{err: wantErr}

	var out bytes.Buffer
	err := Compile(ctx, nil, fe, verifier, &out)
	assert.ErrorIs(t, err, wantErr)
}

type failingVerifier struct{ err error }

func (f failingVerifier) Verify(module *ir.Module, encoded []byte) error { return f.err }

func TestStackFrameSizeTakesLargestAllocation(t *testing.T) {
	method := ir.NewMethod("m")
	method.Stack = append(method.Stack, ir.StackAllocation{Name: "a", Size: 4, Offset: 0})
	method.Stack = append(method.Stack, ir.StackAllocation{Name: "b", Size: 8, Offset: 16})
	assert.Equal(t, 24, stackFrameSize(method))
}

func TestCheckWorkGroupSizesDoesNotPanicWithoutLogger(t *testing.T) {
	module := ir.NewModule()
	kernel := module.AddMethod("big")
	kernel.IsKernel = true
	kernel.RequiredWorkGroupSize = ir.WorkGroupSize{X: hwinfo.VectorWidth + 1, Y: 1, Z: 1, Known: true}
	ctx := NewContext(defaultOptions(t), nil)
	assert.NotPanics(t, func() { checkWorkGroupSizes(ctx, module) })
}
