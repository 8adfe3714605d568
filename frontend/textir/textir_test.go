package textir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpuforge/qpuc/ir"
)

func TestParseSimpleKernelBuildsExpectedShape(t *testing.T) {
	src := `
kernel identity(i32 in, i32 out) {
	%t:i32 = mov %in
	%out = mov %t
	ret
}
`
	module, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, module.Methods, 1)

	m := module.Methods[0]
	assert.Equal(t, "identity", m.Name)
	assert.True(t, m.IsKernel)
	assert.Len(t, m.Parameters, 2)
}

func TestParseArithmeticKernel(t *testing.T) {
	src := `
kernel add_one(i32 in, i32 out) {
	%one:i32 = ldi 1
	%sum:i32 = add %in, %one
	%out = mov %sum
	ret
}
`
	module, err := Parse([]byte(src))
	require.NoError(t, err)

	m := module.Methods[0]
	var kinds []ir.Kind
	w := m.Entry().Walker()
	for !w.AtEnd() {
		kinds = append(kinds, w.Get().Kind)
		w.NextInBlock()
	}
	want := []ir.Kind{ir.KindBranchLabel, ir.KindLoadImmediate, ir.KindOperation, ir.KindMove, ir.KindReturn}
	assert.Equal(t, want, kinds)
}

func TestParseBranchAndLabel(t *testing.T) {
	src := `
kernel loopy(i32 n) {
top:
	%zero:i32 = ldi 0
	br.zs top
	ret
}
`
	module, err := Parse([]byte(src))
	require.NoError(t, err)

	m := module.Methods[0]
	var sawLabel, sawBranch bool
	w := m.Entry().Walker()
	for !w.AtEnd() {
		switch w.Get().Kind {
		case ir.KindBranchLabel:
			sawLabel = w.Get().Label == "top"
		case ir.KindBranch:
			sawBranch = w.Get().Label == "top"
		}
		w.NextInBlock()
	}
	assert.True(t, sawLabel, "expected a branch-label instruction for \"top\"")
	assert.True(t, sawBranch, "expected a branch instruction targeting \"top\"")
}

func TestParseKernelWorkGroupClause(t *testing.T) {
	src := `
kernel wg(i32 n) reqwg(4, 4, 1) {
	ret
}
`
	module, err := Parse([]byte(src))
	require.NoError(t, err)

	wgs := module.Methods[0].RequiredWorkGroupSize
	assert.True(t, wgs.Known)
	assert.EqualValues(t, 4, wgs.X)
	assert.EqualValues(t, 4, wgs.Y)
	assert.EqualValues(t, 1, wgs.Z)
}

func TestParseGlobalDeclaration(t *testing.T) {
	src := `
global i32 @counter = 42
kernel k(i32 n) {
	ret
}
`
	module, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, module.Globals, 1)
	assert.Equal(t, "counter", module.Globals[0].Name)
}

func TestParseUnknownTypeIsRejected(t *testing.T) {
	src := `
kernel k(weird n) {
	ret
}
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
}

func TestParseUndeclaredLocalIsRejected(t *testing.T) {
	src := `
kernel k(i32 n) {
	%out = mov %nope
	ret
}
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
}

func TestParsePointerParameterAndDecorators(t *testing.T) {
	src := `
kernel fill(i32* global (readonly, restrict) src, i32* global dst) {
	ret
}
`
	module, err := Parse([]byte(src))
	require.NoError(t, err)

	params := module.Methods[0].Parameters
	require.Len(t, params, 2)
	assert.Equal(t, ir.TypePointer, params[0].Local.Type.Kind)
	assert.NotZero(t, params[0].Local.ParamDecorations&ir.ParamReadOnly)
	assert.NotZero(t, params[0].Local.ParamDecorations&ir.ParamRestrict)
}

func TestFrontEndAdapterDelegatesToParse(t *testing.T) {
	var fe FrontEnd
	module, err := fe.Parse([]byte("kernel k(i32 n) {\n\tret\n}\n"))
	require.NoError(t, err)
	assert.Len(t, module.Methods, 1)
}
