package ir

import (
	"fmt"

	"github.com/qpuforge/qpuc/hwinfo"
)

// WorkGroupSize is the (x,y,z) compile-time-known or hinted work-group
// shape a kernel method carries.
type WorkGroupSize struct {
	X, Y, Z uint32
	Known   bool // true if this is a *required* size, not just a hint
}

// StackAllocation is one entry in a Method's stack-allocation table:
// size, alignment, and assigned offset.
type StackAllocation struct {
	Name      string
	Size      int
	Alignment int
	Offset    int
}

// Parameter is one entry in a Method's parameter list, carrying its
// decorations and the backing Local that holds its value.
type Parameter struct {
	Local *Local
}

// Method is a named, typed kernel or helper function: parameters, an
// ordered list of basic blocks starting with an entry label, a pool of
// locals, stack allocations, and metadata. Methods are never copied or
// moved: every *Local and *BasicBlock inside one outlives it only as long
// as the Method does.
type Method struct {
	Name       string
	ReturnType DataType
	IsKernel   bool

	Parameters []Parameter
	Blocks     []*BasicBlock
	Stack      []StackAllocation

	RequiredWorkGroupSize WorkGroupSize
	WorkGroupSizeHint      WorkGroupSize

	locals    []*Local
	localSeq  int
	fixedRegs map[hwinfo.Register]*Local
}

// FixedLocal returns the method-wide singleton Local bound to reg, creating
// it on first use. Every lowering helper that targets a named special
// register (the rotation accumulator, an SFU input/output, element-number,
// ...) goes through this so repeated uses within a method alias the same
// Local instead of minting unrelated SSA names for what is, physically, one
// register.
func (m *Method) FixedLocal(reg hwinfo.Register, t DataType) *Local {
	if m.fixedRegs == nil {
		m.fixedRegs = make(map[hwinfo.Register]*Local)
	}
	if l, ok := m.fixedRegs[reg]; ok {
		return l
	}
	l := &Local{Name: reg.String(), Type: t, Method: m, FixedReg: &reg}
	m.fixedRegs[reg] = l
	m.locals = append(m.locals, l)
	return l
}

// NewMethod creates an empty method with a single entry block.
func NewMethod(name string) *Method {
	m := &Method{Name: name}
	entry := NewBasicBlock(name + ".entry")
	entry.Method = m
	m.Blocks = append(m.Blocks, entry)
	return m
}

// Entry returns the method's first basic block.
func (m *Method) Entry() *BasicBlock {
	if len(m.Blocks) == 0 {
		return nil
	}
	return m.Blocks[0]
}

// AddBlock appends a new labeled block at the end of the method's block
// order.
func (m *Method) AddBlock(label string) *BasicBlock {
	b := NewBasicBlock(label)
	b.Method = m
	m.Blocks = append(m.Blocks, b)
	return b
}

// AddNewLocal returns a fresh local named namePrefix + a disambiguating
// suffix.
func (m *Method) AddNewLocal(t DataType, namePrefix string) *Local {
	m.localSeq++
	l := &Local{Name: fmt.Sprintf("%s.%d", namePrefix, m.localSeq), Type: t, Method: m}
	m.locals = append(m.locals, l)
	return l
}

// AddParameter registers a new parameter local.
func (m *Method) AddParameter(name string, t DataType, decor ParamDecoration) *Local {
	l := &Local{Name: name, Type: t, Method: m, IsParameter: true, ParamDecorations: decor}
	m.locals = append(m.locals, l)
	m.Parameters = append(m.Parameters, Parameter{Local: l})
	return l
}

// Locals returns every local owned by this method, parameters included.
func (m *Method) Locals() []*Local { return m.locals }

// BlockIndex returns b's position in m.Blocks, or -1 if not found. Used by
// the cursor to cross block boundaries (cursor.go Next()).
func (m *Method) BlockIndex(b *BasicBlock) int {
	for i, blk := range m.Blocks {
		if blk == b {
			return i
		}
	}
	return -1
}
