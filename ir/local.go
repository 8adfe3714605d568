package ir

import "github.com/qpuforge/qpuc/hwinfo"

// UseRole records how an instruction references a local: as an argument or
// as its output.
type UseRole int

const (
	RoleArg UseRole = iota
	RoleOutput
)

// Use is one entry in a Local's user set: which instruction references the
// local, in what role, and (for RoleArg) at which argument index. The
// back-reference to Instr is non-owning: the owning edge runs block ->
// instruction only, never local -> instruction.
type Use struct {
	Instr    *Instruction
	Role     UseRole
	ArgIndex int // meaningful only when Role == RoleArg
}

// Local is a named, typed SSA-like location belonging to a Method. Its
// address is its identity: Locals are never copied or moved once created,
// so every reference is a *Local.
type Local struct {
	Name   string
	Type   DataType
	Method *Method

	users []Use

	// RefBase/RefIndex propagate input/output parameter identity through
	// pointer/struct GEP chains. RefBase is nil for a local with no such
	// lineage (e.g. a fresh parameter or fully-general computed value).
	RefBase  *Local
	RefIndex Value

	// IsParameter marks a local that is a method parameter or a well-known
	// UNIFORM-backed name, exempting it from the "every local has >=1 writer"
	// requirement.
	IsParameter bool
	ParamDecorations ParamDecoration

	// FixedReg pins this local to a specific hardware register (e.g. the
	// rotation accumulator, an SFU input/output, element-number). Lowering
	// helpers that need a named special register reuse the same *Local
	// across many writes within a method rather than minting a fresh SSA
	// name each time; this temporarily breaks SSA, restored via fresh locals
	// once the helper hands control back.
	FixedReg *hwinfo.Register
}

// ParamDecoration is the bitmask of per-parameter decorations: read-only,
// write-only, restrict, volatile, sign-extend, zero-extend.
type ParamDecoration uint32

const (
	ParamReadOnly ParamDecoration = 1 << iota
	ParamWriteOnly
	ParamRestrict
	ParamVolatile
	ParamSignExtend
	ParamZeroExtend
)

// addUse records a new reference to this local. Called only from
// BasicBlock's insert bookkeeping, so no pass can mutate an argument
// without funneling through the block or walker API.
func (l *Local) addUse(instr *Instruction, role UseRole, argIndex int) {
	l.users = append(l.users, Use{Instr: instr, Role: role, ArgIndex: argIndex})
}

// removeUse reverses addUse for one specific instruction identity. If the
// same instruction referenced the local more than once (e.g. `add %x, %x`),
// only a single matching entry is removed, mirroring a block's own
// insert/erase-once bookkeeping pairing.
func (l *Local) removeUse(instr *Instruction, role UseRole, argIndex int) {
	for i, u := range l.users {
		if u.Instr == instr && u.Role == role && u.ArgIndex == argIndex {
			l.users = append(l.users[:i], l.users[i+1:]...)
			return
		}
	}
}

// Readers returns the instructions that read this local as an argument.
func (l *Local) Readers() []*Instruction {
	var out []*Instruction
	for _, u := range l.users {
		if u.Role == RoleArg {
			out = append(out, u.Instr)
		}
	}
	return out
}

// Writers returns the instructions that write this local as their output.
// Under SSA this has length exactly one, except for parameters/UNIFORMs
// which have none.
func (l *Local) Writers() []*Instruction {
	var out []*Instruction
	for _, u := range l.users {
		if u.Role == RoleOutput {
			out = append(out, u.Instr)
		}
	}
	return out
}

// HasWriter reports whether the local has at least one writer or is a
// parameter/UNIFORM.
func (l *Local) HasWriter() bool {
	return l.IsParameter || len(l.Writers()) > 0
}
