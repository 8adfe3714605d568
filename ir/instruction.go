package ir

import (
	"fmt"
	"strings"

	"github.com/qpuforge/qpuc/hwinfo"
)

// Decoration is the bitmask of semantic properties an instruction can
// carry, consulted by later passes.
type Decoration uint32

const (
	DecorUnsignedResult Decoration = 1 << iota
	DecorSaturatedConversion
	DecorElementInsertion
	DecorBuiltinWorkDim
	DecorBuiltinNumGroups
	DecorBuiltinGroupID
	DecorBuiltinGlobalOffset
	DecorBuiltinLocalSize
	DecorBuiltinLocalID
	DecorBuiltinGlobalSize
	DecorBuiltinGlobalID
	DecorAllowReciprocal
	DecorFastMath
	DecorPhiNode
	DecorBranchTarget
)

// Kind discriminates the Instruction variant union.
type Kind int

const (
	KindMove Kind = iota
	KindOperation
	KindVectorRotation
	KindMethodCall
	KindBranch
	KindBranchLabel
	KindReturn
	KindNop
	KindSemaphoreAdjustment
	KindMutexLock
	KindLoadImmediate
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindOperation:
		return "op"
	case KindVectorRotation:
		return "rotate"
	case KindMethodCall:
		return "call"
	case KindBranch:
		return "branch"
	case KindBranchLabel:
		return "label"
	case KindReturn:
		return "return"
	case KindNop:
		return "nop"
	case KindSemaphoreAdjustment:
		return "semaphore"
	case KindMutexLock:
		return "mutex"
	case KindLoadImmediate:
		return "loadimm"
	default:
		return "?"
	}
}

// Instruction is the single tagged-struct representation of every IR
// instruction variant: a flat enum with a per-variant payload, rather than
// a small-interface hierarchy, keeps pre-calculation and walker traversal
// off virtual dispatch. Every instruction is owned by exactly one
// BasicBlock; the block's insert/erase hooks (block.go) are the only path
// that may create or destroy one, so that the use-def bookkeeping on Local
// never drifts.
type Instruction struct {
	Kind Kind

	// Shared metadata, common to every variant.
	Out         *Local
	Args        []Value
	Cond        hwinfo.Condition
	SetFlags    bool
	Pack        hwinfo.PackMode
	Unpack      hwinfo.UnpackMode
	Decorations Decoration

	// KindOperation.
	AddOp hwinfo.AddOp
	MulOp hwinfo.MulOp
	Side  hwinfo.ALUSide

	// KindMethodCall.
	CallName string

	// KindBranch / KindBranchLabel.
	Label string

	// KindNop.
	NopReason hwinfo.NopReason

	// KindSemaphoreAdjustment.
	SemaphoreID        Value
	SemaphoreIncrement bool

	// KindMutexLock.
	MutexAcquire bool

	// block/list bookkeeping, set by BasicBlock.insert; nil until inserted.
	block *BasicBlock
	elem  listElem
}

// HasDecoration reports whether d is set in the instruction's decoration mask.
func (i *Instruction) HasDecoration(d Decoration) bool { return i.Decorations&d != 0 }

// AddDecoration ORs d into the instruction's decoration mask.
func (i *Instruction) AddDecoration(d Decoration) { i.Decorations |= d }

// locals returns every Local this instruction references, output first,
// used by BasicBlock to drive use-def bookkeeping.
func (i *Instruction) locals() (out *Local, args []*Local) {
	args = make([]*Local, len(i.Args))
	for idx, a := range i.Args {
		if a.Kind == ValueLocal {
			args[idx] = a.Local
		}
	}
	return i.Out, args
}

// cloneExtras copies condition, set-flags, pack/unpack and decorations from
// src onto i. Used when a lowering helper or legalization rewrite replaces
// one instruction with another but wants to preserve the surrounding
// predicate/flags context.
func (i *Instruction) cloneExtras(src *Instruction) {
	i.Cond = src.Cond
	i.SetFlags = src.SetFlags
	i.Pack = src.Pack
	i.Unpack = src.Unpack
	i.Decorations = src.Decorations
}

func (i *Instruction) String() string {
	var sb strings.Builder
	if i.Out != nil {
		fmt.Fprintf(&sb, "%%%s = ", i.Out.Name)
	}
	switch i.Kind {
	case KindMove:
		fmt.Fprintf(&sb, "mov%s %s", i.Cond, argsString(i.Args))
	case KindOperation:
		name := ""
		switch i.Side {
		case hwinfo.SideAdd:
			name = hwinfo.AddOpTable[i.AddOp].Name
		case hwinfo.SideMul:
			name = hwinfo.MulOpTable[i.MulOp].Name
		default:
			name = hwinfo.AddOpTable[i.AddOp].Name
		}
		fmt.Fprintf(&sb, "%s%s %s", name, i.Cond, argsString(i.Args))
	case KindVectorRotation:
		fmt.Fprintf(&sb, "rotate%s %s", i.Cond, argsString(i.Args))
	case KindMethodCall:
		fmt.Fprintf(&sb, "call %s(%s)", i.CallName, argsString(i.Args))
	case KindBranch:
		fmt.Fprintf(&sb, "br%s %s", i.Cond, i.Label)
	case KindBranchLabel:
		fmt.Fprintf(&sb, "%s:", i.Label)
	case KindReturn:
		sb.WriteString("ret")
	case KindNop:
		fmt.Fprintf(&sb, "nop (%s)", i.NopReason)
	case KindSemaphoreAdjustment:
		dir := "dec"
		if i.SemaphoreIncrement {
			dir = "inc"
		}
		fmt.Fprintf(&sb, "semaphore.%s %s", dir, i.SemaphoreID)
	case KindMutexLock:
		op := "release"
		if i.MutexAcquire {
			op = "acquire"
		}
		fmt.Fprintf(&sb, "mutex.%s", op)
	case KindLoadImmediate:
		fmt.Fprintf(&sb, "loadimm%s %s", i.Cond, argsString(i.Args))
	}
	if i.SetFlags {
		sb.WriteString(" (flags)")
	}
	return sb.String()
}

func argsString(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// --- Constructors -----------------------------------------------------

// NewMove builds a MoveOperation.
func NewMove(out *Local, src Value) *Instruction {
	return &Instruction{Kind: KindMove, Out: out, Args: []Value{src}}
}

// NewAddOperation builds an add-ALU Operation.
func NewAddOperation(out *Local, op hwinfo.AddOp, args ...Value) *Instruction {
	return &Instruction{Kind: KindOperation, Out: out, Side: hwinfo.SideAdd, AddOp: op, Args: args}
}

// NewMulOperation builds a mul-ALU Operation.
func NewMulOperation(out *Local, op hwinfo.MulOp, args ...Value) *Instruction {
	return &Instruction{Kind: KindOperation, Out: out, Side: hwinfo.SideMul, MulOp: op, Args: args}
}

// NewVectorRotation builds a VectorRotation of src by offset.
func NewVectorRotation(out *Local, src, offset Value) *Instruction {
	return &Instruction{Kind: KindVectorRotation, Out: out, Args: []Value{src, offset}}
}

// NewMethodCall builds a MethodCall to an abstract builtin or helper.
func NewMethodCall(out *Local, name string, args ...Value) *Instruction {
	return &Instruction{Kind: KindMethodCall, Out: out, CallName: name, Args: args}
}

// NewBranch builds a conditional or unconditional Branch to label.
func NewBranch(label string, cond hwinfo.Condition) *Instruction {
	return &Instruction{Kind: KindBranch, Label: label, Cond: cond}
}

// NewBranchLabel builds a BranchLabel marker.
func NewBranchLabel(label string) *Instruction {
	return &Instruction{Kind: KindBranchLabel, Label: label}
}

// NewReturn builds a Return.
func NewReturn() *Instruction { return &Instruction{Kind: KindReturn} }

// NewNop builds a scheduling Nop carrying reason.
func NewNop(reason hwinfo.NopReason) *Instruction {
	return &Instruction{Kind: KindNop, NopReason: reason}
}

// NewSemaphoreAdjustment builds a SemaphoreAdjustment(id, increment).
func NewSemaphoreAdjustment(id Value, increment bool) *Instruction {
	return &Instruction{Kind: KindSemaphoreAdjustment, SemaphoreID: id, SemaphoreIncrement: increment}
}

// NewMutexLock builds a MutexLock(acquire|release).
func NewMutexLock(acquire bool) *Instruction {
	return &Instruction{Kind: KindMutexLock, MutexAcquire: acquire}
}

// NewLoadImmediate builds a LoadImmediate.
func NewLoadImmediate(out *Local, lit Value) *Instruction {
	return &Instruction{Kind: KindLoadImmediate, Out: out, Args: []Value{lit}}
}
