package ir

// listElem is the intrusive doubly-linked list node embedded in every
// Instruction, giving O(1) insert/erase and the stable addresses the
// instruction cursor (cursor.go) and every Local's user-set back-reference
// depend on. A slice of owning handles would work only if insert-in-the-
// middle never invalidated outstanding walkers, so the block owns a linked
// list instead.
type listElem struct {
	prev, next *Instruction
}

// BasicBlock is an ordered list of instruction owners with a label at
// position 0 and, possibly, a terminator at the end. It owns every
// Instruction in it; Local -> Instruction references elsewhere are
// non-owning.
type BasicBlock struct {
	Label  string
	Method *Method

	head, tail *Instruction
	count      int
}

// NewBasicBlock creates a block whose first instruction is its own label
// marker.
func NewBasicBlock(label string) *BasicBlock {
	b := &BasicBlock{Label: label}
	b.appendRaw(NewBranchLabel(label))
	return b
}

// Len returns the instruction count, including the leading label.
func (b *BasicBlock) Len() int { return b.count }

// First returns the first instruction, or nil if the block is empty.
func (b *BasicBlock) First() *Instruction { return b.head }

// Last returns the last instruction, or nil if the block is empty.
func (b *BasicBlock) Last() *Instruction { return b.tail }

// Terminator returns the block's last instruction if it is a Branch or
// Return, else nil.
func (b *BasicBlock) Terminator() *Instruction {
	if b.tail == nil {
		return nil
	}
	if b.tail.Kind == KindBranch || b.tail.Kind == KindReturn {
		return b.tail
	}
	return nil
}

// Instructions returns every instruction in order. Used by emission and
// tests; not on any hot path, so a slice copy is fine.
func (b *BasicBlock) Instructions() []*Instruction {
	out := make([]*Instruction, 0, b.count)
	for i := b.head; i != nil; i = i.elem.next {
		out = append(out, i)
	}
	return out
}

// recordUses hooks each argument/output local's user set when ins is
// inserted: each argument local records this instruction as a reader, and
// the output local records it as a writer.
func recordUses(ins *Instruction) {
	out, args := ins.locals()
	if out != nil {
		out.addUse(ins, RoleOutput, -1)
	}
	for idx, l := range args {
		if l != nil {
			l.addUse(ins, RoleArg, idx)
		}
	}
	if ins.SemaphoreID.Kind == ValueLocal {
		ins.SemaphoreID.Local.addUse(ins, RoleArg, -2)
	}
}

// forgetUses reverses recordUses when ins is removed.
func forgetUses(ins *Instruction) {
	out, args := ins.locals()
	if out != nil {
		out.removeUse(ins, RoleOutput, -1)
	}
	for idx, l := range args {
		if l != nil {
			l.removeUse(ins, RoleArg, idx)
		}
	}
	if ins.SemaphoreID.Kind == ValueLocal {
		ins.SemaphoreID.Local.removeUse(ins, RoleArg, -2)
	}
}

// appendRaw links ins at the tail without recordUses; used only to seed the
// block's own label instruction, which has no locals to track.
func (b *BasicBlock) appendRaw(ins *Instruction) {
	ins.block = b
	if b.tail == nil {
		b.head = ins
		b.tail = ins
	} else {
		b.tail.elem.next = ins
		ins.elem.prev = b.tail
		b.tail = ins
	}
	b.count++
}

// Append adds ins at the end of the block, hooking use-def bookkeeping.
func (b *BasicBlock) Append(ins *Instruction) {
	b.appendRaw(ins)
	recordUses(ins)
}

// insertBefore links ins immediately before at (at must belong to b, or be
// nil to mean "at the end").
func (b *BasicBlock) insertBefore(at *Instruction, ins *Instruction) {
	ins.block = b
	if at == nil {
		b.appendRaw(ins)
		recordUses(ins)
		return
	}
	ins.elem.next = at
	ins.elem.prev = at.elem.prev
	if at.elem.prev != nil {
		at.elem.prev.elem.next = ins
	} else {
		b.head = ins
	}
	at.elem.prev = ins
	b.count++
	recordUses(ins)
}

// remove unlinks ins from the block and reverses its use-def bookkeeping.
// Returns the instruction that followed ins, or nil if ins was last.
func (b *BasicBlock) remove(ins *Instruction) *Instruction {
	forgetUses(ins)
	next := ins.elem.next
	if ins.elem.prev != nil {
		ins.elem.prev.elem.next = ins.elem.next
	} else {
		b.head = ins.elem.next
	}
	if ins.elem.next != nil {
		ins.elem.next.elem.prev = ins.elem.prev
	} else {
		b.tail = ins.elem.prev
	}
	ins.elem = listElem{}
	ins.block = nil
	b.count--
	return next
}

// Walker returns a cursor positioned at the first instruction of the block.
func (b *BasicBlock) Walker() *InstructionWalker {
	return &InstructionWalker{method: b.Method, block: b, cur: b.head}
}

// WalkerAt returns a cursor positioned at a specific instruction already in
// the block.
func (b *BasicBlock) WalkerAt(ins *Instruction) *InstructionWalker {
	return &InstructionWalker{method: b.Method, block: b, cur: ins}
}
