// Package intrinsics implements the legalization pass: it visits every
// instruction in a method and applies, in order, the first matching
// rewrite — work-item builtins, named builtin dispatch tables, generic
// arithmetic legalization on abstract operations, and (out of scope here)
// image builtins — repeating until the method reaches a fixed point where
// no MethodCall remains except to an unresolved external function.
//
// Abstract pre-legalization operations (`mul`, `udiv`, `sdiv`, `fdiv`,
// `trunc`, `sext`, ...) are represented the same way named builtins are:
// as a MethodCall whose CallName is the abstract opcode's mnemonic. This
// lets one dispatch table drive both the named-builtins stage and the
// generic-arithmetic-legalization stage, rather than splitting them
// across two different Instruction shapes.
package intrinsics

import (
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/ir"
)

// Config carries the per-compile options the pass consults: math_type
// relaxation for fdiv (strict|fast|full).
type Config struct {
	AllowReciprocal bool // math_type in {fast, full}: fdiv may use a single SFU recip
	FastMath        bool
}

// Run legalizes method to a fixed point against module (consulted only to
// tell an unresolved external call, which survives, apart from a genuinely
// unsupported opcode, which is fatal). A rewrite function may return false
// (no match) to fall through to the next stage, or an error to abort the
// method's compilation.
func Run(module *ir.Module, method *ir.Method, cfg Config) error {
	for {
		changed, err := runOnePass(module, method, cfg)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

func runOnePass(module *ir.Module, method *ir.Method, cfg Config) (bool, error) {
	changed := false
	for _, block := range method.Blocks {
		w := block.Walker()
		for !w.AtEnd() {
			ins := w.Get()
			rewrote, next, err := legalizeOne(w, method, cfg, ins)
			if err != nil {
				return false, err
			}
			if rewrote {
				changed = true
				w = next
				continue
			}
			if ins.Kind == ir.KindMethodCall && module.FindMethod(ins.CallName) == nil {
				return false, unresolvedCallError(ins)
			}
			w.NextInBlock()
		}
	}
	return changed, nil
}

// legalizeOne applies the first matching rewrite to ins, returning whether
// one fired and the walker positioned after the rewrite.
func legalizeOne(w *ir.InstructionWalker, method *ir.Method, cfg Config, ins *ir.Instruction) (bool, *ir.InstructionWalker, error) {
	if ins.Kind != ir.KindMethodCall {
		return false, w, nil
	}

	if rewrote, next, err := lowerWorkItemBuiltin(w, method, ins); rewrote || err != nil {
		return rewrote, next, err
	}
	if rewrote, next, err := lowerNamedBuiltin(w, method, ins); rewrote || err != nil {
		return rewrote, next, err
	}
	if rewrote, next, err := lowerArithmetic(w, method, cfg, ins); rewrote || err != nil {
		return rewrote, next, err
	}
	return false, w, nil
}

func unresolvedCallError(ins *ir.Instruction) error {
	return compileerror.Newf(compileerror.StepOptimizer, "unsupported opcode or unresolved call %q", ins.CallName).WithContext(ins.String())
}
