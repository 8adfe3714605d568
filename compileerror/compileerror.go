// Package compileerror implements the single CompilationError failure
// type: a compilation-step tag, a human-readable message, and an optional
// offending-value rendering. An Error struct plus an Error() string
// method plus constructors, with the offending-context field holding an
// IR rendering instead of a source line, since there is no source text
// at this layer.
package compileerror

import "fmt"

// Step tags which compilation phase raised an error. The taxonomy is
// intentionally coarse — every recoverable condition is either resolved
// locally or converted into one of these.
type Step int

const (
	StepGeneral Step = iota
	StepScanner
	StepParser
	StepLLVMToIR
	StepOptimizer
	StepCodeGeneration
	StepLinker
	StepVerifier
	StepPrecompilation
)

func (s Step) String() string {
	switch s {
	case StepGeneral:
		return "general"
	case StepScanner:
		return "scanner"
	case StepParser:
		return "parser"
	case StepLLVMToIR:
		return "llvm_to_ir"
	case StepOptimizer:
		return "optimizer"
	case StepCodeGeneration:
		return "code_generation"
	case StepLinker:
		return "linker"
	case StepVerifier:
		return "verifier"
	case StepPrecompilation:
		return "precompilation"
	default:
		return "unknown"
	}
}

// Error is the CompilationError: a step tag, a message, and an optional
// rendering of the offending IR value or instruction.
type Error struct {
	step    Step
	message string
	context string // offending-value rendering, empty if none
}

// New builds an Error with no offending-value context.
func New(step Step, message string) *Error {
	return &Error{step: step, message: message}
}

// Newf builds an Error with a formatted message.
func Newf(step Step, format string, args ...any) *Error {
	return &Error{step: step, message: fmt.Sprintf(format, args...)}
}

// WithContext attaches the textual rendering of the offending IR
// value/instruction, returning the same Error for chaining at the call
// site.
func (e *Error) WithContext(rendering string) *Error {
	e.context = rendering
	return e
}

// Step reports which compilation phase raised this error.
func (e *Error) Step() Step { return e.step }

func (e *Error) Error() string {
	if e.context == "" {
		return fmt.Sprintf("%s: %s", e.step, e.message)
	}
	return fmt.Sprintf("%s: %s (at %s)", e.step, e.message, e.context)
}
