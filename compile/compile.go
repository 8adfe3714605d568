// Package compile wires the front end, the intrinsics legalization pass
// and the asm emitter into a single entry point: independent per-method
// optimization on worker goroutines, then single-threaded emission once
// every method has reached a fixed point.
package compile

import (
	"io"
	"log"
	"sync"

	"github.com/qpuforge/qpuc/asm"
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/config"
	"github.com/qpuforge/qpuc/intrinsics"
	"github.com/qpuforge/qpuc/ir"
)

// FrontEnd turns an input blob into a Module. Each registered front end
// owns its own failure mode (StepScanner/StepParser/StepLLVMToIR), which
// it is expected to report via *compileerror.Error.
type FrontEnd interface {
	Parse(blob []byte) (*ir.Module, error)
}

// Verifier checks a module's emitted bytes for internal consistency
// before they are trusted. It is optional: Compile only calls it when
// Options.VerifyOutput is set.
type Verifier interface {
	Verify(module *ir.Module, encoded []byte) error
}

// Context carries the per-compile state that must not be a package-level
// global, because two Compile calls (e.g. concurrent test cases, or a
// future server embedding this package) must never share one: the logger
// and the validated options. It is deliberately not a singleton — every
// lowering decision inside package intrinsics reads cfg.IntrinsicsConfig()
// off here, never a package var.
type Context struct {
	Options *config.Options
	Logger  *log.Logger
}

// NewContext builds a Context. The logger is stored as given; a nil logger
// means Compile logs nothing. Choosing the writer from Options.LogLevel is
// the caller's job (package cmd/qpuc does this).
func NewContext(opts *config.Options, logger *log.Logger) *Context {
	return &Context{Options: opts, Logger: logger}
}

// methodResult carries one method's legalization outcome back to the
// single-threaded synchronization point.
type methodResult struct {
	method *ir.Method
	err    error
}

// Compile parses input with fe, legalizes every method in parallel, then
// emits the finished module to out. If verifier is non-nil and
// ctx.Options.VerifyOutput is set, it runs against the emitted bytes
// before Compile returns.
//
// Methods are optimized independently: the module's method list, each
// method's locals/blocks are mutated only by that method's own goroutine,
// globals and the compile configuration are read-only during this phase,
// logging is append-only and safe to call concurrently, and emission
// happens single-threaded after every method has reached a fixed point.
func Compile(ctx *Context, input []byte, fe FrontEnd, verifier Verifier, out io.Writer) error {
	module, err := fe.Parse(input)
	if err != nil {
		return err
	}

	if err := optimizeMethodsInParallel(ctx, module); err != nil {
		return err
	}

	maxStack := ctx.Options.StackFrameSize
	for _, method := range module.Methods {
		size := stackFrameSize(method)
		if size > maxStack {
			maxStack = size
		}
	}

	checkWorkGroupSizes(ctx, module)

	var buf = &countingBuffer{}
	opts := asm.Options{
		Mode:            ctx.Options.OutputMode,
		IncludeComments: ctx.Options.IncludeComments,
		StackFrameSize:  maxStack,
	}
	if err := asm.Emit(module, opts, buf); err != nil {
		return err
	}

	if verifier != nil && ctx.Options.VerifyOutput {
		if err := verifier.Verify(module, buf.bytes); err != nil {
			return err
		}
	}

	if _, err := out.Write(buf.bytes); err != nil {
		return compileerror.Newf(compileerror.StepGeneral, "writing compiled output: %v", err)
	}
	return nil
}

// optimizeMethodsInParallel runs intrinsics.Run on every method
// concurrently. Each goroutine mutates only its own method's
// blocks/locals; results (including errors) are collected on a single
// channel so no two goroutines ever write to shared state.
func optimizeMethodsInParallel(ctx *Context, module *ir.Module) error {
	results := make(chan methodResult, len(module.Methods))
	var wg sync.WaitGroup
	cfg := ctx.Options.IntrinsicsConfig()

	for _, method := range module.Methods {
		wg.Add(1)
		go func(m *ir.Method) {
			defer wg.Done()
			err := intrinsics.Run(module, m, cfg)
			results <- methodResult{method: m, err: err}
		}(method)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if ctx.Logger != nil {
			if r.err != nil {
				ctx.Logger.Printf("method %q: legalization failed: %v", r.method.Name, r.err)
			} else {
				ctx.Logger.Printf("method %q: legalized", r.method.Name)
			}
		}
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	return firstErr
}

func stackFrameSize(method *ir.Method) int {
	size := 0
	for _, alloc := range method.Stack {
		end := alloc.Offset + alloc.Size
		if end > size {
			size = end
		}
	}
	return size
}

// checkWorkGroupSizes logs a warning (never a hard failure) when a
// kernel's required work-group size implies more work-items than the
// processor's native lane count can run as one vector, since every lane
// beyond hwinfo.VectorWidth must be software looped by a stage this
// compiler does not implement.
func checkWorkGroupSizes(ctx *Context, module *ir.Module) {
	if ctx.Logger == nil {
		return
	}
	for _, kernel := range module.Kernels() {
		wgs := kernel.RequiredWorkGroupSize
		if !wgs.Known {
			continue
		}
		total := int(wgs.X) * int(wgs.Y) * int(wgs.Z)
		if total > vectorWidth {
			ctx.Logger.Printf("kernel %q: required work-group size %dx%dx%d (%d items) exceeds the %d-lane vector width", kernel.Name, wgs.X, wgs.Y, wgs.Z, total, vectorWidth)
		}
	}
}

const vectorWidth = 16

// countingBuffer is an io.Writer that accumulates bytes, used so Compile can
// hand the verifier the exact bytes it is about to write to out before
// committing them.
type countingBuffer struct {
	bytes []byte
}

func (b *countingBuffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}
