// Command qpuc is the offline kernel-compiler driver: it reads a source
// file, runs it through the configured front end, legalizes and emits it,
// and writes the compiled module to a file or stdout. Flag handling is
// stdlib flag, in a flat top-level-var style, since there are no
// debugger/TUI/API-server modes to select between.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/qpuforge/qpuc/asm"
	"github.com/qpuforge/qpuc/compile"
	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/config"
	"github.com/qpuforge/qpuc/frontend/textir"
)

// Version can be overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	var (
		showVersion  = flag.Bool("version", false, "Show version information")
		outputPath   = flag.String("o", "", "Output file path (default: stdout)")
		hexMode      = flag.Bool("hex", false, "Emit one hexadecimal word per line instead of binary")
		binMode      = flag.Bool("bin", false, "Emit raw packed instruction words (default)")
		asmMode      = flag.Bool("asm", false, "Emit human-readable assembler text")
		llvmFrontend = flag.Bool("llvm", false, "Force the LLVM-IR front end")
		spirvFrontend = flag.Bool("spirv", false, "Force the SPIR-V front end")
		frontendName = flag.String("frontend", "", "Front end to parse the input with (default: config-selected, currently only \"textir\" is implemented)")
		kernelInfo   = flag.Bool("kernel-info", false, "Print each kernel's name, parameter count and instruction count, then exit")
		verify       = flag.Bool("verify", false, "Set verify_output; no verifier is wired into this driver")
		configPath   = flag.String("config", "", "Path to a TOML configuration file (default: platform config dir)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("qpuc %s\n", Version)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(0)
	}
	inputPath := flag.Arg(0)

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}

	switch {
	case *llvmFrontend:
		cfg.Compile.Frontend = "llvm"
	case *spirvFrontend:
		cfg.Compile.Frontend = "spirv"
	case *frontendName != "":
		cfg.Compile.Frontend = *frontendName
	}
	switch {
	case *hexMode:
		cfg.Compile.OutputMode = "hex"
	case *asmMode:
		cfg.Compile.OutputMode = "assembler"
	case *binMode:
		cfg.Compile.OutputMode = "binary"
	}
	if *verify {
		cfg.Compile.VerifyOutput = true
	}

	opts, err := cfg.ToOptions()
	if err != nil {
		fatal(err)
	}

	logOut := io.Writer(os.Stderr)
	if opts.LogLevel == config.LogQuiet {
		logOut = io.Discard
	}
	logger := log.New(logOut, "", 0)

	fe, err := frontEndFor(opts.Frontend)
	if err != nil {
		fatal(err)
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qpuc: reading %s: %v\n", inputPath, err)
		os.Exit(1)
	}

	ctx := compile.NewContext(opts, logger)

	if *kernelInfo {
		if err := printKernelInfo(ctx, input, fe, opts); err != nil {
			fatal(err)
		}
		return
	}

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qpuc: creating %s: %v\n", *outputPath, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := compile.Compile(ctx, input, fe, nil, f); err != nil {
			fatal(err)
		}
		return
	}

	// compile.Compile's verifier argument is nil here: the output verifier
	// is an external tool, wired in by whoever embeds this driver. -verify
	// only sets opts.VerifyOutput so that a verifier, once plugged in, is
	// consulted; with none plugged in it has no effect on its own.
	if err := compile.Compile(ctx, input, fe, nil, out); err != nil {
		fatal(err)
	}
}

// frontEndFor resolves a front-end name to a compile.FrontEnd. textir is
// the only one this repository implements; llvm/spirv are real CLI
// selectors but parsing LLVM-IR/SPIR-V bitcode is out of scope, so
// selecting either here reports a clear error instead of silently
// falling back to textir.
func frontEndFor(name string) (compile.FrontEnd, error) {
	switch name {
	case "", "textir":
		return textir.FrontEnd{}, nil
	case "llvm", "spirv":
		return nil, compileerror.Newf(compileerror.StepGeneral, "front end %q is not implemented in this repository", name)
	default:
		return nil, compileerror.Newf(compileerror.StepGeneral, "unknown front end %q", name)
	}
}

// printKernelInfo parses and legalizes input, emits it to an in-memory
// buffer purely to get a parseable header, then prints a short summary of
// every kernel's shape without writing the compiled module anywhere.
func printKernelInfo(ctx *compile.Context, input []byte, fe compile.FrontEnd, opts *config.Options) error {
	binOpts := *opts
	binOpts.OutputMode = asm.Binary
	binCtx := compile.NewContext(&binOpts, ctx.Logger)

	var buf countingBuffer
	if err := compile.Compile(binCtx, input, fe, nil, &buf); err != nil {
		return err
	}
	info, kernels, err := asm.ParseHeader(buf.bytes)
	if err != nil {
		return err
	}
	fmt.Printf("module: %d kernel(s), %d global(s), stack frame %d bytes\n", info.KernelCount, info.GlobalCount, info.StackFrameSize)
	for _, k := range kernels {
		fmt.Printf("  %-20s params=%d instructions=%d workgroup=%dx%dx%d\n",
			k.Name, len(k.Params), k.Info.LengthInstructions, k.WorkGroupSizeX, k.WorkGroupSizeY, k.WorkGroupSizeZ)
	}
	return nil
}

type countingBuffer struct{ bytes []byte }

func (b *countingBuffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}

func fatal(err error) {
	if ce, ok := err.(*compileerror.Error); ok {
		fmt.Fprintln(os.Stderr, ce.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "qpuc: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Printf(`qpuc %s - offline OpenCL-C-to-SIMD-GPU kernel compiler

Usage: qpuc [options] <input-file>

Options:
  -o PATH         Output file path (default: stdout)
  -hex            Emit one hexadecimal word per line
  -bin            Emit raw packed instruction words (default)
  -asm            Emit human-readable assembler text
  -llvm           Force the LLVM-IR front end (not implemented)
  -spirv          Force the SPIR-V front end (not implemented)
  -frontend NAME  Front end to parse the input with (default: textir)
  -kernel-info    Print each kernel's shape and exit without writing output
  -verify         Set verify_output; no verifier is wired into this driver
  -config PATH    Path to a TOML configuration file
  -version        Show version information
`, Version)
}
