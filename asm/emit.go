package asm

import (
	"fmt"
	"io"

	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/ir"
)

// OutputMode selects how Emit renders the module: binary, hex, or
// assembler text.
type OutputMode int

const (
	Binary OutputMode = iota
	Hex
	Assembler
)

func (m OutputMode) String() string {
	switch m {
	case Binary:
		return "binary"
	case Hex:
		return "hex"
	case Assembler:
		return "assembler"
	default:
		return "?"
	}
}

// Options carries the knobs Emit needs beyond the module itself.
type Options struct {
	Mode            OutputMode
	IncludeComments bool // not consulted: hex output has no comment lines, assembler output always has them
	StackFrameSize  int  // bytes; largest of any method's stack table, set by the caller
}

// Emit serializes module to w in the selected mode. Every method in
// module.Methods must be IsKernel: helper functions are expected to have
// been inlined by the optimizer before code generation reaches this
// package.
func Emit(module *ir.Module, opts Options, w io.Writer) error {
	body, kernels, err := buildBody(module, opts)
	if err != nil {
		return err
	}
	switch opts.Mode {
	case Binary:
		return writeBinary(body, w)
	case Hex:
		return writeHex(body, kernels, module, w)
	case Assembler:
		return writeAssembler(module, kernels, w)
	default:
		return compileerror.Newf(compileerror.StepCodeGeneration, "unknown output mode %d", opts.Mode)
	}
}

// kernelLayout records where one kernel's instruction stream landed, used by
// both branch-offset resolution and the hex/assembler comment emitters.
type kernelLayout struct {
	method      *ir.Method
	wordOffset  int // offset within the final instruction stream, in words
	wordLength  int
}

// buildBody runs register allocation and instruction encoding for every
// kernel, then assembles the full module byte stream: magic x2,
// module-info, per-kernel header table, zero-word delimiter, global-data
// segment, zero-word delimiter, instruction stream.
func buildBody(module *ir.Module, opts Options) ([]byte, []kernelLayout, error) {
	kernels := module.Kernels()

	instrWords, layouts, err := encodeKernels(kernels)
	if err != nil {
		return nil, nil, err
	}

	headerTable, err := buildKernelTable(kernels, layouts)
	if err != nil {
		return nil, nil, err
	}

	globalData := buildGlobalData(module.Globals)

	headerWords := 2 /* magic */ + 2 /* module-info */
	kernelTableWords := len(headerTable) / 8
	globalDataOffset := headerWords + kernelTableWords + 1 /* zero delimiter */

	info := ModuleInfo{
		Version:          FormatVersion,
		KernelCount:      uint8(len(kernels)),
		GlobalCount:      uint8(len(module.Globals)),
		StackFrameSize:   uint16(opts.StackFrameSize),
		GlobalDataOffset: uint32(globalDataOffset),
		GlobalDataLength: uint32(len(globalData) / 8),
	}

	var out []byte
	putWord(&out, Magic)
	putWord(&out, Magic)
	a, b := info.encode()
	putWord(&out, a)
	putWord(&out, b)
	out = append(out, headerTable...)
	putWord(&out, 0) // zero-word delimiter before global data
	out = append(out, globalData...)
	putWord(&out, 0) // zero-word delimiter before instructions
	for _, word := range instrWords {
		putWord(&out, word)
	}
	return out, layouts, nil
}

// encodeKernels allocates registers and encodes instructions for every
// kernel, resolving branch targets with a two-pass layout: the first pass
// assigns each BranchLabel a word offset counted from the start of its own
// kernel (BranchLabel itself consumes no word), the second encodes every
// real instruction with offsets already known.
func encodeKernels(kernels []*ir.Method) ([]uint64, []kernelLayout, error) {
	var all []uint64
	layouts := make([]kernelLayout, 0, len(kernels))

	for _, method := range kernels {
		alloc, err := Allocate(method)
		if err != nil {
			return nil, nil, err
		}

		labels := map[string]int{}
		word := 0
		for _, block := range method.Blocks {
			for w := block.Walker(); !w.AtEnd(); w.NextInBlock() {
				if w.Get().Kind == ir.KindBranchLabel {
					labels[w.Get().Label] = word
					continue
				}
				word++
			}
		}

		start := len(all)
		pos := 0
		for _, block := range method.Blocks {
			for w := block.Walker(); !w.AtEnd(); w.NextInBlock() {
				cur := w.Get()
				if cur.Kind == ir.KindBranchLabel {
					continue
				}
				offset := int32(0)
				if cur.Kind == ir.KindBranch {
					target, ok := labels[cur.Label]
					if !ok {
						return nil, nil, compileerror.Newf(compileerror.StepCodeGeneration, "method %q: branch to undefined label %q", method.Name, cur.Label)
					}
					offset = int32(target - pos)
				}
				encoded, err := EncodeInstruction(cur, alloc, offset)
				if err != nil {
					return nil, nil, err
				}
				all = append(all, encoded)
				pos++
			}
		}

		layouts = append(layouts, kernelLayout{method: method, wordOffset: start, wordLength: len(all) - start})
	}
	return all, layouts, nil
}

func buildKernelTable(kernels []*ir.Method, layouts []kernelLayout) ([]byte, error) {
	var out []byte
	for i, method := range kernels {
		info := KernelInfo{
			NameLength:         uint8(len(method.Name)),
			ParamCount:         uint8(len(method.Parameters)),
			LengthInstructions: uint16(layouts[i].wordLength),
			OffsetInstructions: uint16(layouts[i].wordOffset),
		}
		if method.RequiredWorkGroupSize.Known {
			info.Flags |= KernelFlagRequiredWorkGroupSize
		} else if method.WorkGroupSizeHint.Known {
			info.Flags |= KernelFlagWorkGroupSizeHint
		}
		putWord(&out, info.encode())

		wgs := method.RequiredWorkGroupSize
		if !wgs.Known {
			wgs = method.WorkGroupSizeHint
		}
		putWord(&out, encodeWorkGroupSize(wgs))

		out = append(out, padName(method.Name)...)

		for _, p := range method.Parameters {
			rec := paramRecordFor(p)
			putWord(&out, rec.encode())
			out = append(out, padName(p.Local.Name)...)
			out = append(out, padName(p.Local.Type.String())...)
		}
	}
	return out, nil
}

// buildGlobalData lays out every global's initializer, padding to its
// declared alignment before each and to an 8-byte multiple at the end:
// each global is padded to its alignment then emitted in little-endian,
// with the whole segment padded to an 8-byte multiple.
func buildGlobalData(globals []*ir.Global) []byte {
	var out []byte
	for _, g := range globals {
		for g.Alignment > 0 && len(out)%g.Alignment != 0 {
			out = append(out, 0)
		}
		out = appendInitializer(out, g.Initializer)
	}
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	return out
}

func appendInitializer(out []byte, v ir.Value) []byte {
	switch v.Kind {
	case ir.ValueContainer:
		for _, e := range v.Elems {
			out = appendInitializer(out, e)
		}
		return out
	case ir.ValueLiteral:
		width := v.Type.PhysicalWidth()
		if width == 0 {
			width = 4
		}
		raw := v.Lit.ToImmediate32()
		for i := 0; i < width; i++ {
			out = append(out, byte(raw>>(8*uint(i))))
		}
		return out
	default:
		width := v.Type.PhysicalWidth()
		for i := 0; i < width; i++ {
			out = append(out, 0)
		}
		return out
	}
}

func writeBinary(body []byte, w io.Writer) error {
	_, err := w.Write(body)
	return err
}

func writeHex(body []byte, kernels []kernelLayout, module *ir.Module, w io.Writer) error {
	_ = kernels
	_ = module
	for offset := 0; offset+8 <= len(body); offset += 8 {
		word, err := readWord(body, offset)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "0x%016x,\n", word); err != nil {
			return err
		}
	}
	return nil
}

func writeAssembler(module *ir.Module, kernels []kernelLayout, w io.Writer) error {
	for _, k := range kernels {
		if _, err := fmt.Fprintf(w, "; kernel %s (%d instructions)\n", k.method.Name, k.wordLength); err != nil {
			return err
		}
		for _, block := range k.method.Blocks {
			for walker := block.Walker(); !walker.AtEnd(); walker.NextInBlock() {
				ins := walker.Get()
				if ins.Kind == ir.KindBranchLabel {
					if _, err := fmt.Fprintf(w, "%s:\n", ins.Label); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintf(w, "    %s\n", ins.String()); err != nil {
					return err
				}
			}
		}
	}
	for _, g := range module.Globals {
		if _, err := fmt.Fprintf(w, "; global %s align=%d\n", g.Name, g.Alignment); err != nil {
			return err
		}
	}
	return nil
}

// ParseHeader re-reads a binary-mode module's header and kernel table,
// verifying the magic and yielding the same kernel count, names, parameter
// records and instruction-word offsets Emit wrote.
func ParseHeader(data []byte) (ModuleInfo, []ParsedKernel, error) {
	m1, err := readWord(data, 0)
	if err != nil {
		return ModuleInfo{}, nil, err
	}
	m2, err := readWord(data, 8)
	if err != nil {
		return ModuleInfo{}, nil, err
	}
	if m1 != Magic || m2 != Magic {
		return ModuleInfo{}, nil, compileerror.New(compileerror.StepVerifier, "module magic header mismatch")
	}
	a, err := readWord(data, 16)
	if err != nil {
		return ModuleInfo{}, nil, err
	}
	b, err := readWord(data, 24)
	if err != nil {
		return ModuleInfo{}, nil, err
	}
	info := decodeModuleInfo(a, b)
	if info.Version != FormatVersion {
		return ModuleInfo{}, nil, compileerror.Newf(compileerror.StepVerifier, "unsupported module format version %d", info.Version)
	}

	offset := 32
	kernels := make([]ParsedKernel, 0, info.KernelCount)
	for i := 0; i < int(info.KernelCount); i++ {
		infoWord, err := readWord(data, offset)
		if err != nil {
			return ModuleInfo{}, nil, err
		}
		offset += 8
		ki := decodeKernelInfo(infoWord)

		wgsWord, err := readWord(data, offset)
		if err != nil {
			return ModuleInfo{}, nil, err
		}
		offset += 8
		x, y, z := decodeWorkGroupSize(wgsWord)

		nameLen := padLen(int(ki.NameLength))
		if offset+nameLen > len(data) {
			return ModuleInfo{}, nil, compileerror.New(compileerror.StepVerifier, "truncated kernel name")
		}
		name := string(data[offset : offset+int(ki.NameLength)])
		offset += nameLen

		params := make([]ParamRecord, 0, ki.ParamCount)
		for p := 0; p < int(ki.ParamCount); p++ {
			recWord, err := readWord(data, offset)
			if err != nil {
				return ModuleInfo{}, nil, err
			}
			offset += 8
			rec := decodeParamRecord(recWord)
			offset += padLen(int(rec.NameLength))
			offset += padLen(int(rec.TypeNameLength))
			params = append(params, rec)
		}

		kernels = append(kernels, ParsedKernel{
			Info:           ki,
			Name:           name,
			WorkGroupSizeX: x, WorkGroupSizeY: y, WorkGroupSizeZ: z,
			Params: params,
		})
	}

	return info, kernels, nil
}

// ParsedKernel is one kernel's header record as recovered by ParseHeader.
type ParsedKernel struct {
	Info                               KernelInfo
	Name                               string
	WorkGroupSizeX, WorkGroupSizeY, WorkGroupSizeZ uint16
	Params                             []ParamRecord
}

func padLen(n int) int {
	for n%8 != 0 {
		n++
	}
	return n
}
