package asm

import (
	"encoding/binary"

	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/ir"
)

// Magic is the fixed 64-bit module header constant, written twice at the
// start of every module (spec.md §6 "magic number is a 64-bit constant
// repeated twice").
const Magic uint64 = 0x5150_5543_4D4F_4431 // "QPUCMOD1" read most-significant byte first; putWord stores it little-endian, so the file bytes read "1DOMCUPQ"

// FormatVersion is the module-info version field this encoder writes and
// the only version ParseHeader accepts.
const FormatVersion = 1

// ModuleInfo is the header record following the repeated magic (spec.md §6
// "module-info bitfield (version, counts, offsets, stack-frame size)"). It
// occupies two consecutive 64-bit words: the first carries the version and
// counts, the second the global-data segment's word offset and length so a
// parser can skip straight past it without scanning for the zero-word
// delimiter, which would be ambiguous against a legitimately zero-valued
// initializer word.
type ModuleInfo struct {
	Version            uint8
	KernelCount        uint8
	GlobalCount        uint8
	StackFrameSize     uint16 // bytes, largest of any method's stack table
	GlobalDataOffset   uint32 // word offset of the global-data segment
	GlobalDataLength   uint32 // word length of the global-data segment
}

func (m ModuleInfo) encode() (uint64, uint64) {
	a := uint64(m.Version) |
		uint64(m.KernelCount)<<8 |
		uint64(m.GlobalCount)<<16 |
		uint64(m.StackFrameSize)<<32
	b := uint64(m.GlobalDataOffset) | uint64(m.GlobalDataLength)<<32
	return a, b
}

func decodeModuleInfo(a, b uint64) ModuleInfo {
	return ModuleInfo{
		Version:          uint8(a),
		KernelCount:      uint8(a >> 8),
		GlobalCount:      uint8(a >> 16),
		StackFrameSize:   uint16(a >> 32),
		GlobalDataOffset: uint32(b),
		GlobalDataLength: uint32(b >> 32),
	}
}

// KernelInfoFlags are the per-kernel flag bits packed into KernelInfo.
type KernelInfoFlags uint16

const (
	KernelFlagRequiredWorkGroupSize KernelInfoFlags = 1 << iota
	KernelFlagWorkGroupSizeHint
)

// KernelInfo is the per-kernel header record (spec.md §6 "kernel-info
// bitfield (length, offset in instructions, flag bits)").
type KernelInfo struct {
	NameLength         uint8
	ParamCount         uint8
	LengthInstructions uint16
	OffsetInstructions uint16
	Flags              KernelInfoFlags
}

func (k KernelInfo) encode() uint64 {
	return uint64(k.NameLength) |
		uint64(k.ParamCount)<<8 |
		uint64(k.LengthInstructions)<<16 |
		uint64(k.OffsetInstructions)<<32 |
		uint64(k.Flags)<<48
}

func decodeKernelInfo(word uint64) KernelInfo {
	return KernelInfo{
		NameLength:         uint8(word),
		ParamCount:         uint8(word >> 8),
		LengthInstructions: uint16(word >> 16),
		OffsetInstructions: uint16(word >> 32),
		Flags:              KernelInfoFlags(word >> 48),
	}
}

// encodeWorkGroupSize packs three 16-bit lanes into one 64-bit word (spec.md
// §6 "64-bit required-work-group-size field packing three 16-bit lanes").
func encodeWorkGroupSize(w ir.WorkGroupSize) uint64 {
	return uint64(uint16(w.X)) | uint64(uint16(w.Y))<<16 | uint64(uint16(w.Z))<<32
}

func decodeWorkGroupSize(word uint64) (x, y, z uint16) {
	return uint16(word), uint16(word >> 16), uint16(word >> 32)
}

// ParamAddressSpace mirrors ir.AddressSpace for the header's 4-bit field,
// kept separate so the wire format does not silently shift if ir.AddressSpace
// grows new values.
type ParamAddressSpace uint8

const (
	ParamSpacePrivate ParamAddressSpace = iota
	ParamSpaceLocal
	ParamSpaceGlobal
	ParamSpaceConstant
	ParamSpaceGeneric
)

func addressSpaceFromIR(a ir.AddressSpace) ParamAddressSpace {
	switch a {
	case ir.AddressLocal:
		return ParamSpaceLocal
	case ir.AddressGlobal:
		return ParamSpaceGlobal
	case ir.AddressConstant:
		return ParamSpaceConstant
	case ir.AddressGeneric:
		return ParamSpaceGeneric
	default:
		return ParamSpacePrivate
	}
}

// ParamFlags mirrors ir.ParamDecoration plus a pointer/float/signed/unsigned
// marker, packed into one parameter record (spec.md §6 "pointer/in/out/
// const/restrict/volatile/signed/unsigned/float flags").
type ParamFlags uint16

const (
	ParamFlagPointer ParamFlags = 1 << iota
	ParamFlagReadOnly
	ParamFlagWriteOnly
	ParamFlagRestrict
	ParamFlagVolatile
	ParamFlagSigned
	ParamFlagUnsigned
	ParamFlagFloat
)

// ParamRecord is one method-parameter header entry (spec.md §6 "a bitfield
// with size, element count, address space, [flags]; then name; then
// type-name").
type ParamRecord struct {
	Size            uint16
	ElementCount    uint8
	AddressSpace    ParamAddressSpace
	Flags           ParamFlags
	NameLength      uint8
	TypeNameLength  uint8
}

func (p ParamRecord) encode() uint64 {
	return uint64(p.Size) |
		uint64(p.ElementCount)<<16 |
		uint64(p.AddressSpace)<<24 |
		uint64(p.Flags)<<28 |
		uint64(p.NameLength)<<44 |
		uint64(p.TypeNameLength)<<52
}

func decodeParamRecord(word uint64) ParamRecord {
	return ParamRecord{
		Size:           uint16(word),
		ElementCount:   uint8(word >> 16),
		AddressSpace:   ParamAddressSpace(word>>24) & 0xF,
		Flags:          ParamFlags(word>>28) & 0xFFFF,
		NameLength:     uint8(word >> 44),
		TypeNameLength: uint8(word >> 52),
	}
}

// paramRecordFor derives the header record for a method parameter, reading
// its address-space/pointer shape and decorations straight off the Local's
// DataType and ParamDecorations (spec.md §3 "Method": per-parameter
// decorations "read-only, write-only, restrict, volatile, sign-extend,
// zero-extend").
func paramRecordFor(p ir.Parameter) ParamRecord {
	t := p.Local.Type
	rec := ParamRecord{
		Size:           uint16(t.PhysicalWidth()),
		NameLength:     uint8(len(p.Local.Name)),
		TypeNameLength: uint8(len(t.String())),
	}
	if t.Kind == ir.TypeVector {
		rec.ElementCount = uint8(t.VectorWidth)
	} else {
		rec.ElementCount = 1
	}
	if t.Kind == ir.TypePointer {
		rec.Flags |= ParamFlagPointer
		rec.AddressSpace = addressSpaceFromIR(t.AddressSpace)
	}
	if t.IsFloat || (t.Elem != nil && t.Elem.IsFloat) {
		rec.Flags |= ParamFlagFloat
	} else if t.Signed || (t.Elem != nil && t.Elem.Signed) {
		rec.Flags |= ParamFlagSigned
	} else {
		rec.Flags |= ParamFlagUnsigned
	}
	if p.Local.ParamDecorations&ir.ParamReadOnly != 0 {
		rec.Flags |= ParamFlagReadOnly
	}
	if p.Local.ParamDecorations&ir.ParamWriteOnly != 0 {
		rec.Flags |= ParamFlagWriteOnly
	}
	if p.Local.ParamDecorations&ir.ParamRestrict != 0 {
		rec.Flags |= ParamFlagRestrict
	}
	if p.Local.ParamDecorations&ir.ParamVolatile != 0 {
		rec.Flags |= ParamFlagVolatile
	}
	return rec
}

// padName pads name with NUL bytes to the next multiple of 8 (spec.md §6
// "the kernel name padded to 8-byte multiples").
func padName(name string) []byte {
	buf := []byte(name)
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func putWord(dst *[]byte, w uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], w)
	*dst = append(*dst, b[:]...)
}

func readWord(src []byte, offset int) (uint64, error) {
	if offset+8 > len(src) {
		return 0, compileerror.New(compileerror.StepCodeGeneration, "truncated module: expected a 64-bit word")
	}
	return binary.LittleEndian.Uint64(src[offset : offset+8]), nil
}
