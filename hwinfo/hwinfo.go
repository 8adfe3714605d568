// Package hwinfo describes the fixed-function SIMD processor that qpuc
// targets: its two ALUs, register files, special registers, SFU ids and
// condition codes. Nothing here executes anything; it is a catalog other
// packages pattern-match against.
package hwinfo

// RegisterFile names which physical file a register lives in.
type RegisterFile int

const (
	FileA RegisterFile = iota
	FileB
	FileAccumulator
	FilePeripheral
)

func (f RegisterFile) String() string {
	switch f {
	case FileA:
		return "a"
	case FileB:
		return "b"
	case FileAccumulator:
		return "acc"
	case FilePeripheral:
		return "periph"
	default:
		return "?"
	}
}

// Register is a (file, index) pair. Index is the raw physical slot within
// the file; special registers below are fixed indices within FilePeripheral
// or FileAccumulator.
type Register struct {
	File  RegisterFile
	Index uint8
}

func (r Register) String() string {
	return r.File.String() + itoa(int(r.Index))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Special registers, all addressed through FilePeripheral or
// FileAccumulator.
var (
	RegElementNumber = Register{FilePeripheral, 0} // read: lane index 0..15
	RegQPUNumber     = Register{FilePeripheral, 1}
	RegReplicateAll  = Register{FilePeripheral, 2} // write: broadcast per quad; read: per-quad broadcast
	RegNOP           = Register{FilePeripheral, 3} // writes discarded
	RegSFURecip      = Register{FilePeripheral, 4}
	RegSFURecipSqrt  = Register{FilePeripheral, 5}
	RegSFUExp2       = Register{FilePeripheral, 6}
	RegSFULog2       = Register{FilePeripheral, 7}
	RegSFUOutput     = Register{FileAccumulator, 4}
	RegTMUMailbox    = Register{FilePeripheral, 8}
	RegVPMMailbox    = Register{FilePeripheral, 9}
	RegDMAMailbox    = Register{FilePeripheral, 10}
	RegSemaphore     = Register{FilePeripheral, 11}
	RegRotationAcc   = Register{FileAccumulator, 5} // "r5": rotate-by-accumulator source
)

// VectorWidth is the native lane count of the processor.
const VectorWidth = 16

// MaxSemaphoreID is the highest legal semaphore identifier.
const MaxSemaphoreID = 15

// Condition is one of the seven condition codes a packed instruction can
// carry, a 4-bit condition field cut down to this ISA's flag set (no V
// flag).
type Condition int

const (
	CondAlways Condition = iota
	CondZeroSet
	CondZeroClear
	CondNegativeSet
	CondNegativeClear
	CondCarrySet
	CondCarryClear
)

func (c Condition) String() string {
	switch c {
	case CondAlways:
		return ""
	case CondZeroSet:
		return ".zs"
	case CondZeroClear:
		return ".zc"
	case CondNegativeSet:
		return ".ns"
	case CondNegativeClear:
		return ".nc"
	case CondCarrySet:
		return ".cs"
	case CondCarryClear:
		return ".cc"
	default:
		return ".?"
	}
}

// PackMode converts a 32-bit writer lane to a narrower or saturated form.
type PackMode int

const (
	PackNone PackMode = iota
	PackToChar
	PackToUCharSaturate
	PackToShortSaturate
	PackToUShortTruncate
	PackToIntSaturate
)

// UnpackMode converts a narrower reader lane up to 32 bits.
type UnpackMode int

const (
	UnpackNone UnpackMode = iota
	UnpackCharToInt
	UnpackShortToInt
)

// NopReason documents why a scheduling bubble was inserted; purely
// informational (used by the textual emitter and by tests asserting
// scheduling invariants), never by hardware.
type NopReason int

const (
	NopWaitRegister NopReason = iota // vector-rotation read-after-write hazard
	NopWaitSFU                       // SFU two-bubble latency
	NopDMAFence
	NopGeneric
)

func (n NopReason) String() string {
	switch n {
	case NopWaitRegister:
		return "wait-register"
	case NopWaitSFU:
		return "wait-sfu"
	case NopDMAFence:
		return "dma-fence"
	default:
		return "nop"
	}
}
