package textir

import "github.com/qpuforge/qpuc/ir"

// FrontEnd adapts Parse to the compile.FrontEnd interface, letting cmd/qpuc
// select it by name alongside any future OpenCL-C/LLVM-IR/SPIR-V front end
// without compile importing this package directly.
type FrontEnd struct{}

// Parse implements compile.FrontEnd.
func (FrontEnd) Parse(blob []byte) (*ir.Module, error) {
	return Parse(blob)
}
