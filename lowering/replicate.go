package lowering

import (
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// Replicate writes src into the replicate-all register; on read, that
// register broadcasts the quad's value across four lanes (spec.md §4.D
// "Replication"). If dest is non-nil, an additional move materializes the
// replicated value in a normal local.
func Replicate(w *ir.InstructionWalker, method *ir.Method, src ir.Value, dest *ir.Local) *ir.InstructionWalker {
	replAll := method.FixedLocal(hwinfo.RegReplicateAll, src.Type)
	w = w.Emplace(ir.NewMove(replAll, src))
	w.NextInBlock()
	if dest != nil {
		w = w.Emplace(ir.NewMove(dest, ir.LocalValue(replAll)))
		w.NextInBlock()
	}
	return w
}
