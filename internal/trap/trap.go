// Package trap implements the Trap Glue: the boundary between the
// Protocol Engine and the platform's exception-delivery mechanism. The
// mechanism itself — the architectural IDT vectoring and the IRET that
// resumes CS:EIP/EFLAGS atomically — is an external collaborator per
// spec.md §1 ("the trap-delivery substrate... modeled abstractly"); this
// package defines the interface the engine consumes and ships the one
// realization that is fully in-scope and fully testable.
package trap

import "github.com/ochibox/x86gdbstub/internal/regs"

// Handler is invoked by a Substrate when an exception vector fires. snap
// is the already-populated register snapshot for the event; the handler
// (the Protocol Engine, in practice) may mutate it before returning.
type Handler func(vector int, errCode uint32, snap *regs.Snapshot)

// Substrate is the platform mechanism that vectors CPU exceptions into the
// stub with a saved-register block accessible to it (spec.md §1's "trap
// delivery substrate"). Install registers the handler; Resume commits a
// (possibly engine-mutated) snapshot back and re-enters the debuggee,
// honoring the trace flag on the first resumed instruction; Close restores
// whatever the substrate had installed before Install.
type Substrate interface {
	Install(h Handler) error
	Resume(snap *regs.Snapshot, trace bool) error
	Close() error
}
