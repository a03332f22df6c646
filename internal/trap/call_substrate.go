package trap

import "github.com/ochibox/x86gdbstub/internal/regs"

// CallSubstrate is a direct-call realization of Substrate: the exception
// "vector" is simply a function argument, and "resume" is returning
// control to the caller — exactly how an int3 trap resumes on real
// hardware (execution continues at the next instruction). This is what
// Breakpoint() is built on, and what every testable property in spec.md
// §8 is checked against; it requires no OS signal plumbing and behaves
// identically on every platform.
type CallSubstrate struct {
	handler Handler
}

// NewCallSubstrate returns a ready-to-install CallSubstrate.
func NewCallSubstrate() *CallSubstrate {
	return &CallSubstrate{}
}

func (c *CallSubstrate) Install(h Handler) error {
	c.handler = h
	return nil
}

// Dispatch synchronously invokes the installed handler with vector and
// errCode against snap, exactly as a real trap glue would after populating
// the snapshot from the saved context. It is the caller's job (see the
// root package's Breakpoint) to decide what vector and errCode apply.
func (c *CallSubstrate) Dispatch(vector int, errCode uint32, snap *regs.Snapshot) {
	if c.handler == nil {
		return
	}
	c.handler(vector, errCode, snap)
}

// Resume commits snap's trace flag (it is already the live snapshot the
// handler mutated) and returns; there is nothing further to do because the
// caller of Dispatch regains control at the point it called in, which is
// exactly the architectural IRET's effect on this substrate.
func (c *CallSubstrate) Resume(snap *regs.Snapshot, trace bool) error {
	snap.SetTrace(trace)
	return nil
}

func (c *CallSubstrate) Close() error {
	c.handler = nil
	return nil
}
