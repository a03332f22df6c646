//go:build !linux

package trap

import (
	"errors"
	"runtime"

	"github.com/ochibox/x86gdbstub/internal/regs"
)

// SignalSubstrate is only implemented for Linux. See
// signal_substrate_linux.go's doc comment for why it exists only as a
// demonstration substrate in the first place.
type SignalSubstrate struct{}

func NewSignalSubstrate() *SignalSubstrate {
	return &SignalSubstrate{}
}

func (s *SignalSubstrate) Install(h Handler) error {
	return errors.New("trap: SignalSubstrate is not implemented for GOOS=" + runtime.GOOS)
}

func (s *SignalSubstrate) Resume(snap *regs.Snapshot, trace bool) error {
	snap.SetTrace(trace)
	return nil
}

func (s *SignalSubstrate) Close() error {
	return nil
}
