//go:build linux

package trap

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ochibox/x86gdbstub/internal/regs"
)

// SignalSubstrate observes the POSIX signals a real CPU exception would
// raise on a hosted Linux process (SIGSEGV, SIGBUS, SIGFPE, SIGILL,
// SIGTRAP) and reverse-maps them back to an approximate vector number —
// the inverse of engine.Signal — before invoking Handler.
//
// This is explicitly a demonstration substrate for the CLI harness, not a
// production trap-delivery mechanism: Go's runtime, not this package, owns
// synchronous-fault recovery, so SignalSubstrate cannot resume the
// faulting instruction or supply real register values (the snapshot it
// hands the handler is a fresh zero-valued one, since Go's signal package
// exposes no register state).
// Real embedding with full register capture is a platform-specific
// exercise the host provides, exactly as spec.md §1 scopes the substrate
// out of the core.
type SignalSubstrate struct {
	mu      sync.Mutex
	handler Handler
	sigChan chan os.Signal
	done    chan struct{}
}

var watchedSignals = []os.Signal{
	unix.SIGSEGV,
	unix.SIGBUS,
	unix.SIGFPE,
	unix.SIGILL,
	unix.SIGTRAP,
}

// NewSignalSubstrate returns a ready-to-install SignalSubstrate.
func NewSignalSubstrate() *SignalSubstrate {
	return &SignalSubstrate{}
}

func (s *SignalSubstrate) Install(h Handler) error {
	s.mu.Lock()
	s.handler = h
	s.sigChan = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	mu := &s.mu
	sigChan := s.sigChan
	done := s.done
	s.mu.Unlock()

	signal.Notify(s.sigChan, watchedSignals...)
	go func() {
		for {
			select {
			case sig := <-sigChan:
				mu.Lock()
				h := s.handler
				mu.Unlock()
				if h == nil {
					continue
				}
				var snap regs.Snapshot
				h(vectorForSignal(sig), 0, &snap)
			case <-done:
				return
			}
		}
	}()
	return nil
}

func (s *SignalSubstrate) Resume(snap *regs.Snapshot, trace bool) error {
	snap.SetTrace(trace)
	return nil
}

func (s *SignalSubstrate) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigChan != nil {
		signal.Stop(s.sigChan)
	}
	if s.done != nil {
		close(s.done)
	}
	s.handler = nil
	return nil
}

// vectorForSignal is the inverse of engine.Signal: it recovers an
// approximate x86 exception vector from the POSIX signal the host
// delivered, so the reported stop reply still maps through the same
// vector→signal table the engine uses for in-process breakpoints.
func vectorForSignal(sig os.Signal) int {
	switch sig {
	case unix.SIGFPE:
		return 0 // divide-by-zero
	case unix.SIGTRAP:
		return 1 // debug/single-step
	case unix.SIGILL:
		return 6 // invalid opcode
	case unix.SIGSEGV, unix.SIGBUS:
		return 13 // general protection / segment fault
	default:
		return -1 // maps to signal 7, "other"
	}
}
