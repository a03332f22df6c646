// Package memprobe reads and writes debuggee memory that may legitimately
// be unmapped, write-protected, or otherwise invalid, without taking the
// stub down with it.
//
// The original stub (see original_source/gdbstub/i386-stub.c) arms a
// fault-redirect function pointer before a probed access and lets the page
// fault handler longjmp back out if it fires. The direct Go analogue of a
// non-local exit out of a fault handler is a recovered panic: this package
// turns on runtime/debug.SetPanicOnFault for the duration of a probe and
// recovers a single byte access that would otherwise crash the process.
// The same shape — wrap one unit of work in a deferred recover so a bad
// memory access degrades to a reported error instead of taking the whole
// process down — is the pattern KTStephano-GVM/vm/exec.go uses around each
// emulated instruction (getDefaultRecoverFuncForVM).
package memprobe

import (
	"runtime/debug"
	"unsafe"
)

// Probe performs byte access at absolute addresses in the debuggee's
// address space (the stub is linked into the debuggee, so "debuggee
// memory" is simply this process's memory).
type Probe struct {
	faulted bool
}

// New returns a Probe with a clear fault latch.
func New() *Probe {
	return &Probe{}
}

// Faulted reports whether the latch was raised by the most recent may-fault
// probe. It is cleared at the start of every ProbeRead/ProbeWrite call.
func (p *Probe) Faulted() bool {
	return p.faulted
}

// ProbeRead copies n bytes starting at addr into out, returning the number
// of bytes actually read. When mayFault is true, the redirect is armed for
// the access: a fault partway through stops the copy with a short count
// and raises the latch, and the caller must inspect Faulted(). When
// mayFault is false, the redirect is never armed, so any fault is a
// debuggee fault and is left to crash the process, matching "any other CPU
// exception while inside the engine" in spec.md §7 — this mode is only
// used for accesses already known to be safe, e.g. the register snapshot
// itself.
func (p *Probe) ProbeRead(addr uintptr, n int, out []byte, mayFault bool) int {
	p.faulted = false
	if len(out) < n {
		n = len(out)
	}
	if !mayFault {
		for i := 0; i < n; i++ {
			out[i] = *(*byte)(unsafe.Pointer(addr + uintptr(i)))
		}
		return n
	}
	restore := arm()
	defer restore()
	for i := 0; i < n; i++ {
		b, ok := readByte(addr + uintptr(i))
		if !ok {
			p.faulted = true
			return i
		}
		out[i] = b
	}
	return n
}

// ProbeWrite copies n bytes from in to addr, returning the number of bytes
// actually written. See ProbeRead for the mayFault contract.
func (p *Probe) ProbeWrite(addr uintptr, n int, in []byte, mayFault bool) int {
	p.faulted = false
	if len(in) < n {
		n = len(in)
	}
	if !mayFault {
		for i := 0; i < n; i++ {
			*(*byte)(unsafe.Pointer(addr + uintptr(i))) = in[i]
		}
		return n
	}
	restore := arm()
	defer restore()
	for i := 0; i < n; i++ {
		if !writeByte(addr+uintptr(i), in[i]) {
			p.faulted = true
			return i
		}
	}
	return n
}

// arm enables panic-on-fault for the life of one probe and returns a
// closure that turns it off again. The redirect is armed only
// across this bounded window, per spec.md §3's Memory Fault Latch
// invariant.
func arm() func() {
	debug.SetPanicOnFault(true)
	return func() {
		debug.SetPanicOnFault(false)
	}
}

func readByte(addr uintptr) (b byte, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return *(*byte)(unsafe.Pointer(addr)), true
}

func writeByte(addr uintptr, v byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	*(*byte)(unsafe.Pointer(addr)) = v
	return true
}
