// Package engine implements the Protocol Engine: RSP command dispatch,
// stop-reply generation, the vector→signal mapping, and the run-control
// glue that hands PC/trace-flag changes back to the trap substrate. See
// spec.md §4.E.
package engine

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ochibox/x86gdbstub/internal/hexcodec"
	"github.com/ochibox/x86gdbstub/internal/memprobe"
	"github.com/ochibox/x86gdbstub/internal/packet"
	"github.com/ochibox/x86gdbstub/internal/regs"
)

// Resume describes what the engine decided when it left the command loop
// on a 'c' or 's' packet. The trap glue commits Snapshot changes are
// already reflected there; Step only tells the caller whether the trace
// flag was armed, for logging/bookkeeping convenience.
type Resume struct {
	Step bool
}

// Engine is the command dispatcher bound to one packet Layer, one register
// Snapshot, and one Memory Probe. It owns no transport state of its own —
// spec.md §3's "process-global because trap handlers cannot receive
// parameters" constraint is satisfied by the caller holding one Engine for
// the life of a debug session, exactly as it holds one Layer and one
// Snapshot.
type Engine struct {
	pkt    *packet.Layer
	snap   *regs.Snapshot
	probe  *memprobe.Probe
	logger *log.Logger

	lastSignal int
	verbose    bool
}

// New builds an Engine. snap and probe are shared with the trap glue that
// populates/commits the snapshot and with whatever owns the debuggee's
// memory.
func New(pkt *packet.Layer, snap *regs.Snapshot, probe *memprobe.Probe, logger *log.Logger) *Engine {
	return &Engine{pkt: pkt, snap: snap, probe: probe, logger: logger}
}

// Enter is called by the trap glue with a freshly captured exception
// vector. The snapshot is assumed already populated. Enter sends the
// initial stop reply and then services packets until the host issues a
// continue or step, at which point it returns the Resume directive for
// the caller to act on (see spec.md §4.E.3).
func (e *Engine) Enter(vector int, errCode uint32) (Resume, error) {
	e.lastSignal = Signal(vector)
	e.debugf("exception", "vector", vector, "errcode", errCode, "signal", e.lastSignal)
	if err := e.pkt.Send(stopReply(e.lastSignal)); err != nil {
		return Resume{}, err
	}
	return e.loop()
}

// debugf emits a diagnostic through the logger only while the 'd' command's
// verbose flag is set, per spec.md §9: "retain as a runtime boolean
// controlling diagnostic output through a host-provided logging sink."
func (e *Engine) debugf(msg string, kv ...interface{}) {
	if !e.verbose || e.logger == nil {
		return
	}
	e.logger.Debug(msg, kv...)
}

func (e *Engine) loop() (Resume, error) {
	for {
		body, err := e.pkt.Receive()
		if err != nil {
			return Resume{}, err
		}
		reply, resume, leave := e.dispatch(body)
		if leave {
			return resume, nil
		}
		if err := e.pkt.Send(reply); err != nil {
			return Resume{}, err
		}
	}
}

// dispatch handles exactly one command body and returns the reply to send
// (nil/empty means an empty framed packet), whether the command loop
// should exit to resume the debuggee, and the Resume directive if so.
func (e *Engine) dispatch(body []byte) (reply []byte, resume Resume, leave bool) {
	if len(body) == 0 {
		return nil, Resume{}, false
	}

	switch body[0] {
	case '?':
		return stopReply(e.lastSignal), Resume{}, false

	case 'g':
		wire := e.snap.Encode()
		return hexcodec.BytesToHex(wire[:], len(wire)), Resume{}, false

	case 'G':
		raw := hexcodec.HexToBytes(body[1:], regs.PayloadBytes)
		e.snap.Decode(raw)
		return []byte("OK"), Resume{}, false

	case 'P':
		return e.handleWriteRegister(body[1:]), Resume{}, false

	case 'm':
		return e.handleReadMemory(body[1:]), Resume{}, false

	case 'M':
		return e.handleWriteMemory(body[1:]), Resume{}, false

	case 'c':
		return nil, e.handleRunControl(body[1:], false), true

	case 's':
		return nil, e.handleRunControl(body[1:], true), true

	case 'k':
		return nil, Resume{}, false

	case 'H':
		return []byte("OK"), Resume{}, false

	case 'd':
		e.verbose = !e.verbose
		e.debugf("verbose debug flag toggled", "on", e.verbose)
		return nil, Resume{}, false

	case 'q':
		return e.handleQuery(body), Resume{}, false

	default:
		return nil, Resume{}, false
	}
}

func (e *Engine) handleWriteRegister(args []byte) []byte {
	idx, n := hexcodec.ParseHexPrefix(args, 0)
	if n == 0 || int(idx) >= regs.Count || n >= len(args) || args[n] != '=' {
		return []byte("E01")
	}
	value := hexcodec.HexToBytes(args[n+1:], 4)
	var word uint32
	for i := 0; i < 4; i++ {
		word |= uint32(value[i]) << (8 * uint(i))
	}
	e.snap[idx] = word
	return []byte("OK")
}

func (e *Engine) handleReadMemory(args []byte) []byte {
	addr, length, ok := parseAddrLen(args)
	if !ok {
		return []byte("E01")
	}
	if length == 0 {
		return nil
	}
	out := make([]byte, length)
	n := e.probe.ProbeRead(uintptr(addr), int(length), out, true)
	if e.probe.Faulted() {
		return []byte("E03")
	}
	return hexcodec.BytesToHex(out, n)
}

func (e *Engine) handleWriteMemory(args []byte) []byte {
	comma := bytes.IndexByte(args, ',')
	colon := bytes.IndexByte(args, ':')
	if comma < 0 || colon < 0 || colon < comma {
		return []byte("E02")
	}
	addr, an := hexcodec.ParseHexPrefix(args, 0)
	if an != comma {
		return []byte("E02")
	}
	length, ln := hexcodec.ParseHexPrefix(args, comma+1)
	if ln != colon-(comma+1) {
		return []byte("E02")
	}
	if length == 0 {
		return []byte("OK")
	}
	data := hexcodec.HexToBytes(args[colon+1:], int(length))
	e.probe.ProbeWrite(uintptr(addr), int(length), data, true)
	if e.probe.Faulted() {
		return []byte("E03")
	}
	return []byte("OK")
}

func (e *Engine) handleRunControl(args []byte, step bool) Resume {
	if addr, n := hexcodec.ParseHexPrefix(args, 0); n > 0 {
		e.snap[regs.PC] = addr
	}
	e.snap.SetTrace(step)
	return Resume{Step: step}
}

func (e *Engine) handleQuery(body []byte) []byte {
	q := string(body)
	switch {
	case q == "qC":
		return []byte("QC0")
	case q == "qAttached":
		return []byte("1")
	case q == "qfThreadInfo":
		return []byte("m0")
	case q == "qsThreadInfo":
		return []byte("l")
	case strings.HasPrefix(q, "qSymbol"):
		return []byte("OK")
	default:
		return nil
	}
}

// parseAddrLen parses the "AA..AA,LLLL" argument of 'm'. ('M' parses its
// address/length prefix itself, in handleWriteMemory.)
func parseAddrLen(args []byte) (addr, length uint32, ok bool) {
	addr, an := hexcodec.ParseHexPrefix(args, 0)
	if an == 0 || an >= len(args) || args[an] != ',' {
		return 0, 0, false
	}
	length, ln := hexcodec.ParseHexPrefix(args, an+1)
	if ln == 0 {
		return 0, 0, false
	}
	return addr, length, true
}

// stopReply builds the "S"+2-hex-signal reply body.
func stopReply(signal int) []byte {
	hex := hexcodec.BytesToHex([]byte{byte(signal)}, 1)
	return append([]byte{'S'}, hex...)
}
