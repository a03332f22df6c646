// Package x86gdbstub is the public facade a host program links in to get
// an in-process GDB Remote Serial Protocol target stub: Init wires a
// Transport Facade and a Trap Substrate to one Protocol Engine, Install
// arms the trap handlers, and Breakpoint triggers an immediate stop exactly
// as spec.md §6's host API describes ("serial_init", "install", "close",
// "breakpoint").
//
// All stub state is process-global by construction (spec.md §3: "trap
// handlers cannot receive parameters"), so this package holds exactly one
// session's worth of state at package scope, guarded by mu, and every
// exported function operates on it.
package x86gdbstub

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ochibox/x86gdbstub/internal/engine"
	"github.com/ochibox/x86gdbstub/internal/memprobe"
	"github.com/ochibox/x86gdbstub/internal/packet"
	"github.com/ochibox/x86gdbstub/internal/regs"
	"github.com/ochibox/x86gdbstub/internal/transport"
	"github.com/ochibox/x86gdbstub/internal/trap"
)

// Config is the one-time session configuration spec.md §3 calls out: "One
// value: serial port index. Written once at init." Expanded here with the
// ambient-stack additions SPEC_FULL.md §4 asks for (a pluggable transport
// and logging sink) while keeping Port as the default, teacher-idiom path
// to a real serial device.
type Config struct {
	// Port is the device path passed to transport.NewSerial (e.g.
	// "/dev/ttyUSB0"). Ignored if Transport is set.
	Port string
	// Baud is the line speed used when Port is set.
	Baud uint32
	// Transport overrides Port/Baud with an already-constructed Facade
	// (a TCP connection, an in-memory pipe, a test double).
	Transport transport.Facade
	// Substrate overrides the default CallSubstrate trap glue. Rarely
	// needed outside the CLI harness, which uses SignalSubstrate to
	// demonstrate wiring against real OS signals.
	Substrate trap.Substrate
}

// Option configures a Config passed to Init.
type Option func(*Config)

// WithTransport overrides the default serial transport with an
// already-constructed Facade. Used by the CLI harness to run the stub
// over a TCP connection instead of a TTY device.
func WithTransport(t transport.Facade) Option {
	return func(c *Config) { c.Transport = t }
}

// WithSubstrate overrides the default direct-call trap substrate.
func WithSubstrate(s trap.Substrate) Option {
	return func(c *Config) { c.Substrate = s }
}

// WithLogger sets the logger used for protocol diagnostics in place of
// the package default.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) { logger = l }
}

var (
	mu        sync.Mutex
	installed bool

	snap   regs.Snapshot
	probe  *memprobe.Probe
	pkt    *packet.Layer
	eng    *engine.Engine
	sub    trap.Substrate
	logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "x86gdbstub"})
)

// SetLogger replaces the package-level diagnostic logger. Safe to call
// before or after Init.
func SetLogger(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Init builds the Transport Facade, Packet Layer, Memory Probe, and
// Protocol Engine for one debug session and registers the engine's handler
// with the trap substrate (CallSubstrate unless WithSubstrate overrides
// it). The handler stays inert until Install sets the init flag.
// It is the Go analogue of spec.md §6's serial_init(port_index): Config
// is written once here and never mutated afterward.
func Init(port string, baud uint32, opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	cfg := Config{Port: port, Baud: baud}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := cfg.Transport
	if t == nil {
		var err error
		t, err = transport.NewSerial(cfg.Port, cfg.Baud)
		if err != nil {
			return fmt.Errorf("x86gdbstub: init: %w", err)
		}
	}

	probe = memprobe.New()
	pkt = packet.New(t, logger)
	snap = regs.Snapshot{}
	eng = engine.New(pkt, &snap, probe, logger)

	sub = cfg.Substrate
	if sub == nil {
		sub = trap.NewCallSubstrate()
	}

	return sub.Install(func(vector int, errCode uint32, s *regs.Snapshot) {
		mu.Lock()
		installedNow := installed
		mu.Unlock()
		if !installedNow {
			return
		}
		resume, err := eng.Enter(vector, errCode)
		if err != nil {
			logger.Error("engine session ended", "err", err)
			return
		}
		if rerr := sub.Resume(s, resume.Step); rerr != nil {
			logger.Error("trap resume failed", "err", rerr)
		}
	})
}

// Install marks the session ready to accept exceptions, per spec.md §5's
// init() lifecycle ("install handlers, mark handler memory resident, set
// init flag"). Call after Init. Residency locking itself is the trap
// substrate's concern (spec.md §1 scopes it out as an external
// collaborator); Install only flips the flag Breakpoint and the trap
// handler consult.
func Install() error {
	mu.Lock()
	defer mu.Unlock()
	if eng == nil || sub == nil {
		return fmt.Errorf("x86gdbstub: Install called before Init")
	}
	installed = true
	if logger != nil {
		logger.Info("stub installed")
	}
	return nil
}

// Close restores whatever handlers the substrate had before Install and
// clears the init flag. Idempotent, per spec.md §5's teardown() contract.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if !installed {
		return nil
	}
	installed = false
	if sub == nil {
		return nil
	}
	err := sub.Close()
	if logger != nil {
		logger.Info("stub closed")
	}
	return err
}

// Breakpoint triggers an immediate stop via the installed trap substrate,
// exactly as spec.md §5 specifies: "if init flag set, execute an
// architectural breakpoint; else no-op." Vector 3 (int3, "breakpoint") is
// used, matching engine.Signal's mapping to signal 5.
func Breakpoint() {
	mu.Lock()
	installedNow := installed
	substrate := sub
	mu.Unlock()

	if !installedNow || substrate == nil {
		return
	}

	dispatcher, ok := substrate.(interface {
		Dispatch(vector int, errCode uint32, snap *regs.Snapshot)
	})
	if !ok {
		if logger != nil {
			logger.Warn("breakpoint: substrate does not support synchronous dispatch")
		}
		return
	}

	mu.Lock()
	s := &snap
	mu.Unlock()
	dispatcher.Dispatch(3, 0, s)
}
