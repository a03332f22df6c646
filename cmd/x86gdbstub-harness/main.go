// Command x86gdbstub-harness is a CLI test harness that calls the stub's
// initialization entry points against a real transport, so a real GDB
// client can be pointed at it. It is not part of the core (spec.md §1
// scopes "CLI/test harness programs" out as an external collaborator) and
// carries no protocol logic of its own beyond flag parsing and transport
// selection.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/ochibox/x86gdbstub"
	"github.com/ochibox/x86gdbstub/internal/transport"
	"github.com/ochibox/x86gdbstub/internal/trap"
)

var (
	flagListen   string
	flagSerial   string
	flagBaud     uint32
	flagLoglevel string
	flagSignals  bool
)

func main() {
	pflag.StringVar(&flagListen, "listen", ":2331", "TCP address to accept one GDB connection on")
	pflag.StringVar(&flagSerial, "serial", "", "serial device path (e.g. /dev/ttyUSB0); overrides --listen")
	pflag.Uint32Var(&flagBaud, "baud", 115200, "baud rate when --serial is set")
	pflag.StringVar(&flagLoglevel, "loglevel", "info", "debug, info, warn, error")
	pflag.BoolVar(&flagSignals, "signals", false, "observe OS signals via trap.SignalSubstrate instead of calling Breakpoint() directly (linux only, best-effort)")
	pflag.Parse()

	level, err := log.ParseLevel(flagLoglevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid --loglevel:", err)
		os.Exit(1)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "x86gdbstub-harness"})
	logger.SetLevel(level)
	x86gdbstub.SetLogger(logger)

	t, closeTransport, err := openTransport(logger)
	if err != nil {
		logger.Fatal("cannot open transport", "err", err)
	}
	defer closeTransport()

	opts := []x86gdbstub.Option{x86gdbstub.WithTransport(t)}
	if flagSignals {
		opts = append(opts, x86gdbstub.WithSubstrate(trap.NewSignalSubstrate()))
	}

	// Port/baud are consumed by openTransport above, not by Init itself:
	// WithTransport already supplies a ready-to-use Facade.
	if err := x86gdbstub.Init("", 0, opts...); err != nil {
		logger.Fatal("init failed", "err", err)
	}
	if err := x86gdbstub.Install(); err != nil {
		logger.Fatal("install failed", "err", err)
	}
	defer x86gdbstub.Close()

	logger.Info("stub installed, triggering initial breakpoint")
	x86gdbstub.Breakpoint()
	logger.Info("gdb session ended")
}

// openTransport picks a serial device if one was requested, otherwise
// listens on flagListen and accepts exactly one connection, matching the
// original stub's single-session model (spec.md §5: "no background
// tasks").
func openTransport(logger *log.Logger) (transport.Facade, func(), error) {
	if flagSerial != "" {
		t, err := transport.NewSerial(flagSerial, flagBaud)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	}

	ln, err := net.Listen("tcp", flagListen)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("waiting for gdb connection", "addr", flagListen)
	conn, err := ln.Accept()
	if err != nil {
		_ = ln.Close()
		return nil, nil, err
	}
	logger.Info("gdb connected", "remote", conn.RemoteAddr())
	return transport.NewReadWriter(conn), func() {
		_ = conn.Close()
		_ = ln.Close()
	}, nil
}
