package x86gdbstub

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochibox/x86gdbstub/internal/transport"
	"github.com/ochibox/x86gdbstub/internal/trap"
)

// loopBuffer is a trivial io.ReadWriter test double: bytes queued into
// toStub are what the simulated host sends, bytes the stub sends land in
// fromStub for the test to inspect. Same seam packet_test.go uses one
// layer down.
type loopBuffer struct {
	toStub   *bytes.Buffer
	fromStub *bytes.Buffer
}

func (l *loopBuffer) Read(p []byte) (int, error)  { return l.toStub.Read(p) }
func (l *loopBuffer) Write(p []byte) (int, error) { return l.fromStub.Write(p) }

func resetPackageState(t *testing.T) {
	t.Cleanup(func() {
		mu.Lock()
		installed = false
		eng, pkt, probe, sub = nil, nil, nil, nil
		mu.Unlock()
	})
}

// TestBreakpointEmitsInitialStopReply drives spec.md §8 scenario 1: the
// first thing the host sees after a breakpoint is "$S05#b8".
func TestBreakpointEmitsInitialStopReply(t *testing.T) {
	resetPackageState(t)

	lb := &loopBuffer{toStub: bytes.NewBuffer(nil), fromStub: bytes.NewBuffer(nil)}
	// Host acks the initial stop reply, then immediately continues so
	// Dispatch returns.
	lb.toStub.WriteString("+")
	lb.toStub.WriteString("$c#63")
	lb.toStub.WriteString("+")

	require.NoError(t, Init("", 0, WithTransport(transport.NewReadWriter(lb)), WithSubstrate(trap.NewCallSubstrate())))
	require.NoError(t, Install())
	t.Cleanup(func() { _ = Close() })

	Breakpoint()

	out := lb.fromStub.String()
	assert.Contains(t, out, "$S05#b8")
}

func TestBreakpointNoopBeforeInstall(t *testing.T) {
	resetPackageState(t)

	lb := &loopBuffer{toStub: bytes.NewBuffer(nil), fromStub: bytes.NewBuffer(nil)}
	require.NoError(t, Init("", 0, WithTransport(transport.NewReadWriter(lb)), WithSubstrate(trap.NewCallSubstrate())))
	t.Cleanup(func() { _ = Close() })

	Breakpoint()

	assert.Empty(t, lb.fromStub.Bytes())
}

func TestCloseIsIdempotent(t *testing.T) {
	resetPackageState(t)

	lb := &loopBuffer{toStub: bytes.NewBuffer(nil), fromStub: bytes.NewBuffer(nil)}
	require.NoError(t, Init("", 0, WithTransport(transport.NewReadWriter(lb)), WithSubstrate(trap.NewCallSubstrate())))
	require.NoError(t, Install())

	require.NoError(t, Close())
	require.NoError(t, Close())
}

func TestInstallBeforeInitErrors(t *testing.T) {
	resetPackageState(t)
	mu.Lock()
	eng, sub = nil, nil
	mu.Unlock()

	err := Install()
	assert.Error(t, err)
}

// TestEndToEndRegisterReadWrite drives spec.md §8 scenario 4 followed by a
// g read-back: a P write, then g, over the full Init/Install/Breakpoint
// path.
func TestEndToEndRegisterReadWrite(t *testing.T) {
	resetPackageState(t)

	lb := &loopBuffer{toStub: bytes.NewBuffer(nil), fromStub: bytes.NewBuffer(nil)}
	lb.toStub.WriteString("+") // ack of initial stop reply
	lb.toStub.WriteString("$P0=efbeadde#dd")
	lb.toStub.WriteString("+") // ack of "OK" reply
	lb.toStub.WriteString("$g#67")
	lb.toStub.WriteString("+") // ack of the register dump reply
	lb.toStub.WriteString("$c#63")

	require.NoError(t, Init("", 0, WithTransport(transport.NewReadWriter(lb)), WithSubstrate(trap.NewCallSubstrate())))
	require.NoError(t, Install())
	t.Cleanup(func() { _ = Close() })

	Breakpoint()

	out := lb.fromStub.String()
	assert.Contains(t, out, "$OK#9a")
	assert.Contains(t, out, "efbeadde")
}
