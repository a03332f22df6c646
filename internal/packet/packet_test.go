package packet

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFacade is a transport.Facade test double: GetByte drains a
// preloaded queue of inbound bytes, PutByte appends to Out.
type fakeFacade struct {
	in  []byte
	pos int
	out []byte
}

func (f *fakeFacade) PutByte(b byte) error {
	f.out = append(f.out, b)
	return nil
}

func (f *fakeFacade) GetByte() (byte, error) {
	if f.pos >= len(f.in) {
		return 0, io.EOF
	}
	b := f.in[f.pos]
	f.pos++
	return b, nil
}

func frame(body string) []byte {
	out := []byte{'$'}
	out = append(out, body...)
	out = append(out, '#')
	out = append(out, hexByte(Checksum([]byte(body)))...)
	return out
}

func hexByte(b byte) []byte {
	const digits = "0123456789abcdef"
	return []byte{digits[b>>4], digits[b&0xf]}
}

func TestReceiveValidPacket(t *testing.T) {
	f := &fakeFacade{in: frame("g")}
	l := New(f, nil)

	body, err := l.Receive()
	require.NoError(t, err)
	assert.Equal(t, "g", string(body))
	assert.Equal(t, []byte{'+'}, f.out)
}

func TestReceiveDiscardsGarbageBeforeDollar(t *testing.T) {
	in := append([]byte("garbage"), frame("?")...)
	f := &fakeFacade{in: in}
	l := New(f, nil)

	body, err := l.Receive()
	require.NoError(t, err)
	assert.Equal(t, "?", string(body))
}

func TestReceiveRestartsOnStrayDollar(t *testing.T) {
	in := append([]byte("$bogus"), frame("g")...)
	f := &fakeFacade{in: in}
	l := New(f, nil)

	body, err := l.Receive()
	require.NoError(t, err)
	assert.Equal(t, "g", string(body))
}

func TestReceiveChecksumMismatchNAKsAndRetries(t *testing.T) {
	bad := []byte("$g#00")
	good := frame("g")
	f := &fakeFacade{in: append(bad, good...)}
	l := New(f, nil)

	body, err := l.Receive()
	require.NoError(t, err)
	assert.Equal(t, "g", string(body))
	assert.Equal(t, byte('-'), f.out[0])
	assert.Equal(t, 1, l.Stats.NAKsSent)
}

func TestReceiveSequencePrefixEchoedAndStripped(t *testing.T) {
	f := &fakeFacade{in: frame("01:g")}
	l := New(f, nil)

	body, err := l.Receive()
	require.NoError(t, err)
	assert.Equal(t, "g", string(body))
	// ack, then echoed "01"
	assert.Equal(t, []byte{'+', '0', '1'}, f.out)
	assert.Equal(t, 1, l.Stats.SequencedPackets)
}

func TestReceiveEmptyBody(t *testing.T) {
	f := &fakeFacade{in: frame("")}
	l := New(f, nil)

	body, err := l.Receive()
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestReceiveTransportErrorPropagates(t *testing.T) {
	f := &fakeFacade{in: nil}
	l := New(f, nil)
	_, err := l.Receive()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSendFramesAndWaitsForAck(t *testing.T) {
	f := &fakeFacade{in: []byte{'+'}}
	l := New(f, nil)

	err := l.Send([]byte("OK"))
	require.NoError(t, err)
	assert.Equal(t, frame("OK"), f.out)
}

func TestSendRetransmitsUntilAck(t *testing.T) {
	f := &fakeFacade{in: []byte{'-', '-', '+'}}
	l := New(f, nil)

	err := l.Send([]byte("OK"))
	require.NoError(t, err)
	assert.Equal(t, 2, l.Stats.SendRetransmits)

	want := append(append([]byte{}, frame("OK")...), frame("OK")...)
	want = append(want, frame("OK")...)
	assert.Equal(t, want, f.out)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0), Checksum(nil))
	assert.Equal(t, byte('O'+'K'), Checksum([]byte("OK")))
}
