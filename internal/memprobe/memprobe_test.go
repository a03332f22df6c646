package memprobe

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeReadWriteValidMemory(t *testing.T) {
	buf := make([]byte, 8)
	addr := uintptr(unsafe.Pointer(&buf[0]))

	p := New()
	n := p.ProbeWrite(addr, 4, []byte{1, 2, 3, 4}, true)
	require.Equal(t, 4, n)
	assert.False(t, p.Faulted())
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:4])

	out := make([]byte, 4)
	n = p.ProbeRead(addr, 4, out, true)
	require.Equal(t, 4, n)
	assert.False(t, p.Faulted())
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
}

func TestProbeReadFaultRaisesLatch(t *testing.T) {
	p := New()
	out := make([]byte, 4)
	n := p.ProbeRead(0, 4, out, true)
	assert.Less(t, n, 4)
	assert.True(t, p.Faulted())
}

func TestProbeWriteFaultRaisesLatch(t *testing.T) {
	p := New()
	n := p.ProbeWrite(0, 4, []byte{1, 2, 3, 4}, true)
	assert.Less(t, n, 4)
	assert.True(t, p.Faulted())
}

func TestProbeLatchClearedOnNextCall(t *testing.T) {
	p := New()
	p.ProbeRead(0, 1, make([]byte, 1), true)
	require.True(t, p.Faulted())

	buf := make([]byte, 1)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	p.ProbeRead(addr, 1, buf, true)
	assert.False(t, p.Faulted())
}

func TestProbeReadUnguardedKnownSafeAddress(t *testing.T) {
	buf := []byte{0xaa, 0xbb, 0xcc}
	addr := uintptr(unsafe.Pointer(&buf[0]))

	p := New()
	out := make([]byte, 3)
	n := p.ProbeRead(addr, 3, out, false)
	require.Equal(t, 3, n)
	assert.False(t, p.Faulted())
	assert.Equal(t, buf, out)
}

func TestProbeWriteUnguardedKnownSafeAddress(t *testing.T) {
	buf := make([]byte, 3)
	addr := uintptr(unsafe.Pointer(&buf[0]))

	p := New()
	n := p.ProbeWrite(addr, 3, []byte{0x01, 0x02, 0x03}, false)
	require.Equal(t, 3, n)
	assert.False(t, p.Faulted())
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
}
