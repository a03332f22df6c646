//go:build linux

package transport

import (
	"fmt"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"golang.org/x/sys/unix"
)

// termios2 mirrors struct termios2 from <asm-generic/termbits.h> on Linux,
// the variant that carries an explicit input/output speed instead of a
// Bxxxxx baud-rate constant. Adapted from Daedaluz-goserial's Termios2.
type termios2 struct {
	Iflag  uint32
	Oflag  uint32
	Cflag  uint32
	Lflag  uint32
	Line   byte
	Cc     [19]byte
	ISpeed uint32
	OSpeed uint32
}

const (
	cBaud    = 0x0000100f
	cBaudEx  = 0x00001000
	cRead    = 0x00000080
	clocal   = 0x00000800
	cs8      = 0x00000030
	icrnl    = 0x00000100
	opost    = 0x00000001
	isig     = 0x00000001
	icanon   = 0x00000002
	echo     = 0x00000008
	vmin     = 6
	vtime    = 5
	ixonFlag = 0x00000400
)

var (
	reqTCGETS2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(termios2{}))
	reqTCSETS2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(termios2{}))
)

// serialFacade is the real-hardware Transport Facade backend: it opens a
// TTY device node, programs raw mode and the requested baud rate via the
// termios2 ioctls, and performs single-byte blocking reads/writes. Adapted
// from Daedaluz-goserial's port_linux.go (same ioctl requests, same
// open/configure sequence), trimmed to exactly what the Transport Facade
// needs: one blocking byte in, one blocking byte out.
type serialFacade struct {
	fd int
}

// NewSerial opens devicePath (e.g. "/dev/ttyUSB0") and configures it as an
// 8N1 raw serial line at baud.
func NewSerial(devicePath string, baud uint32) (Facade, error) {
	fd, err := unix.Open(devicePath, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", devicePath, err)
	}

	var t termios2
	if err := ioctl.Ioctl(uintptr(fd), reqTCGETS2, uintptr(unsafe.Pointer(&t))); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: TCGETS2: %w", err)
	}

	t.Iflag &^= icrnl | ixonFlag
	t.Oflag &^= opost
	t.Lflag &^= isig | icanon | echo
	t.Cflag &^= cBaud | 0x00000030 | 0x00000040 | 0x00000100 // clear baud, character-size, two-stop-bit and parity bits
	t.Cflag |= cBaudEx | cs8 | cRead | clocal
	t.Cc[vmin] = 1
	t.Cc[vtime] = 0
	t.ISpeed = baud
	t.OSpeed = baud

	if err := ioctl.Ioctl(uintptr(fd), reqTCSETS2, uintptr(unsafe.Pointer(&t))); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: TCSETS2: %w", err)
	}

	return &serialFacade{fd: fd}, nil
}

func (s *serialFacade) PutByte(b byte) error {
	buf := [1]byte{b}
	for {
		n, err := unix.Write(s.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}
	}
}

func (s *serialFacade) GetByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := unix.Read(s.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return buf[0] & 0xff, nil
		}
	}
}

// Close releases the underlying file descriptor.
func (s *serialFacade) Close() error {
	return unix.Close(s.fd)
}
