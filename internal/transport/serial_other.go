//go:build !linux

package transport

import (
	"errors"
	"runtime"
)

// NewSerial is only implemented for Linux, where the termios2 ioctls this
// package relies on exist. On other platforms, use NewReadWriter against a
// platform-appropriate io.ReadWriter (e.g. from a third-party serial
// library) instead.
func NewSerial(devicePath string, baud uint32) (Facade, error) {
	return nil, errors.New("transport: NewSerial is not implemented for GOOS=" + runtime.GOOS)
}
