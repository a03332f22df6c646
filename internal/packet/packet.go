// Package packet implements the RSP packet framing layer: receive/send,
// checksum verification, the ACK/NAK handshake, and the deprecated
// sequence-id prefix. See spec.md §4.D for the wire-level contract this
// package guarantees byte-for-byte.
package packet

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ochibox/x86gdbstub/internal/hexcodec"
	"github.com/ochibox/x86gdbstub/internal/transport"
)

// BufMax is the size of each fixed packet buffer: at least twice the
// register payload plus command overhead (spec.md §3).
const BufMax = 400

const (
	startByte    = '$'
	endByte      = '#'
	ackByte      = '+'
	nakByte      = '-'
	seqSeparator = ':'
)

// Stats counts protocol-level retries, purely for observability — it never
// caps or otherwise changes the unbounded retry behavior spec.md §4.D
// requires.
type Stats struct {
	NAKsSent         int
	SendRetransmits  int
	SequencedPackets int
}

// Layer is the packet framing layer bound to one Transport Facade. Buffers
// are owned by the Layer instance (process-global in the original stub,
// since trap handlers cannot receive parameters; here they are fields on
// the one Layer the engine holds for the life of a session).
type Layer struct {
	t       transport.Facade
	logger  *log.Logger
	inbound [BufMax]byte
	Stats   Stats
}

// New binds a packet Layer to a Transport Facade.
func New(t transport.Facade, logger *log.Logger) *Layer {
	return &Layer{t: t, logger: logger}
}

// Receive blocks until a well-formed, checksum-valid packet body has been
// read, handling NAK/retransmit and the "$" mid-body restart internally.
// The returned slice aliases the Layer's inbound buffer and is only valid
// until the next call to Receive. A non-nil error indicates the transport
// itself failed (e.g. the connection closed); it is never returned for a
// checksum mismatch, which is recovered locally per spec.md §4.D.
func (l *Layer) Receive() ([]byte, error) {
restart:
	// Step 1: discard bytes until '$'.
	for {
		b, err := l.t.GetByte()
		if err != nil {
			return nil, err
		}
		if b == startByte {
			break
		}
	}

	// Steps 2-3: accumulate body bytes, restarting on a stray '$'.
	n := 0
	sum := byte(0)
	for {
		b, err := l.t.GetByte()
		if err != nil {
			return nil, err
		}
		if b == startByte {
			n, sum = 0, 0
			continue
		}
		if b == endByte {
			break
		}
		if n >= BufMax {
			// Buffer full without a terminator: treat like a checksum
			// failure and ask the host to resend.
			if err := l.nak(); err != nil {
				return nil, err
			}
			goto restart
		}
		l.inbound[n] = b
		sum += b
		n++
	}

	// Step 4: read the two-hex-digit claimed checksum.
	hi, err := l.t.GetByte()
	if err != nil {
		return nil, err
	}
	lo, err := l.t.GetByte()
	if err != nil {
		return nil, err
	}
	hiN, loN := hexcodec.NibbleOf(hi), hexcodec.NibbleOf(lo)
	claimed := byte(0)
	if hiN >= 0 && loN >= 0 {
		claimed = byte(hiN<<4 | loN)
	} else {
		claimed = sum + 1 // guaranteed mismatch on malformed checksum digits
	}

	// Step 5: verify, NAK and restart on mismatch.
	if claimed != sum {
		if l.logger != nil {
			l.logger.Debug("packet checksum mismatch", "want", fmt.Sprintf("%02x", sum), "got", fmt.Sprintf("%02x", claimed))
		}
		if err := l.nak(); err != nil {
			return nil, err
		}
		goto restart
	}

	// Step 6: ACK.
	if err := l.t.PutByte(ackByte); err != nil {
		return nil, err
	}

	body := l.inbound[:n]

	// Step 7: "XX:" sequence-id prefix, deprecated but accepted.
	if n >= 3 && body[2] == seqSeparator {
		l.Stats.SequencedPackets++
		if err := l.t.PutByte(body[0]); err != nil {
			return nil, err
		}
		if err := l.t.PutByte(body[1]); err != nil {
			return nil, err
		}
		return body[3:], nil
	}

	return body, nil
}

func (l *Layer) nak() error {
	l.Stats.NAKsSent++
	return l.t.PutByte(nakByte)
}

// Send frames body as "$"+body+"#"+checksum and retransmits, unbounded,
// until the host ACKs with '+'.
func (l *Layer) Send(body []byte) error {
	checksum := Checksum(body)
	for {
		if err := l.t.PutByte(startByte); err != nil {
			return err
		}
		for _, b := range body {
			if err := l.t.PutByte(b); err != nil {
				return err
			}
		}
		if err := l.t.PutByte(endByte); err != nil {
			return err
		}
		hex := hexcodec.BytesToHex([]byte{checksum}, 1)
		if err := l.t.PutByte(hex[0]); err != nil {
			return err
		}
		if err := l.t.PutByte(hex[1]); err != nil {
			return err
		}

		ack, err := l.t.GetByte()
		if err != nil {
			return err
		}
		if ack == ackByte {
			return nil
		}
		l.Stats.SendRetransmits++
		if l.logger != nil {
			l.logger.Debug("packet retransmit", "ack", ack)
		}
	}
}

// Checksum computes the unsigned 8-bit sum of body bytes modulo 256.
func Checksum(body []byte) byte {
	sum := byte(0)
	for _, b := range body {
		sum += b
	}
	return sum
}
