package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/livepush/rtmp/rand"
)

const RtmpVersion3 = 3

const (
	handshakePacketLength = 1536
	handshakeRandomLength = handshakePacketLength - 8
)

// clientHandshake performs the RTMP-3 simple handshake from the client side:
// C0 and C1 go out as one send, then S0 is validated, S1 is echoed back as
// C2 with the elapsed time stamped into its first four bytes, and S2 is read
// and discarded. S2 is not validated against C1: servers in the wild echo
// freely and the bytes carry no further meaning for a publisher.
type clientHandshake struct {
	conn   *timeoutConn
	reader *bufio.Reader
	clock  Clock

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

func (h *clientHandshake) do() error {
	start := h.clock.NowMillis()
	if err := h.sendC0C1(start); err != nil {
		return err
	}
	s1, err := h.readS0S1()
	if err != nil {
		return err
	}
	if err := h.sendC2(s1, start); err != nil {
		return err
	}
	return h.readS2()
}

// sendC0C1 writes the version byte and the 1536-byte C1 packet in a single
// send: 4 bytes of local time big-endian, 4 zero bytes, 1528 random bytes.
func (h *clientHandshake) sendC0C1(start int64) error {
	var c0c1 [1 + handshakePacketLength]byte
	c0c1[0] = RtmpVersion3
	binary.BigEndian.PutUint32(c0c1[1:5], uint32(start))
	if err := rand.GenerateCryptoSafeRandomData(c0c1[9:]); err != nil {
		return errors.Wrap(err, "generating C1 random data")
	}
	if err := h.conn.Write(c0c1[:], h.writeTimeout); err != nil {
		return errors.Wrap(err, "sending C0C1")
	}
	return nil
}

func (h *clientHandshake) readS0S1() ([]byte, error) {
	var s0s1 [1 + handshakePacketLength]byte
	if err := h.read(s0s1[:]); err != nil {
		return nil, errors.Wrap(err, "reading S0S1")
	}
	if s0s1[0] != RtmpVersion3 {
		return nil, errors.Wrapf(ErrUnsupportedRTMPVersion, "server version %d", s0s1[0])
	}
	return s0s1[1:], nil
}

// sendC2 echoes S1 with the first four bytes replaced by the time elapsed
// since the handshake started.
func (h *clientHandshake) sendC2(s1 []byte, start int64) error {
	var c2 [handshakePacketLength]byte
	copy(c2[:], s1)
	binary.BigEndian.PutUint32(c2[:4], uint32(h.clock.NowMillis()-start))
	if err := h.conn.Write(c2[:], h.writeTimeout); err != nil {
		return errors.Wrap(err, "sending C2")
	}
	return nil
}

func (h *clientHandshake) readS2() error {
	var s2 [handshakePacketLength]byte
	if err := h.read(s2[:]); err != nil {
		return errors.Wrap(err, "reading S2")
	}
	return nil
}

// read fills b, bounding the wait with the handshake timeout. The deadline
// is cleared afterwards so steady-state reads block indefinitely.
func (h *clientHandshake) read(b []byte) error {
	if h.handshakeTimeout > 0 {
		if err := h.conn.setReadDeadline(time.Now().Add(h.handshakeTimeout)); err != nil {
			return err
		}
		defer h.conn.setReadDeadline(time.Time{})
	}
	if _, err := io.ReadFull(h.reader, b); err != nil {
		if isTimeout(err) {
			return ErrHandshakeTimeout
		}
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	type timeout interface {
		Timeout() bool
	}
	t, ok := errors.Cause(err).(timeout)
	return ok && t.Timeout()
}
