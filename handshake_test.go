package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) NowMillis() int64 {
	return c.now
}

func newTestHandshake(conn net.Conn, clock Clock) *clientHandshake {
	tc := newTimeoutConn(conn, nil)
	return &clientHandshake{
		conn:             tc,
		reader:           bufio.NewReader(tc),
		clock:            clock,
		handshakeTimeout: time.Second,
		writeTimeout:     time.Second,
	}
}

func TestClientHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clock := &fakeClock{now: 1}
	h := newTestHandshake(client, clock)

	serverDone := make(chan error, 1)
	var c0c1, c2 [1537]byte
	s1 := make([]byte, handshakePacketLength)
	go func() {
		if _, err := io.ReadFull(server, c0c1[:]); err != nil {
			serverDone <- err
			return
		}
		// S0 + S1 + S2: S1 carries a recognizable pattern, S2 echoes C1.
		for i := range s1 {
			s1[i] = byte(i)
		}
		if _, err := server.Write([]byte{RtmpVersion3}); err != nil {
			serverDone <- err
			return
		}
		if _, err := server.Write(s1); err != nil {
			serverDone <- err
			return
		}
		if _, err := io.ReadFull(server, c2[:handshakePacketLength]); err != nil {
			serverDone <- err
			return
		}
		_, err := server.Write(c0c1[1:])
		serverDone <- err
	}()

	require.NoError(t, h.do())
	require.NoError(t, <-serverDone)

	// C0 is the version byte; C1 starts with the clock's timestamp
	// big-endian followed by four zero bytes.
	assert.Equal(t, byte(RtmpVersion3), c0c1[0])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(c0c1[1:5]))
	assert.Equal(t, []byte{0, 0, 0, 0}, c0c1[5:9])

	// C2 echoes S1 except for the elapsed-time prefix.
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(c2[:4]))
	assert.Equal(t, s1[4:], c2[4:handshakePacketLength])
}

func TestClientHandshakeUnsupportedVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := newTestHandshake(client, &fakeClock{})

	go func() {
		var c0c1 [1537]byte
		io.ReadFull(server, c0c1[:])
		reply := make([]byte, 1+handshakePacketLength)
		reply[0] = 0x06
		server.Write(reply)
	}()

	assert.True(t, errors.Is(h.do(), ErrUnsupportedRTMPVersion))
}

func TestClientHandshakeTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	h := newTestHandshake(client, &fakeClock{})
	h.handshakeTimeout = 50 * time.Millisecond

	go func() {
		var c0c1 [1537]byte
		io.ReadFull(server, c0c1[:])
		// Never reply.
	}()

	assert.True(t, errors.Is(h.do(), ErrHandshakeTimeout))
}
