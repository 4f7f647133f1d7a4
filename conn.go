package rtmp

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxWriteTimeout caps writes when no write timeout is configured, so a
// stalled peer can never hold the writer forever.
const maxWriteTimeout = 60 * time.Second

type writeRequest struct {
	data []byte
	done chan error
}

// timeoutConn wraps a net.Conn with a dedicated writer goroutine so callers
// can impose a wall-clock deadline on each write: either the bytes are fully
// handed to the OS before the deadline, or the write fails with
// ErrWriteTimeout. Reads block on the underlying socket. Closing the
// connection unblocks both sides.
type timeoutConn struct {
	conn   net.Conn
	logger *zap.Logger

	writes chan writeRequest
	closed chan struct{}
	once   sync.Once
}

// dialTimeout opens a TCP connection to addr, failing if the connection is
// not established within timeout.
func dialTimeout(addr string, timeout time.Duration, logger *zap.Logger) (*timeoutConn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	return newTimeoutConn(conn, logger), nil
}

func newTimeoutConn(conn net.Conn, logger *zap.Logger) *timeoutConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &timeoutConn{
		conn:   conn,
		logger: logger,
		writes: make(chan writeRequest),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *timeoutConn) writeLoop() {
	for {
		select {
		case req := <-c.writes:
			_, err := c.conn.Write(req.data)
			req.done <- err
		case <-c.closed:
			return
		}
	}
}

// Write hands data to the writer goroutine and waits for it to reach the OS.
// A timeout of zero or less falls back to the 60-second safety cap.
func (c *timeoutConn) Write(data []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = maxWriteTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	req := writeRequest{data: data, done: make(chan error, 1)}
	select {
	case c.writes <- req:
	case <-timer.C:
		return errors.Wrapf(ErrWriteTimeout, "enqueueing %d bytes", len(data))
	case <-c.closed:
		return ErrTransportClosed
	}

	select {
	case err := <-req.done:
		if err != nil {
			return errors.Wrap(err, "socket write")
		}
		return nil
	case <-timer.C:
		return errors.Wrapf(ErrWriteTimeout, "writing %d bytes", len(data))
	case <-c.closed:
		return ErrTransportClosed
	}
}

// Read blocks on the underlying socket. It exists so the connection can back
// a bufio.Reader.
func (c *timeoutConn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// setReadDeadline bounds blocking reads. A zero deadline removes the bound.
// Only the handshake uses this; steady-state reads block indefinitely.
func (c *timeoutConn) setReadDeadline(deadline time.Time) error {
	return c.conn.SetReadDeadline(deadline)
}

// Close shuts the socket down and cancels any blocked writer. It is safe to
// call more than once.
func (c *timeoutConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
