package rtmp

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBusy is returned when a send is attempted while another send is in
	// progress. The connection allows a single writer at a time.
	ErrBusy = errors.New("rtmp: concurrent send attempt")

	// ErrInvalidState is returned when a public method is called in a state
	// that does not allow it, e.g. PostVideo before publishing started.
	ErrInvalidState = errors.New("rtmp: operation not allowed in current state")

	// ErrWriteTimeout is returned when the transport could not hand the
	// bytes to the OS before the write deadline.
	ErrWriteTimeout = errors.New("rtmp: write timed out")

	// ErrAckTimeout is returned when the server did not acknowledge sent
	// bytes before the ack-wait deadline while the window was exhausted.
	ErrAckTimeout = errors.New("rtmp: timed out waiting for acknowledgement")

	// ErrHandshakeTimeout is returned when the server's handshake reply did
	// not arrive in time.
	ErrHandshakeTimeout = errors.New("rtmp: handshake timed out")

	// ErrUnsupportedRTMPVersion is returned when S0 carries a version other
	// than 3.
	ErrUnsupportedRTMPVersion = errors.New("rtmp: unsupported protocol version")

	// ErrBadFraming is returned when an inbound basic header does not carry
	// one of the chunk stream IDs a publishing peer uses.
	ErrBadFraming = errors.New("rtmp: malformed chunk framing")

	// ErrTransportClosed is returned when the connection was closed while a
	// read or write was in flight.
	ErrTransportClosed = errors.New("rtmp: transport closed")

	// ErrInvalidChunkStreamID is returned for chunk stream IDs outside the
	// one-byte basic header range [2, 63].
	ErrInvalidChunkStreamID = errors.New("rtmp: chunk stream id out of range")

	// ErrInvalidArgument is returned for arguments that fail validation,
	// such as negative timeouts.
	ErrInvalidArgument = errors.New("rtmp: invalid argument")
)

// ServerError is raised when the server rejects a command, either with an
// _error response or with an unsuccessful NetConnection/NetStream status code.
type ServerError struct {
	Code        string
	Description string
}

func (e *ServerError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("rtmp: server returned %s", e.Code)
	}
	return fmt.Sprintf("rtmp: server returned %s: %s", e.Code, e.Description)
}
