package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/livepush/rtmp/amf/amf0"
	"github.com/livepush/rtmp/config"
	"github.com/livepush/rtmp/metrics"
)

// defaultInboundChunkSize is the chunk size a peer uses until it announces
// another one with a Set Chunk Size message.
const defaultInboundChunkSize = 128

// readerListener receives the events the reader extracts from the server's
// message stream. Callbacks run on the reader goroutine and must not block.
type readerListener interface {
	onAck(sequenceNumber uint32)
	onNeedAck(bytesReadTotal uint32)
	onPingRequest(timestamp uint32)
	onSetWindowAckSize(size uint32)
	onSetPeerBandwidth(size uint32, limitType uint8)
	onConnectSuccess()
	onStreamCreated(streamID uint32)
	onPublishStart()
	onReaderError(err error)
}

// reader consumes the server's chunk stream on its own goroutine, reassembles
// messages and dispatches them to the listener. A server talking to a
// publisher only sends on the protocol and command channels and always leads
// with a type-0 header, so any other basic header byte fails the session.
type reader struct {
	src      *bufio.Reader
	listener readerListener
	logger   *zap.Logger

	chunkSizeIn uint32
	ackWindowIn uint32

	bytesReadTotal    uint32
	bytesReadSinceAck uint32

	closing int32
	scratch []byte
}

func newReader(src *bufio.Reader, listener readerListener, logger *zap.Logger) *reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reader{
		src:         src,
		listener:    listener,
		logger:      logger,
		chunkSizeIn: defaultInboundChunkSize,
	}
}

// stop marks the reader as closing so the read error caused by tearing the
// connection down is not reported as a session failure.
func (r *reader) stop() {
	atomic.StoreInt32(&r.closing, 1)
}

// run loops until the connection dies or a message violates the protocol.
func (r *reader) run() {
	for {
		if err := r.readMessage(); err != nil {
			if atomic.LoadInt32(&r.closing) == 1 {
				return
			}
			cause := errors.Cause(err)
			if cause == io.EOF || cause == io.ErrUnexpectedEOF {
				err = errors.Wrap(ErrTransportClosed, "server closed the connection")
			}
			r.listener.onReaderError(err)
			return
		}
	}
}

// readMessage reads one complete message: a type-0 header followed by the
// payload, with a type-3 continuation byte every chunkSizeIn payload bytes.
func (r *reader) readMessage() error {
	var headerBytes [chunkType0HeaderLength]byte
	if _, err := io.ReadFull(r.src, headerBytes[:]); err != nil {
		return errors.Wrap(err, "reading chunk header")
	}

	switch headerBytes[0] {
	case ProtocolChannel, CommandChannel, StreamCommandChannel:
	default:
		return errors.Wrapf(ErrBadFraming, "unexpected basic header byte 0x%02x", headerBytes[0])
	}

	header := parseChunkHeader(headerBytes[:])
	payload, err := r.readPayload(header)
	if err != nil {
		return err
	}

	r.account(header.messageLength)
	return r.dispatch(header, payload)
}

// readPayload reassembles the message body across chunk boundaries. The
// scratch buffer is reused between messages; dispatch must consume the slice
// before the next readMessage call.
func (r *reader) readPayload(header ChunkHeader) ([]byte, error) {
	length := int(header.messageLength)
	if cap(r.scratch) < length {
		r.scratch = make([]byte, length)
	}
	payload := r.scratch[:length]

	continuation, err := type3Header(header.chunkStreamID)
	if err != nil {
		return nil, err
	}

	chunkSize := int(r.chunkSizeIn)
	for offset := 0; offset < length; offset += chunkSize {
		if offset > 0 {
			b, err := r.src.ReadByte()
			if err != nil {
				return nil, errors.Wrap(err, "reading continuation header")
			}
			if b != continuation {
				return nil, errors.Wrapf(ErrBadFraming, "continuation byte 0x%02x on chunk stream %d", b, header.chunkStreamID)
			}
		}
		end := offset + chunkSize
		if end > length {
			end = length
		}
		if _, err := io.ReadFull(r.src, payload[offset:end]); err != nil {
			return nil, errors.Wrap(err, "reading message payload")
		}
	}
	return payload, nil
}

// account tracks inbound bytes and asks the session to acknowledge once the
// server's ack window fills up.
func (r *reader) account(messageLength uint32) {
	read := messageLength + chunkType0HeaderLength
	r.bytesReadTotal += read
	r.bytesReadSinceAck += read
	metrics.BytesRead.Add(float64(read))

	if r.ackWindowIn > 0 && r.bytesReadSinceAck >= r.ackWindowIn {
		r.bytesReadSinceAck = 0
		r.listener.onNeedAck(r.bytesReadTotal)
	}
}

func (r *reader) dispatch(header ChunkHeader, payload []byte) error {
	switch header.messageType {
	case SetChunkSize:
		if len(payload) < 4 {
			return errors.Wrap(ErrBadFraming, "short Set Chunk Size body")
		}
		size := binary.BigEndian.Uint32(payload)
		r.logger.Debug("inbound chunk size changed", zap.Uint32("size", size))
		r.chunkSizeIn = size
	case AbortMessage:
		// A publisher never has a partially received message to abandon.
	case Acknowledgement:
		if len(payload) < 4 {
			return errors.Wrap(ErrBadFraming, "short Acknowledgement body")
		}
		metrics.AcksReceived.Inc()
		r.listener.onAck(binary.BigEndian.Uint32(payload))
	case WindowAcknowledgementSize:
		if len(payload) < 4 {
			return errors.Wrap(ErrBadFraming, "short Window Acknowledgement Size body")
		}
		size := binary.BigEndian.Uint32(payload)
		r.ackWindowIn = size
		r.listener.onSetWindowAckSize(size)
	case SetPeerBandwidth:
		if len(payload) < 5 {
			return errors.Wrap(ErrBadFraming, "short Set Peer Bandwidth body")
		}
		r.listener.onSetPeerBandwidth(binary.BigEndian.Uint32(payload), payload[4])
	case UserControlMessage:
		return r.dispatchUserControl(payload)
	case CommandMessageAMF0:
		return r.dispatchCommand(payload)
	default:
		r.logger.Debug("ignoring message", zap.Uint8("type", uint8(header.messageType)))
	}
	return nil
}

func (r *reader) dispatchUserControl(payload []byte) error {
	if len(payload) < 2 {
		return errors.Wrap(ErrBadFraming, "short user control body")
	}
	event := binary.BigEndian.Uint16(payload)
	switch event {
	case EventPingRequest:
		if len(payload) < 6 {
			return errors.Wrap(ErrBadFraming, "short ping request body")
		}
		r.listener.onPingRequest(binary.BigEndian.Uint32(payload[2:]))
	default:
		// Stream Begin and friends carry nothing a publisher acts on.
		r.logger.Debug("ignoring user control event", zap.Uint16("event", event))
	}
	return nil
}

// dispatchCommand decodes the AMF0 command body and routes the results of
// connect, createStream and publish by transaction ID.
func (r *reader) dispatchCommand(payload []byte) error {
	fields, err := decodeAMFFields(payload)
	if err != nil {
		return errors.Wrap(err, "decoding command body")
	}
	if len(fields) < 2 {
		return errors.Wrap(ErrBadFraming, "command with fewer than two fields")
	}
	name, ok := fields[0].(string)
	if !ok {
		return errors.Wrap(ErrBadFraming, "command name is not a string")
	}
	transactionID, ok := fields[1].(float64)
	if !ok {
		return errors.Wrap(ErrBadFraming, "transaction ID is not a number")
	}

	switch name {
	case "_result":
		return r.handleResult(transactionID, fields)
	case "_error":
		return errors.WithStack(serverErrorFromInfo(commandInfo(fields)))
	case "onStatus":
		return r.handleOnStatus(transactionID, fields)
	default:
		r.logger.Debug("ignoring command", zap.String("command", name))
	}
	return nil
}

func (r *reader) handleResult(transactionID float64, fields []interface{}) error {
	switch transactionID {
	case config.ConnectTransactionID:
		info := commandInfo(fields)
		code, _ := info["code"].(string)
		if code != NetConnectionConnectSuccess {
			return errors.WithStack(serverErrorFromInfo(info))
		}
		r.listener.onConnectSuccess()
	case config.CreateStreamTransactionID:
		if len(fields) < 4 {
			return errors.Wrap(ErrBadFraming, "createStream result without a stream ID")
		}
		streamID, ok := fields[3].(float64)
		if !ok {
			return errors.Wrap(ErrBadFraming, "createStream result stream ID is not a number")
		}
		r.listener.onStreamCreated(uint32(streamID))
	default:
		r.logger.Debug("ignoring result", zap.Float64("transactionID", transactionID))
	}
	return nil
}

// handleOnStatus accepts only the publish confirmation. Any other status, and
// any status missing its code, ends the session.
func (r *reader) handleOnStatus(transactionID float64, fields []interface{}) error {
	if transactionID != config.PublishTransactionID {
		return errors.Wrapf(ErrBadFraming, "onStatus with transaction ID %v", transactionID)
	}
	info := commandInfo(fields)
	code, ok := info["code"].(string)
	if !ok {
		return errors.Wrap(ErrBadFraming, "onStatus without a code")
	}
	if code != NetStreamPublishStart {
		return errors.WithStack(serverErrorFromInfo(info))
	}
	r.listener.onPublishStart()
	return nil
}

// commandInfo returns the last object field of a command, which is where
// results and statuses carry their code and description.
func commandInfo(fields []interface{}) map[string]interface{} {
	for i := len(fields) - 1; i >= 2; i-- {
		if m, ok := fields[i].(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func serverErrorFromInfo(info map[string]interface{}) *ServerError {
	e := &ServerError{}
	e.Code, _ = info["code"].(string)
	e.Description, _ = info["description"].(string)
	return e
}

func decodeAMFFields(body []byte) ([]interface{}, error) {
	var fields []interface{}
	for len(body) > 0 {
		v, n, err := amf0.Decode(body)
		if err != nil {
			return nil, err
		}
		fields = append(fields, v)
		body = body[n:]
	}
	return fields, nil
}
