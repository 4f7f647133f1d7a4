package rtmp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	acks       []uint32
	needAcks   []uint32
	pings      []uint32
	windows    []uint32
	bandwidths []uint32
	limits     []uint8
	connected  bool
	streamIDs  []uint32
	published  bool
	errs       []error
}

func (l *recordingListener) onAck(sequenceNumber uint32)  { l.acks = append(l.acks, sequenceNumber) }
func (l *recordingListener) onNeedAck(total uint32)       { l.needAcks = append(l.needAcks, total) }
func (l *recordingListener) onPingRequest(ts uint32)      { l.pings = append(l.pings, ts) }
func (l *recordingListener) onSetWindowAckSize(s uint32)  { l.windows = append(l.windows, s) }
func (l *recordingListener) onConnectSuccess()            { l.connected = true }
func (l *recordingListener) onStreamCreated(id uint32)    { l.streamIDs = append(l.streamIDs, id) }
func (l *recordingListener) onPublishStart()              { l.published = true }
func (l *recordingListener) onReaderError(err error)      { l.errs = append(l.errs, err) }
func (l *recordingListener) onSetPeerBandwidth(s uint32, limit uint8) {
	l.bandwidths = append(l.bandwidths, s)
	l.limits = append(l.limits, limit)
}

func newTestReader(listener *recordingListener, messages ...[]byte) *reader {
	var buf bytes.Buffer
	for _, m := range messages {
		buf.Write(m)
	}
	return newReader(bufio.NewReader(&buf), listener, nil)
}

func serverCommand(csid uint8, values ...interface{}) []byte {
	fields := make([][]byte, len(values))
	for i, v := range values {
		fields[i] = mustEncode(v)
	}
	return amf0Message(CommandMessageAMF0, csid, 0, fields)
}

func pingRequestMessage(timestamp uint32) []byte {
	header, _ := type0Header(ProtocolChannel, 0, 6, UserControlMessage, 0)
	message := append(header, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint16(message[chunkType0HeaderLength:], EventPingRequest)
	binary.BigEndian.PutUint32(message[chunkType0HeaderLength+2:], timestamp)
	return message
}

func setPeerBandwidthMessage(size uint32, limit uint8) []byte {
	header, _ := type0Header(ProtocolChannel, 0, 5, SetPeerBandwidth, 0)
	message := append(header, 0, 0, 0, 0, limit)
	binary.BigEndian.PutUint32(message[chunkType0HeaderLength:chunkType0HeaderLength+4], size)
	return message
}

func TestReaderDispatchesControlMessages(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener,
		generateAckMessage(4242),
		generateWindowAckSizeMessage(5000000),
		setPeerBandwidthMessage(2500000, LimitDynamic),
		pingRequestMessage(99),
	)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.readMessage())
	}
	assert.Equal(t, []uint32{4242}, listener.acks)
	assert.Equal(t, []uint32{5000000}, listener.windows)
	assert.Equal(t, []uint32{2500000}, listener.bandwidths)
	assert.Equal(t, []uint8{LimitDynamic}, listener.limits)
	assert.Equal(t, []uint32{99}, listener.pings)
	assert.Equal(t, uint32(5000000), r.ackWindowIn)
}

func TestReaderConnectSuccess(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(CommandChannel,
		"_result", 1, nil, map[string]interface{}{"code": NetConnectionConnectSuccess}))

	require.NoError(t, r.readMessage())
	assert.True(t, listener.connected)
}

func TestReaderConnectRejected(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(CommandChannel,
		"_result", 1, nil, map[string]interface{}{
			"code":        "NetConnection.Connect.Rejected",
			"description": "no such app",
		}))

	err := r.readMessage()
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "NetConnection.Connect.Rejected", serverErr.Code)
	assert.Equal(t, "no such app", serverErr.Description)
	assert.False(t, listener.connected)
}

func TestReaderStreamCreated(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(CommandChannel, "_result", 10, nil, 7))

	require.NoError(t, r.readMessage())
	assert.Equal(t, []uint32{7}, listener.streamIDs)
}

func TestReaderPublishStart(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(StreamCommandChannel,
		"onStatus", 0, nil, map[string]interface{}{"code": NetStreamPublishStart}))

	require.NoError(t, r.readMessage())
	assert.True(t, listener.published)
}

func TestReaderPublishRefused(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(StreamCommandChannel,
		"onStatus", 0, nil, map[string]interface{}{"code": "NetStream.Publish.BadName"}))

	var serverErr *ServerError
	require.True(t, errors.As(r.readMessage(), &serverErr))
	assert.Equal(t, "NetStream.Publish.BadName", serverErr.Code)
}

func TestReaderOnStatusWithoutCode(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(StreamCommandChannel,
		"onStatus", 0, nil, map[string]interface{}{"level": "status"}))

	assert.True(t, errors.Is(r.readMessage(), ErrBadFraming))
}

func TestReaderErrorCommand(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(CommandChannel,
		"_error", 1, nil, map[string]interface{}{"code": "NetConnection.Call.Failed"}))

	var serverErr *ServerError
	require.True(t, errors.As(r.readMessage(), &serverErr))
	assert.Equal(t, "NetConnection.Call.Failed", serverErr.Code)
}

func TestReaderIgnoresUnknownCommands(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, serverCommand(CommandChannel, "onBWDone", 0, nil))
	require.NoError(t, r.readMessage())
}

func TestReaderRejectsUnknownBasicHeader(t *testing.T) {
	listener := &recordingListener{}
	message := generateAckMessage(1)
	message[0] = 0x48 // type-1 header on the audio channel

	r := newTestReader(listener, message)
	assert.True(t, errors.Is(r.readMessage(), ErrBadFraming))
}

// rechunk splits a single-chunk message into chunkSize-sized chunks separated
// by type-3 continuation bytes, the way a server with a small outbound chunk
// size would frame it.
func rechunk(t *testing.T, message []byte, chunkSize int, csid uint8) []byte {
	t.Helper()
	continuation, err := type3Header(csid)
	require.NoError(t, err)

	body := message[chunkType0HeaderLength:]
	out := append([]byte{}, message[:chunkType0HeaderLength]...)
	for offset := 0; offset < len(body); offset += chunkSize {
		if offset > 0 {
			out = append(out, continuation)
		}
		end := offset + chunkSize
		if end > len(body) {
			end = len(body)
		}
		out = append(out, body[offset:end]...)
	}
	return out
}

func TestReaderReassemblesChunkedMessage(t *testing.T) {
	listener := &recordingListener{}
	result := serverCommand(CommandChannel, "_result", 10, nil, 3)

	r := newTestReader(listener,
		generateSetChunkSizeMessage(8),
		rechunk(t, result, 8, CommandChannel),
	)

	require.NoError(t, r.readMessage())
	assert.Equal(t, uint32(8), r.chunkSizeIn)
	require.NoError(t, r.readMessage())
	assert.Equal(t, []uint32{3}, listener.streamIDs)
}

func TestReaderRejectsBadContinuationByte(t *testing.T) {
	listener := &recordingListener{}
	result := serverCommand(CommandChannel, "_result", 10, nil, 3)
	framed := rechunk(t, result, 8, CommandChannel)
	framed[chunkType0HeaderLength+8] = 0x03 // type-0 where a type-3 belongs

	r := newTestReader(listener, generateSetChunkSizeMessage(8), framed)
	require.NoError(t, r.readMessage())
	assert.True(t, errors.Is(r.readMessage(), ErrBadFraming))
}

func TestReaderRequestsAckWhenWindowFills(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener,
		generateWindowAckSizeMessage(20),
		generateAckMessage(1),
	)

	// 16 bytes for the window message, 16 more for the ack: the second read
	// crosses the 20-byte window.
	require.NoError(t, r.readMessage())
	require.Empty(t, listener.needAcks)
	require.NoError(t, r.readMessage())
	assert.Equal(t, []uint32{32}, listener.needAcks)
	assert.Equal(t, uint32(0), r.bytesReadSinceAck)
}

func TestReaderRunReportsClosedTransport(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener, generateAckMessage(1))

	r.run()
	require.Len(t, listener.errs, 1)
	assert.True(t, errors.Is(listener.errs[0], ErrTransportClosed))
	assert.Equal(t, []uint32{1}, listener.acks)
}

func TestReaderRunSilentAfterStop(t *testing.T) {
	listener := &recordingListener{}
	r := newTestReader(listener)

	r.stop()
	r.run()
	assert.Empty(t, listener.errs)
}
