package rtmp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livepush/rtmp/amf/amf0"
)

func TestGenerateSetChunkSizeMessage(t *testing.T) {
	message := generateSetChunkSizeMessage(4096)
	require.Len(t, message, 16)

	header := parseChunkHeader(message)
	assert.Equal(t, ChunkType0, header.chunkType)
	assert.Equal(t, ProtocolChannel, header.chunkStreamID)
	assert.Equal(t, SetChunkSize, header.messageType)
	assert.Equal(t, uint32(4), header.messageLength)
	assert.Equal(t, uint32(0), header.messageStreamID)
	assert.Equal(t, uint32(4096), binary.BigEndian.Uint32(message[12:]))
}

func TestGenerateWindowAckSizeMessage(t *testing.T) {
	message := generateWindowAckSizeMessage(5000000)
	require.Len(t, message, 16)
	assert.Equal(t, WindowAcknowledgementSize, parseChunkHeader(message).messageType)
	assert.Equal(t, uint32(5000000), binary.BigEndian.Uint32(message[12:]))
}

func TestGenerateAckMessage(t *testing.T) {
	message := generateAckMessage(123456)
	require.Len(t, message, 16)
	assert.Equal(t, Acknowledgement, parseChunkHeader(message).messageType)
	assert.Equal(t, uint32(123456), binary.BigEndian.Uint32(message[12:]))
}

func TestGeneratePingResponseMessage(t *testing.T) {
	message := generatePingResponseMessage(777)
	require.Len(t, message, 18)

	header := parseChunkHeader(message)
	assert.Equal(t, UserControlMessage, header.messageType)
	assert.Equal(t, uint32(6), header.messageLength)
	assert.Equal(t, EventPingResponse, binary.BigEndian.Uint16(message[12:14]))
	assert.Equal(t, uint32(777), binary.BigEndian.Uint32(message[14:]))
}

// decodeCommandBody walks the AMF0 fields of a serialized command message.
func decodeCommandBody(t *testing.T, message []byte) []interface{} {
	t.Helper()
	body := message[chunkType0HeaderLength:]
	var fields []interface{}
	for len(body) > 0 {
		v, n, err := amf0.Decode(body)
		require.NoError(t, err)
		fields = append(fields, v)
		body = body[n:]
	}
	return fields
}

func TestGenerateConnectRequest(t *testing.T) {
	message := generateConnectRequest("live", "rtmp://host/live", "https://host/page")

	header := parseChunkHeader(message)
	assert.Equal(t, CommandMessageAMF0, header.messageType)
	assert.Equal(t, ProtocolChannel, header.chunkStreamID)
	assert.Equal(t, uint32(0), header.messageStreamID)
	assert.Equal(t, int(header.messageLength), len(message)-chunkType0HeaderLength)

	fields := decodeCommandBody(t, message)
	require.Len(t, fields, 3)
	assert.Equal(t, "connect", fields[0])
	assert.Equal(t, float64(1), fields[1])
	assert.Equal(t, map[string]interface{}{
		"app":     "live",
		"tcUrl":   "rtmp://host/live",
		"pageUrl": "https://host/page",
	}, fields[2])
}

func TestGenerateConnectRequestOmitsEmptyURLs(t *testing.T) {
	fields := decodeCommandBody(t, generateConnectRequest("live", "", ""))
	assert.Equal(t, map[string]interface{}{"app": "live"}, fields[2])
}

func TestGenerateCreateStreamRequest(t *testing.T) {
	fields := decodeCommandBody(t, generateCreateStreamRequest())
	require.Len(t, fields, 3)
	assert.Equal(t, "createStream", fields[0])
	assert.Equal(t, float64(10), fields[1])
	assert.Nil(t, fields[2])
}

func TestGeneratePublishRequest(t *testing.T) {
	message := generatePublishRequest("cam", 1)
	assert.Equal(t, uint32(1), parseChunkHeader(message).messageStreamID)

	fields := decodeCommandBody(t, message)
	require.Len(t, fields, 5)
	assert.Equal(t, "publish", fields[0])
	assert.Equal(t, float64(0), fields[1])
	assert.Nil(t, fields[2])
	assert.Equal(t, "cam", fields[3])
	assert.Equal(t, "live", fields[4])
}

func TestGenerateDeleteStreamRequest(t *testing.T) {
	fields := decodeCommandBody(t, generateDeleteStreamRequest(1))
	require.Len(t, fields, 4)
	assert.Equal(t, "deleteStream", fields[0])
	assert.Equal(t, float64(1), fields[3])
}

func TestGenerateTextDataMessage(t *testing.T) {
	message := generateTextDataMessage("hello", 1)

	header := parseChunkHeader(message)
	assert.Equal(t, DataMessageAMF0, header.messageType)
	assert.Equal(t, DataChannel, header.chunkStreamID)
	assert.Equal(t, uint32(1), header.messageStreamID)

	fields := decodeCommandBody(t, message)
	require.Len(t, fields, 2)
	assert.Equal(t, "onTextData", fields[0])
	assert.Equal(t, amf0.ECMAArray{"text": "hello"}, fields[1])
}

func TestGenerateDataFrameMessage(t *testing.T) {
	df := DataFrame{
		Width: 1280, Height: 720, Framerate: 30,
		AudioSampleRate: 44100, VideoCodecID: 7, AudioCodecID: 10,
	}
	fields := decodeCommandBody(t, generateDataFrameMessage(df, 1))
	require.Len(t, fields, 3)
	assert.Equal(t, "@setDataFrame", fields[0])
	assert.Equal(t, "onMetaData", fields[1])
	assert.Equal(t, amf0.ECMAArray{
		"width":           float64(1280),
		"height":          float64(720),
		"framerate":       float64(30),
		"audiosamplerate": float64(44100),
		"videocodecid":    float64(7),
		"audiocodecid":    float64(10),
	}, fields[2])
}
