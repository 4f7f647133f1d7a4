package rtmp

import (
	"encoding/binary"

	"github.com/livepush/rtmp/amf/amf0"
	"github.com/livepush/rtmp/config"
)

// The generate* functions serialize complete single-chunk messages, header
// included. Control messages travel on the protocol channel (csid 2) with
// message stream ID 0; command and data messages attached to a publishing
// stream carry that stream's ID.

func generateSetChunkSizeMessage(chunkSize uint32) []byte {
	return controlMessage(SetChunkSize, chunkSize)
}

func generateWindowAckSizeMessage(size uint32) []byte {
	return controlMessage(WindowAcknowledgementSize, size)
}

func generateAckMessage(sequenceNumber uint32) []byte {
	return controlMessage(Acknowledgement, sequenceNumber)
}

// controlMessage builds the shared shape of the 4-byte-body protocol
// messages: a type-0 header on the protocol channel and a 32-bit big-endian
// value.
func controlMessage(messageType MessageType, value uint32) []byte {
	header, _ := type0Header(ProtocolChannel, 0, 4, messageType, 0)
	message := append(header, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(message[chunkType0HeaderLength:], value)
	return message
}

// generatePingResponseMessage builds the user control reply to a ping
// request, echoing the server's timestamp.
func generatePingResponseMessage(timestamp uint32) []byte {
	header, _ := type0Header(ProtocolChannel, 0, 6, UserControlMessage, 0)
	message := append(header, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint16(message[chunkType0HeaderLength:], EventPingResponse)
	binary.BigEndian.PutUint32(message[chunkType0HeaderLength+2:], timestamp)
	return message
}

// generateConnectRequest builds the connect command. tcURL and pageURL are
// included only when non-empty.
func generateConnectRequest(app string, tcURL string, pageURL string) []byte {
	commandObject := map[string]interface{}{
		"app": app,
	}
	if tcURL != "" {
		commandObject["tcUrl"] = tcURL
	}
	if pageURL != "" {
		commandObject["pageUrl"] = pageURL
	}
	return commandMessage(0,
		mustEncode("connect"),
		mustEncode(config.ConnectTransactionID),
		mustEncode(commandObject),
	)
}

func generateCreateStreamRequest() []byte {
	return commandMessage(0,
		mustEncode("createStream"),
		mustEncode(config.CreateStreamTransactionID),
		mustEncode(nil),
	)
}

// generatePublishRequest builds the publish command for a live stream. It is
// sent on the message stream the server assigned in its createStream result.
func generatePublishRequest(playpath string, streamID uint32) []byte {
	return commandMessage(streamID,
		mustEncode("publish"),
		mustEncode(config.PublishTransactionID),
		mustEncode(nil),
		mustEncode(playpath),
		mustEncode("live"),
	)
}

func generateDeleteStreamRequest(streamID uint32) []byte {
	return commandMessage(0,
		mustEncode("deleteStream"),
		mustEncode(config.PublishTransactionID),
		mustEncode(nil),
		mustEncode(float64(streamID)),
	)
}

// generateTextDataMessage wraps free-form text in an onTextData event on the
// data channel.
func generateTextDataMessage(text string, streamID uint32) []byte {
	return dataMessage(streamID,
		mustEncode("onTextData"),
		mustEncode(amf0.ECMAArray{"text": text}),
	)
}

// generateDataFrameMessage announces the stream properties with
// @setDataFrame/onMetaData on the data channel.
func generateDataFrameMessage(df DataFrame, streamID uint32) []byte {
	return dataMessage(streamID,
		mustEncode("@setDataFrame"),
		mustEncode("onMetaData"),
		mustEncode(amf0.ECMAArray(df.metadata())),
	)
}

func commandMessage(streamID uint32, fields ...[]byte) []byte {
	return amf0Message(CommandMessageAMF0, ProtocolChannel, streamID, fields)
}

func dataMessage(streamID uint32, fields ...[]byte) []byte {
	return amf0Message(DataMessageAMF0, DataChannel, streamID, fields)
}

func amf0Message(messageType MessageType, csid uint8, streamID uint32, fields [][]byte) []byte {
	bodyLength := 0
	for _, f := range fields {
		bodyLength += len(f)
	}
	header, _ := type0Header(csid, 0, uint32(bodyLength), messageType, streamID)
	message := make([]byte, 0, len(header)+bodyLength)
	message = append(message, header...)
	for _, f := range fields {
		message = append(message, f...)
	}
	return message
}

// mustEncode panics on unsupported values, which would be a programming
// error: every value passed here is a literal of a supported kind.
func mustEncode(v interface{}) []byte {
	b, err := amf0.Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}
