package rtmp

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/livepush/rtmp/internal/binary24"
)

type ChunkType uint8

const (
	ChunkType0 ChunkType = iota
	ChunkType1
	ChunkType2
	ChunkType3
)

const (
	chunkBasicHeaderLength        = 1
	chunkType0HeaderLength        = 12
	chunkType1HeaderLength        = 8
	chunkType2HeaderLength        = 4
	chunkType0MessageHeaderLength = 11

	// Chunk stream IDs must fit the one-byte basic header form. The two- and
	// three-byte forms (csid 64+) are not supported.
	minChunkStreamID = 2
	maxChunkStreamID = 63
)

// ChunkHeader contains the information used in order to interpret a chunk
// correctly: the chunk type, the message length, the message timestamp (or
// delta), among other data.
type ChunkHeader struct {
	chunkType     ChunkType
	chunkStreamID uint8
	// Absolute timestamp for type-0 chunks, delta for type-1 and type-2.
	// Values beyond 24 bits are truncated; extended timestamps are not
	// supported.
	timestamp       uint32
	messageLength   uint32
	messageType     MessageType
	messageStreamID uint32
}

// basicHeader packs the 2-bit chunk type and the 6-bit chunk stream ID into
// the single basic header byte.
func basicHeader(chunkType ChunkType, csid uint8) (byte, error) {
	if csid < minChunkStreamID || csid > maxChunkStreamID {
		return 0, errors.Wrapf(ErrInvalidChunkStreamID, "csid %d", csid)
	}
	return byte(chunkType)<<6 | csid&0x3F, nil
}

// type0Header builds a 12-byte chunk header: basic byte, absolute timestamp
// (3 bytes big-endian), message length (3 bytes big-endian), message type,
// and message stream ID (4 bytes little-endian).
func type0Header(csid uint8, timestamp uint32, length uint32, messageType MessageType, messageStreamID uint32) ([]byte, error) {
	b, err := basicHeader(ChunkType0, csid)
	if err != nil {
		return nil, err
	}
	header := make([]byte, chunkType0HeaderLength)
	header[0] = b
	binary24.BigEndian.PutUint24(header[1:4], timestamp&binary24.MaxUint24)
	binary24.BigEndian.PutUint24(header[4:7], length&binary24.MaxUint24)
	header[7] = byte(messageType)
	binary.LittleEndian.PutUint32(header[8:12], messageStreamID)
	return header, nil
}

// type1Header builds an 8-byte chunk header carrying a timestamp delta,
// message length and message type. The message stream ID is inherited from
// the previous chunk on the same chunk stream.
func type1Header(csid uint8, timestampDelta uint32, length uint32, messageType MessageType) ([]byte, error) {
	b, err := basicHeader(ChunkType1, csid)
	if err != nil {
		return nil, err
	}
	header := make([]byte, chunkType1HeaderLength)
	header[0] = b
	binary24.BigEndian.PutUint24(header[1:4], timestampDelta&binary24.MaxUint24)
	binary24.BigEndian.PutUint24(header[4:7], length&binary24.MaxUint24)
	header[7] = byte(messageType)
	return header, nil
}

// type2Header builds a 4-byte chunk header carrying only a timestamp delta.
func type2Header(csid uint8, timestampDelta uint32) ([]byte, error) {
	b, err := basicHeader(ChunkType2, csid)
	if err != nil {
		return nil, err
	}
	header := make([]byte, chunkType2HeaderLength)
	header[0] = b
	binary24.BigEndian.PutUint24(header[1:4], timestampDelta&binary24.MaxUint24)
	return header, nil
}

// type3Header is a bare basic header byte; all message fields continue from
// the previous chunk on the same chunk stream.
func type3Header(csid uint8) (byte, error) {
	return basicHeader(ChunkType3, csid)
}

// parseChunkHeader unpacks a full 12-byte header as written by type0Header.
// b must hold at least chunkType0HeaderLength bytes.
func parseChunkHeader(b []byte) ChunkHeader {
	return ChunkHeader{
		chunkType:       ChunkType(b[0] >> 6),
		chunkStreamID:   b[0] & 0x3F,
		timestamp:       binary24.BigEndian.Uint24(b[1:4]),
		messageLength:   binary24.BigEndian.Uint24(b[4:7]),
		messageType:     MessageType(b[7]),
		messageStreamID: binary.LittleEndian.Uint32(b[8:12]),
	}
}
