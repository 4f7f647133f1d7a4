package rtmp

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicHeader(t *testing.T) {
	cases := []struct {
		name      string
		chunkType ChunkType
		csid      uint8
		out       byte
		err       error
	}{
		{"protocol channel type 0", ChunkType0, 2, 0x02, nil},
		{"video channel type 1", ChunkType1, 9, 0x49, nil},
		{"data channel type 3", ChunkType3, 18, 0xD2, nil},
		{"highest valid csid", ChunkType0, 63, 0x3F, nil},
		{"csid too low", ChunkType0, 1, 0, ErrInvalidChunkStreamID},
		{"csid too high", ChunkType0, 64, 0, ErrInvalidChunkStreamID},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := basicHeader(c.chunkType, c.csid)
			if c.err != nil {
				assert.True(t, errors.Is(err, c.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.out, b)
		})
	}
}

func TestType0Header(t *testing.T) {
	header, err := type0Header(2, 0, 4, WindowAcknowledgementSize, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0, 4, 5, 0, 0, 0, 0}, header)

	// Message stream ID is little-endian on the wire.
	header, err = type0Header(9, 100, 9009, VideoMessage, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0, 0, 100, 0, 0x23, 0x31, 9, 1, 0, 0, 0}, header)
}

func TestType1Header(t *testing.T) {
	header, err := type1Header(9, 40, 9009, VideoMessage)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x49, 0, 0, 40, 0, 0x23, 0x31, 9}, header)
}

func TestType2Header(t *testing.T) {
	header, err := type2Header(8, 23)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x88, 0, 0, 23}, header)
}

func TestType3Header(t *testing.T) {
	b, err := type3Header(9)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC9), b)
}

// Timestamps beyond 24 bits are truncated; extended timestamps are not
// written.
func TestType0HeaderTimestampTruncation(t *testing.T) {
	header, err := type0Header(9, 0x01FFFFFE, 1, VideoMessage, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFE}, header[1:4])
}

func TestParseChunkHeaderRoundTrip(t *testing.T) {
	header, err := type0Header(3, 1234, 77, CommandMessageAMF0, 5)
	require.NoError(t, err)

	parsed := parseChunkHeader(header)
	assert.Equal(t, ChunkType0, parsed.chunkType)
	assert.Equal(t, uint8(3), parsed.chunkStreamID)
	assert.Equal(t, uint32(1234), parsed.timestamp)
	assert.Equal(t, uint32(77), parsed.messageLength)
	assert.Equal(t, CommandMessageAMF0, parsed.messageType)
	assert.Equal(t, uint32(5), parsed.messageStreamID)
}
