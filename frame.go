package rtmp

import "time"

// Clock supplies the monotonic milliseconds RTMP timestamps are derived
// from. Media frame timestamps and the handshake epoch must come from the
// same clock so deltas stay non-negative.
type Clock interface {
	NowMillis() int64
}

// NewSystemClock returns a Clock that reports milliseconds elapsed since its
// creation.
func NewSystemClock() Clock {
	return &systemClock{epoch: time.Now()}
}

type systemClock struct {
	epoch time.Time
}

func (c *systemClock) NowMillis() int64 {
	return time.Since(c.epoch).Milliseconds()
}

// VideoFrame is one H.264 frame. Header frames carry the Annex-B SPS/PPS
// configuration instead of picture data.
type VideoFrame struct {
	// Header marks the SPS/PPS configuration buffer that precedes the first
	// picture.
	Header bool
	// Keyframe marks an IDR frame. Ignored for header frames.
	Keyframe bool
	// Timestamp in milliseconds from the session Clock.
	Timestamp int64
	Payload   []byte
}

// AudioFrame is one raw AAC frame.
type AudioFrame struct {
	// Timestamp in milliseconds from the session Clock.
	Timestamp int64
	Payload   []byte
}

// AudioHeader describes the AAC stream. Config holds the raw
// AudioSpecificConfig bytes sent as the AAC sequence header.
type AudioHeader struct {
	Stereo          bool
	SampleRateIndex uint8
	Config          []byte
}

// DataFrame carries the stream properties announced to the server with
// @setDataFrame before media starts flowing.
type DataFrame struct {
	Width           int32
	Height          int32
	Framerate       int32
	AudioSampleRate int32
	VideoCodecID    int32
	AudioCodecID    int32
}

func (df DataFrame) metadata() map[string]interface{} {
	return map[string]interface{}{
		"width":           float64(df.Width),
		"height":          float64(df.Height),
		"framerate":       float64(df.Framerate),
		"audiosamplerate": float64(df.AudioSampleRate),
		"videocodecid":    float64(df.VideoCodecID),
		"audiocodecid":    float64(df.AudioCodecID),
	}
}

// ConnectionListener receives the session lifecycle callbacks. Callbacks are
// invoked from the reader goroutine and must not block.
type ConnectionListener interface {
	// OnConnected fires when the server accepts the connect command.
	OnConnected()
	// OnReadyToPublish fires when the server confirms the publish command;
	// media may be posted from this point on.
	OnReadyToPublish()
	// OnConnectionError fires when the session is torn down by an error.
	OnConnectionError(err error)
}
