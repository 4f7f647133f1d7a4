package video

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type FrameType uint8

const (
	KeyFrame             FrameType = 1
	InterFrame           FrameType = 2
	DisposableInterFrame FrameType = 3
	GeneratedKeyFrame    FrameType = 4
	// Video info/command frame
	CommandFrame FrameType = 5
)

type Codec uint8

const (
	SorensonH263    Codec = 2
	ScreenVideo     Codec = 3
	VP6             Codec = 4
	VP6AlphaChannel Codec = 5
	ScreenVideoV2   Codec = 6
	H264            Codec = 7
)

type AVCPacketType uint8

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNALU           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

// TagByte packs the leading VIDEODATA byte: frame type in the top nibble,
// codec id in the bottom.
func TagByte(frame FrameType, codec Codec) byte {
	return byte(frame)<<4 | byte(codec)&0x0F
}

// H264TagByte returns 0x17 for keyframes and 0x27 for inter frames.
func H264TagByte(keyframe bool) byte {
	if keyframe {
		return TagByte(KeyFrame, H264)
	}
	return TagByte(InterFrame, H264)
}
