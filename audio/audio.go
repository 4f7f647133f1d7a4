package audio

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type Format uint8

const (
	LinearPCMPlatformEndian Format = 0
	ADPCM                   Format = 1
	MP3                     Format = 2
	LinearPCMLittleEndian   Format = 3
	Nellymoser16KHzMono     Format = 4
	Nellymoser8KHzMono      Format = 5
	Nellymoser              Format = 6
	G711AlawLogPCM          Format = 7
	G711MulawLogPCM         Format = 8
	AAC                     Format = 10
	Speex                   Format = 11
	MP38KHz                 Format = 14
	DeviceSpecificSound     Format = 15
)

type SampleSize uint8

const (
	Size8Bit  SampleSize = 0
	Size16Bit SampleSize = 1
)

type Channel uint8

const (
	Mono   Channel = 0
	Stereo Channel = 1
)

type AACPacketType uint8

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

// TagByte packs the leading AUDIODATA byte: format in the top nibble, then
// 2 bits of sample rate index, 1 bit of sample size, 1 bit of channel.
func TagByte(format Format, rateIndex uint8, size SampleSize, channel Channel) byte {
	return byte(format)<<4 | (rateIndex<<2)&0x0C | (byte(size)<<1)&0x02 | byte(channel)&0x01
}

// AACTagByte packs the AUDIODATA byte for an AAC stream. AAC is always
// carried as 16-bit samples; stereo selects the two-channel flag.
func AACTagByte(rateIndex uint8, stereo bool) byte {
	channel := Mono
	if stereo {
		channel = Stereo
	}
	return TagByte(AAC, rateIndex, Size16Bit, channel)
}
