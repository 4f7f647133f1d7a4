package rtmp

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/livepush/rtmp/audio"
	"github.com/livepush/rtmp/video"
)

// The FLV VIDEODATA/AUDIODATA envelopes wrapped around raw codec data before
// it goes out as RTMP media messages.

var annexBStartCode = []byte{0, 0, 0, 1}

// splitParameterSets pulls the SPS and PPS NAL units out of an Annex-B
// configuration buffer of the form startcode+SPS+startcode+PPS.
func splitParameterSets(config []byte) (sps, pps []byte, err error) {
	if !bytes.HasPrefix(config, annexBStartCode) {
		return nil, nil, errors.Wrap(ErrInvalidArgument, "configuration does not start with an Annex-B start code")
	}
	rest := config[len(annexBStartCode):]
	i := bytes.Index(rest, annexBStartCode)
	if i < 0 {
		return nil, nil, errors.Wrap(ErrInvalidArgument, "configuration is missing the PPS start code")
	}
	sps = rest[:i]
	pps = rest[i+len(annexBStartCode):]
	if len(sps) < 4 || len(pps) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidArgument, "empty SPS or PPS")
	}
	return sps, pps, nil
}

// avcSequenceHeader builds the VIDEODATA body announcing the H.264
// configuration: tag byte, AVC sequence header marker, zero composition
// time, then an AVCDecoderConfigurationRecord with one SPS and one PPS.
func avcSequenceHeader(config []byte) ([]byte, error) {
	sps, pps, err := splitParameterSets(config)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, 16+len(sps)+len(pps))
	body = append(body,
		video.H264TagByte(true),
		byte(video.AVCSequenceHeader),
		0, 0, 0, // composition time
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // 4-byte NALU lengths
		0xE1,   // one SPS
	)
	body = append16(body, uint16(len(sps)))
	body = append(body, sps...)
	body = append(body, 1) // one PPS
	body = append16(body, uint16(len(pps)))
	body = append(body, pps...)
	return body, nil
}

// avcVideoData builds the VIDEODATA body for one picture: tag byte, NALU
// marker, zero composition time, then the NAL unit with a 4-byte length
// prefix replacing the Annex-B start code the encoder produced.
func avcVideoData(keyframe bool, payload []byte) []byte {
	nalu := bytes.TrimPrefix(payload, annexBStartCode)
	body := make([]byte, 0, 9+len(nalu))
	body = append(body,
		video.H264TagByte(keyframe),
		byte(video.AVCNALU),
		0, 0, 0,
	)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(nalu)))
	body = append(body, length[:]...)
	return append(body, nalu...)
}

// aacSequenceHeader builds the AUDIODATA body carrying the raw
// AudioSpecificConfig.
func aacSequenceHeader(header AudioHeader) []byte {
	body := make([]byte, 0, 2+len(header.Config))
	body = append(body,
		audio.AACTagByte(header.SampleRateIndex, header.Stereo),
		byte(audio.AACSequenceHeader),
	)
	return append(body, header.Config...)
}

// aacAudioData builds the AUDIODATA body for one raw AAC frame.
func aacAudioData(header AudioHeader, payload []byte) []byte {
	body := make([]byte, 0, 2+len(payload))
	body = append(body,
		audio.AACTagByte(header.SampleRateIndex, header.Stereo),
		byte(audio.AACRaw),
	)
	return append(body, payload...)
}

func append16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
