package amf0

import (
	"github.com/pkg/errors"
)

// ECMAArray is an AMF0 associative array. It encodes like an object with a
// 4-byte associative count prepended.
type ECMAArray map[string]interface{}

const (
	TypeNumber    byte = 0x00
	TypeBoolean        = 0x01
	TypeString         = 0x02
	TypeObject         = 0x03
	TypeMovieClip      = 0x04 // reserved, not supported
	TypeNull           = 0x05
	TypeUndefined      = 0x06
	TypeReference      = 0x07
	TypeECMAArray      = 0x08
	TypeObjectEnd      = 0x09
)

var (
	// ErrKindMismatch is returned when the marker byte does not match the
	// kind the caller asked to decode.
	ErrKindMismatch = errors.New("amf0: marker mismatch")
	// ErrShortBuffer is returned when a value claims more bytes than the
	// buffer holds.
	ErrShortBuffer = errors.New("amf0: truncated value")
)
