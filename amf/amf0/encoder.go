package amf0

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Encode serializes v into its AMF0 representation.
// Supported types: float64, int, bool, string, map[string]interface{}, nil, ECMAArray.
func Encode(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case float64:
		return EncodeNumber(v), nil
	case int:
		return EncodeNumber(float64(v)), nil
	case bool:
		return EncodeBoolean(v), nil
	case string:
		return EncodeString(v), nil
	case map[string]interface{}:
		return EncodeObject(v), nil
	case nil:
		return EncodeNull(), nil
	case ECMAArray:
		return EncodeECMAArray(v), nil
	default:
		return nil, errors.Errorf("amf0: cannot encode type %T", v)
	}
}

func EncodeNumber(number float64) []byte {
	var buf [9]byte
	buf[0] = TypeNumber
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(number))
	return buf[:]
}

func EncodeBoolean(b bool) []byte {
	var buf [2]byte
	buf[0] = TypeBoolean
	if b {
		buf[1] = 1
	}
	return buf[:]
}

// EncodeString serializes s with a 16-bit big-endian length prefix.
// Strings longer than 65535 bytes cannot be represented.
func EncodeString(s string) []byte {
	str := make([]byte, 3+len(s))
	str[0] = TypeString
	binary.BigEndian.PutUint16(str[1:3], uint16(len(s)))
	copy(str[3:], s)
	return str
}

func EncodeNull() []byte {
	return []byte{TypeNull}
}

// EncodeObject serializes m as marker, key/value pairs, end-of-object
// sentinel. Keys carry the 16-bit length prefix but no string marker.
func EncodeObject(m map[string]interface{}) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(TypeObject)
	encodeProperties(buf, m)
	return buf.Bytes()
}

// EncodeECMAArray serializes a as marker, 32-bit associative count,
// key/value pairs, end-of-object sentinel.
func EncodeECMAArray(a ECMAArray) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(TypeECMAArray)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(a)))
	buf.Write(count[:])
	encodeProperties(buf, a)
	return buf.Bytes()
}

func encodeProperties(buf *bytes.Buffer, m map[string]interface{}) {
	for key, val := range m {
		prop := EncodeString(key)
		buf.Write(prop[1:])
		enc, _ := Encode(val)
		buf.Write(enc)
	}
	buf.Write(endOfObject())
}

func endOfObject() []byte {
	return []byte{0x00, 0x00, TypeObjectEnd}
}
