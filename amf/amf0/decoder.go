package amf0

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Decode reads the AMF0 value at the start of b and returns it along with
// the number of bytes it occupied.
// Possible return types: float64, bool, string, map[string]interface{}, nil, ECMAArray.
func Decode(b []byte) (interface{}, int, error) {
	if len(b) == 0 {
		return nil, 0, errors.Wrap(ErrShortBuffer, "empty buffer")
	}
	switch b[0] {
	case TypeNumber:
		return DecodeNumber(b)
	case TypeBoolean:
		return DecodeBoolean(b)
	case TypeString:
		return DecodeString(b)
	case TypeObject:
		return DecodeObject(b)
	case TypeNull:
		v, n, err := decodeNull(b)
		return v, n, err
	case TypeECMAArray:
		return DecodeECMAArray(b)
	default:
		return nil, 0, errors.Wrapf(ErrKindMismatch, "unsupported marker 0x%02x", b[0])
	}
}

func DecodeNumber(b []byte) (float64, int, error) {
	if len(b) == 0 || b[0] != TypeNumber {
		return 0, 0, markerError("number", b)
	}
	if len(b) < 9 {
		return 0, 0, errors.Wrap(ErrShortBuffer, "number")
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[1:9])), 9, nil
}

func DecodeBoolean(b []byte) (bool, int, error) {
	if len(b) == 0 || b[0] != TypeBoolean {
		return false, 0, markerError("boolean", b)
	}
	if len(b) < 2 {
		return false, 0, errors.Wrap(ErrShortBuffer, "boolean")
	}
	return b[1] != 0, 2, nil
}

func DecodeString(b []byte) (string, int, error) {
	if len(b) == 0 || b[0] != TypeString {
		return "", 0, markerError("string", b)
	}
	if len(b) < 3 {
		return "", 0, errors.Wrap(ErrShortBuffer, "string length")
	}
	length := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b) < 3+length {
		return "", 0, errors.Wrap(ErrShortBuffer, "string payload")
	}
	return string(b[3 : 3+length]), 3 + length, nil
}

// DecodeNull consumes a null marker and returns the bytes consumed.
func DecodeNull(b []byte) (int, error) {
	_, n, err := decodeNull(b)
	return n, err
}

func decodeNull(b []byte) (interface{}, int, error) {
	if len(b) == 0 || b[0] != TypeNull {
		return nil, 0, markerError("null", b)
	}
	return nil, 1, nil
}

// DecodeObject reads an anonymous object. If a key length field claims more
// bytes than remain in the buffer, decoding stops and the properties
// accumulated so far are returned without error.
func DecodeObject(b []byte) (map[string]interface{}, int, error) {
	if len(b) == 0 || b[0] != TypeObject {
		return nil, 0, markerError("object", b)
	}
	m := make(map[string]interface{})
	n, err := decodeProperties(b[1:], m)
	return m, 1 + n, err
}

// DecodeECMAArray reads an associative array. The 32-bit associative count
// is skipped; properties are read until the end-of-object sentinel, which
// also handles encoders that always write a count of zero.
func DecodeECMAArray(b []byte) (ECMAArray, int, error) {
	if len(b) == 0 || b[0] != TypeECMAArray {
		return nil, 0, markerError("ecma array", b)
	}
	if len(b) < 5 {
		return nil, 0, errors.Wrap(ErrShortBuffer, "ecma array count")
	}
	a := make(ECMAArray)
	n, err := decodeProperties(b[5:], map[string]interface{}(a))
	return a, 5 + n, err
}

// DecodeObjectOrNull peeks the marker and reads either an object or a null.
// Command results encode their command object as null when there is nothing
// to say, so callers need both branches.
func DecodeObjectOrNull(b []byte) (map[string]interface{}, int, error) {
	if len(b) > 0 && b[0] == TypeNull {
		return nil, 1, nil
	}
	return DecodeObject(b)
}

func decodeProperties(b []byte, m map[string]interface{}) (int, error) {
	consumed := 0
	for {
		if isEndOfObject(b) {
			return consumed + 3, nil
		}
		if len(b) < 2 {
			return consumed, errors.Wrap(ErrShortBuffer, "object key length")
		}
		keyLength := int(binary.BigEndian.Uint16(b))
		if 2+keyLength > len(b) {
			// Over-long key length field: stop and keep what we have.
			return consumed, nil
		}
		key := string(b[2 : 2+keyLength])
		b = b[2+keyLength:]
		consumed += 2 + keyLength

		val, n, err := Decode(b)
		if err != nil {
			return consumed, err
		}
		m[key] = val
		b = b[n:]
		consumed += n
	}
}

func isEndOfObject(b []byte) bool {
	return len(b) >= 3 && b[0] == 0x00 && b[1] == 0x00 && b[2] == TypeObjectEnd
}

func markerError(want string, b []byte) error {
	if len(b) == 0 {
		return errors.Wrapf(ErrShortBuffer, "expected %s", want)
	}
	return errors.Wrapf(ErrKindMismatch, "expected %s, got marker 0x%02x", want, b[0])
}
