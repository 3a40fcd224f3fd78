// Package modbus provides the gateway connection pool, client, and sensor
// reading primitives for the condition worker.
package modbus

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nexus-edge/condition-worker/internal/domain"
)

// ParseRegisters decodes a register buffer into a scalar according to the
// declared encoding. The buffer holds 2 x register-count bytes with each
// 16-bit register in big-endian order; the encoding tag selects width,
// signedness, and byte order of the composed value at offset 0.
func ParseRegisters(data []byte, enc domain.Encoding) (float64, error) {
	if len(data) < encodingWidth(enc) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", domain.ErrInvalidDataLength, encodingWidth(enc), len(data))
	}

	switch enc {
	case domain.EncodingFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case domain.EncodingFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
	case domain.EncodingInt16BE:
		return float64(int16(binary.BigEndian.Uint16(data))), nil
	case domain.EncodingInt16LE:
		return float64(int16(binary.LittleEndian.Uint16(data))), nil
	case domain.EncodingUInt16BE:
		return float64(binary.BigEndian.Uint16(data)), nil
	case domain.EncodingUInt16LE:
		return float64(binary.LittleEndian.Uint16(data)), nil
	case domain.EncodingInt32BE:
		return float64(int32(binary.BigEndian.Uint32(data))), nil
	case domain.EncodingInt32LE:
		return float64(int32(binary.LittleEndian.Uint32(data))), nil
	case domain.EncodingUInt32BE:
		return float64(binary.BigEndian.Uint32(data)), nil
	case domain.EncodingUInt32LE:
		return float64(binary.LittleEndian.Uint32(data)), nil
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedEncoding, enc)
	}
}

// EncodeValue is the inverse of ParseRegisters. Integer encodings truncate
// toward zero.
func EncodeValue(v float64, enc domain.Encoding) ([]byte, error) {
	buf := make([]byte, encodingWidth(enc))

	switch enc {
	case domain.EncodingFloat32BE:
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case domain.EncodingFloat32LE:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case domain.EncodingInt16BE:
		binary.BigEndian.PutUint16(buf, uint16(int16(v)))
	case domain.EncodingInt16LE:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	case domain.EncodingUInt16BE:
		binary.BigEndian.PutUint16(buf, uint16(v))
	case domain.EncodingUInt16LE:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case domain.EncodingInt32BE:
		binary.BigEndian.PutUint32(buf, uint32(int32(v)))
	case domain.EncodingInt32LE:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	case domain.EncodingUInt32BE:
		binary.BigEndian.PutUint32(buf, uint32(v))
	case domain.EncodingUInt32LE:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedEncoding, enc)
	}

	return buf, nil
}

// encodingWidth returns the byte width of an encoding. Unknown encodings
// report the minimum width so length checks fail on the tag, not the size.
func encodingWidth(enc domain.Encoding) int {
	switch enc {
	case domain.EncodingInt16BE, domain.EncodingInt16LE,
		domain.EncodingUInt16BE, domain.EncodingUInt16LE:
		return 2
	case domain.EncodingFloat32BE, domain.EncodingFloat32LE,
		domain.EncodingInt32BE, domain.EncodingInt32LE,
		domain.EncodingUInt32BE, domain.EncodingUInt32LE:
		return 4
	default:
		return 2
	}
}
