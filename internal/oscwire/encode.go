// Package oscwire encodes outbound messages as OSC 1.0 packets: a
// null-padded address pattern, a null-padded type-tag string, and
// big-endian-encoded arguments, each padded to a 4-byte boundary. This
// mirrors the length-prefixed, big-endian, explicitly-padded binary framing
// decoder_wsjtx_udp.go uses for its own UDP wire format, adapted to the OSC
// packet layout instead of the QDataStream one.
package oscwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serialises path and args into a single OSC message datagram.
// Supported argument types: int, int32, int64, float32, float64, string,
// bool.
func Encode(path string, args []interface{}) []byte {
	var buf bytes.Buffer

	writePaddedString(&buf, path)

	tags := []byte{','}
	var argBuf bytes.Buffer
	for _, a := range args {
		switch v := a.(type) {
		case int:
			tags = append(tags, 'i')
			binary.Write(&argBuf, binary.BigEndian, int32(v))
		case int32:
			tags = append(tags, 'i')
			binary.Write(&argBuf, binary.BigEndian, v)
		case int64:
			tags = append(tags, 'i')
			binary.Write(&argBuf, binary.BigEndian, int32(v))
		case float32:
			tags = append(tags, 'f')
			binary.Write(&argBuf, binary.BigEndian, math.Float32bits(v))
		case float64:
			tags = append(tags, 'f')
			binary.Write(&argBuf, binary.BigEndian, math.Float32bits(float32(v)))
		case string:
			tags = append(tags, 's')
			writePaddedString(&argBuf, v)
		case bool:
			if v {
				tags = append(tags, 'T')
			} else {
				tags = append(tags, 'F')
			}
		default:
			tags = append(tags, 's')
			writePaddedString(&argBuf, fmt.Sprintf("%v", v))
		}
	}

	writePaddedBytes(&buf, tags)
	buf.Write(argBuf.Bytes())
	return buf.Bytes()
}

// writePaddedString writes s null-terminated and zero-padded so the total
// length (including the terminator) is a multiple of 4.
func writePaddedString(buf *bytes.Buffer, s string) {
	writePaddedBytes(buf, []byte(s))
}

func writePaddedBytes(buf *bytes.Buffer, b []byte) {
	buf.Write(b)
	buf.WriteByte(0)
	for (buf.Len() % 4) != 0 {
		buf.WriteByte(0)
	}
}
