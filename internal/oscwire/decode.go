package oscwire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode parses a single OSC message datagram into its address pattern and
// argument list. Bundles are not supported; the dispatcher's wire contract
// is one message per datagram (spec.md §6).
func Decode(data []byte) (path string, args []interface{}, err error) {
	path, rest, err := readPaddedString(data)
	if err != nil {
		return "", nil, err
	}
	if len(rest) == 0 {
		return path, nil, nil
	}
	if rest[0] != ',' {
		return "", nil, fmt.Errorf("oscwire: missing type-tag string")
	}

	tags, rest, err := readPaddedString(rest)
	if err != nil {
		return "", nil, err
	}
	tags = tags[1:] // drop leading comma

	for _, tag := range tags {
		switch tag {
		case 'i':
			if len(rest) < 4 {
				return "", nil, fmt.Errorf("oscwire: truncated int argument")
			}
			args = append(args, int(int32(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		case 'f':
			if len(rest) < 4 {
				return "", nil, fmt.Errorf("oscwire: truncated float argument")
			}
			bits := binary.BigEndian.Uint32(rest[:4])
			args = append(args, float64(math.Float32frombits(bits)))
			rest = rest[4:]
		case 's':
			var s string
			s, rest, err = readPaddedString(rest)
			if err != nil {
				return "", nil, err
			}
			args = append(args, s)
		case 'T':
			args = append(args, true)
		case 'F':
			args = append(args, false)
		default:
			return "", nil, fmt.Errorf("oscwire: unsupported type tag %q", tag)
		}
	}

	return path, args, nil
}

// readPaddedString reads a null-terminated, 4-byte-padded string from the
// front of data and returns it along with the remaining bytes.
func readPaddedString(data []byte) (string, []byte, error) {
	end := -1
	for i, b := range data {
		if b == 0 {
			end = i
			break
		}
	}
	if end == -1 {
		return "", nil, fmt.Errorf("oscwire: unterminated string")
	}
	s := string(data[:end])
	total := end + 1
	for total%4 != 0 {
		total++
	}
	if total > len(data) {
		return "", nil, fmt.Errorf("oscwire: truncated padded string")
	}
	return s, data[total:], nil
}
