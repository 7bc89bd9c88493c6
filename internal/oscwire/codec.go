// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package oscwire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrBadPacket covers malformed input: the caller should treat it
	// the way spec'd BadPacket decode errors are treated upstream (keep
	// accumulating until the max message size is hit).
	ErrBadPacket = errors.New("oscwire: malformed packet")
	// ErrShortRead means the buffer doesn't yet hold a complete packet;
	// the receive loop should keep accumulating bytes from the wire.
	ErrShortRead = errors.New("oscwire: short read, need more data")
)

var bundleTag = []byte("#bundle\x00")

// Decode decodes exactly one packet prefix out of data and reports how
// many bytes it consumed, so a caller can keep decoding further OSC
// frames concatenated in the same datagram.
func Decode(data []byte) (consumed int, pkt Packet, err error) {
	if len(data) == 0 {
		return 0, nil, errors.Wrap(ErrShortRead, "empty buffer")
	}
	switch data[0] {
	case '/':
		return decodeMessage(data)
	case '#':
		return decodeBundle(data)
	default:
		return 0, nil, errors.Wrapf(ErrBadPacket, "unexpected leading byte %q", data[0])
	}
}

// Encode serializes a packet tree to its OSC wire representation.
func Encode(pkt Packet) ([]byte, error) {
	return pkt.MarshalBinary()
}

func (m *Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = appendPaddedString(buf, m.Address)

	tags := make([]byte, 0, len(m.Arguments)+1)
	tags = append(tags, ',')
	for _, arg := range m.Arguments {
		tag, err := typeTagFor(arg)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	buf = appendPaddedString(buf, string(tags))

	for _, arg := range m.Arguments {
		var err error
		buf, err = appendArgument(buf, arg)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (b *Bundle) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, bundleTag...)
	buf = appendUint32(buf, b.TimeTag.Seconds)
	buf = appendUint32(buf, b.TimeTag.Fraction)

	for _, elem := range b.Elements {
		encoded, err := elem.MarshalBinary()
		if err != nil {
			return nil, errors.Wrap(err, "encode bundle element")
		}
		buf = appendUint32(buf, uint32(len(encoded)))
		buf = append(buf, encoded...)
	}
	return buf, nil
}

func typeTagFor(arg any) (byte, error) {
	switch arg.(type) {
	case int32:
		return 'i', nil
	case float32:
		return 'f', nil
	case string:
		return 's', nil
	case []byte:
		return 'b', nil
	default:
		return 0, errors.Errorf("oscwire: unsupported argument type %T", arg)
	}
}

func appendArgument(buf []byte, arg any) ([]byte, error) {
	switch v := arg.(type) {
	case int32:
		return appendUint32(buf, uint32(v)), nil
	case float32:
		return appendUint32(buf, math.Float32bits(v)), nil
	case string:
		return appendPaddedString(buf, v), nil
	case []byte:
		buf = appendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
		return appendPad(buf, len(v)), nil
	default:
		return nil, errors.Errorf("oscwire: unsupported argument type %T", arg)
	}
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendPaddedString writes an OSC-string: the bytes of s, a
// terminating NUL, then zero to three further NUL bytes so the total
// written length is a multiple of 4.
func appendPaddedString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	buf = append(buf, 0)
	return appendPad(buf, len(s)+1)
}

// appendPad pads buf with NUL bytes so that `written` (the number of
// bytes appended since the last 4-byte boundary) rounds up to a
// multiple of 4.
func appendPad(buf []byte, written int) []byte {
	if rem := written % 4; rem != 0 {
		for i := 0; i < 4-rem; i++ {
			buf = append(buf, 0)
		}
	}
	return buf
}

func decodeMessage(data []byte) (int, Packet, error) {
	addr, n, err := decodePaddedString(data)
	if err != nil {
		return 0, nil, errors.Wrap(err, "decode address")
	}
	off := n

	tagStr, n, err := decodePaddedString(data[off:])
	if err != nil {
		return 0, nil, errors.Wrap(err, "decode type tags")
	}
	off += n

	if len(tagStr) == 0 || tagStr[0] != ',' {
		return 0, nil, errors.Wrapf(ErrBadPacket, "type tag string missing leading comma: %q", tagStr)
	}
	tags := tagStr[1:]

	args := make([]any, 0, len(tags))
	for _, tag := range []byte(tags) {
		var arg any
		var consumed int
		switch tag {
		case 'i':
			if len(data[off:]) < 4 {
				return 0, nil, errors.Wrap(ErrShortRead, "int32 argument")
			}
			arg = int32(binary.BigEndian.Uint32(data[off : off+4]))
			consumed = 4
		case 'f':
			if len(data[off:]) < 4 {
				return 0, nil, errors.Wrap(ErrShortRead, "float32 argument")
			}
			arg = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
			consumed = 4
		case 's':
			s, sn, serr := decodePaddedString(data[off:])
			if serr != nil {
				return 0, nil, errors.Wrap(serr, "string argument")
			}
			arg, consumed = s, sn
		case 'b':
			b, bn, berr := decodeBlob(data[off:])
			if berr != nil {
				return 0, nil, errors.Wrap(berr, "blob argument")
			}
			arg, consumed = b, bn
		default:
			return 0, nil, errors.Wrapf(ErrBadPacket, "unsupported type tag %q", tag)
		}
		args = append(args, arg)
		off += consumed
	}

	return off, &Message{Address: addr, Arguments: args}, nil
}

func decodeBundle(data []byte) (int, Packet, error) {
	if len(data) < 16 {
		return 0, nil, errors.Wrap(ErrShortRead, "bundle header")
	}
	if string(data[:8]) != string(bundleTag) {
		return 0, nil, errors.Wrapf(ErrBadPacket, "missing #bundle identifier")
	}
	off := 8
	seconds := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	fraction := binary.BigEndian.Uint32(data[off : off+4])
	off += 4

	var elements []Packet
	for off < len(data) {
		if len(data[off:]) < 4 {
			return 0, nil, errors.Wrap(ErrShortRead, "bundle element size")
		}
		size := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		if len(data[off:]) < int(size) {
			return 0, nil, errors.Wrap(ErrShortRead, "bundle element body")
		}
		elemConsumed, elem, err := Decode(data[off : off+int(size)])
		if err != nil {
			return 0, nil, errors.Wrap(err, "decode bundle element")
		}
		if elemConsumed != int(size) {
			return 0, nil, errors.Wrapf(ErrBadPacket, "bundle element declared %d bytes, decoded %d", size, elemConsumed)
		}
		elements = append(elements, elem)
		off += int(size)
	}

	return off, &Bundle{TimeTag: TimeTag{Seconds: seconds, Fraction: fraction}, Elements: elements}, nil
}

// decodePaddedString reads a NUL-terminated, 4-byte-padded OSC string
// and returns it along with the total number of bytes consumed
// (including padding).
func decodePaddedString(data []byte) (string, int, error) {
	idx := -1
	for i, b := range data {
		if b == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", 0, errors.Wrap(ErrShortRead, "unterminated string")
	}
	consumed := idx + 1
	if rem := consumed % 4; rem != 0 {
		consumed += 4 - rem
	}
	if len(data) < consumed {
		return "", 0, errors.Wrap(ErrShortRead, "string padding")
	}
	return string(data[:idx]), consumed, nil
}

func decodeBlob(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, errors.Wrap(ErrShortRead, "blob length")
	}
	size := int(binary.BigEndian.Uint32(data[:4]))
	off := 4
	if len(data[off:]) < size {
		return nil, 0, errors.Wrap(ErrShortRead, "blob body")
	}
	blob := make([]byte, size)
	copy(blob, data[off:off+size])
	off += size
	consumed := off
	if rem := consumed % 4; rem != 0 {
		pad := 4 - rem
		if len(data) < consumed+pad {
			return nil, 0, errors.Wrap(ErrShortRead, "blob padding")
		}
		consumed += pad
	}
	return blob, consumed, nil
}
