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

package dexlock

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// DecodeText turns a key file's raw bytes into text, sniffing a byte
// order mark the way a text editor would. Unlike the buggy original
// this is ported from, the no-BOM path does NOT strip any leading
// bytes — those three bytes are real content, not an artifact to
// discard. Exotic encodings we have no business auto-detecting (UTF-7
// and friends) are refused outright rather than silently mis-decoded.
func DecodeText(data []byte) (string, error) {
	switch {
	case hasPrefix(data, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return "", errors.New("dexlock: UTF-32LE key files are not supported")
	case hasPrefix(data, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return "", errors.New("dexlock: UTF-32BE key files are not supported")
	case hasPrefix(data, []byte{0xDD, 0x73, 0x66, 0x73}):
		return "", errors.New("dexlock: EBCDIC-UTF key files are not supported")
	case hasPrefix(data, []byte{0x84, 0x31, 0x95, 0x33}):
		return "", errors.New("dexlock: GB18030 key files are not supported")
	case hasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return decodeUTF8(data[3:])
	case hasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data[2:], binary.BigEndian)
	case hasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data[2:], binary.LittleEndian)
	case hasPrefix(data, []byte{0x2B, 0x2F, 0x76}):
		return "", errors.New("dexlock: UTF-7 key files are refused")
	case hasPrefix(data, []byte{0x0E, 0xFE, 0xFF}):
		return "", errors.New("dexlock: SCSU key files are not supported")
	case hasPrefix(data, []byte{0xFB, 0xEE, 0x28}):
		return "", errors.New("dexlock: BOCU-1 key files are not supported")
	case hasPrefix(data, []byte{0xF7, 0x64, 0x4C}):
		return "", errors.New("dexlock: UTF-1 key files are not supported")
	default:
		return decodeUTF8(data)
	}
}

func hasPrefix(data, prefix []byte) bool {
	return len(data) >= len(prefix) && bytes.Equal(data[:len(prefix)], prefix)
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("dexlock: key file is not valid UTF-8")
	}
	return string(data), nil
}

// decodeUTF16 assembles 16-bit code units with order.Uint16, which is
// exactly the big-endian/little-endian shift the corrected design
// calls for (order.Uint16 for binary.BigEndian does hi<<8|lo; for
// binary.LittleEndian it does lo<<8|hi). A trailing odd byte is kept
// as a zero-extended code unit rather than silently dropped.
func decodeUTF16(data []byte, order binary.ByteOrder) (string, error) {
	n := len(data)
	even := n - n%2
	units := make([]uint16, 0, n/2+1)
	for i := 0; i < even; i += 2 {
		units = append(units, order.Uint16(data[i:i+2]))
	}
	if n%2 != 0 {
		units = append(units, uint16(data[n-1]))
	}
	if !utf16Valid(units) {
		return "", errors.New("dexlock: key file has an invalid UTF-16 surrogate sequence")
	}
	return string(utf16.Decode(units)), nil
}

func utf16Valid(units []uint16) bool {
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if i+1 >= len(units) {
				return false
			}
			next := units[i+1]
			if next < 0xDC00 || next > 0xDFFF {
				return false
			}
			i++
		case u >= 0xDC00 && u <= 0xDFFF:
			return false
		}
	}
	return true
}
