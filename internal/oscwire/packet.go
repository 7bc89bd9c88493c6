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

// Package oscwire is a thin adapter over the OSC 1.0 wire format:
// decode(bytes) -> (consumed prefix length, packet tree) and
// encode(packet tree) -> bytes. It mirrors the packet shapes used by
// the rest of this repo (Message, Bundle with a single ordered element
// list) rather than a general-purpose OSC client/server library.
package oscwire

// Packet is either a Message or a Bundle.
type Packet interface {
	MarshalBinary() ([]byte, error)
	isPacket()
}

// Message is an OSC address pattern plus an ordered argument list.
// Supported argument types: int32, float32, string, []byte.
type Message struct {
	Address   string
	Arguments []any
}

func (*Message) isPacket() {}

// Bundle is a time-tagged, ordered list of nested packets. The list
// is kept as a single slice (not split message/bundle slices) so that
// depth-first arrival order survives a decode/re-encode round trip.
type Bundle struct {
	TimeTag  TimeTag
	Elements []Packet
}

func (*Bundle) isPacket() {}
