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

// Package handler defines the three capability interfaces the packet
// destructurer dispatches to (raw bytes, parsed packets, individual
// messages), plus stub no-op variants and a concurrent-fan-out
// composition of each, mirroring the teacher's practice of composing
// a static slice of capabilities rather than a dynamic dispatch table.
package handler

import (
	"context"
	"sync"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

// RawHandler sees the exact bytes of a decoded datagram.
type RawHandler interface {
	HandleRaw(ctx context.Context, data []byte)
}

// PacketHandler sees the parsed packet tree.
type PacketHandler interface {
	HandlePacket(ctx context.Context, pkt oscwire.Packet)
}

// MessageHandler sees individual messages, after bundles have been
// walked down to their leaves.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *oscwire.Message)
}

// StubRaw, StubPacket and StubMessage are no-op implementations used
// when a role has nothing configured (e.g. DexProtect disabled, or an
// empty forward-port list).
type (
	StubRaw     struct{}
	StubPacket  struct{}
	StubMessage struct{}
)

func (StubRaw) HandleRaw(context.Context, []byte)             {}
func (StubPacket) HandlePacket(context.Context, oscwire.Packet) {}
func (StubMessage) HandleMessage(context.Context, *oscwire.Message) {}

// MultiRaw fans a raw datagram out to every handler concurrently and
// waits for all of them to finish.
type MultiRaw []RawHandler

func (m MultiRaw) HandleRaw(ctx context.Context, data []byte) {
	var wg sync.WaitGroup
	wg.Add(len(m))
	for _, h := range m {
		h := h
		go func() {
			defer wg.Done()
			h.HandleRaw(ctx, data)
		}()
	}
	wg.Wait()
}

// MultiPacket fans a parsed packet out to every handler concurrently.
type MultiPacket []PacketHandler

func (m MultiPacket) HandlePacket(ctx context.Context, pkt oscwire.Packet) {
	var wg sync.WaitGroup
	wg.Add(len(m))
	for _, h := range m {
		h := h
		go func() {
			defer wg.Done()
			h.HandlePacket(ctx, pkt)
		}()
	}
	wg.Wait()
}

// MultiMessage fans a single message out to every handler concurrently.
type MultiMessage []MessageHandler

func (m MultiMessage) HandleMessage(ctx context.Context, msg *oscwire.Message) {
	var wg sync.WaitGroup
	wg.Add(len(m))
	for _, h := range m {
		h := h
		go func() {
			defer wg.Done()
			h.HandleMessage(ctx, msg)
		}()
	}
	wg.Wait()
}
