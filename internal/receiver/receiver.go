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

// Package receiver owns the listening UDP socket and the top-level
// loop that feeds every inbound datagram to the destructurer, and
// drains delayed bundles once a second.
package receiver

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/destructure"
)

// Loop reads datagrams from a bound *net.UDPConn and hands them to a
// *destructure.Destructurer, alongside a 1 Hz tick that releases any
// bundle whose time tag has arrived.
type Loop struct {
	conn           *net.UDPConn
	destructurer   *destructure.Destructurer
	maxMessageSize int
	onPacket       func(n int)
	onBadPacket    func(err error)

	// buf accumulates bytes across reads that didn't yet decode to a
	// complete packet, so a logical OSC frame split across more than
	// one UDP read still decodes once the rest of it arrives.
	buf []byte
}

// New builds a Loop bound to addr:port. onPacket and onBadPacket may
// be nil; when set, they're called for stats bookkeeping.
func New(bindIP net.IP, port int, d *destructure.Destructurer, maxMessageSize int, onPacket func(n int), onBadPacket func(err error)) (*Loop, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: bindIP, Port: port})
	if err != nil {
		return nil, err
	}
	return &Loop{conn: conn, destructurer: d, maxMessageSize: maxMessageSize, onPacket: onPacket, onBadPacket: onBadPacket}, nil
}

// LocalAddr reports the bound listen address.
func (l *Loop) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Close releases the listening socket.
func (l *Loop) Close() error { return l.conn.Close() }

// Run blocks, alternating between releasing ripe delayed bundles once
// a second and reading the next inbound datagram, until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	readBuf := make([]byte, l.maxMessageSize)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.tick(ctx, now)
			continue
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, _, err := l.conn.ReadFromUDP(readBuf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Printf("receiver: read error: %v", err)
			l.buf = nil
			continue
		}
		if l.onPacket != nil {
			l.onPacket(n)
		}
		l.buf = append(l.buf, readBuf[:n]...)
		l.consume(ctx)
	}
}

// consume feeds the accumulated buffer to the destructurer, which may
// decode multiple concatenated packets out of it; each runs its plan
// as soon as it's built, and remaining replaces the buffer so an
// undecoded tail carries forward into the next read.
//
// A decode failure (the buffer doesn't yet hold a complete packet, or
// never will) is not fatal on its own: the datagram may be a fragment
// of a larger logical frame split across reads, so the buffer is kept
// and accumulation continues on the next read. Only once the buffer
// exceeds the configured maximum message size is it surrendered to the
// raw handler role and reset, since it can never complete as an OSC
// frame without exceeding the size the sender and receiver agreed on.
func (l *Loop) consume(ctx context.Context) {
	for len(l.buf) > 0 {
		remaining, rawDone, pktDone, plan, err := l.destructurer.HandleRaw(ctx, l.buf)
		if err != nil {
			if l.onBadPacket != nil {
				l.onBadPacket(err)
			}
			if len(l.buf) > l.maxMessageSize {
				log.Printf("receiver: surrendering %d undecoded bytes past the message size cap: %v", len(l.buf), err)
				l.destructurer.HandleRawOnly(ctx, l.buf)
				l.buf = nil
			} else {
				log.Printf("receiver: %d bytes not yet a complete packet, waiting for more data: %v", len(l.buf), err)
			}
			return
		}
		plan.Run(ctx)
		<-rawDone
		<-pktDone
		l.buf = remaining
	}
}

func (l *Loop) tick(ctx context.Context, now time.Time) {
	for _, result := range l.destructurer.Tick(now) {
		result.Plan.Run(ctx)
	}
}
