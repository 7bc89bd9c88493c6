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

// Package oscsend owns a bound+connected UDP socket and exposes a
// non-blocking send that hands back the exact bytes written, so
// callers can log the wire form on failure.
package oscsend

import (
	"log"
	"net"

	"github.com/pkg/errors"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

// Result is the outcome of one send: how many bytes the kernel
// reported as written, the exact payload that was sent, and any
// transport error. A connected UDP socket cannot partially write, but
// a byte-count mismatch is still surfaced as a log warning rather than
// promoted to Err.
type Result struct {
	N       int
	Payload []byte
	Err     error
}

// Sender is cheaply shareable: multiple handlers may hold a reference
// and send concurrently, same as the teacher's forwarding sockets.
type Sender struct {
	conn *net.UDPConn
}

// New binds a UDP socket on bindPort (0 for an ephemeral port) and
// connects it to ip:connectPort.
func New(ip net.IP, bindPort, connectPort int) (*Sender, error) {
	conn, err := net.DialUDP("udp", &net.UDPAddr{IP: ip, Port: bindPort}, &net.UDPAddr{IP: ip, Port: connectPort})
	if err != nil {
		return nil, errors.Wrapf(err, "bind/connect OSC UDP socket to %s:%d", ip, connectPort)
	}
	return &Sender{conn: conn}, nil
}

// LocalAddr reports the socket's bound address.
func (s *Sender) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the underlying socket.
func (s *Sender) Close() error { return s.conn.Close() }

// SendEncoded encodes pkt and sends it. The send is initiated in a
// goroutine and the result is delivered on the returned channel.
// Encoding failures are reported synchronously (before any send is
// attempted) by delivering the single result and closing the channel.
func (s *Sender) SendEncoded(pkt oscwire.Packet) <-chan Result {
	ch := make(chan Result, 1)
	encoded, err := oscwire.Encode(pkt)
	if err != nil {
		ch <- Result{Err: errors.Wrap(err, "encode OSC packet")}
		close(ch)
		return ch
	}
	return s.sendAsync(encoded, ch)
}

// SendRaw sends a pre-serialized payload as-is.
func (s *Sender) SendRaw(payload []byte) <-chan Result {
	return s.sendAsync(payload, make(chan Result, 1))
}

func (s *Sender) sendAsync(payload []byte, ch chan Result) <-chan Result {
	go func() {
		defer close(ch)
		n, err := s.conn.Write(payload)
		if err != nil {
			ch <- Result{N: n, Payload: payload, Err: errors.Wrap(err, "send OSC UDP datagram")}
			return
		}
		if n != len(payload) {
			log.Printf("oscsend: wrote %d bytes, expected %d (to %s)", n, len(payload), s.conn.RemoteAddr())
		}
		ch <- Result{N: n, Payload: payload}
	}()
	return ch
}
