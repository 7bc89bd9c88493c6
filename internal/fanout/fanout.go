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

// Package fanout multiplexes inbound OSC datagrams to a static fleet
// of forward UDP sockets, the demultiplexer-of-one-to-many described
// in the core design. Construction mirrors the teacher's
// ParseMultiPort/listener-loop pattern: ports are deduplicated, then
// every socket is bound concurrently, with the first bind failure
// aborting the whole dispatcher.
package fanout

import (
	"context"
	"log"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/handler"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscsend"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

// Dispatcher fans datagrams out to one bound+connected sender per
// configured forward port. It implements both handler.RawHandler
// (raw fan-out: forward the exact inbound bytes) and
// handler.PacketHandler (parsed fan-out: re-encode once, then
// forward), as specified by the two alternative handler shapes.
type Dispatcher struct {
	senders []*oscsend.Sender

	// OnSendError, if set, is called for every forward socket send
	// failure, in addition to the log line. Used to feed the stats
	// counters.
	OnSendError func(err error)
}

// NewDispatcher dedups ports, then binds+connects one UDP sender per
// unique port concurrently. A failed bind of any socket fails the
// whole construction, reporting the first error observed.
func NewDispatcher(ip net.IP, ports []int) (*Dispatcher, error) {
	unique := dedupPorts(ports)
	if len(unique) == 0 {
		return &Dispatcher{}, nil
	}

	type outcome struct {
		index  int
		sender *oscsend.Sender
		err    error
	}
	results := make(chan outcome, len(unique))
	for i, port := range unique {
		go func(i, port int) {
			s, err := oscsend.New(ip, 0, port)
			results <- outcome{index: i, sender: s, err: err}
		}(i, port)
	}

	senders := make([]*oscsend.Sender, len(unique))
	var firstErr error
	for range unique {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(r.err, "bind forward socket")
			}
			continue
		}
		senders[r.index] = r.sender
	}
	if firstErr != nil {
		for _, s := range senders {
			if s != nil {
				s.Close()
			}
		}
		return nil, firstErr
	}

	return &Dispatcher{senders: senders}, nil
}

// Close releases every forward socket.
func (d *Dispatcher) Close() {
	for _, s := range d.senders {
		s.Close()
	}
}

// Len reports how many distinct forward sockets are active.
func (d *Dispatcher) Len() int { return len(d.senders) }

// HandleRaw forwards data verbatim to every socket, blocking until
// every send has completed (or failed) so the caller can backpressure
// on the slowest forward socket.
func (d *Dispatcher) HandleRaw(ctx context.Context, data []byte) {
	var wg sync.WaitGroup
	wg.Add(len(d.senders))
	for _, s := range d.senders {
		s := s
		go func() {
			defer wg.Done()
			res := <-s.SendRaw(data)
			if res.Err != nil {
				log.Printf("fanout: send to %s failed: %v", s.LocalAddr(), res.Err)
				if d.OnSendError != nil {
					d.OnSendError(res.Err)
				}
			}
		}()
	}
	wg.Wait()
}

// HandlePacket re-encodes pkt once and forwards the bytes to every
// socket. An encode failure is logged and nothing is sent.
func (d *Dispatcher) HandlePacket(ctx context.Context, pkt oscwire.Packet) {
	encoded, err := oscwire.Encode(pkt)
	if err != nil {
		log.Printf("fanout: failed to encode packet for forwarding: %v", err)
		return
	}
	d.HandleRaw(ctx, encoded)
}

func dedupPorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	unique := make([]int, 0, len(ports))
	for _, p := range ports {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

// NoopDispatcher satisfies both handler roles without forwarding
// anything; it is wired in when the forward-port list is empty.
type NoopDispatcher struct {
	handler.StubRaw
	handler.StubPacket
}
