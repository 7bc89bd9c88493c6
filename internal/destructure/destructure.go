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

// Package destructure walks a decoded OSC packet tree, buffering
// future-dated bundles and producing a lazy plan of message-handler
// invocations for everything that is due now.
package destructure

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/delayqueue"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/handler"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

// TickResult pairs a released bundle's correlation id with the plan
// for applying its contents.
type TickResult struct {
	ID   uuid.UUID
	Plan Plan
}

// Destructurer holds the delayed-bundle buffer and the three handler
// roles a decoded packet fans out to.
type Destructurer struct {
	queue   *delayqueue.Queue
	raw     handler.RawHandler
	packet  handler.PacketHandler
	message handler.MessageHandler

	// OnBundleDelayed and OnBundleReleased, if set, are called each
	// time a bundle is buffered for its time tag and each time one is
	// later released by Tick. Used to feed the stats counters.
	OnBundleDelayed  func()
	OnBundleReleased func()
}

// New builds a Destructurer around the given handler roles.
func New(raw handler.RawHandler, pkt handler.PacketHandler, msg handler.MessageHandler) *Destructurer {
	return &Destructurer{
		queue:   delayqueue.New(),
		raw:     raw,
		packet:  pkt,
		message: msg,
	}
}

// QueueLen reports how many bundles are currently buffered awaiting
// their release time. Exposed for observability/stats.
func (d *Destructurer) QueueLen() int { return d.queue.Len() }

// HandleRaw decodes one packet prefix from data. On success it
// concurrently hands the exact consumed bytes to the raw handlers and
// the parsed packet to the packet handlers, each on its own future so
// a caller that only cares about one role need not wait on the other,
// walks the packet tree to produce a message plan, and returns the
// undecoded tail of data for multi-packet datagrams.
//
// On a decode error, data is returned unchanged together with nil done
// channels and a zero Plan, so the caller can apply its own buffering
// policy.
func (d *Destructurer) HandleRaw(ctx context.Context, data []byte) (remaining []byte, rawDone <-chan struct{}, pktDone <-chan struct{}, plan Plan, err error) {
	consumed, pkt, derr := oscwire.Decode(data)
	if derr != nil {
		return data, nil, nil, Plan{}, derr
	}

	rawBytes := data[:consumed]
	rawDoneCh := make(chan struct{})
	pktDoneCh := make(chan struct{})
	go func() {
		defer close(rawDoneCh)
		d.raw.HandleRaw(ctx, rawBytes)
	}()
	go func() {
		defer close(pktDoneCh)
		d.packet.HandlePacket(ctx, pkt)
	}()

	plan = d.planFor(pkt, time.Now())
	return data[consumed:], rawDoneCh, pktDoneCh, plan, nil
}

// HandleRawOnly hands data straight to the raw-byte handler role,
// bypassing decode. Used when a buffered datagram remainder has
// exceeded the configured message-size cap without ever successfully
// decoding: there is no packet tree for the parsed-handler role to see,
// so only the raw role is invoked.
func (d *Destructurer) HandleRawOnly(ctx context.Context, data []byte) {
	d.raw.HandleRaw(ctx, data)
}

// Tick drains every buffered bundle whose release time has arrived
// and returns a plan for each, in earliest-first order.
func (d *Destructurer) Tick(now time.Time) []TickResult {
	ready := d.queue.DrainReady(now)
	results := make([]TickResult, 0, len(ready))
	for _, entry := range ready {
		if d.OnBundleReleased != nil {
			d.OnBundleReleased()
		}
		results = append(results, TickResult{ID: entry.ID, Plan: d.planForBundle(entry.Bundle, now)})
	}
	return results
}

func (d *Destructurer) planFor(pkt oscwire.Packet, now time.Time) Plan {
	switch v := pkt.(type) {
	case *oscwire.Message:
		msg := v
		return Plan{kind: PlanMessage, exec: func(ctx context.Context) {
			d.message.HandleMessage(ctx, msg)
		}}
	case *oscwire.Bundle:
		return d.planForBundle(v, now)
	default:
		return Plan{}
	}
}

// planForBundle decides whether a bundle is due: the immediate
// sentinel or any timetag at or before now is applied by descending
// into its elements in order; anything else is buffered and reported
// as not-yet-applied.
func (d *Destructurer) planForBundle(b *oscwire.Bundle, now time.Time) Plan {
	if !b.TimeTag.Immediate() && b.TimeTag.Time().After(now) {
		id := d.queue.Push(b.TimeTag.Time(), b)
		if d.OnBundleDelayed != nil {
			d.OnBundleDelayed()
		}
		return Plan{kind: PlanNotYetApplied, id: id}
	}

	children := make([]Plan, 0, len(b.Elements))
	for _, elem := range b.Elements {
		children = append(children, d.planFor(elem, now))
	}
	return Plan{kind: PlanBundle, children: children}
}
