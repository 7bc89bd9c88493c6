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
	"context"
	"log"
	"sync"
	"time"
)

// verifyDeadline is how long an unlock attempt waits for every written
// parameter to echo back before giving up on it.
const verifyDeadline = 1500 * time.Millisecond

// verifyState is one in-flight unlock attempt: the set of addresses
// still awaiting an echo, and the cancel func for its deadline task.
type verifyState struct {
	cancel   context.CancelFunc
	expected map[string]float32
}

// Verifier tracks the single in-flight avatar-unlock attempt, if any,
// and matches parameter echoes against it. Both the current attempt
// and its deadline task live behind one mutex: starting a new attempt
// atomically replaces the old one and cancels its deadline task, so a
// fast second /avatar/change can never race the first attempt's
// timeout into clobbering the new state.
type Verifier struct {
	mu    sync.Mutex
	state *verifyState

	// OnStart, OnVerified and OnTimeout, if set, are called as an
	// unlock attempt begins, completes successfully, and times out
	// respectively. Used to feed the stats counters.
	OnStart    func()
	OnVerified func()
	OnTimeout  func()
}

// Start begins tracking a new unlock attempt, superseding any attempt
// already in flight. expected maps each written parameter address to
// the value it should echo back. If the deadline elapses with
// addresses still unconfirmed, that is logged and the attempt is
// dropped.
func (v *Verifier) Start(ctx context.Context, expected map[string]float32) {
	innerCtx, cancel := context.WithCancel(ctx)
	st := &verifyState{cancel: cancel, expected: expected}

	v.mu.Lock()
	prev := v.state
	v.state = st
	v.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
	if v.OnStart != nil {
		v.OnStart()
	}

	go func() {
		select {
		case <-innerCtx.Done():
			return
		case <-time.After(verifyDeadline):
		}
		v.mu.Lock()
		current := v.state == st
		if current {
			v.state = nil
		}
		remaining := len(st.expected)
		v.mu.Unlock()
		if current && remaining > 0 {
			log.Printf("dexlock: avatar unlock timed out with %d parameter(s) unconfirmed", remaining)
			if v.OnTimeout != nil {
				v.OnTimeout()
			}
		}
	}()
}

// Observe matches one parameter echo against the in-flight attempt, if
// any. Addresses the current attempt doesn't care about are ignored
// silently: most /avatar/parameters/* traffic has nothing to do with
// an unlock in progress.
func (v *Verifier) Observe(address string, args []any) {
	v.mu.Lock()
	st := v.state
	if st == nil {
		v.mu.Unlock()
		return
	}
	expectedVal, tracked := st.expected[address]
	if !tracked {
		v.mu.Unlock()
		return
	}
	delete(st.expected, address)

	valid := len(args) >= 1
	var value float32
	if valid {
		fv, ok := args[0].(float32)
		valid = ok
		value = fv
	}
	multi := len(args) > 1
	mismatch := !valid || value != expectedVal
	empty := len(st.expected) == 0

	if mismatch || empty {
		st.cancel()
		v.state = nil
	}
	v.mu.Unlock()

	if multi {
		log.Printf("dexlock: echo for %s carried more than one argument, using the first", address)
	}
	switch {
	case mismatch:
		log.Printf("dexlock: echo for %s did not match the expected value, abandoning verification", address)
	case empty:
		log.Printf("dexlock: avatar unlock fully verified")
		if v.OnVerified != nil {
			v.OnVerified()
		}
	}
}
