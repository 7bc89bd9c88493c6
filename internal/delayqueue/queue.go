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

// Package delayqueue buffers future-dated OSC bundles until their
// time tag becomes due. It is a priority queue ordered by release
// time, with no internal locking: it is meant to be owned by a single
// goroutine (the receiver loop).
package delayqueue

import (
	"container/heap"
	"time"

	"github.com/google/uuid"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

// Entry is one buffered bundle awaiting its release time.
type Entry struct {
	ReleaseTime time.Time
	Bundle      *oscwire.Bundle
	ID          uuid.UUID
}

// Queue is a min-heap on ReleaseTime: earliest-due entry at the root.
type Queue struct {
	h entryHeap
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push inserts bundle for release at releaseTime and returns a
// correlation id callers can use to recognize it once it is applied.
func (q *Queue) Push(releaseTime time.Time, bundle *oscwire.Bundle) uuid.UUID {
	id := uuid.New()
	heap.Push(&q.h, Entry{ReleaseTime: releaseTime, Bundle: bundle, ID: id})
	return id
}

// DrainReady removes and returns, earliest first, every entry whose
// release time is at or before now. The remainder of the queue is
// left untouched.
func (q *Queue) DrainReady(now time.Time) []Entry {
	var ready []Entry
	for q.h.Len() > 0 && !q.h[0].ReleaseTime.After(now) {
		ready = append(ready, heap.Pop(&q.h).(Entry))
	}
	return ready
}

// Len reports the number of buffered entries.
func (q *Queue) Len() int { return q.h.Len() }

type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].ReleaseTime.Before(h[j].ReleaseTime) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
