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

package destructure

import (
	"context"

	"github.com/google/uuid"
)

// PlanKind tags the shape of a Plan node.
type PlanKind int

const (
	// PlanMessage is a pending message-handler invocation.
	PlanMessage PlanKind = iota
	// PlanBundle preserves the recursive structure of an applied bundle.
	PlanBundle
	// PlanNotYetApplied is a future-dated bundle that was buffered
	// instead of applied; ID correlates it to the later Tick result.
	PlanNotYetApplied
)

// Plan is the message-plan tagged variant the destructurer returns
// instead of executing message handlers itself: a caller decides when
// to run it (e.g. concurrently with the raw/packet handler futures).
type Plan struct {
	kind     PlanKind
	exec     func(ctx context.Context)
	children []Plan
	id       uuid.UUID
}

// Kind reports which variant this plan node is.
func (p Plan) Kind() PlanKind { return p.kind }

// NotYetAppliedID returns the correlation id for a PlanNotYetApplied
// node. It is the zero UUID for any other kind.
func (p Plan) NotYetAppliedID() uuid.UUID { return p.id }

// Children returns the nested plans of a PlanBundle node.
func (p Plan) Children() []Plan { return p.children }

// Run executes every message-handler invocation reachable from this
// plan, depth-first, blocking until each completes before starting
// the next. A PlanNotYetApplied node is a no-op: nothing to run until
// a later Tick emits its contents.
func (p Plan) Run(ctx context.Context) {
	switch p.kind {
	case PlanMessage:
		if p.exec != nil {
			p.exec(ctx)
		}
	case PlanBundle:
		for _, child := range p.children {
			child.Run(ctx)
		}
	case PlanNotYetApplied:
	}
}
