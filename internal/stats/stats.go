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

// Package stats counts relay activity and periodically dumps it to a
// CSV file, the same design as the teacher's SNMP logger repurposed
// for this domain's counters instead of KCP's transport table.
package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters are the relay's running totals. Every field is updated
// with atomic operations since they're touched from the receiver
// loop, the fan-out dispatcher, and the dexlock handler concurrently.
type Counters struct {
	PacketsReceived      atomic.Int64
	BytesReceived        atomic.Int64
	BundlesDelayed       atomic.Int64
	BundlesReleased      atomic.Int64
	AvatarUnlocksStarted atomic.Int64
	AvatarUnlocksOK      atomic.Int64
	AvatarUnlocksTimeout atomic.Int64
	FanoutSendErrors     atomic.Int64
}

func (c *Counters) header() []string {
	return []string{
		"PacketsReceived", "BytesReceived", "BundlesDelayed", "BundlesReleased",
		"AvatarUnlocksStarted", "AvatarUnlocksOK", "AvatarUnlocksTimeout", "FanoutSendErrors",
	}
}

func (c *Counters) row() []string {
	return []string{
		fmt.Sprint(c.PacketsReceived.Load()),
		fmt.Sprint(c.BytesReceived.Load()),
		fmt.Sprint(c.BundlesDelayed.Load()),
		fmt.Sprint(c.BundlesReleased.Load()),
		fmt.Sprint(c.AvatarUnlocksStarted.Load()),
		fmt.Sprint(c.AvatarUnlocksOK.Load()),
		fmt.Sprint(c.AvatarUnlocksTimeout.Load()),
		fmt.Sprint(c.FanoutSendErrors.Load()),
	}
}

// Logger periodically appends a CSV row of Counters to path, the
// filename time-formatted the same way the teacher formats its
// snmplog path.
type Logger struct {
	Path     string
	Period   time.Duration
	Counters *Counters
}

// Run ticks every Period until ctx is done. A zero Period disables
// logging entirely, matching SnmpLogger's "interval == 0" no-op.
func (l *Logger) Run(ctx context.Context) {
	if l.Path == "" || l.Period <= 0 {
		return
	}
	ticker := time.NewTicker(l.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.writeRow()
		}
	}
}

func (l *Logger) writeRow() {
	dir, file := filepath.Split(l.Path)
	path := dir + time.Now().Format(file)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Println("stats:", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(append([]string{"Unix"}, l.Counters.header()...)); err != nil {
			log.Println("stats:", err)
		}
	}
	if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, l.Counters.row()...)); err != nil {
		log.Println("stats:", err)
	}
	w.Flush()
}
