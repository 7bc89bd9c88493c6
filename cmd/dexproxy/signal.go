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

//go:build linux || darwin || freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/stats"
)

// watchDumpSignal prints the current counters on SIGUSR1, the same
// on-demand introspection hook the teacher wires to its own SNMP
// table.
func watchDumpSignal(counters *stats.Counters) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		for range ch {
			log.Printf("dexproxy counters: recv=%d bytes=%d delayed=%d released=%d unlocks=%d/%d/%d timeout fanoutErrs=%d",
				counters.PacketsReceived.Load(),
				counters.BytesReceived.Load(),
				counters.BundlesDelayed.Load(),
				counters.BundlesReleased.Load(),
				counters.AvatarUnlocksStarted.Load(),
				counters.AvatarUnlocksOK.Load(),
				counters.AvatarUnlocksTimeout.Load(),
				counters.FanoutSendErrors.Load(),
			)
		}
	}()
}
