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

package oscwire

import "time"

// secondsFrom1900To1970 bridges NTP's epoch (1900-01-01) and Unix time.
const secondsFrom1900To1970 = 2208988800

// TimeTag is an OSC time tag: 32 bits of seconds since midnight on
// January 1, 1900, followed by 32 bits of fractional seconds.
type TimeTag struct {
	Seconds  uint32
	Fraction uint32
}

// Immediate reports whether t is the "apply immediately" sentinel
// (seconds=0, fractional=1). This value must never be interpreted as
// a past absolute instant.
func (t TimeTag) Immediate() bool {
	return t.Seconds == 0 && t.Fraction == 1
}

// Time converts t to an absolute wall-clock instant. Callers must
// check Immediate first; the sentinel does not represent year 1900.
func (t TimeTag) Time() time.Time {
	secs := int64(t.Seconds) - secondsFrom1900To1970
	nsec := int64(float64(t.Fraction) / (1 << 32) * 1e9)
	return time.Unix(secs, nsec).UTC()
}

// NewTimeTag converts an absolute instant to an OSC time tag.
func NewTimeTag(t time.Time) TimeTag {
	t = t.UTC()
	secs := uint32(t.Unix() + secondsFrom1900To1970)
	frac := uint32((float64(t.Nanosecond()) / 1e9) * (1 << 32))
	return TimeTag{Seconds: secs, Fraction: frac}
}

// ImmediateTimeTag is the "apply now" sentinel used when dispatching
// avatar-unlock bundles.
var ImmediateTimeTag = TimeTag{Seconds: 0, Fraction: 1}
