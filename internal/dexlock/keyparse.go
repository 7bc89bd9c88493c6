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
	"log"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParamWrite is one avatar parameter write decoded out of a key file:
// write Value to the float parameter named Name.
type ParamWrite struct {
	Name  string
	Value float32
}

// ParseKey parses a key file's decoded text into the ordered list of
// parameter writes it describes. The grammar is a '|'-delimited
// alternating sequence of value, name, value, name, ...; commas are
// normalized to decimal points first so both "1.5" and "1,5" parse the
// same way. A trailing unpaired value with no name is dropped with a
// warning rather than failing the whole key. Any value that fails to
// parse aborts the entire key — a partially-applied unlock is worse
// than none.
func ParseKey(text string) ([]ParamWrite, error) {
	normalized := strings.ReplaceAll(text, ",", ".")
	parts := strings.Split(normalized, "|")
	if len(parts)%2 != 0 {
		log.Printf("dexlock: key file has an odd number of entries (%d), dropping the trailing orphan", len(parts))
		parts = parts[:len(parts)-1]
	}

	writes := make([]ParamWrite, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		valueStr, name := parts[i], parts[i+1]
		value, err := parseDecimal(valueStr)
		if err != nil {
			return nil, errors.Wrapf(err, "dexlock: parsing value %q for parameter %q", valueStr, name)
		}
		writes = append(writes, ParamWrite{Name: name, Value: value})
	}
	return writes, nil
}

// parseDecimal parses "whole" or "whole.fraction" as whole +
// fraction/10^digits(fraction), matching the original's unsigned
// decimal arithmetic rather than a locale-aware float parse.
func parseDecimal(s string) (float32, error) {
	wholeStr, fracStr, hasPoint := s, "", false
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		wholeStr, fracStr = s[:idx], s[idx+1:]
		hasPoint = true
	}

	whole, err := parseU32(wholeStr)
	if err != nil {
		return 0, errors.Wrap(err, "whole part")
	}
	if !hasPoint || fracStr == "" {
		return float32(whole), nil
	}

	frac, err := parseU32(fracStr)
	if err != nil {
		return 0, errors.Wrap(err, "fractional part")
	}
	scale := float32(1)
	for range fracStr {
		scale *= 10
	}
	return float32(whole) + float32(frac)/scale, nil
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
