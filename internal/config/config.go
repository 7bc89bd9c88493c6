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

// Package config holds the relay's settings and its JSON file override,
// in the same shape the teacher uses for its own server/client config.
package config

import (
	"encoding/json"
	"os"
)

// Config describes one relay instance. Zero-value fields are filled
// in by Defaults before any flag or JSON override is applied.
type Config struct {
	BindIP            string `json:"bindip"`
	RecvPort          int    `json:"recvport"`
	SendPort          int    `json:"sendport"`
	MaxMessageSize    int    `json:"maxmessagesize"`
	DexBundleMode     bool   `json:"dexbundlemode"`
	DexKeyDir         string `json:"dexkeydir"`
	DexProtectEnabled bool   `json:"dexprotectenabled"`
	ForwardPorts      []int  `json:"forwardports"`
	ParseForFanout    bool   `json:"parseforfanout"`
	Log               string `json:"log"`
	StatsLog          string `json:"statslog"`
	StatsPeriod       int    `json:"statsperiod"`
}

// Defaults returns a Config with the relay's baseline settings: listen
// on 9001, forward to 9000, cap datagrams at 8192 bytes.
func Defaults() Config {
	return Config{
		BindIP:         "127.0.0.1",
		RecvPort:       9001,
		SendPort:       9000,
		MaxMessageSize: 8192,
	}
}

// ParseJSONFile overrides config in place from a JSON file, the same
// open-then-decode shape as the teacher's parseJSONConfig.
func ParseJSONFile(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
