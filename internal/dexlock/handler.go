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

// Package dexlock implements the avatar-key "unlock" side channel:
// on /avatar/change, decrypt and parse that avatar's key file, write
// the parameters it names, and verify each write echoes back within
// the verification deadline.
package dexlock

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscsend"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

const (
	avatarChangeAddress = "/avatar/change"
	paramAddressPrefix  = "/avatar/parameters/"
)

// Sender is the subset of *oscsend.Sender the handler depends on, so
// tests can substitute a recording fake.
type Sender interface {
	SendEncoded(pkt oscwire.Packet) <-chan oscsend.Result
}

// Handler implements handler.MessageHandler, watching for avatar
// changes and the parameter echoes that follow an unlock attempt.
type Handler struct {
	keyDir     string
	bundleMode bool
	sender     Sender
	verifier   *Verifier
}

// New builds a Handler that reads key files from keyDir and sends
// parameter writes through sender, either as a single immediate
// bundle (bundleMode) or as discrete messages.
func New(keyDir string, bundleMode bool, sender Sender) *Handler {
	return &Handler{keyDir: keyDir, bundleMode: bundleMode, sender: sender, verifier: &Verifier{}}
}

// OnUnlockStarted, OnUnlockVerified and OnUnlockTimeout wire
// observability hooks through to the Handler's internal Verifier,
// which callers have no other way to reach. Set these before the
// Handler receives its first message.
func (h *Handler) OnUnlockStarted(fn func())  { h.verifier.OnStart = fn }
func (h *Handler) OnUnlockVerified(fn func()) { h.verifier.OnVerified = fn }
func (h *Handler) OnUnlockTimeout(fn func())  { h.verifier.OnTimeout = fn }

// HandleMessage classifies an incoming message as an avatar change,
// a parameter echo, or neither.
func (h *Handler) HandleMessage(ctx context.Context, msg *oscwire.Message) {
	switch {
	case strings.EqualFold(msg.Address, avatarChangeAddress):
		h.handleAvatarChange(ctx, msg)
	case strings.HasPrefix(msg.Address, paramAddressPrefix):
		h.verifier.Observe(msg.Address, msg.Arguments)
	}
}

// handleAvatarChange expects exactly one string argument, the avatar
// id. Any additional argument, a non-string first argument, or zero
// arguments is logged and the message is dropped.
func (h *Handler) handleAvatarChange(ctx context.Context, msg *oscwire.Message) {
	var id string
	found := false
	for _, arg := range msg.Arguments {
		s, ok := arg.(string)
		if !ok || found {
			log.Printf("dexlock: unrecognized %s arguments: %v", avatarChangeAddress, msg.Arguments)
			return
		}
		id, found = s, true
	}
	if !found {
		log.Printf("dexlock: %s carried no avatar id", avatarChangeAddress)
		return
	}
	h.unlockAvatar(ctx, id)
}

// unlockAvatar reads, decrypts, decodes and parses the key file for
// id, sends the parameter writes it describes, and starts verifying
// their echoes. Every failure along the way is logged and the unlock
// is abandoned at that step; a missing key file is the expected,
// silent case of an avatar with no key.
func (h *Handler) unlockAvatar(ctx context.Context, id string) {
	path := filepath.Join(h.keyDir, id+".key")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Printf("dexlock: reading key file %s: %v", path, err)
		return
	}

	plaintext, err := Decrypt(raw)
	if err != nil {
		log.Printf("dexlock: key file %s did not decrypt, falling back to legacy plaintext: %v", path, err)
		plaintext = raw
	}

	text, err := DecodeText(plaintext)
	if err != nil {
		log.Printf("dexlock: decoding key file %s: %v", path, err)
		return
	}

	writes, err := ParseKey(text)
	if err != nil {
		log.Printf("dexlock: parsing key file %s: %v", path, err)
		return
	}
	if len(writes) == 0 {
		return
	}

	expected := make(map[string]float32, len(writes))
	elements := make([]oscwire.Packet, 0, len(writes))
	for _, w := range writes {
		addr := paramAddressPrefix + w.Name
		expected[addr] = w.Value
		msg := &oscwire.Message{Address: addr, Arguments: []any{w.Value}}
		if h.bundleMode {
			elements = append(elements, msg)
			continue
		}
		if res := <-h.sender.SendEncoded(msg); res.Err != nil {
			log.Printf("dexlock: sending parameter write %s: %v", addr, res.Err)
		}
	}
	if h.bundleMode {
		bundle := &oscwire.Bundle{TimeTag: oscwire.ImmediateTimeTag, Elements: elements}
		if res := <-h.sender.SendEncoded(bundle); res.Err != nil {
			log.Printf("dexlock: sending avatar-unlock bundle: %v", res.Err)
		}
	}

	log.Printf("dexlock: unlocked avatar %s with %d parameter write(s)", id, len(writes))
	h.verifier.Start(ctx, expected)
}
