package dexlock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscsend"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []oscwire.Packet
}

func (s *recordingSender) SendEncoded(pkt oscwire.Packet) <-chan oscsend.Result {
	s.mu.Lock()
	s.sent = append(s.sent, pkt)
	s.mu.Unlock()
	ch := make(chan oscsend.Result, 1)
	ch <- oscsend.Result{}
	close(ch)
	return ch
}

func (s *recordingSender) snapshot() []oscwire.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]oscwire.Packet, len(s.sent))
	copy(out, s.sent)
	return out
}

func writeEncryptedKey(t *testing.T, dir, avatarID, plaintext string) {
	t.Helper()
	ciphertext, err := Encrypt([]byte(plaintext))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, avatarID+".key"), ciphertext, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestHandlerAvatarChangeSendsDiscreteParameterWrites(t *testing.T) {
	dir := t.TempDir()
	writeEncryptedKey(t, dir, "avtr_123", "1.5|ParamA|0|ParamB")

	sender := &recordingSender{}
	h := New(dir, false, sender)

	h.HandleMessage(context.Background(), &oscwire.Message{Address: avatarChangeAddress, Arguments: []any{"avtr_123"}})

	sent := sender.snapshot()
	if len(sent) != 2 {
		t.Fatalf("sent %d packets, want 2 discrete messages", len(sent))
	}
	msgA := sent[0].(*oscwire.Message)
	if msgA.Address != "/avatar/parameters/ParamA" || msgA.Arguments[0].(float32) != 1.5 {
		t.Fatalf("first write = %+v, want ParamA=1.5", msgA)
	}
}

func TestHandlerAvatarChangeSendsBundleWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	writeEncryptedKey(t, dir, "avtr_456", "2.0|ParamA")

	sender := &recordingSender{}
	h := New(dir, true, sender)

	h.HandleMessage(context.Background(), &oscwire.Message{Address: avatarChangeAddress, Arguments: []any{"avtr_456"}})

	sent := sender.snapshot()
	if len(sent) != 1 {
		t.Fatalf("sent %d packets, want exactly 1 bundle", len(sent))
	}
	bundle, ok := sent[0].(*oscwire.Bundle)
	if !ok {
		t.Fatalf("sent packet is %T, want *oscwire.Bundle", sent[0])
	}
	if !bundle.TimeTag.Immediate() {
		t.Fatalf("unlock bundle should use the immediate time tag")
	}
}

func TestHandlerAvatarChangeMissingKeyFileIsSilentNoOp(t *testing.T) {
	dir := t.TempDir()
	sender := &recordingSender{}
	h := New(dir, false, sender)

	h.HandleMessage(context.Background(), &oscwire.Message{Address: avatarChangeAddress, Arguments: []any{"no_such_avatar"}})

	if len(sender.snapshot()) != 0 {
		t.Fatalf("expected no sends for an avatar with no key file")
	}
}

func TestHandlerAvatarChangeRejectsNonStringArgument(t *testing.T) {
	dir := t.TempDir()
	writeEncryptedKey(t, dir, "avtr_789", "1.0|P")
	sender := &recordingSender{}
	h := New(dir, false, sender)

	h.HandleMessage(context.Background(), &oscwire.Message{Address: avatarChangeAddress, Arguments: []any{int32(1)}})

	if len(sender.snapshot()) != 0 {
		t.Fatalf("expected non-string avatar id to be dropped")
	}
}

func TestHandlerEchoCompletesVerification(t *testing.T) {
	dir := t.TempDir()
	writeEncryptedKey(t, dir, "avtr_echo", "1.0|P")
	sender := &recordingSender{}
	h := New(dir, false, sender)

	h.HandleMessage(context.Background(), &oscwire.Message{Address: avatarChangeAddress, Arguments: []any{"avtr_echo"}})
	h.HandleMessage(context.Background(), &oscwire.Message{Address: "/avatar/parameters/P", Arguments: []any{float32(1.0)}})

	h.verifier.mu.Lock()
	defer h.verifier.mu.Unlock()
	if h.verifier.state != nil {
		t.Fatalf("verification should be complete after a matching echo")
	}
}
