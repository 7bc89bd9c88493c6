package oscsend

import (
	"net"
	"testing"
	"time"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

func newLoopbackPair(t *testing.T) (*Sender, *net.UDPConn) {
	t.Helper()
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	sender, err := New(net.IPv4(127, 0, 0, 1), 0, listener.LocalAddr().(*net.UDPAddr).Port)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sender.Close() })
	return sender, listener
}

func TestSendRawDeliversExactBytes(t *testing.T) {
	sender, listener := newLoopbackPair(t)

	payload := []byte("hello osc")
	resCh := sender.SendRaw(payload)

	buf := make([]byte, 1024)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("received %q, want %q", buf[:n], payload)
	}

	res := <-resCh
	if res.Err != nil {
		t.Fatalf("send result error: %v", res.Err)
	}
	if res.N != len(payload) {
		t.Fatalf("N = %d, want %d", res.N, len(payload))
	}
}

func TestSendEncodedRoundTrip(t *testing.T) {
	sender, listener := newLoopbackPair(t)

	msg := &oscwire.Message{Address: "/avatar/parameters/ParamA", Arguments: []any{float32(1.5)}}
	resCh := sender.SendEncoded(msg)

	buf := make([]byte, 1024)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}

	_, decoded, err := oscwire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.(*oscwire.Message).Address != msg.Address {
		t.Fatalf("address mismatch: %+v", decoded)
	}

	res := <-resCh
	if res.Err != nil {
		t.Fatalf("send result error: %v", res.Err)
	}
}

func TestSendEncodedFailureDoesNotBlock(t *testing.T) {
	sender, _ := newLoopbackPair(t)

	bad := &oscwire.Message{Address: "/bad", Arguments: []any{42}}
	res := <-sender.SendEncoded(bad)
	if res.Err == nil {
		t.Fatalf("expected encode error for unsupported argument type")
	}
}
