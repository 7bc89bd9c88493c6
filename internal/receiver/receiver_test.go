package receiver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/C0D3-M4513R/dexprotect-osc/internal/destructure"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/handler"
	"github.com/C0D3-M4513R/dexprotect-osc/internal/oscwire"
)

type recordingMessage struct {
	mu        sync.Mutex
	addresses []string
}

func (r *recordingMessage) HandleMessage(_ context.Context, msg *oscwire.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append(r.addresses, msg.Address)
}

func (r *recordingMessage) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.addresses))
	copy(out, r.addresses)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestLoopDeliversSingleMessage(t *testing.T) {
	rec := &recordingMessage{}
	d := destructure.New(handler.StubRaw{}, handler.StubPacket{}, rec)

	loop, err := New(net.ParseIP("127.0.0.1"), 0, d, 8192, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	conn, err := net.DialUDP("udp", nil, loop.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	data, err := oscwire.Encode(&oscwire.Message{Address: "/avatar/parameters/Foo", Arguments: []any{float32(1)}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot(); got[0] != "/avatar/parameters/Foo" {
		t.Fatalf("addresses = %v", got)
	}
}

func TestLoopConsumesMultiplePacketsPerDatagram(t *testing.T) {
	rec := &recordingMessage{}
	d := destructure.New(handler.StubRaw{}, handler.StubPacket{}, rec)

	loop, err := New(net.ParseIP("127.0.0.1"), 0, d, 8192, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	conn, err := net.DialUDP("udp", nil, loop.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	first, err := oscwire.Encode(&oscwire.Message{Address: "/a", Arguments: []any{int32(1)}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := oscwire.Encode(&oscwire.Message{Address: "/b", Arguments: []any{int32(2)}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(append(first, second...)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })
	got := rec.snapshot()
	if got[0] != "/a" || got[1] != "/b" {
		t.Fatalf("addresses = %v, want [/a /b]", got)
	}
}

func TestLoopInvokesOnPacketCallback(t *testing.T) {
	rec := &recordingMessage{}
	d := destructure.New(handler.StubRaw{}, handler.StubPacket{}, rec)

	var mu sync.Mutex
	var totalBytes int
	onPacket := func(n int) {
		mu.Lock()
		defer mu.Unlock()
		totalBytes += n
	}

	loop, err := New(net.ParseIP("127.0.0.1"), 0, d, 8192, onPacket, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	conn, err := net.DialUDP("udp", nil, loop.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	data, err := oscwire.Encode(&oscwire.Message{Address: "/ping", Arguments: nil})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return totalBytes == len(data)
	})
}

// TestLoopReportsMalformedDatagramAndContinues sends bad bytes across
// two reads that together exceed maxMessageSize, forcing the
// surrender-and-reset path, then confirms a well-formed datagram sent
// afterward decodes normally on the now-clean buffer. A single read
// can never by itself exceed maxMessageSize (the read buffer is sized
// to the cap), so overflow is necessarily a two-read affair.
func TestLoopReportsMalformedDatagramAndContinues(t *testing.T) {
	rec := &recordingMessage{}
	d := destructure.New(handler.StubRaw{}, handler.StubPacket{}, rec)

	var mu sync.Mutex
	var badCount int
	onBad := func(error) {
		mu.Lock()
		defer mu.Unlock()
		badCount++
	}

	const maxSize = 8
	loop, err := New(net.ParseIP("127.0.0.1"), 0, d, maxSize, nil, onBad)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	conn, err := net.DialUDP("udp", nil, loop.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return badCount == 1
	})

	if _, err := conn.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("Write second: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return badCount == 2
	})

	good, err := oscwire.Encode(&oscwire.Message{Address: "/a", Arguments: nil})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(good) > maxSize {
		t.Fatalf("fixture too large for maxSize: %d > %d", len(good), maxSize)
	}
	if _, err := conn.Write(good); err != nil {
		t.Fatalf("Write good: %v", err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot(); got[0] != "/a" {
		t.Fatalf("addresses = %v, want [/a]", got)
	}
}

// TestLoopReassemblesFragmentedFrameAcrossReads splits one logical OSC
// message across two separate UDP writes, at a point strictly inside
// the type-tag string so the first read cannot possibly decode it.
// The destructurer must report a decode failure without losing the
// partial bytes, and the second read's bytes must be appended to them
// rather than starting a fresh buffer.
func TestLoopReassemblesFragmentedFrameAcrossReads(t *testing.T) {
	rec := &recordingMessage{}
	d := destructure.New(handler.StubRaw{}, handler.StubPacket{}, rec)

	var mu sync.Mutex
	var badCount int
	onBad := func(error) {
		mu.Lock()
		defer mu.Unlock()
		badCount++
	}

	loop, err := New(net.ParseIP("127.0.0.1"), 0, d, 8192, nil, onBad)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	conn, err := net.DialUDP("udp", nil, loop.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	full, err := oscwire.Encode(&oscwire.Message{Address: "/a", Arguments: nil})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// "/a" address is padded to 4 bytes; splitting one byte into the
	// following type-tag string (",\0\0\0") leaves no null terminator
	// in the first chunk, guaranteeing a decode failure on read one.
	const splitAt = 5
	if len(full) <= splitAt {
		t.Fatalf("fixture too short to split at %d: %d bytes", splitAt, len(full))
	}

	if _, err := conn.Write(full[:splitAt]); err != nil {
		t.Fatalf("Write first fragment: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return badCount == 1
	})
	if len(rec.snapshot()) != 0 {
		t.Fatalf("message handler ran before the frame was complete")
	}

	if _, err := conn.Write(full[splitAt:]); err != nil {
		t.Fatalf("Write second fragment: %v", err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot(); got[0] != "/a" {
		t.Fatalf("addresses = %v, want [/a]", got)
	}
}

// TestLoopSurrendersBufferThatExceedsMaxMessageSize accumulates two
// reads of data that can never decode as OSC; once their combined
// length exceeds maxMessageSize, the accumulated bytes must be handed
// to the raw handler role and the buffer reset, rather than growing
// forever.
func TestLoopSurrendersBufferThatExceedsMaxMessageSize(t *testing.T) {
	rec := &recordingMessage{}
	raw := &recordingRaw{}
	d := destructure.New(raw, handler.StubPacket{}, rec)

	var mu sync.Mutex
	var badCount int
	onBad := func(error) {
		mu.Lock()
		defer mu.Unlock()
		badCount++
	}

	const maxSize = 8
	loop, err := New(net.ParseIP("127.0.0.1"), 0, d, maxSize, nil, onBad)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	conn, err := net.DialUDP("udp", nil, loop.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	// Neither write contains a null byte, so the address string never
	// terminates and every decode attempt reports a short read.
	first := []byte("/aaaa")
	second := []byte("bbbbbb")
	if len(first) > maxSize {
		t.Fatalf("first fragment already exceeds maxSize, test fixture invalid")
	}
	if len(first)+len(second) <= maxSize {
		t.Fatalf("combined fragments must exceed maxSize, test fixture invalid")
	}

	if _, err := conn.Write(first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return badCount == 1
	})

	if _, err := conn.Write(second); err != nil {
		t.Fatalf("Write second: %v", err)
	}
	waitFor(t, func() bool { return len(raw.snapshot()) == 1 })

	surrendered := raw.snapshot()[0]
	want := append(append([]byte{}, first...), second...)
	if string(surrendered) != string(want) {
		t.Fatalf("surrendered bytes = %q, want %q", surrendered, want)
	}
}

type recordingRaw struct {
	mu   sync.Mutex
	seen [][]byte
}

func (r *recordingRaw) HandleRaw(_ context.Context, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	r.seen = append(r.seen, cp)
}

func (r *recordingRaw) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.seen))
	copy(out, r.seen)
	return out
}
