package dexlock

import (
	"context"
	"testing"
)

func TestVerifierObserveMatchingEchoesCompletesAttempt(t *testing.T) {
	v := &Verifier{}
	v.Start(context.Background(), map[string]float32{
		"/avatar/parameters/A": 1.5,
		"/avatar/parameters/B": 0,
	})

	v.Observe("/avatar/parameters/A", []any{float32(1.5)})
	v.mu.Lock()
	if v.state == nil {
		t.Fatalf("attempt completed early after only one of two echoes")
	}
	v.mu.Unlock()

	v.Observe("/avatar/parameters/B", []any{float32(0)})
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != nil {
		t.Fatalf("attempt should be cleared once every echo matches")
	}
}

func TestVerifierObserveMismatchAbandonsAttempt(t *testing.T) {
	v := &Verifier{}
	v.Start(context.Background(), map[string]float32{"/avatar/parameters/A": 1.5})

	v.Observe("/avatar/parameters/A", []any{float32(9.9)})

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != nil {
		t.Fatalf("attempt should be abandoned on a mismatched echo")
	}
}

func TestVerifierObserveIgnoresUntrackedAddress(t *testing.T) {
	v := &Verifier{}
	v.Start(context.Background(), map[string]float32{"/avatar/parameters/A": 1.5})

	v.Observe("/avatar/parameters/Unrelated", []any{float32(42)})

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == nil {
		t.Fatalf("an untracked address should not affect the in-flight attempt")
	}
	if _, stillExpected := v.state.expected["/avatar/parameters/A"]; !stillExpected {
		t.Fatalf("tracked address was removed by an unrelated echo")
	}
}

func TestVerifierSecondStartSupersedesFirst(t *testing.T) {
	v := &Verifier{}
	v.Start(context.Background(), map[string]float32{"/avatar/parameters/A": 1.5})
	first := v.state

	v.Start(context.Background(), map[string]float32{"/avatar/parameters/B": 2.0})

	v.mu.Lock()
	current := v.state
	v.mu.Unlock()
	if current == first {
		t.Fatalf("second Start did not replace the first attempt")
	}

	// The superseded attempt's echo should no longer be tracked.
	v.Observe("/avatar/parameters/A", []any{float32(1.5)})
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, tracked := v.state.expected["/avatar/parameters/A"]; tracked {
		t.Fatalf("superseded attempt's address was still tracked")
	}
}
