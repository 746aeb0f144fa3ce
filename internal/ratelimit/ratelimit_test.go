package ratelimit

import "testing"

func TestAllowWithinCapacity(t *testing.T) {
	t.Parallel()

	l := New(10)
	for i := 0; i < 10; i++ {
		if !l.Allow() {
			t.Fatalf("expected frame %d within burst capacity to be allowed", i)
		}
	}
}

func TestAllowRejectsBeyondCapacity(t *testing.T) {
	t.Parallel()

	l := New(10)
	for i := 0; i < 10; i++ {
		l.Allow()
	}
	if l.Allow() {
		t.Fatalf("expected the 11th frame within the same instant to be rejected")
	}
}

func TestNewDefaultsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	l := New(0)
	if !l.Allow() {
		t.Fatalf("expected a fresh limiter with default capacity to allow at least one frame")
	}
}
