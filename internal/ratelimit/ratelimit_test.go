package ratelimit

import (
	"testing"
	"time"
)

func TestAllowsUntilCapacityReached(t *testing.T) {
	l := New(3, 10*time.Second)
	base := time.Now()

	for i := 0; i < 3; i++ {
		if !l.Allow(base.Add(time.Duration(i) * time.Millisecond)) {
			t.Fatalf("frame %d should be admitted while FIFO not full", i)
		}
	}
}

func TestRejectsWhenFullAndWithinWindow(t *testing.T) {
	l := New(2, 10*time.Second)
	base := time.Now()

	l.Allow(base)
	l.Allow(base.Add(time.Millisecond))

	if l.Allow(base.Add(2 * time.Millisecond)) {
		t.Fatal("expected rejection: FIFO full and span below window")
	}
}

func TestAdmitsOnceSpanReachesWindow(t *testing.T) {
	l := New(2, 10*time.Second)
	base := time.Now()

	l.Allow(base)
	l.Allow(base.Add(time.Millisecond))

	if !l.Allow(base.Add(10 * time.Second)) {
		t.Fatal("expected admission once span reached the window")
	}
}

func TestBurstOverCapacityRejectsOnlyTheOverflow(t *testing.T) {
	l := New(60, 10*time.Second)
	base := time.Now()

	admitted := 0
	for i := 0; i < 61; i++ {
		if l.Allow(base.Add(time.Duration(i) * 10 * time.Millisecond)) {
			admitted++
		}
	}
	if admitted != 60 {
		t.Fatalf("admitted = %d, want 60 (61st should be rejected)", admitted)
	}

	// 10s later, the next frame succeeds.
	if !l.Allow(base.Add(61*10*time.Millisecond + 10*time.Second)) {
		t.Fatal("expected admission 10s after the window started")
	}
}

func TestPayloadTooLarge(t *testing.T) {
	if PayloadTooLarge("short", 10) {
		t.Fatal("short payload should not be rejected")
	}
	if !PayloadTooLarge("this string exceeds ten chars", 10) {
		t.Fatal("long payload should be rejected")
	}
}
