package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	if now.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", now, before)
	}
	if d := c.Since(before); d < 0 {
		t.Errorf("RealClock.Since() = %v, want >= 0", d)
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() moved without a step: %v", got)
	}

	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestSteppingClock(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewSteppingClock(start, 10*time.Millisecond)

	first := c.Now()
	if !first.Equal(start) {
		t.Fatalf("first Now() = %v, want %v", first, start)
	}
	// Since reads Now once, which returns start+10ms.
	if got := c.Since(first); got != 10*time.Millisecond {
		t.Errorf("Since() = %v, want 10ms", got)
	}
}
