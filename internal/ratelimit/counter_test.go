package ratelimit

import (
	"testing"
	"time"
)

func TestCounterThrottles(t *testing.T) {
	c := NewCounter(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	if total, ok := c.Inc(); !ok || total != 1 {
		t.Fatalf("first Inc = %d/%v, want 1/true", total, ok)
	}
	if total, ok := c.Inc(); ok || total != 2 {
		t.Fatalf("second Inc = %d/%v, want 2/false", total, ok)
	}
	now = now.Add(2 * time.Minute)
	if total, ok := c.Inc(); !ok || total != 3 {
		t.Fatalf("Inc after interval = %d/%v, want 3/true", total, ok)
	}
	if c.Total() != 3 {
		t.Fatalf("Total = %d", c.Total())
	}
}

func TestCounterDisabled(t *testing.T) {
	c := NewCounter(0)
	for i := 0; i < 3; i++ {
		if _, ok := c.Inc(); !ok {
			t.Fatalf("disabled counter should always allow")
		}
	}
}

func TestKeyedSeparatesKeys(t *testing.T) {
	k := NewKeyed(time.Hour)
	if _, ok := k.Inc("udp-1"); !ok {
		t.Fatalf("first udp-1 should log")
	}
	if _, ok := k.Inc("udp-2"); !ok {
		t.Fatalf("first udp-2 should log")
	}
	if total, ok := k.Inc("udp-1"); ok || total != 2 {
		t.Fatalf("repeat udp-1 = %d/%v", total, ok)
	}
}
