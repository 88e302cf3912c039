package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := NewFake(start)

	f.Advance(31 * time.Minute)
	if got := f.Now(); !got.Equal(start.Add(31 * time.Minute)) {
		t.Fatalf("after advance: want %v, got %v", start.Add(31*time.Minute), got)
	}

	f.Set(start)
	if !f.Now().Equal(start) {
		t.Errorf("after set: want %v, got %v", start, f.Now())
	}
}

func TestSystemIsUTC(t *testing.T) {
	if loc := (System{}).Now().Location(); loc != time.UTC {
		t.Errorf("expected UTC, got %v", loc)
	}
}
