package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonicWithinMillisecond(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := NewAt(at)
	for i := 0; i < 50; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("expected %q > %q", next, prev)
		}
		prev = next
	}
}

func TestSuffix(t *testing.T) {
	id := New()
	if got := Suffix(id, 8); len(got) != 8 || got != id[len(id)-8:] {
		t.Fatalf("unexpected suffix %q for %q", got, id)
	}
	if got := Suffix("abc", 8); got != "abc" {
		t.Fatalf("short ids should be returned unchanged, got %q", got)
	}
}
