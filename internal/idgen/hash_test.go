package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestHashIDDeterministic(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := HashID("wf", "Launch plan", ts, 8, 0)
	b := HashID("wf", "Launch plan", ts, 8, 0)
	if a != b {
		t.Fatalf("same input produced %s and %s", a, b)
	}
	if c := HashID("wf", "Launch plan", ts, 8, 1); c == a {
		t.Fatalf("nonce did not change id: %s", c)
	}
}

func TestHashIDLength(t *testing.T) {
	ts := time.Unix(0, 42)
	tests := map[int]int{
		1:  4,
		4:  4,
		10: 10,
		40: 16,
	}
	for in, want := range tests {
		id := HashID("nd", "x", ts, in, 0)
		suffix := strings.TrimPrefix(id, "nd-")
		if len(suffix) != want {
			t.Errorf("length %d: got suffix %q (len %d), want len %d", in, suffix, len(suffix), want)
		}
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		id := New(PrefixNode, "same title")
		if !strings.HasPrefix(id, PrefixNode+"-") {
			t.Fatalf("missing prefix: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id after %d iterations: %s", i, id)
		}
		seen[id] = true
	}
}
