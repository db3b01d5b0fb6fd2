package sqlstore

import (
	"testing"
	"time"
)

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2025, 3, 4, 5, 6, 7, 123456000, time.FixedZone("x", 3600))
	got := parseTime(formatTime(in))
	if !got.Equal(in) {
		t.Fatalf("parseTime(formatTime(%v)) = %v", in, got)
	}
	if !parseTime("garbage").IsZero() {
		t.Fatal("expected zero time for unparsable input")
	}
	if parseTime("2025-03-04 05:06:07").IsZero() {
		t.Fatal("expected second-precision timestamps to parse")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
	if got := placeholders(0); got != "" {
		t.Errorf("placeholders(0) = %q", got)
	}
}

func TestChunks(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = "x"
	}
	got := chunks(ids)
	if len(got) != 3 || len(got[0]) != 100 || len(got[2]) != 50 {
		t.Fatalf("unexpected chunking: %d chunks", len(got))
	}
	if chunks(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}
