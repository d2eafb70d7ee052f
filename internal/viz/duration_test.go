package viz

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0.00ms"},
		{0.0000005, "0.00ms"},
		{0.01234, "12.34ms"},
		{0.5, "500.00ms"},
		{0.99999, "999.99ms"},
		{0.9999999, "1.00s"},
		{1, "1.00s"},
		{1.5, "1.50s"},
		{61, "61.00s"},
		{1234.5, "1,234.50s"},
		{-0.25, "250.00ms"},
		{-2, "2.00s"},
	}
	for _, tt := range tests {
		if got := HumanDuration(tt.seconds); got != tt.want {
			t.Errorf("HumanDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

// parseRendered converts rendered output back to seconds.
func parseRendered(t *testing.T, s string) float64 {
	t.Helper()
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "ms"):
		s, scale = strings.TrimSuffix(s, "ms"), 0.001
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	default:
		t.Fatalf("unexpected unit in %q", s)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v * scale
}

func TestHumanDurationMonotonic(t *testing.T) {
	prev := -1.0
	for x := 0.0; x < 5; x += 0.000137 {
		got := parseRendered(t, HumanDuration(x))
		if got < prev {
			t.Fatalf("HumanDuration(%v) = %v reads smaller than previous %v", x, got, prev)
		}
		prev = got
	}
}

func TestDurationString(t *testing.T) {
	if got := DurationString(1500 * time.Millisecond); got != "1.50s" {
		t.Errorf("got %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2021, 3, 4, 13, 2, 3, 0, time.FixedZone("X", 3600))
	if got := FormatDate(ts); got != "Mar 4, 2021" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDateTime(ts); got != "Mar 4, 2021 12:02:03 PM" {
		t.Errorf("FormatDateTime = %q", got)
	}
	if FormatDate(time.Time{}) != "" || FormatDateTime(time.Time{}) != "" {
		t.Error("zero time should render empty")
	}
}

func TestFormatCount(t *testing.T) {
	tests := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-1234:   "-1,234",
	}
	for in, want := range tests {
		if got := FormatCount(in); got != want {
			t.Errorf("FormatCount(%d) = %q, want %q", in, got, want)
		}
	}
	if got := FormatNumber(1234.5, 4); got != "1,234.5000" {
		t.Errorf("FormatNumber = %q", got)
	}
}
