package viz

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWaterfall_Empty(t *testing.T) {
	if got := Waterfall("Baseline Event", nil, 80); got != "" {
		t.Errorf("expected empty string for nil input, got %q", got)
	}
	if got := Waterfall("Baseline Event", []SpanInfo{}, 80); got != "" {
		t.Errorf("expected empty string for empty input, got %q", got)
	}
}

func TestWaterfall_SingleSpan(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "s1", Op: "http.server", Description: "GET /", StartNano: 0, EndNano: 2_000_000},
	}
	result := Waterfall("Baseline Event", spans, 80)
	if !strings.HasPrefix(result, "Baseline Event (1 spans, 2.00ms)") {
		t.Errorf("expected title header, got:\n%s", result)
	}
	if !strings.Contains(result, "http.server - GET /") {
		t.Errorf("expected span label, got:\n%s", result)
	}
}

func TestWaterfall_ParentChild(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "child1", ParentID: "root", Op: "db", Description: "SELECT", StartNano: 10_000_000, EndNano: 100_000_000},
		{SpanID: "root", Op: "http.server", Description: "GET /users", StartNano: 0, EndNano: 500_000_000},
		{SpanID: "child2", ParentID: "root", Op: "cache.get", StartNano: 5_000_000, EndNano: 15_000_000},
	}
	result := Waterfall("Regressive Event", spans, 80)
	lines := strings.Split(strings.TrimRight(result, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d:\n%s", len(lines), result)
	}
	if !strings.Contains(lines[1], "http.server") {
		t.Errorf("root should render first, got:\n%s", result)
	}
	if !strings.Contains(lines[2], "├─ cache.get") || !strings.Contains(lines[3], "└─ db - SELECT") {
		t.Errorf("children should be ordered by start time with connectors, got:\n%s", result)
	}
}

func TestWaterfall_DoesNotReorderInput(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "b", StartNano: 20, EndNano: 30},
		{SpanID: "a", StartNano: 10, EndNano: 30},
	}
	Waterfall("t", spans, 80)
	if spans[0].SpanID != "b" {
		t.Errorf("input slice was reordered")
	}
}

func TestWaterfall_ErrorSpan(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "s1", Op: "op", StartNano: 0, EndNano: 1000, Error: true},
	}
	if result := Waterfall("t", spans, 80); !strings.Contains(result, "!! ERR") {
		t.Errorf("expected error indicator, got:\n%s", result)
	}
}

func TestWaterfall_OrphansAndCycles(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "s1", ParentID: "missing", Op: "op1", StartNano: 0, EndNano: 100},
		{SpanID: "s2", ParentID: "s3", Op: "op2", StartNano: 50, EndNano: 150},
		{SpanID: "s3", ParentID: "s2", Op: "op3", StartNano: 60, EndNano: 150},
	}
	result := Waterfall("t", spans, 80)
	for _, op := range []string{"op1", "op2", "op3"} {
		if !strings.Contains(result, op) {
			t.Errorf("expected %s to be rendered, got:\n%s", op, result)
		}
	}
}

func TestWaterfall_ZeroDuration(t *testing.T) {
	spans := []SpanInfo{{SpanID: "s1", Op: "instant", StartNano: 1000, EndNano: 1000}}
	result := Waterfall("t", spans, 80)
	if !strings.Contains(result, "0.00ms") {
		t.Errorf("expected 0.00ms duration, got:\n%s", result)
	}
	if !strings.Contains(result, strings.Repeat("#", defaultBarWidth)) {
		t.Errorf("expected filled bar for zero-duration trace, got:\n%s", result)
	}
}

func TestWaterfall_Alignment(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "root", Op: "root", StartNano: 0, EndNano: 60_000_000_000},
		{SpanID: "c1", ParentID: "root", Op: "c1", StartNano: 100_000_000, EndNano: 100_001_000},
	}
	lines := strings.Split(strings.TrimSpace(Waterfall("t", spans, 80)), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected at least 3 lines, got %d", len(lines))
	}
	if c1, c2 := displayCol(lines[1], '['), displayCol(lines[2], '['); c1 != c2 {
		t.Errorf("mismatched alignment: '[' at display col %d and %d", c1, c2)
	}
}

func TestWaterfall_LongLabelTruncated(t *testing.T) {
	spans := []SpanInfo{
		{SpanID: "s1", Op: "http.server", Description: "GET /api/v1/users/search/by-email/with/a/very/long/path", StartNano: 0, EndNano: 1000},
	}
	lines := strings.Split(strings.TrimRight(Waterfall("t", spans, 80), "\n"), "\n")
	if !strings.Contains(lines[1], "…") {
		t.Errorf("expected ellipsis, got %q", lines[1])
	}
	if n := utf8.RuneCountInString(lines[1]); n > 80 {
		t.Errorf("line exceeds width: %d columns", n)
	}
}

func TestBuildBar(t *testing.T) {
	tests := []struct {
		name            string
		start, end      uint64
		minStart, total uint64
		want            string
	}{
		{"full", 0, 100, 0, 100, "####################"},
		{"first half", 0, 50, 0, 100, "##########.........."},
		{"tiny span still visible", 99, 100, 0, 100, "...................#"},
		{"zero total", 5, 5, 5, 0, "####################"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildBar(tt.start, tt.end, tt.minStart, tt.total, 20); got != tt.want {
				t.Errorf("buildBar = %q, want %q", got, tt.want)
			}
		})
	}
}

func displayCol(s string, r rune) int {
	col := 0
	for _, c := range s {
		if c == r {
			return col
		}
		col++
	}
	return -1
}
