package discover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordField(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Record{
		ID:          "abcdef0123456789",
		Type:        EventTypeTransaction,
		Title:       "GET /api/users",
		Transaction: "GET /api/users",
		ProjectID:   7,
		Project:     "api",
		Timestamp:   ts,
		Duration:    Dur(1500 * time.Millisecond),
		TraceID:     "abc",
		SpanID:      "1111",
	}

	v, ok := r.Field(FieldTransactionDuration)
	require.True(t, ok)
	n, ok := v.Number()
	require.True(t, ok)
	assert.Equal(t, 1500.0, n)
	assert.Equal(t, "1500", v.String())

	v, ok = r.Field(FieldProject)
	require.True(t, ok)
	assert.Equal(t, "api", v.String())

	v, ok = r.Field(FieldTimestamp)
	require.True(t, ok)
	assert.Equal(t, "2021-01-01T00:00:00Z", v.String())

	v, ok = r.Field(FieldTrace)
	require.True(t, ok)
	assert.Equal(t, "abc", v.String())

	_, ok = r.Field("no.such.field")
	assert.False(t, ok)
}

func TestRecordDurationAbsent(t *testing.T) {
	r := Record{ID: "e1", Type: EventTypeError, Timestamp: time.Now()}
	_, ok := r.Field(FieldTransactionDuration)
	assert.False(t, ok)
	assert.False(t, r.IsTransaction())
	assert.Equal(t, time.Duration(0), r.DurationOrZero())
}

func TestRecordPointInTime(t *testing.T) {
	created := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	received := created.Add(3 * time.Second)

	r := Record{ID: "e", Timestamp: created}
	assert.Equal(t, created, r.PointInTime())

	r.Received = received
	assert.Equal(t, received, r.PointInTime())
}

func TestProjectFieldFallsBackToID(t *testing.T) {
	r := Record{ID: "e", ProjectID: 7, Timestamp: time.Now()}
	v, ok := r.Field(FieldProject)
	require.True(t, ok)
	assert.Equal(t, "7", v.String())
	assert.Equal(t, "7:e", SlugFor(r).String())
}

func TestEventSlugRoundTrip(t *testing.T) {
	s, err := ParseEventSlug("api:abc123")
	require.NoError(t, err)
	assert.Equal(t, EventSlug{Project: "api", EventID: "abc123"}, s)
	assert.Equal(t, "api:abc123", s.String())

	for _, bad := range []string{"", "api", ":abc", "api:"} {
		_, err := ParseEventSlug(bad)
		assert.Error(t, err, "slug %q", bad)
	}
}

func TestTraceBounds(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Event{
		Record: Record{ID: "e", Start: start, Timestamp: start.Add(100 * time.Millisecond)},
		Spans: []Span{
			{Start: start.Add(-10 * time.Millisecond), End: start.Add(50 * time.Millisecond)},
			{Start: start.Add(20 * time.Millisecond), End: start.Add(250 * time.Millisecond)},
		},
	}
	s, end := e.TraceBounds()
	assert.Equal(t, start.Add(-10*time.Millisecond), s)
	assert.Equal(t, start.Add(250*time.Millisecond), end)
}
