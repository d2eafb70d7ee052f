// Package discover holds the query-side model shared by the event store and
// the views: records, column metadata, query descriptors and filter options.
package discover

import (
	"strconv"
	"time"
)

// EventType classifies a record.
type EventType string

const (
	EventTypeError       EventType = "error"
	EventTypeTransaction EventType = "transaction"
	EventTypeDefault     EventType = "default"
)

// Discover field names understood by Record.Field.
const (
	FieldID                  = "id"
	FieldTitle               = "title"
	FieldEventType           = "event.type"
	FieldProject             = "project"
	FieldProjectID           = "project.id"
	FieldTimestamp           = "timestamp"
	FieldTransaction         = "transaction"
	FieldTransactionDuration = "transaction.duration"
	FieldTrace               = "trace"
	FieldTraceSpan           = "trace.span"
	FieldUser                = "user.display"
	FieldPlatform            = "platform"
)

// Record is one result row returned by the event store.
//
// ID and Timestamp are always set. Duration and Start are only set for
// transactions; Received is only set when the ingest path knows it.
type Record struct {
	ID          string
	Type        EventType
	Title       string
	Transaction string
	ProjectID   int64
	Project     string
	Platform    string
	Timestamp   time.Time
	Received    time.Time
	Start       time.Time
	Duration    *time.Duration
	TraceID     string
	SpanID      string
	User        string
}

// IsTransaction reports whether the record is transaction-shaped.
func (r Record) IsTransaction() bool {
	return r.Type == EventTypeTransaction && r.Duration != nil
}

// DurationOrZero returns the transaction duration, or zero when absent.
func (r Record) DurationOrZero() time.Duration {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}

// PointInTime is the reference time of the record: when it was received if
// known, otherwise when it was created.
func (r Record) PointInTime() time.Time {
	if !r.Received.IsZero() {
		return r.Received
	}
	return r.Timestamp
}

// Field resolves a discover field name. The boolean is false when the field
// is unknown or not present on this record.
func (r Record) Field(name string) (Value, bool) {
	switch name {
	case FieldID:
		return StringValue(r.ID), r.ID != ""
	case FieldTitle:
		return StringValue(r.Title), true
	case FieldEventType:
		return StringValue(string(r.Type)), r.Type != ""
	case FieldProject:
		if r.Project == "" {
			return StringValue(strconv.FormatInt(r.ProjectID, 10)), r.ProjectID != 0
		}
		return StringValue(r.Project), true
	case FieldProjectID:
		return NumberValue(float64(r.ProjectID)), r.ProjectID != 0
	case FieldTimestamp:
		return StringValue(r.Timestamp.UTC().Format(time.RFC3339Nano)), !r.Timestamp.IsZero()
	case FieldTransaction:
		return StringValue(r.Transaction), r.Transaction != ""
	case FieldTransactionDuration:
		if r.Duration == nil {
			return Value{}, false
		}
		return NumberValue(float64(*r.Duration) / float64(time.Millisecond)), true
	case FieldTrace:
		return StringValue(r.TraceID), r.TraceID != ""
	case FieldTraceSpan:
		return StringValue(r.SpanID), r.SpanID != ""
	case FieldUser:
		return StringValue(r.User), r.User != ""
	case FieldPlatform:
		return StringValue(r.Platform), r.Platform != ""
	default:
		return Value{}, false
	}
}

// Value is a string or numeric field value.
type Value struct {
	str     string
	num     float64
	numeric bool
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{str: s} }

// NumberValue wraps a number.
func NumberValue(n float64) Value { return Value{num: n, numeric: true} }

// IsNumber reports whether the value holds a number.
func (v Value) IsNumber() bool { return v.numeric }

// Number returns the numeric value, parsing strings when possible.
func (v Value) Number() (float64, bool) {
	if v.numeric {
		return v.num, true
	}
	n, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String returns the raw stringified value.
func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

// Dur returns a pointer to d, for building records with a duration.
func Dur(d time.Duration) *time.Duration {
	return &d
}

// Span is one span of a transaction event, used by the comparison view.
type Span struct {
	SpanID      string
	ParentID    string
	Op          string
	Description string
	Start       time.Time
	End         time.Time
	Error       bool
}

// Event is a record together with its spans.
type Event struct {
	Record
	Spans []Span
}

// TraceBounds returns the earliest start and latest end over the event and
// its spans.
func (e Event) TraceBounds() (start, end time.Time) {
	start = e.Start
	if start.IsZero() {
		start = e.Timestamp
	}
	end = e.Timestamp
	for _, s := range e.Spans {
		if !s.Start.IsZero() && s.Start.Before(start) {
			start = s.Start
		}
		if s.End.After(end) {
			end = s.End
		}
	}
	return start, end
}
