package storage

import (
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/perfdash/internal/discover"
)

var t0 = time.Date(2021, 3, 4, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0 }

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func resource(service string) *resourcepb.Resource {
	return &resourcepb.Resource{Attributes: []*commonpb.KeyValue{
		strAttr("service.name", service),
		strAttr("telemetry.sdk.language", "go"),
	}}
}

// makeResourceSpans wraps spans in a single resource/scope.
func makeResourceSpans(service string, spans ...*tracepb.Span) []*tracepb.ResourceSpans {
	return []*tracepb.ResourceSpans{{
		Resource:   resource(service),
		ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
	}}
}

func makeSpan(traceID, spanID, parentID byte, name string, start, end time.Duration) *tracepb.Span {
	s := &tracepb.Span{
		TraceId:           []byte{traceID, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		SpanId:            []byte{spanID, 0, 0, 0, 0, 0, 0, 1},
		Name:              name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: uint64(t0.Add(start).UnixNano()),
		EndTimeUnixNano:   uint64(t0.Add(end).UnixNano()),
	}
	if parentID != 0 {
		s.ParentSpanId = []byte{parentID, 0, 0, 0, 0, 0, 0, 1}
	}
	return s
}

func rec(id string, typ discover.EventType, project int64, ts time.Time) discover.Record {
	return discover.Record{
		ID:        id,
		Type:      typ,
		Title:     "title " + id,
		ProjectID: project,
		Project:   "p" + string(rune('0'+project)),
		Timestamp: ts,
	}
}

func txnRec(id, name string, project int64, d time.Duration) discover.Record {
	r := rec(id, discover.EventTypeTransaction, project, t0)
	r.Title, r.Transaction = name, name
	r.Start = t0.Add(-d)
	r.Duration = discover.Dur(d)
	r.TraceID = "trace-" + id
	return r
}
