package storage

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/perfdash/internal/discover"
)

// eventNamespace seeds the deterministic ids of converted events, so the
// same span ingested twice maps to the same event.
var eventNamespace = uuid.MustParse("6f1c1f0e-3c7a-4f53-9d3e-2a5b8f0c9e41")

func eventID(parts ...string) string {
	u := uuid.NewSHA1(eventNamespace, []byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(u[:])
}

// ProjectDirectory maps OTLP service names to projects. Configured projects
// keep their ids; unknown services are registered with the next free id.
type ProjectDirectory struct {
	mu     sync.Mutex
	bySlug map[string]discover.Project
	nextID int64
}

// NewProjectDirectory seeds the directory with known projects.
func NewProjectDirectory(projects []discover.Project) *ProjectDirectory {
	d := &ProjectDirectory{bySlug: make(map[string]discover.Project), nextID: 1}
	for _, p := range projects {
		d.bySlug[p.Slug] = p
		d.nextID = max(d.nextID, p.ID+1)
	}
	return d
}

// Resolve returns the project for a service, registering it if needed.
func (d *ProjectDirectory) Resolve(service, platform string) discover.Project {
	slug := Slugify(service)

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.bySlug[slug]; ok {
		if p.Platform == "" && platform != "" {
			p.Platform = platform
			d.bySlug[slug] = p
		}
		return p
	}
	p := discover.Project{ID: d.nextID, Slug: slug, Platform: platform}
	d.nextID++
	d.bySlug[slug] = p
	return p
}

// Projects returns all known projects ordered by id.
func (d *ProjectDirectory) Projects() []discover.Project {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]discover.Project, 0, len(d.bySlug))
	for _, p := range d.bySlug {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Index returns a snapshot of the directory as a ProjectIndex.
func (d *ProjectDirectory) Index() discover.ProjectIndex {
	return discover.NewProjectIndex(d.Projects())
}

// Slugify lowercases a service name and replaces characters outside
// [a-z0-9_-] with dashes.
func Slugify(service string) string {
	if service == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(service) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// converted is the result of converting one OTLP batch.
type converted struct {
	records []discover.Record
	spans   map[string][]storedSpan // trace id -> spans
}

// storedSpan is a span kept in the trace index. Transaction spans are the
// roots of their own events.
type storedSpan struct {
	discover.Span
	transaction string // set when the span is a transaction
}

func convertSpans(resourceSpans []*tracepb.ResourceSpans, dir *ProjectDirectory, received time.Time) converted {
	out := converted{spans: make(map[string][]storedSpan)}
	for _, rs := range resourceSpans {
		project := dir.Resolve(extractServiceName(rs.Resource), resourceAttr(rs.Resource, "telemetry.sdk.language"))
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				traceID := traceIDToString(span.TraceId)
				spanID := spanIDToString(span.SpanId)
				start, end := nanoTime(span.StartTimeUnixNano), nanoTime(span.EndTimeUnixNano)
				if end.Before(start) {
					end = start
				}
				isErr := span.Status != nil && span.Status.Code == tracepb.Status_STATUS_CODE_ERROR

				st := storedSpan{Span: discover.Span{
					SpanID:      spanID,
					ParentID:    spanIDToString(span.ParentSpanId),
					Op:          spanOp(span),
					Description: span.Name,
					Start:       start,
					End:         end,
					Error:       isErr,
				}}

				base := discover.Record{
					ProjectID: project.ID,
					Project:   project.Slug,
					Platform:  project.Platform,
					Timestamp: end,
					Received:  received,
					TraceID:   traceID,
					SpanID:    spanID,
					User:      userDisplay(span.Attributes),
				}

				if isTransactionSpan(span) {
					st.transaction = span.Name
					r := base
					r.ID = eventID("transaction", traceID, spanID)
					r.Type = discover.EventTypeTransaction
					r.Title = span.Name
					r.Transaction = span.Name
					r.Start = start
					r.Duration = discover.Dur(end.Sub(start))
					out.records = append(out.records, r)
				}
				if isErr {
					r := base
					r.ID = eventID("error", traceID, spanID)
					r.Type = discover.EventTypeError
					r.Title = errorTitle(span)
					r.Timestamp = start
					for _, ev := range span.Events {
						if ev.Name == "exception" {
							r.Timestamp = nanoTime(ev.TimeUnixNano)
							break
						}
					}
					out.records = append(out.records, r)
				}
				out.spans[traceID] = append(out.spans[traceID], st)
			}
		}
	}
	return out
}

func convertLogs(resourceLogs []*logspb.ResourceLogs, dir *ProjectDirectory, received time.Time) []discover.Record {
	var out []discover.Record
	for _, rl := range resourceLogs {
		service := extractServiceName(rl.Resource)
		project := dir.Resolve(service, resourceAttr(rl.Resource, "telemetry.sdk.language"))
		for _, sl := range rl.ScopeLogs {
			for i, lr := range sl.LogRecords {
				ts := nanoTime(lr.TimeUnixNano)
				if lr.TimeUnixNano == 0 {
					ts = nanoTime(lr.ObservedTimeUnixNano)
				}
				if ts.IsZero() {
					ts = received
				}
				body := extractLogBody(lr.Body)
				traceID := traceIDToString(lr.TraceId)
				spanID := spanIDToString(lr.SpanId)

				typ := discover.EventTypeDefault
				if lr.SeverityNumber >= logspb.SeverityNumber_SEVERITY_NUMBER_ERROR {
					typ = discover.EventTypeError
				}
				out = append(out, discover.Record{
					ID:        eventID("log", service, traceID, spanID, strconv.FormatUint(lr.TimeUnixNano, 10), strconv.Itoa(i), body),
					Type:      typ,
					Title:     body,
					ProjectID: project.ID,
					Project:   project.Slug,
					Platform:  project.Platform,
					Timestamp: ts,
					Received:  received,
					TraceID:   traceID,
					SpanID:    spanID,
					User:      userDisplay(lr.Attributes),
				})
			}
		}
	}
	return out
}

// isTransactionSpan reports whether a span starts a transaction: it has no
// parent, or it is the entry point of a service.
func isTransactionSpan(span *tracepb.Span) bool {
	if len(span.ParentSpanId) == 0 {
		return true
	}
	switch span.Kind {
	case tracepb.Span_SPAN_KIND_SERVER, tracepb.Span_SPAN_KIND_CONSUMER:
		return true
	}
	return false
}

func spanOp(span *tracepb.Span) string {
	switch {
	case hasAttr(span.Attributes, "db.system"):
		return "db"
	case hasAttr(span.Attributes, "http.request.method"), hasAttr(span.Attributes, "http.method"):
		if span.Kind == tracepb.Span_SPAN_KIND_SERVER {
			return "http.server"
		}
		return "http.client"
	case hasAttr(span.Attributes, "rpc.system"):
		return "rpc"
	case hasAttr(span.Attributes, "messaging.system"):
		return "queue"
	}
	switch span.Kind {
	case tracepb.Span_SPAN_KIND_SERVER:
		return "server"
	case tracepb.Span_SPAN_KIND_CLIENT:
		return "client"
	case tracepb.Span_SPAN_KIND_PRODUCER, tracepb.Span_SPAN_KIND_CONSUMER:
		return "queue"
	}
	return "function"
}

// errorTitle prefers the recorded exception, then the status message.
func errorTitle(span *tracepb.Span) string {
	for _, ev := range span.Events {
		if ev.Name != "exception" {
			continue
		}
		typ := attrString(ev.Attributes, "exception.type")
		msg := attrString(ev.Attributes, "exception.message")
		switch {
		case typ != "" && msg != "":
			return typ + ": " + msg
		case msg != "":
			return msg
		case typ != "":
			return typ
		}
	}
	if span.Status != nil && span.Status.Message != "" {
		return span.Status.Message
	}
	return span.Name
}

func userDisplay(attrs []*commonpb.KeyValue) string {
	for _, key := range []string{"enduser.id", "user.email", "user.name", "user.id"} {
		if v := attrString(attrs, key); v != "" {
			return v
		}
	}
	return ""
}

func hasAttr(attrs []*commonpb.KeyValue, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attrString(attrs []*commonpb.KeyValue, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return anyValueString(a.Value)
		}
	}
	return ""
}

func anyValueString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch x := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'f', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue)
	default:
		return ""
	}
}

func resourceAttr(resource *resourcepb.Resource, key string) string {
	if resource == nil {
		return ""
	}
	return attrString(resource.Attributes, key)
}

// extractServiceName returns the service.name resource attribute, or
// "unknown".
func extractServiceName(resource *resourcepb.Resource) string {
	if name := resourceAttr(resource, "service.name"); name != "" {
		return name
	}
	return "unknown"
}

// extractLogBody extracts the string body from an AnyValue.
func extractLogBody(body *commonpb.AnyValue) string {
	if body == nil {
		return ""
	}
	if s := anyValueString(body); s != "" {
		return s
	}
	// Structured bodies are rendered with their protobuf text form.
	return fmt.Sprintf("%v", body)
}

func nanoTime(n uint64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(n)).UTC()
}

func traceIDToString(traceID []byte) string {
	return hex.EncodeToString(traceID)
}

func spanIDToString(spanID []byte) string {
	return hex.EncodeToString(spanID)
}
