package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Sends a batch of "GET /api/users" transactions with growing durations to
// a running perfdash OTLP endpoint. Every third request fails in its
// database span, so related events have errors to show.
// Usage: go run send_trace.go <endpoint> [count]
// Example: go run send_trace.go 127.0.0.1:38279 10
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <endpoint> [count]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 127.0.0.1:38279 10\n", os.Args[0])
		os.Exit(1)
	}

	endpoint := os.Args[1]
	count := 5
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "❌ count must be a positive number, got %q\n", os.Args[2])
			os.Exit(1)
		}
		count = n
	}
	fmt.Printf("📡 Connecting to OTLP endpoint: %s\n", endpoint)

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create grpc client: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	client := collectortrace.NewTraceServiceClient(conn)

	now := time.Now().Add(-time.Duration(count) * time.Second)
	var spans []*tracepb.Span
	for i := range count {
		start := now.Add(time.Duration(i) * time.Second)
		spans = append(spans, request(i, start, time.Duration(50+25*i)*time.Millisecond, i%3 == 2)...)
	}

	fmt.Printf("🚀 Sending %d transactions (%d spans)...\n", count, len(spans))
	_, err = client.Export(context.Background(), &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						stringAttr("service.name", "demo-web-service"),
						stringAttr("telemetry.sdk.language", "go"),
						stringAttr("service.version", "1.0.0"),
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to export spans: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Transactions exported successfully!")
	fmt.Printf("📊 GET /api/users: %d requests, 50ms to %dms\n", count, 50+25*(count-1))
}

// request builds the server span and its database child for request i.
func request(i int, start time.Time, d time.Duration, failed bool) []*tracepb.Span {
	traceID := make([]byte, 16)
	binary.BigEndian.PutUint64(traceID[:8], 0xdeadbeefcafebabe)
	binary.BigEndian.PutUint64(traceID[8:], uint64(i+1))
	rootID := make([]byte, 8)
	binary.BigEndian.PutUint64(rootID, uint64(0x1100+i))
	dbID := make([]byte, 8)
	binary.BigEndian.PutUint64(dbID, uint64(0x2200+i))

	dbStatus := &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK}
	if failed {
		dbStatus = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR, Message: "connection reset by peer"}
	}

	return []*tracepb.Span{
		{
			TraceId:           traceID,
			SpanId:            rootID,
			Name:              "GET /api/users",
			Kind:              tracepb.Span_SPAN_KIND_SERVER,
			StartTimeUnixNano: uint64(start.UnixNano()),
			EndTimeUnixNano:   uint64(start.Add(d).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				stringAttr("http.request.method", "GET"),
				stringAttr("url.path", "/api/users"),
				stringAttr("user.email", "demo@example.com"),
			},
			Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
		},
		{
			TraceId:           traceID,
			SpanId:            dbID,
			ParentSpanId:      rootID,
			Name:              "SELECT users",
			Kind:              tracepb.Span_SPAN_KIND_CLIENT,
			StartTimeUnixNano: uint64(start.Add(5 * time.Millisecond).UnixNano()),
			EndTimeUnixNano:   uint64(start.Add(d - 5*time.Millisecond).UnixNano()),
			Attributes: []*commonpb.KeyValue{
				stringAttr("db.system", "postgresql"),
				stringAttr("db.statement", "SELECT * FROM users WHERE id = $1"),
			},
			Status: dbStatus,
		},
	}
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}
