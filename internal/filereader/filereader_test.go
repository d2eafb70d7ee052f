package filereader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

type recordingReceiver struct {
	mu    sync.Mutex
	spans []string
	logs  []string
}

func (r *recordingReceiver) ReceiveSpans(ctx context.Context, rss []*tracepb.ResourceSpans) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rs := range rss {
		for _, ss := range rs.ScopeSpans {
			for _, s := range ss.Spans {
				r.spans = append(r.spans, s.Name)
			}
		}
	}
	return nil
}

func (r *recordingReceiver) ReceiveLogs(ctx context.Context, rls []*logspb.ResourceLogs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rl := range rls {
		for _, sl := range rl.ScopeLogs {
			for _, lr := range sl.LogRecords {
				r.logs = append(r.logs, lr.Body.GetStringValue())
			}
		}
	}
	return nil
}

func (r *recordingReceiver) spanNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spans...)
}

func (r *recordingReceiver) logBodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

func traceLine(t *testing.T, name string) string {
	t.Helper()
	b, err := protojson.Marshal(&tracepb.TracesData{ResourceSpans: []*tracepb.ResourceSpans{{
		Resource: &resourcepb.Resource{},
		ScopeSpans: []*tracepb.ScopeSpans{{Spans: []*tracepb.Span{{
			TraceId: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			SpanId:  []byte{1, 2, 3, 4, 5, 6, 7, 8},
			Name:    name,
		}}}},
	}}})
	require.NoError(t, err)
	return string(b) + "\n"
}

func logLine(t *testing.T, body string) string {
	t.Helper()
	b, err := protojson.Marshal(&logspb.LogsData{ResourceLogs: []*logspb.ResourceLogs{{
		ScopeLogs: []*logspb.ScopeLogs{{LogRecords: []*logspb.LogRecord{{
			Body: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: body}},
		}}}},
	}}})
	require.NoError(t, err)
	return string(b) + "\n"
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestNewValidation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	writeFile(t, file, "")

	_, err := New(Config{}, &recordingReceiver{})
	assert.Error(t, err)
	_, err = New(Config{Directory: filepath.Join(dir, "missing")}, &recordingReceiver{})
	assert.Error(t, err)
	_, err = New(Config{Directory: file}, &recordingReceiver{})
	assert.ErrorContains(t, err, "not a directory")
	_, err = New(Config{Directory: dir}, nil)
	assert.Error(t, err)
}

func TestInitialLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "traces", "traces.jsonl"),
		traceLine(t, "GET /a")+"not json\n\n"+traceLine(t, "GET /b"))
	writeFile(t, filepath.Join(dir, "traces", "traces-2025-12-09T13-10-56.jsonl"), traceLine(t, "archived"))
	writeFile(t, filepath.Join(dir, "logs", "logs.jsonl"), logLine(t, "job failed"))

	recv := &recordingReceiver{}
	fs, err := New(Config{Directory: dir, ActiveOnly: true}, recv)
	require.NoError(t, err)
	require.NoError(t, fs.Start(context.Background()))
	defer fs.Stop()

	assert.Equal(t, []string{"GET /a", "GET /b"}, recv.spanNames())
	assert.Equal(t, []string{"job failed"}, recv.logBodies())

	st := fs.Stats()
	assert.Equal(t, dir, st.Directory)
	assert.Equal(t, 2, st.FilesTracked)
	assert.Equal(t, map[string]int{SignalTraces: 2, SignalLogs: 1}, st.Lines)
	assert.Len(t, st.WatchedDirs, 2)
}

func TestInitialLoadIncludesArchives(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "traces", "traces-old.jsonl"), traceLine(t, "archived"))

	recv := &recordingReceiver{}
	fs, err := New(Config{Directory: dir}, recv)
	require.NoError(t, err)
	require.NoError(t, fs.Start(context.Background()))
	defer fs.Stop()

	assert.Equal(t, []string{"archived"}, recv.spanNames())
}

func TestWatchPicksUpAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traces", "traces.jsonl")
	writeFile(t, path, traceLine(t, "first"))

	recv := &recordingReceiver{}
	fs, err := New(Config{Directory: dir, ActiveOnly: true}, recv)
	require.NoError(t, err)
	require.NoError(t, fs.Start(context.Background()))
	defer fs.Stop()

	appendFile(t, path, traceLine(t, "second"))
	require.Eventually(t, func() bool {
		return len(recv.spanNames()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, recv.spanNames())
}

func TestProcessFilePartialAndTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traces", "traces.jsonl")
	full := traceLine(t, "complete")
	partial := traceLine(t, "partial")
	writeFile(t, path, full+partial[:10])

	recv := &recordingReceiver{}
	fs, err := New(Config{Directory: dir}, recv)
	require.NoError(t, err)
	defer fs.Stop()

	ctx := context.Background()
	n, err := fs.processFile(ctx, path, fs.handleTraceLine)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	appendFile(t, path, partial[10:])
	n, err = fs.processFile(ctx, path, fs.handleTraceLine)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"complete", "partial"}, recv.spanNames())

	writeFile(t, path, traceLine(t, "rotated"))
	n, err = fs.processFile(ctx, path, fs.handleTraceLine)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "rotated", recv.spanNames()[2])
}
