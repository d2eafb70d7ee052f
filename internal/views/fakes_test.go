package views

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tobert/perfdash/internal/discover"
)

var t0 = time.Date(2021, 3, 4, 12, 0, 0, 0, time.UTC)

func txn(id, project string, d time.Duration) discover.Record {
	return discover.Record{
		ID:          id,
		Type:        discover.EventTypeTransaction,
		Title:       "GET /api/users",
		Transaction: "GET /api/users",
		ProjectID:   7,
		Project:     project,
		Timestamp:   t0,
		Start:       t0.Add(-d),
		Duration:    discover.Dur(d),
		TraceID:     "trace-" + id,
	}
}

type fakeQueries struct {
	mu      sync.Mutex
	data    *discover.TableData
	err     error
	block   chan struct{}
	queries []discover.Query
}

func (f *fakeQueries) Execute(ctx context.Context, q discover.Query) (*discover.TableData, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.data, f.err
}

func (f *fakeQueries) last() discover.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeBaselines struct {
	rec   *discover.Record
	err   error
	block chan struct{}
}

func (f *fakeBaselines) Baseline(ctx context.Context, q discover.Query) (*discover.Record, error) {
	if f.block != nil {
		<-f.block
	}
	return f.rec, f.err
}

type fakeEvents map[string]*discover.Event

func (f fakeEvents) Event(ctx context.Context, slug discover.EventSlug) (*discover.Event, error) {
	if e, ok := f[slug.String()]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("event %s not found", slug)
}
