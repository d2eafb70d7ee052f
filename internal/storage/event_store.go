package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/perfdash/internal/discover"
)

// ErrNotFound is returned when an event, baseline or rule does not exist.
var ErrNotFound = errors.New("not found")

const (
	// DefaultCapacity is the default number of records kept.
	DefaultCapacity = 10_000

	// DefaultWindowPadding widens point-in-time query windows on both sides.
	DefaultWindowPadding = 12 * time.Hour

	maxSpansPerTrace = 2_000
)

// Options configure an EventStore.
type Options struct {
	Capacity      int
	WindowPadding time.Duration
	Projects      []discover.Project
	// Now is used to stamp received times; defaults to time.Now.
	Now func() time.Time
}

type traceEntry struct {
	spans []storedSpan
	refs  int // records referencing this trace
}

// EventStore keeps recent records in a ring buffer and answers discover
// queries over them. It is safe for concurrent use.
type EventStore struct {
	mu      sync.RWMutex
	records *RingBuffer[*discover.Record]
	byID    map[string]*discover.Record
	traces  map[string]*traceEntry
	pins    map[string]string // transaction name -> event id

	projects *ProjectDirectory
	padding  time.Duration
	now      func() time.Time

	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64
}

// NewEventStore creates a store. Zero options fall back to defaults.
func NewEventStore(opts Options) *EventStore {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.WindowPadding <= 0 {
		opts.WindowPadding = DefaultWindowPadding
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &EventStore{
		records:     NewRingBuffer[*discover.Record](opts.Capacity),
		byID:        make(map[string]*discover.Record),
		traces:      make(map[string]*traceEntry),
		pins:        make(map[string]string),
		projects:    NewProjectDirectory(opts.Projects),
		padding:     opts.WindowPadding,
		now:         opts.Now,
		subscribers: make(map[uint64]chan struct{}),
	}
}

// Projects returns the project directory used for ingest.
func (s *EventStore) Projects() *ProjectDirectory {
	return s.projects
}

// ReceiveSpans converts OTLP spans into transaction and error records.
func (s *EventStore) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	c := convertSpans(resourceSpans, s.projects, s.now().UTC())
	s.mu.Lock()
	for traceID, spans := range c.spans {
		s.addSpansLocked(traceID, spans)
	}
	s.mu.Unlock()
	s.Add(c.records...)
	return nil
}

// ReceiveLogs converts OTLP log records into default and error records.
func (s *EventStore) ReceiveLogs(ctx context.Context, resourceLogs []*logspb.ResourceLogs) error {
	s.Add(convertLogs(resourceLogs, s.projects, s.now().UTC())...)
	return nil
}

// AddSpans stores spans of a trace for the comparison waterfall. The
// transaction argument marks a span as the root of a transaction.
func (s *EventStore) AddSpans(traceID string, spans []discover.Span, transactions map[string]string) {
	stored := make([]storedSpan, len(spans))
	for i, sp := range spans {
		stored[i] = storedSpan{Span: sp, transaction: transactions[sp.SpanID]}
	}
	s.mu.Lock()
	s.addSpansLocked(traceID, stored)
	s.mu.Unlock()
}

func (s *EventStore) addSpansLocked(traceID string, spans []storedSpan) {
	te := s.traces[traceID]
	if te == nil {
		te = &traceEntry{}
		s.traces[traceID] = te
	}
	seen := make(map[string]bool, len(te.spans))
	for _, sp := range te.spans {
		seen[sp.SpanID] = true
	}
	for _, sp := range spans {
		if len(te.spans) >= maxSpansPerTrace {
			return
		}
		if seen[sp.SpanID] {
			continue
		}
		seen[sp.SpanID] = true
		te.spans = append(te.spans, sp)
	}
}

// Add stores records, skipping ids that are already stored. Subscribers are
// notified once per call.
func (s *EventStore) Add(records ...discover.Record) {
	if len(records) == 0 {
		return
	}

	s.mu.Lock()
	added := 0
	for _, r := range records {
		if r.ID == "" || s.byID[r.ID] != nil {
			continue
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = s.now().UTC()
		}
		if r.Type == discover.EventTypeError && r.Transaction == "" && r.TraceID != "" {
			r.Transaction = s.transactionForLocked(r.TraceID, r.SpanID)
		}

		rec := r
		if evicted, ok := s.records.Add(&rec); ok {
			s.dropLocked(evicted)
		}
		s.byID[rec.ID] = &rec
		if rec.TraceID != "" {
			te := s.traces[rec.TraceID]
			if te == nil {
				te = &traceEntry{}
				s.traces[rec.TraceID] = te
			}
			te.refs++
		}
		added++
	}
	if len(s.traces) > s.records.Capacity() {
		s.pruneTracesLocked()
	}
	s.mu.Unlock()

	if added > 0 {
		s.notifySubscribers()
	}
}

func (s *EventStore) dropLocked(r *discover.Record) {
	if s.byID[r.ID] == r {
		delete(s.byID, r.ID)
	}
	if r.TraceID == "" {
		return
	}
	if te := s.traces[r.TraceID]; te != nil {
		te.refs--
		if te.refs <= 0 {
			delete(s.traces, r.TraceID)
		}
	}
}

// pruneTracesLocked drops span lists no stored record refers to.
func (s *EventStore) pruneTracesLocked() {
	for id, te := range s.traces {
		if te.refs <= 0 {
			delete(s.traces, id)
		}
	}
}

// transactionForLocked walks up from spanID to the nearest transaction span
// of the trace.
func (s *EventStore) transactionForLocked(traceID, spanID string) string {
	te := s.traces[traceID]
	if te == nil {
		return ""
	}
	byID := make(map[string]storedSpan, len(te.spans))
	for _, sp := range te.spans {
		byID[sp.SpanID] = sp
	}
	for seen := 0; spanID != "" && seen <= len(byID); seen++ {
		sp, ok := byID[spanID]
		if !ok {
			return ""
		}
		if sp.transaction != "" {
			return sp.transaction
		}
		spanID = sp.ParentID
	}
	return ""
}

// Execute runs a discover query. The window is padded on both sides; an
// empty project scope covers all projects.
func (s *EventStore) Execute(ctx context.Context, q discover.Query) (*discover.TableData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows, err := s.match(q)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	sortRecords(rows, q.Sorts())
	if n := q.Limit(); n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return &discover.TableData{Data: rows, Meta: metaFor(q.Fields())}, nil
}

// match returns copies of the records satisfying the query's scope, window
// and predicate, oldest first.
func (s *EventStore) match(q discover.Query) ([]discover.Record, error) {
	conds, err := parseConditions(q.Filter())
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", q.Filter(), err)
	}

	var start, end time.Time
	if q.HasWindow() {
		start, end = q.Start(), q.End()
		if !start.IsZero() {
			start = start.Add(-s.padding)
		}
		if !end.IsZero() {
			end = end.Add(s.padding)
		}
	}
	projects := q.Projects()

	var rows []discover.Record
	for _, r := range s.records.GetAll() {
		if len(projects) > 0 && !slices.Contains(projects, r.ProjectID) {
			continue
		}
		if !start.IsZero() && r.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && r.Timestamp.After(end) {
			continue
		}
		if !matchesAll(*r, conds) {
			continue
		}
		rows = append(rows, *r)
	}
	return rows, nil
}

// metaFor returns the types of the selected fields, or of every field when
// none are selected.
func metaFor(fields []string) discover.Meta {
	if len(fields) == 0 {
		return maps.Clone(discover.FieldTypes)
	}
	meta := make(discover.Meta, len(fields))
	for _, f := range fields {
		alias := discover.AggregateAlias(f)
		if t, ok := discover.FieldTypes[alias]; ok {
			meta[alias] = t
		}
	}
	return meta
}

// sortRecords orders rows by each sort in turn. Records missing a sort field
// go last.
func sortRecords(rows []discover.Record, sorts []discover.Sort) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, srt := range sorts {
			c := compareField(rows[i], rows[j], srt.Field)
			if c == 0 {
				continue
			}
			if c == missingLast || c == -missingLast {
				return c < 0
			}
			if srt.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

const missingLast = 2

// compareField returns -1/0/1, or ±missingLast when one side lacks the
// field (the present side sorts first).
func compareField(a, b discover.Record, field string) int {
	if field == discover.FieldTimestamp {
		return a.Timestamp.Compare(b.Timestamp)
	}
	va, okA := a.Field(field)
	vb, okB := b.Field(field)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return missingLast
	case !okB:
		return -missingLast
	}
	na, numA := va.Number()
	nb, numB := vb.Number()
	if va.IsNumber() || vb.IsNumber() || (numA && numB) {
		return cmp.Compare(na, nb)
	}
	return cmp.Compare(va.String(), vb.String())
}

// Baseline picks the baseline transaction for a query: the pinned event of
// the query's transaction when there is one, otherwise the transaction with
// the median duration. It returns nil when nothing matches.
func (s *EventStore) Baseline(ctx context.Context, q discover.Query) (*discover.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows, err := s.match(q)
	pins := make(map[string]string, len(s.pins))
	for k, v := range s.pins {
		pins[k] = v
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var txns []discover.Record
	for _, r := range rows {
		if r.IsTransaction() {
			txns = append(txns, r)
		}
	}
	if len(txns) == 0 {
		return nil, nil
	}

	for _, r := range txns {
		if id, ok := pins[r.Transaction]; ok {
			for _, c := range txns {
				if c.ID == id {
					return &c, nil
				}
			}
		}
	}

	slices.SortStableFunc(txns, func(a, b discover.Record) int {
		return cmp.Compare(a.DurationOrZero(), b.DurationOrZero())
	})
	median := txns[(len(txns)-1)/2]
	return &median, nil
}

// PinBaseline makes the event the baseline of its transaction.
func (s *EventStore) PinBaseline(transaction string, slug discover.EventSlug) (*discover.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookupLocked(slug)
	if err != nil {
		return nil, err
	}
	if !r.IsTransaction() {
		return nil, fmt.Errorf("event %s is not a transaction", slug)
	}
	if r.Transaction != transaction {
		return nil, fmt.Errorf("event %s belongs to transaction %q, not %q", slug, r.Transaction, transaction)
	}
	s.pins[transaction] = r.ID
	cp := *r
	return &cp, nil
}

// UnpinBaseline removes the pin of a transaction.
func (s *EventStore) UnpinBaseline(transaction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[transaction]; !ok {
		return fmt.Errorf("baseline for %q: %w", transaction, ErrNotFound)
	}
	delete(s.pins, transaction)
	return nil
}

// Record returns the record with the given slug.
func (s *EventStore) Record(slug discover.EventSlug) (*discover.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := s.lookupLocked(slug)
	if err != nil {
		return nil, err
	}
	cp := *r
	return &cp, nil
}

func (s *EventStore) lookupLocked(slug discover.EventSlug) (*discover.Record, error) {
	r := s.byID[slug.EventID]
	if r == nil || (r.Project != slug.Project && strconv.FormatInt(r.ProjectID, 10) != slug.Project) {
		return nil, fmt.Errorf("event %s: %w", slug, ErrNotFound)
	}
	return r, nil
}

// Event returns the record with its spans. For a transaction the spans are
// its descendants up to, but excluding, nested transactions.
func (s *EventStore) Event(ctx context.Context, slug discover.EventSlug) (*discover.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.lookupLocked(slug)
	if err != nil {
		return nil, err
	}
	ev := &discover.Event{Record: *r}
	if r.IsTransaction() {
		if te := s.traces[r.TraceID]; te != nil {
			ev.Spans = descendants(te.spans, r.SpanID)
		}
	}
	return ev, nil
}

func descendants(spans []storedSpan, rootID string) []discover.Span {
	children := make(map[string][]storedSpan)
	for _, sp := range spans {
		if sp.SpanID != rootID {
			children[sp.ParentID] = append(children[sp.ParentID], sp)
		}
	}
	var out []discover.Span
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range children[id] {
			if visited[c.SpanID] || c.transaction != "" {
				continue
			}
			visited[c.SpanID] = true
			out = append(out, c.Span)
			queue = append(queue, c.SpanID)
		}
	}
	slices.SortStableFunc(out, func(a, b discover.Span) int { return a.Start.Compare(b.Start) })
	return out
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel is buffered with capacity 1 to coalesce rapid updates.
func (s *EventStore) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	return ch, func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *EventStore) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Pending notification already queued.
		}
	}
}

// Stats describes the store's contents.
type Stats struct {
	Records      int `json:"records"`
	Capacity     int `json:"capacity"`
	Transactions int `json:"transactions"`
	Errors       int `json:"errors"`
	Traces       int `json:"traces"`
	Pins         int `json:"pins"`
	Subscribers  int `json:"subscribers"`
}

// Stats returns current storage statistics.
func (s *EventStore) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Records:  s.records.Size(),
		Capacity: s.records.Capacity(),
		Traces:   len(s.traces),
		Pins:     len(s.pins),
	}
	for _, r := range s.byID {
		switch r.Type {
		case discover.EventTypeTransaction:
			st.Transactions++
		case discover.EventTypeError:
			st.Errors++
		}
	}
	s.mu.RUnlock()

	s.subscriberMu.Lock()
	st.Subscribers = len(s.subscribers)
	s.subscriberMu.Unlock()
	return st
}

// Clear removes all records, spans and pins.
func (s *EventStore) Clear() {
	s.mu.Lock()
	s.records.Clear()
	s.byID = make(map[string]*discover.Record)
	s.traces = make(map[string]*traceEntry)
	s.pins = make(map[string]string)
	s.mu.Unlock()
	s.notifySubscribers()
}
