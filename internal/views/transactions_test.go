package views

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/perfdash/internal/analytics"
	"github.com/tobert/perfdash/internal/discover"
)

func newList(params url.Values, rec *analytics.Recorder) TransactionList {
	return TransactionList{
		Org: discover.Organization{ID: "1", Slug: "acme"},
		Query: discover.NewQuery(discover.QueryOptions{
			Name:     "GET /api/users",
			Fields:   []string{"id", "user.display", "transaction.duration", "timestamp"},
			Filter:   "transaction:\"GET /api/users\"",
			Projects: []int64{7},
		}),
		Transaction: "GET /api/users",
		Params:      params,
		Tracker:     rec,
	}
}

func TestTransactionListActiveFilter(t *testing.T) {
	tests := []struct {
		param string
		want  string
		sort  string
	}{
		{"", "slowest", "-transaction.duration"},
		{"fastest", "fastest", "transaction.duration"},
		{"recent", "recent", "-timestamp"},
		{"garbage", "slowest", "-transaction.duration"},
	}
	for _, tt := range tests {
		l := newList(url.Values{ParamShowTransactions: {tt.param}}, nil)
		assert.Equal(t, tt.want, l.ActiveFilter().Value)
		require.Len(t, l.SortedQuery().Sorts(), 1)
		assert.Equal(t, tt.sort, l.SortedQuery().Sorts()[0].String())
		assert.Empty(t, l.Query.Sorts(), "base query must not change")
	}
}

func TestTransactionListDropdown(t *testing.T) {
	l := newList(url.Values{ParamShowTransactions: {"recent"}, "project": {"7"}}, nil)
	items := l.Dropdown()
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, it.Value == "recent", it.Active)
	}
	assert.Equal(t, "/organizations/acme/performance/summary/?project=7&showTransactions=fastest", items[1].Target)
	assert.Equal(t, []string{"recent"}, l.Params[ParamShowTransactions])
}

func TestTransactionListTracking(t *testing.T) {
	rec := &analytics.Recorder{}
	l := newList(url.Values{}, rec)

	target := l.FilterTarget("fastest")
	assert.Contains(t, target, "showTransactions=fastest")

	discoverURL := l.DiscoverTarget()
	assert.Contains(t, discoverURL, "/organizations/acme/discover/results/?")
	assert.Contains(t, discoverURL, "sort=-transaction.duration")

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, analytics.EventFilterTransactions, events[0].Key)
	assert.Equal(t, map[string]any{"organization_id": 1, "value": "fastest"}, events[0].Payload)
	assert.Equal(t, analytics.EventViewInDiscover, events[1].Key)
}

func TestTransactionListTrackingPanicDoesNotEscape(t *testing.T) {
	l := newList(url.Values{}, nil)
	l.Tracker = analytics.TrackerFunc(func(string, map[string]any) { panic("down") })
	assert.NotPanics(t, func() { l.DiscoverTarget() })
}

func TestTransactionTableLoading(t *testing.T) {
	l := newList(url.Values{}, nil)
	data := &discover.TableData{Data: []discover.Record{txn("a", "api", time.Second)}, Meta: discover.FieldTypes}
	base := txn("b", "api", time.Second)

	loading := discover.State[*discover.TableData]{Loading: true}
	loadingBase := discover.State[*discover.Record]{Loading: true}

	tests := []struct {
		name    string
		primary discover.State[*discover.TableData]
		base    discover.State[*discover.Record]
		want    bool
	}{
		{"both done", discover.Ready(data, nil), discover.Ready(&base, nil), false},
		{"primary loading", loading, discover.Ready(&base, nil), true},
		{"baseline loading", discover.Ready(data, nil), loadingBase, true},
		{"both loading", loading, loadingBase, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := l.Table(tt.primary, tt.base)
			assert.Equal(t, tt.want, table.Loading)
			if tt.want {
				assert.Empty(t, table.Rows)
			}
		})
	}
}

func TestTransactionTableRows(t *testing.T) {
	l := newList(url.Values{}, nil)
	data := &discover.TableData{
		Data: []discover.Record{txn("a0000001", "api", 300*time.Millisecond), txn("a0000002", "api", 100*time.Millisecond)},
		Meta: discover.FieldTypes,
	}
	base := txn("b0000001", "api", 200*time.Millisecond)

	table := l.Table(discover.Ready(data, nil), discover.Ready(&base, nil))
	require.Len(t, table.Headers, 5)
	last := table.Headers[4]
	assert.Equal(t, "Compared to Baseline", last.Title)
	assert.Equal(t, discover.AlignRight, last.Align)
	assert.Equal(t, discover.AlignRight, table.Headers[2].Align)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "100.00ms slower", table.Rows[0][4].Text)
	assert.Equal(t, "100.00ms faster", table.Rows[1][4].Text)
	assert.NotEmpty(t, table.Rows[0][0].Link)
	assert.False(t, table.Empty)
	assert.Contains(t, table.Text(), "Compared to Baseline")
}

func TestTransactionTableWithoutBaseline(t *testing.T) {
	l := newList(url.Values{}, nil)
	data := &discover.TableData{Data: []discover.Record{txn("a", "api", time.Second)}, Meta: discover.FieldTypes}

	for _, bs := range []discover.State[*discover.Record]{
		discover.Ready[*discover.Record](nil, nil),
		discover.Ready[*discover.Record](nil, errors.New("baseline failed")),
	} {
		table := l.Table(discover.Ready(data, nil), bs)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, "-", table.Rows[0][4].Text)
	}
}

func TestTransactionTableEmpty(t *testing.T) {
	l := newList(url.Values{}, nil)
	for name, st := range map[string]discover.State[*discover.TableData]{
		"no rows":  discover.Ready(&discover.TableData{Meta: discover.FieldTypes}, nil),
		"no meta":  discover.Ready(&discover.TableData{Data: []discover.Record{txn("a", "api", time.Second)}}, nil),
		"nil data": discover.Ready[*discover.TableData](nil, nil),
		"error":    discover.Ready[*discover.TableData](nil, errors.New("boom")),
	} {
		table := l.Table(st, discover.Ready[*discover.Record](nil, nil))
		assert.True(t, table.Empty, name)
		assert.Equal(t, "No transactions found", table.EmptyMessage, name)
		assert.Equal(t, "No transactions found\n", table.Text(), name)
	}
}

func TestTransactionListLoad(t *testing.T) {
	base := txn("b", "api", 200*time.Millisecond)
	queries := &fakeQueries{data: &discover.TableData{
		Data: []discover.Record{txn("a", "api", 300*time.Millisecond)},
		Meta: discover.FieldTypes,
	}}
	baselines := &fakeBaselines{rec: &base}

	l := newList(url.Values{ParamShowTransactions: {"fastest"}}, nil)
	table := l.Load(context.Background(), queries, baselines)

	assert.False(t, table.Loading)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "100.00ms slower", table.Rows[0][4].Text)

	q := queries.last()
	assert.Equal(t, discover.TopTransactionLimit, q.Limit())
	assert.Equal(t, "transaction.duration", q.Sorts()[0].String())
}

func TestTransactionListLoadDeadline(t *testing.T) {
	queries := &fakeQueries{data: &discover.TableData{Meta: discover.FieldTypes}}
	baselines := &fakeBaselines{block: make(chan struct{})}
	defer close(baselines.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	table := newList(url.Values{}, nil).Load(ctx, queries, baselines)
	assert.True(t, table.Loading)
	assert.Equal(t, "Loading...\n", table.Text())
}
