package dashboard

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
	"github.com/tobert/perfdash/internal/storage"
	"github.com/tobert/perfdash/internal/views"
)

var t0 = time.Date(2021, 3, 4, 12, 0, 0, 0, time.UTC)

func txn(id string, d time.Duration) discover.Record {
	return discover.Record{
		ID:          id,
		Type:        discover.EventTypeTransaction,
		Title:       "GET /users",
		Transaction: "GET /users",
		ProjectID:   1,
		Project:     "api",
		Timestamp:   t0,
		Start:       t0.Add(-d),
		Duration:    discover.Dur(d),
		TraceID:     "trace-" + id,
		SpanID:      "span-" + id,
	}
}

func newTestDashboard(t *testing.T, access ...string) (*Dashboard, *analytics.Recorder) {
	t.Helper()
	store := storage.NewEventStore(storage.Options{
		Projects: []discover.Project{{ID: 1, Slug: "api", Platform: "go"}},
		Now:      func() time.Time { return t0 },
	})
	store.Add(
		txn("aaaaaaaaaa", 100*time.Millisecond),
		txn("bbbbbbbbbb", 200*time.Millisecond),
		txn("cccccccccc", 300*time.Millisecond),
		discover.Record{
			ID:        "eeeeeeeeee",
			Type:      discover.EventTypeError,
			Title:     "boom",
			ProjectID: 1,
			Project:   "api",
			Timestamp: t0,
			TraceID:   "trace-aaaaaaaaaa",
		},
	)
	rules, err := storage.NewRuleStore(
		discover.Rule{ID: "1", Name: "Slow users", Kind: discover.RuleKindMetric, Project: "api", Created: t0},
	)
	require.NoError(t, err)

	rec := &analytics.Recorder{}
	d, err := New(store, rules, Config{
		Org:     discover.Organization{ID: "3", Slug: "acme"},
		Access:  access,
		Tracker: rec,
	})
	require.NoError(t, err)
	return d, rec
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, Config{Org: discover.Organization{Slug: "acme"}})
	assert.Error(t, err)
	_, err = New(storage.NewEventStore(storage.Options{}), nil, Config{})
	assert.ErrorContains(t, err, "organization slug")

	d, err := New(storage.NewEventStore(storage.Options{}), nil, Config{Org: discover.Organization{Slug: "acme"}})
	require.NoError(t, err)
	assert.Equal(t, 0, d.Rules().Count())
}

func TestCheckOrg(t *testing.T) {
	d, _ := newTestDashboard(t)
	assert.NoError(t, d.CheckOrg("acme"))
	assert.ErrorIs(t, d.CheckOrg("other"), ErrUnknownOrganization)
}

func TestSummaryQuery(t *testing.T) {
	q := SummaryQuery("GET /users", url.Values{
		"project": {"1", "x", "2"},
		"start":   {"2021-03-04T00:00:00Z"},
		"query":   {" user.display:jane "},
	})
	assert.Equal(t, `event.type:transaction transaction:"GET /users" user.display:jane`, q.Filter())
	assert.Equal(t, []int64{1, 2}, q.Projects())
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), q.Start())
	assert.True(t, q.End().IsZero())
	assert.Equal(t, TransactionSummaryFields, q.Fields())

	assert.Equal(t, "event.type:transaction transaction:checkout", SummaryQuery("checkout", nil).Filter())
}

func TestTransactions(t *testing.T) {
	d, _ := newTestDashboard(t)

	page, err := d.Transactions(context.Background(), "GET /users", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "Slowest Transactions", page.Filter)
	assert.Len(t, page.Filters, len(discover.TopTransactionFilters))
	assert.False(t, page.Table.Loading)
	require.Len(t, page.Table.Rows, 3)

	var baseline []string
	for _, row := range page.Table.Rows {
		baseline = append(baseline, row[len(row)-1].Text)
	}
	assert.Equal(t, []string{"100.00ms slower", "0.00ms", "100.00ms faster"}, baseline)
	assert.Contains(t, page.Text(), "GET /users (Slowest Transactions)")

	page, err = d.Transactions(context.Background(), "GET /users", url.Values{views.ParamShowTransactions: {"fastest"}})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa", page.Table.Rows[0][0].Text)

	page, err = d.Transactions(context.Background(), "GET /nothing", url.Values{})
	require.NoError(t, err)
	assert.True(t, page.Table.Empty)

	_, err = d.Transactions(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRelatedEvents(t *testing.T) {
	d, _ := newTestDashboard(t)

	re, err := d.RelatedEvents(context.Background(), "api:aaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "Events with Trace ID trace-aaaaaaaaaa", re.Query)
	assert.Len(t, re.Rows, 2)
	assert.True(t, re.HasErrorAction())

	_, err = d.RelatedEvents(context.Background(), "bad-slug")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.RelatedEvents(context.Background(), "api:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRelatedEventsWithoutTrace(t *testing.T) {
	d, _ := newTestDashboard(t)
	untraced := func(id string, typ discover.EventType) discover.Record {
		return discover.Record{ID: id, Type: typ, Title: "no trace " + id, ProjectID: 1, Project: "api", Timestamp: t0}
	}
	d.Store().Add(
		untraced("ffffffffff", discover.EventTypeDefault),
		untraced("gggggggggg", discover.EventTypeError),
	)

	re, err := d.RelatedEvents(context.Background(), "api:ffffffffff")
	require.NoError(t, err)
	assert.True(t, re.Empty)
	assert.Empty(t, re.Rows)
}

func TestTransactionsLiteralName(t *testing.T) {
	d, _ := newTestDashboard(t)
	named := func(id, name string) discover.Record {
		r := txn(id, 50*time.Millisecond)
		r.Title, r.Transaction = name, name
		return r
	}
	d.Store().Add(
		named("ssssssssss", "GET /static/*"),
		named("tttttttttt", "GET /static/app.css"),
		named("uuuuuuuuuu", `say"hi`),
		named("vvvvvvvvvv", `say"hi there`),
		named("wwwwwwwwww", ">5"),
	)

	for name, want := range map[string]string{
		"GET /static/*":       "ssssssss",
		"GET /static/app.css": "tttttttt",
		`say"hi`:              "uuuuuuuu",
		">5":                  "wwwwwwww",
	} {
		page, err := d.Transactions(context.Background(), name, url.Values{})
		require.NoError(t, err, name)
		require.Len(t, page.Table.Rows, 1, name)
		assert.Equal(t, want, page.Table.Rows[0][0].Text, name)
	}

	assert.Equal(t, `event.type:transaction transaction:"GET /static/\*"`, SummaryQuery("GET /static/*", nil).Filter())
	assert.Equal(t, `event.type:transaction transaction:say\"hi`, SummaryQuery(`say"hi`, nil).Filter())
}

func TestCompare(t *testing.T) {
	d, rec := newTestDashboard(t)

	cmp, err := d.Compare(context.Background(), "api:aaaaaaaaaa", "api:cccccccccc")
	require.NoError(t, err)
	assert.Equal(t, "GET /users", cmp.Title)
	assert.Empty(t, cmp.Notice)
	assert.Equal(t, 1, rec.Count(analytics.EventOpenComparison))

	cmp, err = d.Compare(context.Background(), "api:aaaaaaaaaa", "api:eeeeeeeeee")
	require.NoError(t, err)
	assert.Equal(t, views.NotTransactionsNotice, cmp.Notice)

	_, err = d.Compare(context.Background(), "api:aaaaaaaaaa", "api:missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = d.Compare(context.Background(), "nope", "api:aaaaaaaaaa")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPinBaseline(t *testing.T) {
	d, rec := newTestDashboard(t)

	r, err := d.PinBaseline("GET /users", "api:cccccccccc")
	require.NoError(t, err)
	assert.Equal(t, "cccccccccc", r.ID)
	assert.Equal(t, 1, rec.Count(analytics.EventPinBaseline))
	assert.Equal(t, 1, d.Stats().Pins)

	page, err := d.Transactions(context.Background(), "GET /users", nil)
	require.NoError(t, err)
	last := page.Table.Rows[0]
	assert.Equal(t, "0.00ms", last[len(last)-1].Text)

	require.NoError(t, d.UnpinBaseline("GET /users"))

	_, err = d.PinBaseline("", "api:cccccccccc")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = d.PinBaseline("GET /users", "api:eeeeeeeeee")
	assert.Error(t, err)
}

func TestAlertRules(t *testing.T) {
	d, _ := newTestDashboard(t)

	rows, err := d.AlertRules()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Slow users", rows[0].Title)
	assert.True(t, rows[0].Project.Resolved)
	assert.False(t, rows[0].CanDelete)

	assert.ErrorIs(t, d.DeleteRule("api", "1"), ErrForbidden)
	assert.Equal(t, 1, d.Rules().Count())
}

func TestDeleteRuleWithAccess(t *testing.T) {
	d, _ := newTestDashboard(t, views.ScopeProjectWrite)

	rows, err := d.AlertRules()
	require.NoError(t, err)
	assert.True(t, rows[0].CanDelete)

	assert.ErrorIs(t, d.DeleteRule("web", "1"), storage.ErrNotFound)
	require.NoError(t, d.DeleteRule("api", "1"))
	assert.Equal(t, 0, d.Stats().Rules)
}

func TestStatsText(t *testing.T) {
	d, _ := newTestDashboard(t)
	st := d.Stats()
	assert.Equal(t, 4, st.Records)
	assert.Equal(t, 3, st.Transactions)
	assert.Equal(t, 1, st.Rules)
	assert.Contains(t, st.Text(), "Alert rules: 1")
}
