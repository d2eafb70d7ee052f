package views

import (
	"context"
	"log"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/tobert/perfdash/internal/analytics"
	"github.com/tobert/perfdash/internal/discover"
)

const (
	baselineKey = "baseline"

	// ParamShowTransactions selects the transaction list filter.
	ParamShowTransactions = "showTransactions"

	EmptyTransactionsMessage = "No transactions found"
)

// TransactionList is the "top transactions" panel of a transaction summary.
type TransactionList struct {
	Org         discover.Organization
	Query       discover.Query
	Transaction string
	// Params is the current location's query string.
	Params  url.Values
	Nav     Navigator
	Tracker analytics.Tracker
}

// DropdownItem is one entry of the filter dropdown.
type DropdownItem struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
	Target string `json:"target"`
}

// TransactionTable is the rendered transaction list.
type TransactionTable struct {
	Headers      []Header `json:"headers"`
	Rows         [][]Cell `json:"rows"`
	Events       []string `json:"events"` // event slug of each row
	Loading      bool     `json:"loading"`
	Empty        bool     `json:"empty"`
	EmptyMessage string   `json:"emptyMessage"`
}

func (l TransactionList) tracker() analytics.Tracker {
	return analytics.Safe(l.Tracker)
}

func (l TransactionList) links() LinkContext {
	return LinkContext{Org: l.Org.Slug, Transaction: l.Transaction, Query: l.Params, Nav: l.Nav}
}

// ActiveFilter resolves the showTransactions parameter.
func (l TransactionList) ActiveFilter() discover.FilterOption {
	return discover.ResolveOption(l.Params.Get(ParamShowTransactions), discover.TopTransactionFilters)
}

// SortedQuery is the base query ordered by the active filter.
func (l TransactionList) SortedQuery() discover.Query {
	return l.Query.WithSorts(l.ActiveFilter().Sort)
}

// Dropdown lists the filter options, marking the active one.
func (l TransactionList) Dropdown() []DropdownItem {
	active := l.ActiveFilter()
	items := make([]DropdownItem, len(discover.TopTransactionFilters))
	for i, opt := range discover.TopTransactionFilters {
		items[i] = DropdownItem{
			Value:  opt.Value,
			Label:  opt.Label,
			Active: opt.Value == active.Value,
			Target: l.filterURL(opt.Value),
		}
	}
	return items
}

func (l TransactionList) filterURL(value string) string {
	q := cloneValues(l.Params)
	q.Set(ParamShowTransactions, value)
	return l.links().navigator().BuildURL(RouteTransactionSummary, Params{Org: l.Org.Slug, Query: q})
}

// FilterTarget records the filter change and returns the location to move
// to.
func (l TransactionList) FilterTarget(value string) string {
	l.tracker().Track(analytics.EventFilterTransactions, map[string]any{
		"organization_id": orgID(l.Org),
		"value":           value,
	})
	return l.filterURL(value)
}

// DiscoverTarget records the click on "Open in Discover" and returns the
// discover results URL for the sorted query.
func (l TransactionList) DiscoverTarget() string {
	l.tracker().Track(analytics.EventViewInDiscover, map[string]any{
		"organization_id": orgID(l.Org),
	})
	return DiscoverURL(l.links().navigator(), l.Org.Slug, l.SortedQuery())
}

// ViewDetails records a click through to transaction details.
func (l TransactionList) ViewDetails() {
	l.tracker().Track(analytics.EventViewDetails, map[string]any{
		"organization_id": orgID(l.Org),
	})
}

// DiscoverURL is the discover results URL of q.
func DiscoverURL(nav Navigator, org string, q discover.Query) string {
	return nav.BuildURL(RouteDiscoverResults, Params{Org: org, Query: q.Encode()})
}

// Load runs the primary and baseline queries concurrently and builds the
// table from whatever has completed when both finish or ctx ends. Query
// failures are logged and render as no data.
func (l TransactionList) Load(ctx context.Context, queries QueryService, baselines BaselineService) TransactionTable {
	sorted := l.SortedQuery()
	limited := sorted.WithLimit(discover.TopTransactionLimit)

	primary := discover.Dispatch(ctx, func(ctx context.Context) (*discover.TableData, error) {
		return queries.Execute(ctx, limited)
	})
	baseline := discover.Dispatch(ctx, func(ctx context.Context) (*discover.Record, error) {
		return baselines.Baseline(ctx, sorted)
	})

	var (
		ps discover.State[*discover.TableData]
		bs discover.State[*discover.Record]
	)
	var g errgroup.Group
	g.Go(func() error {
		ps = primary.Wait(ctx)
		return ps.Err
	})
	g.Go(func() error {
		bs = baseline.Wait(ctx)
		return bs.Err
	})
	if err := g.Wait(); err != nil {
		log.Printf("⚠️  transaction list for %q: %v", l.Transaction, err)
	}
	return l.Table(ps, bs)
}

// Table builds the transaction table. It is loading while either query is.
func (l TransactionList) Table(primary discover.State[*discover.TableData], baseline discover.State[*discover.Record]) TransactionTable {
	columns := l.Query.Columns()
	var meta discover.Meta
	if primary.Value != nil {
		meta = primary.Value.Meta
	}

	t := TransactionTable{
		Headers:      HeadersFor(columns, meta),
		Loading:      primary.Loading || baseline.Loading,
		EmptyMessage: EmptyTransactionsMessage,
	}
	t.Headers = append(t.Headers, Header{Key: baselineKey, Title: "Compared to Baseline", Align: discover.AlignRight})

	if t.Loading {
		return t
	}
	if primary.Err != nil || primary.Value == nil || primary.Value.Meta == nil || len(primary.Value.Data) == 0 {
		t.Empty = true
		return t
	}

	// A failed baseline query leaves the comparison column at "-".
	var base *discover.Record
	if baseline.Err == nil {
		base = baseline.Value
	}

	lc := l.links()
	for _, row := range primary.Value.Data {
		cells := ProjectRow(row, columns, meta, lc)
		cells = append(cells, CompareBaseline(row, base, lc).Cell())
		t.Rows = append(t.Rows, cells)
		t.Events = append(t.Events, discover.SlugFor(row).String())
	}
	return t
}

// Text renders the table as plain text.
func (t TransactionTable) Text() string {
	switch {
	case t.Loading:
		return "Loading...\n"
	case t.Empty:
		return t.EmptyMessage + "\n"
	}
	return PlainTable(t.Headers, t.Rows)
}

func orgID(org discover.Organization) any {
	if id, err := strconv.Atoi(org.ID); err == nil {
		return id
	}
	return org.ID
}
