// Package dashboard binds the event store, the rule store and the workspace
// settings to the views. The HTTP API and the MCP tools both serve through
// it, so they render identical view models.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tobert/perfdash/internal/analytics"
	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/storage"
	"github.com/tobert/perfdash/internal/views"
	"github.com/tobert/perfdash/internal/viz"
)

var (
	// ErrInvalidArgument marks malformed input such as a bad event slug.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden is returned when the workspace lacks an access scope.
	ErrForbidden = errors.New("forbidden")
	// ErrUnknownOrganization is returned for an organization slug other than
	// the workspace's.
	ErrUnknownOrganization = errors.New("unknown organization")
)

// DefaultQueryTimeout bounds how long a view waits for its queries before
// rendering in the loading state.
const DefaultQueryTimeout = 10 * time.Second

// TransactionSummaryFields are the columns of the transaction list.
var TransactionSummaryFields = []string{
	discover.FieldID,
	discover.FieldUser,
	discover.FieldTransactionDuration,
	discover.FieldTimestamp,
}

// Config is the workspace side of a dashboard.
type Config struct {
	Org          discover.Organization
	Access       []string
	Nav          views.Navigator
	Tracker      analytics.Tracker
	QueryTimeout time.Duration
}

// Dashboard serves view models over an event store.
type Dashboard struct {
	store *storage.EventStore
	rules *storage.RuleStore
	cfg   Config
}

// New creates a dashboard. The organization slug is required.
func New(store *storage.EventStore, rules *storage.RuleStore, cfg Config) (*Dashboard, error) {
	if store == nil {
		return nil, fmt.Errorf("event store cannot be nil")
	}
	if cfg.Org.Slug == "" {
		return nil, fmt.Errorf("organization slug is required")
	}
	if rules == nil {
		var err error
		if rules, err = storage.NewRuleStore(); err != nil {
			return nil, err
		}
	}
	if cfg.Nav == nil {
		cfg.Nav = views.PathNavigator{}
	}
	if cfg.Tracker == nil {
		cfg.Tracker = analytics.Nop
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Dashboard{store: store, rules: rules, cfg: cfg}, nil
}

// Store returns the event store.
func (d *Dashboard) Store() *storage.EventStore { return d.store }

// Rules returns the rule store.
func (d *Dashboard) Rules() *storage.RuleStore { return d.rules }

// Org returns the workspace organization.
func (d *Dashboard) Org() discover.Organization { return d.cfg.Org }

// CheckOrg verifies that slug names the workspace organization.
func (d *Dashboard) CheckOrg(slug string) error {
	if slug != d.cfg.Org.Slug {
		return fmt.Errorf("organization %q: %w", slug, ErrUnknownOrganization)
	}
	return nil
}

func (d *Dashboard) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.cfg.QueryTimeout)
}

// SummaryQuery builds the base query of a transaction summary from the
// page parameters: project (repeatable), start, end (RFC 3339) and query,
// an extra predicate.
func SummaryQuery(transaction string, params url.Values) discover.Query {
	filter := "event.type:transaction transaction:" + storage.QuoteValue(transaction)
	if extra := strings.TrimSpace(params.Get("query")); extra != "" {
		filter += " " + extra
	}

	opts := discover.QueryOptions{
		Name:   transaction,
		Fields: TransactionSummaryFields,
		Filter: filter,
	}
	for _, p := range params["project"] {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			opts.Projects = append(opts.Projects, id)
		}
	}
	if t, err := time.Parse(time.RFC3339, params.Get("start")); err == nil {
		opts.Start = t
	}
	if t, err := time.Parse(time.RFC3339, params.Get("end")); err == nil {
		opts.End = t
	}
	return discover.NewQuery(opts)
}

// TransactionList returns the list view of a transaction.
func (d *Dashboard) TransactionList(transaction string, params url.Values) (views.TransactionList, error) {
	if transaction == "" {
		return views.TransactionList{}, fmt.Errorf("%w: transaction is required", ErrInvalidArgument)
	}
	return views.TransactionList{
		Org:         d.cfg.Org,
		Query:       SummaryQuery(transaction, params),
		Transaction: transaction,
		Params:      params,
		Nav:         d.cfg.Nav,
		Tracker:     d.cfg.Tracker,
	}, nil
}

// TransactionsPage is the transaction list panel of a summary page.
type TransactionsPage struct {
	Transaction string                 `json:"transaction"`
	Filter      string                 `json:"filter"`
	Filters     []views.DropdownItem   `json:"filters"`
	Table       views.TransactionTable `json:"table"`
}

// Text renders the page as plain text.
func (p TransactionsPage) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n\n", p.Transaction, p.Filter)
	b.WriteString(p.Table.Text())
	return b.String()
}

// Transactions loads the transaction list of a transaction.
func (d *Dashboard) Transactions(ctx context.Context, transaction string, params url.Values) (TransactionsPage, error) {
	list, err := d.TransactionList(transaction, params)
	if err != nil {
		return TransactionsPage{}, err
	}
	ctx, cancel := d.timeout(ctx)
	defer cancel()

	return TransactionsPage{
		Transaction: transaction,
		Filter:      list.ActiveFilter().Label,
		Filters:     list.Dropdown(),
		Table:       list.Load(ctx, d.store, d.store),
	}, nil
}

// RelatedEvents loads the events sharing a trace with the event.
func (d *Dashboard) RelatedEvents(ctx context.Context, rawSlug string) (views.RelatedEvents, error) {
	slug, err := parseSlug(rawSlug)
	if err != nil {
		return views.RelatedEvents{}, err
	}
	event, err := d.store.Record(slug)
	if err != nil {
		return views.RelatedEvents{}, err
	}
	ctx, cancel := d.timeout(ctx)
	defer cancel()

	lc := views.LinkContext{Org: d.cfg.Org.Slug, Transaction: event.Transaction, Nav: d.cfg.Nav}
	return views.LoadRelatedEvents(ctx, d.store, *event, d.cfg.Org, lc), nil
}

// Compare loads two events and compares them.
func (d *Dashboard) Compare(ctx context.Context, rawBaseline, rawRegression string) (views.TransactionComparison, error) {
	baseline, err := parseSlug(rawBaseline)
	if err != nil {
		return views.TransactionComparison{}, err
	}
	regression, err := parseSlug(rawRegression)
	if err != nil {
		return views.TransactionComparison{}, err
	}
	ctx, cancel := d.timeout(ctx)
	defer cancel()

	cmp, err := views.LoadComparison(ctx, d.store, baseline, regression)
	if err != nil {
		return views.TransactionComparison{}, err
	}
	analytics.Safe(d.cfg.Tracker).Track(analytics.EventOpenComparison, map[string]any{
		"organization_id": d.cfg.Org.ID,
		"transaction":     cmp.TransactionName,
	})
	return cmp, nil
}

// PinBaseline makes the event the baseline of transaction.
func (d *Dashboard) PinBaseline(transaction, rawSlug string) (*discover.Record, error) {
	if transaction == "" {
		return nil, fmt.Errorf("%w: transaction is required", ErrInvalidArgument)
	}
	slug, err := parseSlug(rawSlug)
	if err != nil {
		return nil, err
	}
	r, err := d.store.PinBaseline(transaction, slug)
	if err != nil {
		return nil, err
	}
	analytics.Safe(d.cfg.Tracker).Track(analytics.EventPinBaseline, map[string]any{
		"organization_id": d.cfg.Org.ID,
		"transaction":     transaction,
	})
	return r, nil
}

// UnpinBaseline removes the pinned baseline of transaction.
func (d *Dashboard) UnpinBaseline(transaction string) error {
	return d.store.UnpinBaseline(transaction)
}

// AlertRules renders the rule rows of the workspace. Rules that cannot be
// rendered are left out and reported in the error.
func (d *Dashboard) AlertRules() ([]views.RuleRow, error) {
	return views.RuleRows(d.rules.List(), d.store.Projects().Index(), true, d.ruleContext())
}

func (d *Dashboard) ruleContext() views.RuleContext {
	return views.RuleContext{Org: d.cfg.Org.Slug, Access: d.cfg.Access, Nav: d.cfg.Nav}
}

// DeleteRule deletes a rule of a project. It needs the project:write scope.
func (d *Dashboard) DeleteRule(project, id string) error {
	if !views.HasAccess(d.cfg.Access, views.ScopeProjectWrite) {
		return fmt.Errorf("deleting rules needs %s: %w", views.ScopeProjectWrite, ErrForbidden)
	}
	return d.rules.Delete(project, id)
}

// Stats combines event store and rule store statistics.
type Stats struct {
	storage.Stats
	Rules int `json:"rules"`
}

// Text renders the stats overview.
func (s Stats) Text() string {
	return viz.StatsOverview(viz.StoreStats{
		RecordCount:    s.Records,
		RecordCapacity: s.Capacity,
		Transactions:   s.Transactions,
		Errors:         s.Errors,
		Traces:         s.Traces,
		Pins:           s.Pins,
		Rules:          s.Rules,
		Subscribers:    s.Subscribers,
	})
}

// Stats returns current statistics.
func (d *Dashboard) Stats() Stats {
	return Stats{Stats: d.store.Stats(), Rules: d.rules.Count()}
}

func parseSlug(raw string) (discover.EventSlug, error) {
	slug, err := discover.ParseEventSlug(raw)
	if err != nil {
		return discover.EventSlug{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return slug, nil
}
