package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/viz"
)

const (
	MixedTransactionNames = "mixed transaction names"
	NotTransactionsNotice = "Only transaction events can be compared."
)

// EventSummary is one side of a transaction comparison.
type EventSummary struct {
	Label    string        `json:"label"`
	EventID  string        `json:"eventId"`
	ID       string        `json:"id"`
	Duration time.Duration `json:"duration"`
	Text     string        `json:"text"`
	Color    string        `json:"color"`
}

// TransactionComparison compares a baseline transaction with a regressive
// one.
type TransactionComparison struct {
	Title           string `json:"title"`
	TransactionName string `json:"transactionName,omitempty"`
	// Notice is set instead of the summaries when either event is not a
	// transaction.
	Notice              string        `json:"notice,omitempty"`
	Baseline            *EventSummary `json:"baseline,omitempty"`
	Regression          *EventSummary `json:"regression,omitempty"`
	Delta               *Comparison   `json:"delta,omitempty"`
	BaselineWaterfall   string        `json:"baselineWaterfall,omitempty"`
	RegressionWaterfall string        `json:"regressionWaterfall,omitempty"`
}

// CompareTransactions builds the comparison view of two events.
func CompareTransactions(baseline, regression *discover.Event) TransactionComparison {
	var c TransactionComparison
	if baseline != nil && regression != nil && baseline.Title == regression.Title {
		c.TransactionName = baseline.Title
	}
	c.Title = c.TransactionName
	if c.Title == "" {
		c.Title = MixedTransactionNames
	}

	if !isTransactionEvent(baseline) || !isTransactionEvent(regression) {
		c.Notice = NotTransactionsNotice
		return c
	}

	c.Baseline = summarize("Baseline Event", "purple", baseline)
	c.Regression = summarize("Regressive Event", "gray", regression)

	delta := CompareBaseline(
		discover.Record{Duration: discover.Dur(c.Regression.Duration)},
		&discover.Record{Duration: discover.Dur(c.Baseline.Duration)},
		LinkContext{},
	)
	delta.Target = ""
	c.Delta = &delta

	c.BaselineWaterfall = viz.Waterfall(c.Baseline.Label, SpanInfos(baseline), 0)
	c.RegressionWaterfall = viz.Waterfall(c.Regression.Label, SpanInfos(regression), 0)
	return c
}

func isTransactionEvent(e *discover.Event) bool {
	return e != nil && e.Type == discover.EventTypeTransaction
}

func summarize(label, color string, e *discover.Event) *EventSummary {
	start, end := e.TraceBounds()
	d := end.Sub(start)
	if d < 0 {
		d = -d
	}
	return &EventSummary{
		Label:    label,
		EventID:  e.ID,
		ID:       "ID: " + discover.ShortID(e.ID),
		Duration: d,
		Text:     viz.DurationString(d),
		Color:    color,
	}
}

// SpanInfos converts the transaction and its spans for waterfall rendering.
// The transaction itself is the root.
func SpanInfos(e *discover.Event) []viz.SpanInfo {
	start := e.Start
	if start.IsZero() {
		start = e.Timestamp
	}
	out := make([]viz.SpanInfo, 0, len(e.Spans)+1)
	out = append(out, viz.SpanInfo{
		SpanID:      e.SpanID,
		Op:          "transaction",
		Description: e.Transaction,
		StartNano:   unixNano(start),
		EndNano:     unixNano(e.Timestamp),
	})
	for _, s := range e.Spans {
		if s.SpanID == e.SpanID {
			continue
		}
		out = append(out, viz.SpanInfo{
			SpanID:      s.SpanID,
			ParentID:    s.ParentID,
			Op:          s.Op,
			Description: s.Description,
			StartNano:   unixNano(s.Start),
			EndNano:     unixNano(s.End),
			Error:       s.Error,
		})
	}
	return out
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() || t.UnixNano() < 0 {
		return 0
	}
	return uint64(t.UnixNano())
}

// Text renders the comparison as plain text.
func (c TransactionComparison) Text() string {
	var b strings.Builder
	b.WriteString(c.Title + "\n")
	if c.Notice != "" {
		b.WriteString(c.Notice + "\n")
		return b.String()
	}
	for _, s := range []*EventSummary{c.Baseline, c.Regression} {
		fmt.Fprintf(&b, "  %-16s  %-12s  %s\n", s.Label, s.ID, s.Text)
	}
	if c.Delta != nil {
		fmt.Fprintf(&b, "  Difference: %s\n", c.Delta.Text())
	}
	b.WriteByte('\n')
	b.WriteString(c.BaselineWaterfall)
	b.WriteByte('\n')
	b.WriteString(c.RegressionWaterfall)
	return b.String()
}

// LoadComparison fetches both events concurrently and compares them. An
// error is returned when either event cannot be loaded.
func LoadComparison(ctx context.Context, events EventService, baselineSlug, regressionSlug discover.EventSlug) (TransactionComparison, error) {
	base := discover.Dispatch(ctx, func(ctx context.Context) (*discover.Event, error) {
		return events.Event(ctx, baselineSlug)
	})
	reg := discover.Dispatch(ctx, func(ctx context.Context) (*discover.Event, error) {
		return events.Event(ctx, regressionSlug)
	})

	bs, rs := base.Wait(ctx), reg.Wait(ctx)
	switch {
	case bs.Loading || rs.Loading:
		return TransactionComparison{}, ctx.Err()
	case bs.Err != nil:
		return TransactionComparison{}, fmt.Errorf("baseline event %s: %w", baselineSlug, bs.Err)
	case rs.Err != nil:
		return TransactionComparison{}, fmt.Errorf("regression event %s: %w", regressionSlug, rs.Err)
	}
	return CompareTransactions(bs.Value, rs.Value), nil
}
