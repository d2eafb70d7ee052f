package views

import (
	"time"

	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/viz"
)

// Comparison labels.
const (
	LabelFaster = "faster"
	LabelSlower = "slower"
)

// NoBaseline is the text of the comparison cell when there is no baseline.
const NoBaseline = "-"

// Comparison is the result of comparing a transaction with the baseline.
type Comparison struct {
	Present bool          `json:"present"`
	Delta   time.Duration `json:"delta"`
	Label   string        `json:"label"`
	Target  string        `json:"target,omitempty"`
}

// CompareBaseline compares current with baseline. A nil baseline is the
// normal "nothing to compare against" case and yields Present == false.
// Missing durations count as zero.
func CompareBaseline(current discover.Record, baseline *discover.Record, lc LinkContext) Comparison {
	if baseline == nil {
		return Comparison{}
	}

	cur, base := current.DurationOrZero(), baseline.DurationOrZero()
	c := Comparison{Present: true, Delta: cur - base}
	if c.Delta < 0 {
		c.Delta = -c.Delta
	}
	switch {
	case cur < base:
		c.Label = LabelFaster
	case cur > base:
		c.Label = LabelSlower
	}

	c.Target = lc.navigator().BuildURL(RouteComparison, Params{
		Org:          lc.Org,
		BaselineSlug: discover.SlugFor(*baseline).String(),
		EventSlug:    discover.SlugFor(current).String(),
		Query:        lc.linkQuery(),
	})
	return c
}

// Text renders the comparison, e.g. "12.34ms faster", or "-" when absent.
func (c Comparison) Text() string {
	if !c.Present {
		return NoBaseline
	}
	text := viz.DurationString(c.Delta)
	if c.Label != "" {
		text += " " + c.Label
	}
	return text
}

// Cell is the comparison cell: right-aligned, or a left-aligned "-" when
// there is no baseline.
func (c Comparison) Cell() Cell {
	align := discover.AlignRight
	if !c.Present {
		align = discover.AlignLeft
	}
	return Cell{Key: baselineKey, Text: c.Text(), Align: align, Link: c.Target}
}
