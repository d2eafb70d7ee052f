package views

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tobert/perfdash/internal/discover"
)

func TestCompareBaseline(t *testing.T) {
	lc := LinkContext{Org: "acme", Transaction: "GET /api/users", Query: url.Values{"statsPeriod": {"24h"}}}
	base := txn("base0001", "api", 200*time.Millisecond)

	tests := []struct {
		name  string
		cur   time.Duration
		delta time.Duration
		label string
		text  string
	}{
		{"faster", 150 * time.Millisecond, 50 * time.Millisecond, LabelFaster, "50.00ms faster"},
		{"slower", 1200 * time.Millisecond, time.Second, LabelSlower, "1.00s slower"},
		{"equal", 200 * time.Millisecond, 0, "", "0.00ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := txn("cur00001", "api", tt.cur)
			c := CompareBaseline(cur, &base, lc)
			assert.True(t, c.Present)
			assert.Equal(t, tt.delta, c.Delta)
			assert.GreaterOrEqual(t, c.Delta, time.Duration(0))
			assert.Equal(t, tt.label, c.Label)
			assert.Equal(t, tt.text, c.Text())
			assert.Equal(t,
				"/organizations/acme/performance/compare/api:base0001/api:cur00001/?statsPeriod=24h&transaction=GET+%2Fapi%2Fusers",
				c.Target)
		})
	}
}

func TestCompareBaselineAbsent(t *testing.T) {
	c := CompareBaseline(txn("cur", "api", time.Second), nil, LinkContext{})
	assert.False(t, c.Present)
	assert.Equal(t, NoBaseline, c.Text())

	cell := c.Cell()
	assert.Equal(t, "-", cell.Text)
	assert.Empty(t, cell.Link)
	assert.Equal(t, discover.AlignLeft, cell.Align)

	base := txn("base", "api", time.Second)
	assert.Equal(t, discover.AlignRight, CompareBaseline(txn("cur", "api", time.Second), &base, LinkContext{}).Cell().Align)
}

func TestCompareBaselineMissingDurations(t *testing.T) {
	cur := discover.Record{ID: "e1", Timestamp: t0}
	base := txn("b", "api", 30*time.Millisecond)
	c := CompareBaseline(cur, &base, LinkContext{})
	assert.Equal(t, 30*time.Millisecond, c.Delta)
	assert.Equal(t, LabelFaster, c.Label)
}
