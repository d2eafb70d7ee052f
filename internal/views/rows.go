// Package views turns query results into display-ready view models: table
// headers and cells with alignment and link targets, baseline comparisons,
// related-event tables, transaction comparisons and alert rule rows.
//
// Views are derived per request and never cached.
package views

import (
	"net/url"
	"time"

	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/viz"
)

// Cell is one render-ready table cell.
type Cell struct {
	Key   string         `json:"key"`
	Text  string         `json:"text"`
	Align discover.Align `json:"align"`
	Link  string         `json:"link,omitempty"`
}

// Header is one table header cell.
type Header struct {
	Key   string         `json:"key"`
	Title string         `json:"title"`
	Align discover.Align `json:"align"`
}

// LinkContext carries what cells need to build navigation targets: the
// organization, the transaction being viewed and the ambient query string.
type LinkContext struct {
	Org         string
	Transaction string
	Query       url.Values
	Nav         Navigator
}

func (lc LinkContext) navigator() Navigator {
	if lc.Nav == nil {
		return PathNavigator{}
	}
	return lc.Nav
}

// linkQuery is the ambient query plus the transaction name.
func (lc LinkContext) linkQuery() url.Values {
	q := cloneValues(lc.Query)
	if lc.Transaction != "" {
		q.Set("transaction", lc.Transaction)
	}
	return q
}

// DetailsTarget is the transaction-details URL of r.
func (lc LinkContext) DetailsTarget(r discover.Record) string {
	return lc.navigator().BuildURL(RouteTransactionDetails, Params{
		Org:       lc.Org,
		EventSlug: discover.SlugFor(r).String(),
		Query:     lc.linkQuery(),
	})
}

type fieldRenderer func(r discover.Record, v discover.Value) string

type valueRenderer func(v discover.Value) string

// specialRenderers are keyed by field name and take precedence over the
// type renderers.
var specialRenderers = map[string]fieldRenderer{
	discover.FieldID: func(_ discover.Record, v discover.Value) string {
		return discover.ShortID(v.String())
	},
	discover.FieldProject: func(r discover.Record, v discover.Value) string {
		if r.Project != "" {
			return r.Project
		}
		return v.String()
	},
	discover.FieldUser: func(_ discover.Record, v discover.Value) string {
		if v.String() == "" {
			return "-"
		}
		return v.String()
	},
}

var typeRenderers = map[discover.FieldType]valueRenderer{
	discover.TypeInteger: func(v discover.Value) string {
		n, ok := v.Number()
		if !ok {
			return v.String()
		}
		return viz.FormatNumber(n, 0)
	},
	discover.TypeNumber: func(v discover.Value) string {
		n, ok := v.Number()
		if !ok {
			return v.String()
		}
		return viz.FormatNumber(n, 4)
	},
	discover.TypeDuration: func(v discover.Value) string {
		ms, ok := v.Number()
		if !ok {
			return v.String()
		}
		return viz.HumanDuration(ms / 1000)
	},
	discover.TypeDate: func(v discover.Value) string {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return v.String()
		}
		return viz.FormatDateTime(t)
	},
	discover.TypeBoolean: func(v discover.Value) string {
		switch v.String() {
		case "true", "1":
			return "yes"
		case "false", "0":
			return "no"
		}
		return v.String()
	},
	discover.TypeString: func(v discover.Value) string {
		if v.String() == "" {
			return "(empty string)"
		}
		return v.String()
	},
}

// RenderField renders one field of r. Lookup order: the special renderer
// for the key, the renderer for the column's meta type, the raw value. A
// field the record does not carry renders as "".
func RenderField(r discover.Record, key string, meta discover.Meta) string {
	v, ok := r.Field(key)
	if !ok {
		return ""
	}
	if render, found := specialRenderers[key]; found {
		return render(r, v)
	}
	if render, found := typeRenderers[meta.TypeOf(key)]; found {
		return render(v)
	}
	return v.String()
}

// ProjectRow projects a record onto columns. The first cell links to the
// record's transaction details.
func ProjectRow(r discover.Record, columns []discover.Column, meta discover.Meta, lc LinkContext) []Cell {
	cells := make([]Cell, len(columns))
	for i, col := range columns {
		cells[i] = Cell{
			Key:   col.Key,
			Text:  RenderField(r, col.Key, meta),
			Align: discover.AlignFor(meta.TypeOf(col.Key)),
		}
	}
	if len(cells) > 0 {
		cells[0].Link = lc.DetailsTarget(r)
	}
	return cells
}

// HeadersFor builds header cells aligned by the meta type of each column.
func HeadersFor(columns []discover.Column, meta discover.Meta) []Header {
	headers := make([]Header, len(columns))
	for i, col := range columns {
		headers[i] = Header{
			Key:   col.Key,
			Title: col.Name,
			Align: discover.AlignFor(meta.TypeOf(col.Key)),
		}
	}
	return headers
}

// PlainTable renders headers and rows as text.
func PlainTable(headers []Header, rows [][]Cell) string {
	cols := make([]viz.Column, len(headers))
	for i, h := range headers {
		cols[i] = viz.Column{Title: h.Title, AlignRight: h.Align == discover.AlignRight}
	}
	text := make([][]string, len(rows))
	for i, row := range rows {
		text[i] = make([]string, len(row))
		for j, c := range row {
			text[i][j] = c.Text
		}
	}
	return viz.Table(cols, text)
}
