package discover

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Sort orders results by a field.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort reads "-field" (descending) or "field" (ascending).
func ParseSort(s string) Sort {
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		return Sort{Field: rest, Desc: true}
	}
	return Sort{Field: s}
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

// QueryOptions is the input to NewQuery.
type QueryOptions struct {
	Name     string
	Fields   []string
	Sorts    []Sort
	Filter   string
	Projects []int64
	Start    time.Time
	End      time.Time
	Limit    int
}

// Query describes a data request. It is never modified after construction;
// the With methods return new values.
type Query struct {
	name     string
	fields   []string
	sorts    []Sort
	filter   string
	projects []int64
	start    time.Time
	end      time.Time
	limit    int
}

// NewQuery builds a query from options. Slices are copied.
func NewQuery(opts QueryOptions) Query {
	return Query{
		name:     opts.Name,
		fields:   slices.Clone(opts.Fields),
		sorts:    slices.Clone(opts.Sorts),
		filter:   opts.Filter,
		projects: slices.Clone(opts.Projects),
		start:    opts.Start,
		end:      opts.End,
		limit:    opts.Limit,
	}
}

func (q Query) Name() string { return q.name }
func (q Query) Fields() []string { return slices.Clone(q.fields) }
func (q Query) Sorts() []Sort { return slices.Clone(q.sorts) }
func (q Query) Filter() string { return q.filter }
func (q Query) Projects() []int64 { return slices.Clone(q.projects) }
func (q Query) Start() time.Time { return q.start }
func (q Query) End() time.Time { return q.end }
func (q Query) Limit() int { return q.limit }
func (q Query) IsGlobal() bool { return len(q.projects) == 0 }
func (q Query) Columns() []Column { return ColumnsFor(q.fields) }
func (q Query) HasWindow() bool { return !q.start.IsZero() || !q.end.IsZero() }

// Options returns the query's options; slices are copies.
func (q Query) Options() QueryOptions {
	return QueryOptions{
		Name:     q.name,
		Fields:   q.Fields(),
		Sorts:    q.Sorts(),
		Filter:   q.filter,
		Projects: q.Projects(),
		Start:    q.start,
		End:      q.end,
		Limit:    q.limit,
	}
}

// WithSorts returns a copy ordered by sorts.
func (q Query) WithSorts(sorts ...Sort) Query {
	opts := q.Options()
	opts.Sorts = sorts
	return NewQuery(opts)
}

// WithFilter returns a copy with a different predicate.
func (q Query) WithFilter(filter string) Query {
	opts := q.Options()
	opts.Filter = filter
	return NewQuery(opts)
}

// WithLimit returns a copy returning at most n rows.
func (q Query) WithLimit(n int) Query {
	opts := q.Options()
	opts.Limit = n
	return NewQuery(opts)
}

// WithFields returns a copy selecting fields.
func (q Query) WithFields(fields ...string) Query {
	opts := q.Options()
	opts.Fields = fields
	return NewQuery(opts)
}

// Encode renders the query as discover URL parameters.
func (q Query) Encode() url.Values {
	v := url.Values{}
	if q.name != "" {
		v.Set("name", q.name)
	}
	for _, f := range q.fields {
		v.Add("field", f)
	}
	for _, s := range q.sorts {
		v.Add("sort", s.String())
	}
	if q.filter != "" {
		v.Set("query", q.filter)
	}
	for _, p := range q.projects {
		v.Add("project", strconv.FormatInt(p, 10))
	}
	if !q.start.IsZero() {
		v.Set("start", q.start.UTC().Format(time.RFC3339))
	}
	if !q.end.IsZero() {
		v.Set("end", q.end.UTC().Format(time.RFC3339))
	}
	if q.limit > 0 {
		v.Set("limit", strconv.Itoa(q.limit))
	}
	return v
}

// DecodeQuery reads a query from URL parameters produced by Encode.
// Unparseable project ids and times are ignored.
func DecodeQuery(v url.Values) Query {
	opts := QueryOptions{
		Name:   v.Get("name"),
		Fields: v["field"],
		Filter: v.Get("query"),
	}
	for _, s := range v["sort"] {
		opts.Sorts = append(opts.Sorts, ParseSort(s))
	}
	for _, p := range v["project"] {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			opts.Projects = append(opts.Projects, id)
		}
	}
	if t, err := time.Parse(time.RFC3339, v.Get("start")); err == nil {
		opts.Start = t
	}
	if t, err := time.Parse(time.RFC3339, v.Get("end")); err == nil {
		opts.End = t
	}
	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}
	return NewQuery(opts)
}
