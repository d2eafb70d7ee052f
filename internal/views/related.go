package views

import (
	"context"
	"log"
	"strings"

	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/viz"
)

const (
	RelatedEventsTitle        = "Related Events"
	EmptyRelatedEventsMessage = "No Related Events have been found."
	errorActionHeader         = " "
)

// RelatedEventFields are the fields selected by the related events query.
var RelatedEventFields = []string{
	discover.FieldTitle,
	discover.FieldEventType,
	discover.FieldProject,
	discover.FieldTraceSpan,
	discover.FieldTimestamp,
}

// RelatedEventsQuery builds the query for events sharing event's trace id.
// The window is the single point in time the event was received (or
// created); the query service pads it.
func RelatedEventsQuery(event discover.Record, org discover.Organization) discover.Query {
	var projects []int64
	if !discover.HasFeature(org.Features, discover.FeatureGlobalViews) {
		projects = []int64{event.ProjectID}
	}
	at := event.PointInTime()
	return discover.NewQuery(discover.QueryOptions{
		Name:     "Events with Trace ID " + event.TraceID,
		Fields:   RelatedEventFields,
		Sorts:    []discover.Sort{{Field: discover.FieldTimestamp, Desc: true}},
		Filter:   "trace:" + event.TraceID,
		Projects: projects,
		Start:    at,
		End:      at,
	})
}

// TypeIndicator is the coloured marker shown next to a related event.
type TypeIndicator struct {
	Type    discover.EventType `json:"type"`
	Tooltip string             `json:"tooltip"`
	Color   string             `json:"color"`
}

// IndicatorFor returns the marker for an event type.
func IndicatorFor(t discover.EventType) TypeIndicator {
	color := "gray"
	switch t {
	case discover.EventTypeError:
		color = "red"
	case discover.EventTypeTransaction:
		color = "pink"
	}
	return TypeIndicator{Type: t, Tooltip: "Event Type: " + capitalize(string(t)), Color: color}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// Action is a per-row affordance.
type Action struct {
	Title  string `json:"title"`
	Target string `json:"target"`
}

// RelatedRow is one related event.
type RelatedRow struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Type      discover.EventType `json:"type"`
	Project   string             `json:"project"`
	Platform  string             `json:"platform,omitempty"`
	SpanID    string             `json:"spanId,omitempty"`
	Timestamp string             `json:"timestamp"`
	Indicator TypeIndicator      `json:"indicator"`
	Link      string             `json:"link"`
	Action    *Action            `json:"action,omitempty"`
}

// Cells returns the row's text cells in header order. The trailing action
// cell is only present when withAction is set.
func (r RelatedRow) Cells(withAction bool) []string {
	cells := []string{discover.ShortID(r.ID), r.Title, string(r.Type), r.Project, r.Timestamp}
	if withAction {
		action := ""
		if r.Action != nil {
			action = r.Action.Title
		}
		cells = append(cells, action)
	}
	return cells
}

// RelatedGroup holds the rows of one event type.
type RelatedGroup struct {
	Type discover.EventType `json:"type"`
	Rows []RelatedRow       `json:"rows"`
}

// RelatedEvents is the related events section of an event page.
type RelatedEvents struct {
	Title          string         `json:"title"`
	Query          string         `json:"query"`
	DiscoverTarget string         `json:"discoverTarget"`
	Loading        bool           `json:"loading"`
	Headers        []string       `json:"headers"`
	Rows           []RelatedRow   `json:"rows"`
	Groups         []RelatedGroup `json:"groups"`
	Empty          bool           `json:"empty"`
	EmptyMessage   string         `json:"emptyMessage"`
}

// HasErrorAction reports whether the trailing action column is shown.
func (re RelatedEvents) HasErrorAction() bool {
	n := len(re.Headers)
	return n > 0 && re.Headers[n-1] == errorActionHeader
}

// BuildRelatedEvents turns the result of a related events query into the
// section view. The action column exists if and only if some row is an
// error.
func BuildRelatedEvents(q discover.Query, st discover.State[*discover.TableData], lc LinkContext) RelatedEvents {
	nav := lc.navigator()
	re := RelatedEvents{
		Title:          RelatedEventsTitle,
		Query:          q.Name(),
		DiscoverTarget: DiscoverURL(nav, lc.Org, q),
		Loading:        st.Loading,
		EmptyMessage:   EmptyRelatedEventsMessage,
	}
	if st.Loading {
		return re
	}

	var data []discover.Record
	if st.Err == nil && st.Value != nil {
		data = st.Value.Data
	}

	hasError := false
	for _, r := range data {
		if r.Type == discover.EventTypeError {
			hasError = true
			break
		}
	}
	re.Headers = []string{"Id", "Title", "Type", "Project", "Timestamp"}
	if hasError {
		re.Headers = append(re.Headers, errorActionHeader)
	}

	groupIdx := make(map[discover.EventType]int)
	for _, r := range data {
		row := RelatedRow{
			ID:        r.ID,
			Title:     r.Title,
			Type:      r.Type,
			Project:   RenderField(r, discover.FieldProject, nil),
			Platform:  r.Platform,
			SpanID:    r.SpanID,
			Timestamp: viz.FormatDateTime(r.Timestamp),
			Indicator: IndicatorFor(r.Type),
			Link:      lc.DetailsTarget(r),
		}
		if r.Type == discover.EventTypeError {
			row.Action = &Action{
				Title:  "Open in discover",
				Target: DiscoverURL(nav, lc.Org, q.WithFilter(strings.TrimSpace(q.Filter()+" id:"+r.ID))),
			}
		}
		re.Rows = append(re.Rows, row)

		i, ok := groupIdx[r.Type]
		if !ok {
			i = len(re.Groups)
			groupIdx[r.Type] = i
			re.Groups = append(re.Groups, RelatedGroup{Type: r.Type})
		}
		re.Groups[i].Rows = append(re.Groups[i].Rows, row)
	}
	re.Empty = len(re.Rows) == 0
	return re
}

// Text renders the section as plain text.
func (re RelatedEvents) Text() string {
	var b strings.Builder
	b.WriteString(re.Title)
	if re.Query != "" {
		b.WriteString(" (" + re.Query + ")")
	}
	b.WriteByte('\n')
	switch {
	case re.Loading:
		b.WriteString("Loading...\n")
		return b.String()
	case re.Empty:
		b.WriteString(re.EmptyMessage + "\n")
		return b.String()
	}

	withAction := re.HasErrorAction()
	cols := make([]viz.Column, len(re.Headers))
	for i, h := range re.Headers {
		cols[i] = viz.Column{Title: h}
	}
	rows := make([][]string, len(re.Rows))
	for i, r := range re.Rows {
		rows[i] = r.Cells(withAction)
	}
	b.WriteString(viz.Table(cols, rows))
	return b.String()
}

// LoadRelatedEvents queries events sharing the trace of event and builds
// the section from whatever is available when the query finishes or ctx
// ends. An event without a trace has no related events and is not queried.
func LoadRelatedEvents(ctx context.Context, svc QueryService, event discover.Record, org discover.Organization, lc LinkContext) RelatedEvents {
	q := RelatedEventsQuery(event, org)
	if event.TraceID == "" {
		return BuildRelatedEvents(q, discover.Ready(&discover.TableData{}, nil), lc)
	}
	f := discover.Dispatch(ctx, func(ctx context.Context) (*discover.TableData, error) {
		return svc.Execute(ctx, q)
	})
	st := f.Wait(ctx)
	if st.Err != nil {
		log.Printf("⚠️  related events for %s: %v", event.TraceID, st.Err)
	}
	return BuildRelatedEvents(q, st, lc)
}
