package views

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// RouteKind names a navigable view.
type RouteKind string

const (
	RouteTransactionDetails RouteKind = "transaction-details"
	RouteComparison         RouteKind = "transaction-comparison"
	RouteDiscoverResults    RouteKind = "discover-results"
	RouteTransactionSummary RouteKind = "transaction-summary"
	RouteRuleEdit           RouteKind = "alert-rule-edit"
	RouteMetricRuleEdit     RouteKind = "metric-alert-rule-edit"
)

// Params are the inputs to a route. Path values are named by the route;
// Query is appended as the query string.
type Params struct {
	Org          string
	EventSlug    string
	BaselineSlug string
	Project      string
	RuleID       string
	Query        url.Values
}

// Navigator builds navigation targets. It never navigates.
type Navigator interface {
	BuildURL(kind RouteKind, p Params) string
}

// PathNavigator builds dashboard paths rooted at Prefix. Query strings are
// sorted by key so equal inputs produce equal URLs.
type PathNavigator struct {
	Prefix string
}

func (n PathNavigator) BuildURL(kind RouteKind, p Params) string {
	var segs []string
	switch kind {
	case RouteTransactionDetails:
		segs = []string{"organizations", p.Org, "performance", p.EventSlug}
	case RouteComparison:
		segs = []string{"organizations", p.Org, "performance", "compare", p.BaselineSlug, p.EventSlug}
	case RouteDiscoverResults:
		segs = []string{"organizations", p.Org, "discover", "results"}
	case RouteTransactionSummary:
		segs = []string{"organizations", p.Org, "performance", "summary"}
	case RouteRuleEdit:
		segs = []string{"settings", p.Org, "projects", p.Project, "alerts", "rules", p.RuleID}
	case RouteMetricRuleEdit:
		segs = []string{"settings", p.Org, "projects", p.Project, "alerts", "metric-rules", p.RuleID}
	default:
		segs = []string{string(kind)}
	}

	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	u := path.Join(append([]string{"/", strings.Trim(n.Prefix, "/")}, segs...)...) + "/"
	if q := encodeSorted(p.Query); q != "" {
		u += "?" + q
	}
	return u
}

// encodeSorted is url.Values.Encode with values kept in insertion order per
// key and keys sorted.
func encodeSorted(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, val := range v[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

// cloneValues copies v so callers can add keys without touching the
// ambient query.
func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
