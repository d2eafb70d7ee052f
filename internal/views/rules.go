package views

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tobert/perfdash/internal/discover"
	"github.com/tobert/perfdash/internal/viz"
)

// ScopeProjectWrite is the access scope needed to delete alert rules.
const ScopeProjectWrite = "project:write"

// RuleContext is what rule rows need besides the rules themselves.
type RuleContext struct {
	Org    string
	Access []string
	Nav    Navigator
}

// ProjectBadge identifies the project of a rule. Only the slug is known
// while projects are loading or when the project is not indexed.
type ProjectBadge struct {
	Slug     string `json:"slug"`
	ID       int64  `json:"id,omitempty"`
	Platform string `json:"platform,omitempty"`
	Resolved bool   `json:"resolved"`
}

// DeleteConfirm is the confirmation dialog shown before deleting a rule.
type DeleteConfirm struct {
	Header      string `json:"header"`
	Message     string `json:"message"`
	ConfirmText string `json:"confirmText"`
}

// RuleRow is one alert rule row.
type RuleRow struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Title      string        `json:"title"`
	Project    ProjectBadge  `json:"project"`
	Owner      string        `json:"owner"`
	Created    string        `json:"created"`
	EditURL    string        `json:"editUrl"`
	DeletePath string        `json:"deletePath"`
	Confirm    DeleteConfirm `json:"confirm"`
	CanDelete  bool          `json:"canDelete"`
}

// HasAccess reports whether scope is among the granted scopes.
func HasAccess(access []string, scope string) bool {
	return slices.Contains(access, scope)
}

// BuildRuleRow renders one rule. Rules without a project are rejected.
func BuildRuleRow(rule discover.Rule, projects discover.ProjectIndex, projectsLoaded bool, rc RuleContext) (RuleRow, error) {
	if err := rule.Validate(); err != nil {
		return RuleRow{}, fmt.Errorf("rule %q: %w", rule.ID, err)
	}

	row := RuleRow{
		ID:         rule.ID,
		Type:       "Metric",
		Title:      rule.Name,
		Project:    ProjectBadge{Slug: rule.Project},
		Owner:      rule.Owner,
		Created:    viz.FormatDate(rule.Created),
		DeletePath: fmt.Sprintf("/api/projects/%s/%s/rules/%s", rc.Org, rule.Project, rule.ID),
		Confirm: DeleteConfirm{
			Header:      "Delete Alert Rule?",
			Message:     fmt.Sprintf("Are you sure you want to delete %s? You won't be able to view the history of this alert once it's deleted.", rule.Name),
			ConfirmText: "Delete Rule",
		},
		CanDelete: HasAccess(rc.Access, ScopeProjectWrite),
	}
	route := RouteMetricRuleEdit
	if rule.IsIssueAlert() {
		row.Type = "Issue"
		route = RouteRuleEdit
	}
	if row.Owner == "" {
		row.Owner = "-"
	}
	if projectsLoaded {
		if p, ok := projects.Lookup(rule.Project); ok {
			row.Project = ProjectBadge{Slug: p.Slug, ID: p.ID, Platform: p.Platform, Resolved: true}
		}
	}

	nav := rc.Nav
	if nav == nil {
		nav = PathNavigator{}
	}
	row.EditURL = nav.BuildURL(route, Params{Org: rc.Org, Project: rule.Project, RuleID: rule.ID})
	return row, nil
}

// RuleRows renders rules in order. Invalid rules are left out and reported
// in the joined error.
func RuleRows(rules []discover.Rule, projects discover.ProjectIndex, projectsLoaded bool, rc RuleContext) ([]RuleRow, error) {
	rows := make([]RuleRow, 0, len(rules))
	var errs []error
	for _, r := range rules {
		row, err := BuildRuleRow(r, projects, projectsLoaded, rc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errors.Join(errs...)
}

// RulesText renders rule rows as plain text.
func RulesText(rows []RuleRow) string {
	if len(rows) == 0 {
		return "No alert rules\n"
	}
	cols := []viz.Column{{Title: "Type"}, {Title: "Alert Name"}, {Title: "Project"}, {Title: "Created By"}, {Title: "Created"}, {Title: "Actions"}}
	text := make([][]string, len(rows))
	for i, r := range rows {
		actions := []string{"edit"}
		if r.CanDelete {
			actions = append(actions, "delete")
		}
		text[i] = []string{strings.ToUpper(r.Type), r.Title, r.Project.Slug, r.Owner, r.Created, strings.Join(actions, ",")}
	}
	return viz.Table(cols, text)
}
