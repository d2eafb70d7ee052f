package discover

import (
	"errors"
	"time"
)

// RuleKind distinguishes issue alerts from metric alerts.
type RuleKind string

const (
	RuleKindIssue  RuleKind = "issue"
	RuleKindMetric RuleKind = "metric"
)

// Rule is an alert rule owned by a project.
type Rule struct {
	ID      string    `json:"id" yaml:"id"`
	Name    string    `json:"name" yaml:"name"`
	Kind    RuleKind  `json:"kind" yaml:"kind"`
	Project string    `json:"project" yaml:"project"`
	Owner   string    `json:"owner,omitempty" yaml:"owner"`
	Created time.Time `json:"dateCreated" yaml:"created"`
}

// IsIssueAlert reports whether r is an issue alert. Rules without a kind are
// issue alerts.
func (r Rule) IsIssueAlert() bool {
	return r.Kind != RuleKindMetric
}

// Validate checks the fields a rule cannot do without.
func (r Rule) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("rule id is required"))
	}
	if r.Project == "" {
		errs = append(errs, errors.New("rule project is required"))
	}
	switch r.Kind {
	case "", RuleKindIssue, RuleKindMetric:
	default:
		errs = append(errs, errors.New("rule kind must be issue or metric"))
	}
	return errors.Join(errs...)
}
