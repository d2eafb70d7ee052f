package storage

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tobert/perfdash/internal/discover"
)

// RuleStore keeps alert rules keyed by id.
type RuleStore struct {
	sync.RWMutex
	rules map[string]discover.Rule
	now   func() time.Time
}

// NewRuleStore creates a rule store seeded with rules. Invalid seed rules
// are rejected.
func NewRuleStore(rules ...discover.Rule) (*RuleStore, error) {
	rs := &RuleStore{rules: make(map[string]discover.Rule), now: time.Now}
	for _, r := range rules {
		if err := rs.Create(r); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Create adds a rule. Returns an error if the rule is invalid or a rule
// with the same id already exists. A zero Created is set to now.
func (rs *RuleStore) Create(rule discover.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	if rule.Kind == "" {
		rule.Kind = discover.RuleKindIssue
	}
	if rule.Created.IsZero() {
		rule.Created = rs.now().UTC()
	}

	rs.Lock()
	defer rs.Unlock()
	if _, exists := rs.rules[rule.ID]; exists {
		return fmt.Errorf("rule %q already exists", rule.ID)
	}
	rs.rules[rule.ID] = rule
	return nil
}

// Get retrieves a rule by id.
func (rs *RuleStore) Get(id string) (discover.Rule, error) {
	rs.RLock()
	defer rs.RUnlock()
	r, ok := rs.rules[id]
	if !ok {
		return discover.Rule{}, fmt.Errorf("rule %q: %w", id, ErrNotFound)
	}
	return r, nil
}

// List returns all rules, newest first, ties broken by id.
func (rs *RuleStore) List() []discover.Rule {
	rs.RLock()
	out := make([]discover.Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		out = append(out, r)
	}
	rs.RUnlock()

	slices.SortFunc(out, func(a, b discover.Rule) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Delete removes a rule of a project. A rule owned by another project is
// reported as not found.
func (rs *RuleStore) Delete(project, id string) error {
	rs.Lock()
	defer rs.Unlock()
	r, ok := rs.rules[id]
	if !ok || r.Project != project {
		return fmt.Errorf("rule %q in project %q: %w", id, project, ErrNotFound)
	}
	delete(rs.rules, id)
	return nil
}

// Count returns the number of rules.
func (rs *RuleStore) Count() int {
	rs.RLock()
	defer rs.RUnlock()
	return len(rs.rules)
}
