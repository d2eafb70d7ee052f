package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tobert/perfdash/internal/discover"
)

// Workspace is the YAML file describing who is looking at the dashboard:
//
//	organization:
//	  id: "3"
//	  slug: acme
//	  features: [global-views]
//	access: [project:write]
//	projects:
//	  - {id: 1, slug: api, platform: go}
//	alert_rules:
//	  - {id: "1", name: Slow checkout, kind: metric, project: api, owner: jane, created: 2021-03-04T12:00:00Z}
//
// Projects not listed are created as traces arrive, named after service.name.
type Workspace struct {
	Organization WorkspaceOrg       `yaml:"organization"`
	Access       []string           `yaml:"access"`
	Projects     []WorkspaceProject `yaml:"projects"`
	AlertRules   []discover.Rule    `yaml:"alert_rules"`
}

// WorkspaceOrg is the organization section of a workspace.
type WorkspaceOrg struct {
	ID       string   `yaml:"id"`
	Slug     string   `yaml:"slug"`
	Features []string `yaml:"features"`
}

// WorkspaceProject is one configured project.
type WorkspaceProject struct {
	ID       int64  `yaml:"id"`
	Slug     string `yaml:"slug"`
	Platform string `yaml:"platform"`
}

// DefaultWorkspace is used when no workspace file is configured: a local
// organization with project:write access and no rules.
func DefaultWorkspace() *Workspace {
	return &Workspace{
		Organization: WorkspaceOrg{ID: "1", Slug: "local"},
		Access:       []string{"project:write"},
	}
}

// LoadWorkspace reads and validates a workspace file. Unknown keys are
// rejected so typos do not silently drop settings.
func LoadWorkspace(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", path, err)
	}

	ws, err := ParseWorkspace(data)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", path, err)
	}
	return ws, nil
}

// ParseWorkspace decodes and validates workspace YAML.
func ParseWorkspace(data []byte) (*Workspace, error) {
	var ws Workspace
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ws); err != nil {
		return nil, fmt.Errorf("failed to parse workspace: %w", err)
	}
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Validate checks the organization slug, project uniqueness and rules.
func (ws *Workspace) Validate() error {
	var errs []error
	if ws.Organization.Slug == "" {
		errs = append(errs, errors.New("organization slug is required"))
	}

	ids := make(map[int64]bool)
	slugs := make(map[string]bool)
	for _, p := range ws.Projects {
		switch {
		case p.ID <= 0:
			errs = append(errs, fmt.Errorf("project %q: id must be positive", p.Slug))
		case p.Slug == "":
			errs = append(errs, fmt.Errorf("project %d: slug is required", p.ID))
		case ids[p.ID]:
			errs = append(errs, fmt.Errorf("project id %d is used twice", p.ID))
		case slugs[p.Slug]:
			errs = append(errs, fmt.Errorf("project slug %q is used twice", p.Slug))
		}
		ids[p.ID] = true
		slugs[p.Slug] = true
	}

	ruleIDs := make(map[string]bool)
	for i, r := range ws.AlertRules {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("alert rule %d: %w", i, err))
			continue
		}
		if ruleIDs[r.ID] {
			errs = append(errs, fmt.Errorf("alert rule id %q is used twice", r.ID))
		}
		ruleIDs[r.ID] = true
	}
	return errors.Join(errs...)
}

// Org returns the organization the dashboard runs as.
func (ws *Workspace) Org() discover.Organization {
	return discover.Organization{
		ID:       ws.Organization.ID,
		Slug:     ws.Organization.Slug,
		Features: discover.NewFeatures(ws.Organization.Features...),
	}
}

// ProjectList returns the configured projects.
func (ws *Workspace) ProjectList() []discover.Project {
	out := make([]discover.Project, len(ws.Projects))
	for i, p := range ws.Projects {
		out[i] = discover.Project{ID: p.ID, Slug: p.Slug, Platform: p.Platform}
	}
	return out
}
