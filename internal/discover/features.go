package discover

// FeatureGlobalViews lets an organization query across all of its projects.
const FeatureGlobalViews = "global-views"

// Features is a set of organization feature flags.
type Features map[string]struct{}

// NewFeatures builds a feature set.
func NewFeatures(names ...string) Features {
	f := make(Features, len(names))
	for _, n := range names {
		f[n] = struct{}{}
	}
	return f
}

// HasFeature reports whether name is enabled. A nil set has no features.
func HasFeature(features Features, name string) bool {
	_, ok := features[name]
	return ok
}

// Organization is the owner of projects and feature flags.
type Organization struct {
	ID       string
	Slug     string
	Features Features
}

// Project is a monitored project.
type Project struct {
	ID       int64
	Slug     string
	Platform string
}

// ProjectIndex maps project slugs to projects. It is built by the caller and
// passed in; views never cache lookups themselves.
type ProjectIndex map[string]Project

// NewProjectIndex indexes projects by slug.
func NewProjectIndex(projects []Project) ProjectIndex {
	idx := make(ProjectIndex, len(projects))
	for _, p := range projects {
		idx[p.Slug] = p
	}
	return idx
}

// Lookup returns the project with the given slug.
func (idx ProjectIndex) Lookup(slug string) (Project, bool) {
	p, ok := idx[slug]
	return p, ok
}
