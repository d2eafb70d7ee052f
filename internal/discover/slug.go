package discover

import (
	"fmt"
	"strconv"
	"strings"
)

// EventSlug identifies an event across projects as "<project>:<event id>".
type EventSlug struct {
	Project string
	EventID string
}

// SlugFor derives the slug of a record. The project slug is preferred; the
// numeric project id is used when the slug is unknown.
func SlugFor(r Record) EventSlug {
	project := r.Project
	if project == "" {
		project = strconv.FormatInt(r.ProjectID, 10)
	}
	return EventSlug{Project: project, EventID: r.ID}
}

func (s EventSlug) String() string {
	return s.Project + ":" + s.EventID
}

// ParseEventSlug splits "<project>:<event id>".
func ParseEventSlug(raw string) (EventSlug, error) {
	project, id, ok := strings.Cut(raw, ":")
	if !ok || project == "" || id == "" {
		return EventSlug{}, fmt.Errorf("invalid event slug %q: expected <project>:<event id>", raw)
	}
	return EventSlug{Project: project, EventID: id}, nil
}

// ShortID returns the first eight characters of an event id.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
