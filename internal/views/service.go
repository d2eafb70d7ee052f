package views

import (
	"context"

	"github.com/tobert/perfdash/internal/discover"
)

// QueryService runs discover queries.
type QueryService interface {
	Execute(ctx context.Context, q discover.Query) (*discover.TableData, error)
}

// BaselineService resolves the baseline transaction for a query. A nil
// record with a nil error means there is no baseline.
type BaselineService interface {
	Baseline(ctx context.Context, q discover.Query) (*discover.Record, error)
}

// EventService loads single events with their spans.
type EventService interface {
	Event(ctx context.Context, slug discover.EventSlug) (*discover.Event, error)
}
