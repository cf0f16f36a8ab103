package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sl-c19-memorial/memorial-web/internal/filter"
)

const (
	// ActionFilterHome is the event action recorded for home page filter changes.
	ActionFilterHome = "filter_home"
	// CategoryFilter groups filter events.
	CategoryFilter = "filter"
)

// Event is one analytics hit.
type Event struct {
	ID         string           `json:"id"`
	Action     string           `json:"action"`
	Category   string           `json:"category"`
	Label      string           `json:"label"`
	Value      string           `json:"value,omitempty"`
	Selection  filter.Selection `json:"selection"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// FilterEvent maps a committed filter transition to its analytics event.
func FilterEvent(a filter.Action, s filter.Selection, now time.Time) Event {
	field, value := filter.Describe(a)
	return Event{
		ID:         uuid.NewString(),
		Action:     ActionFilterHome,
		Category:   CategoryFilter,
		Label:      "Filter " + field,
		Value:      value,
		Selection:  s,
		OccurredAt: now.UTC(),
	}
}

// Sink delivers events somewhere.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, event Event) error { return f(ctx, event) }
