package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/venue-ops/collab/internal/collab"
)

type EventStore interface {
	CreateEvent(ctx context.Context, evt collab.Event) error
}

// EventCatalog schedules the events invitations are attached to.
type EventCatalog struct {
	Repo  EventStore
	Now   func() time.Time
	NewID func() string
}

func NewEventCatalog(repo EventStore) *EventCatalog {
	return &EventCatalog{
		Repo:  repo,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

func (c *EventCatalog) Schedule(ctx context.Context, organizerID, name string, startsAt time.Time) (collab.Event, error) {
	name = strings.TrimSpace(name)
	switch {
	case strings.TrimSpace(organizerID) == "":
		return collab.Event{}, collab.ErrNotAuthorized
	case name == "":
		return collab.Event{}, fmt.Errorf("%w: name is required", collab.ErrInvalidEvent)
	case startsAt.IsZero():
		return collab.Event{}, fmt.Errorf("%w: starts_at is required", collab.ErrInvalidEvent)
	}
	evt := collab.Event{
		ID:          c.NewID(),
		Name:        name,
		OrganizerID: organizerID,
		StartsAt:    startsAt.UTC(),
		CreatedAt:   c.Now(),
	}
	if err := c.Repo.CreateEvent(ctx, evt); err != nil {
		return collab.Event{}, err
	}
	return evt, nil
}
