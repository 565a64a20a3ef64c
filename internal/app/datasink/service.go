package datasink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/venue-ops/collab/internal/contracts"
)

var ErrInvalidEventPayload = errors.New("invalid event payload")
var ErrUnsupportedEventType = errors.New("unsupported event type")

type Repository interface {
	InsertEvent(ctx context.Context, event contracts.LifecycleEvent, eventSeq uint64) error
}

// Service records lifecycle events published by the orchestrator.
type Service struct {
	Repository Repository
}

func NewService(repository Repository) *Service {
	return &Service{Repository: repository}
}

// Handle stores one event. eventSeq is the stream sequence of the message and
// advances the per-invitation projection offset.
func (s *Service) Handle(ctx context.Context, payload []byte, eventSeq uint64) error {
	var event contracts.LifecycleEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return ErrInvalidEventPayload
	}
	if strings.TrimSpace(event.EventID) == "" || strings.TrimSpace(event.InvitationID) == "" {
		return ErrInvalidEventPayload
	}
	if !contracts.IsLifecycleEventType(event.EventType) {
		return ErrUnsupportedEventType
	}
	return s.Repository.InsertEvent(ctx, event, eventSeq)
}
