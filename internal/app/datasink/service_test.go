package datasink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venue-ops/collab/internal/contracts"
)

type fakeRepository struct {
	gotEvent contracts.LifecycleEvent
	gotSeq   uint64
	calls    int
	err      error
}

func (f *fakeRepository) InsertEvent(_ context.Context, event contracts.LifecycleEvent, eventSeq uint64) error {
	f.calls++
	f.gotEvent = event
	f.gotSeq = eventSeq
	return f.err
}

func TestHandleValidEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo)

	event := contracts.LifecycleEvent{
		EventID:      "evt-1",
		InvitationID: "inv-1",
		ActorID:      "user-1",
		ActorRole:    "artist",
		EventType:    contracts.EventStatusChanged,
		FromStatus:   "preparation",
		ToStatus:     "completed",
		Progress:     100,
		ShardID:      532,
		OccurredAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, svc.Handle(context.Background(), payload, 42))
	assert.Equal(t, "inv-1", repo.gotEvent.InvitationID)
	assert.Equal(t, "completed", repo.gotEvent.ToStatus)
	assert.Equal(t, 100, repo.gotEvent.Progress)
	assert.Equal(t, uint64(42), repo.gotSeq)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo)

	err := svc.Handle(context.Background(), []byte("{invalid"), 1)
	require.ErrorIs(t, err, ErrInvalidEventPayload)

	err = svc.Handle(context.Background(), []byte(`{"event_id":"e","event_type":"milestone.created"}`), 1)
	require.ErrorIs(t, err, ErrInvalidEventPayload)

	err = svc.Handle(context.Background(), []byte(`{"event_id":"e","invitation_id":"i","event_type":"booking.created"}`), 1)
	require.ErrorIs(t, err, ErrUnsupportedEventType)
	assert.Zero(t, repo.calls)
}

func TestActivityArgs(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	created := activityArgs(contracts.LifecycleEvent{InvitationID: "inv-1", EventType: contracts.EventInvitationCreated, OccurredAt: at})
	assert.Equal(t, []any{"inv-1", "pending", 0, 0, contracts.EventInvitationCreated, at}, created)

	done := activityArgs(contracts.LifecycleEvent{InvitationID: "inv-1", EventType: contracts.EventMilestoneCompleted, Progress: 50, OccurredAt: at})
	assert.Equal(t, []any{"inv-1", "", 50, 1, contracts.EventMilestoneCompleted, at}, done)

	status := activityArgs(contracts.LifecycleEvent{InvitationID: "inv-1", EventType: contracts.EventStatusChanged, ToStatus: "confirmed", Progress: 80, OccurredAt: at})
	assert.Equal(t, "confirmed", status[1])
}
