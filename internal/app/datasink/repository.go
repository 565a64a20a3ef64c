package datasink

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venue-ops/collab/internal/contracts"
)

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS collaboration_events (
  event_id text PRIMARY KEY,
  invitation_id text NOT NULL,
  actor_id text NOT NULL DEFAULT '',
  actor_role text NOT NULL,
  event_type text NOT NULL,
  milestone_id text NOT NULL DEFAULT '',
  from_status text NOT NULL DEFAULT '',
  to_status text NOT NULL DEFAULT '',
  progress integer NOT NULL,
  shard_id integer NOT NULL,
  occurred_at timestamptz NOT NULL,
  inserted_at timestamptz NOT NULL DEFAULT now()
)`

const createEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS collaboration_events_invitation_idx
ON collaboration_events (invitation_id, occurred_at)`

const createActivityTableSQL = `
CREATE TABLE IF NOT EXISTS invitation_activity (
  invitation_id text PRIMARY KEY,
  status text NOT NULL DEFAULT '',
  progress integer NOT NULL DEFAULT 0,
  milestones_completed integer NOT NULL DEFAULT 0,
  last_event_type text NOT NULL,
  last_event_at timestamptz NOT NULL
)`

const createProjectionOffsetsSQL = `
CREATE TABLE IF NOT EXISTS invitation_projection_offsets (
  invitation_id text PRIMARY KEY,
  last_event_seq bigint NOT NULL DEFAULT 0,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const insertEventSQL = `
INSERT INTO collaboration_events (
  event_id, invitation_id, actor_id, actor_role, event_type, milestone_id,
  from_status, to_status, progress, shard_id, occurred_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (event_id) DO NOTHING
`

const upsertActivitySQL = `
INSERT INTO invitation_activity (
  invitation_id, status, progress, milestones_completed, last_event_type, last_event_at
)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (invitation_id) DO UPDATE
SET status = CASE WHEN EXCLUDED.status = '' THEN invitation_activity.status ELSE EXCLUDED.status END,
    progress = EXCLUDED.progress,
    milestones_completed = invitation_activity.milestones_completed + EXCLUDED.milestones_completed,
    last_event_type = EXCLUDED.last_event_type,
    last_event_at = GREATEST(invitation_activity.last_event_at, EXCLUDED.last_event_at)
`

const upsertProjectionOffsetSQL = `
INSERT INTO invitation_projection_offsets (invitation_id, last_event_seq, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (invitation_id) DO UPDATE
SET last_event_seq = GREATEST(invitation_projection_offsets.last_event_seq, EXCLUDED.last_event_seq),
    updated_at = now()
`

type EventRepository struct {
	Pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{Pool: pool}
}

func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createEventsTableSQL,
		createEventsIndexSQL,
		createActivityTableSQL,
		createProjectionOffsetsSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvent stores the event and folds it into invitation_activity in one
// transaction. A redelivered event is a no-op apart from the offset.
func (r *EventRepository) InsertEvent(ctx context.Context, event contracts.LifecycleEvent, eventSeq uint64) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, insertEventSQL,
		event.EventID,
		event.InvitationID,
		event.ActorID,
		event.ActorRole,
		event.EventType,
		event.MilestoneID,
		event.FromStatus,
		event.ToStatus,
		event.Progress,
		event.ShardID,
		event.OccurredAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx, upsertActivitySQL, activityArgs(event)...); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, upsertProjectionOffsetSQL, event.InvitationID, int64(eventSeq)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func activityArgs(event contracts.LifecycleEvent) []any {
	status := event.ToStatus
	if event.EventType == contracts.EventInvitationCreated {
		status = "pending"
	}
	completed := 0
	if event.EventType == contracts.EventMilestoneCompleted {
		completed = 1
	}
	return []any{
		event.InvitationID,
		status,
		event.Progress,
		completed,
		event.EventType,
		event.OccurredAt,
	}
}
