package roster

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/pgutil"
)

const createEventArtistsSQL = `
CREATE TABLE IF NOT EXISTS event_artists (
  event_id text NOT NULL,
  artist_id text NOT NULL,
  fee bigint NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (event_id, artist_id)
)`

const createEventParticipantsSQL = `
CREATE TABLE IF NOT EXISTS event_participants (
  event_id text NOT NULL,
  user_id text NOT NULL,
  status text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (event_id, user_id)
)`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createEventArtistsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createEventParticipantsSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) CreateEventArtist(ctx context.Context, entry collab.EventArtist) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO event_artists (event_id, artist_id, fee) VALUES ($1, $2, $3)`,
		entry.EventID, entry.ArtistID, entry.Fee,
	)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return collab.ErrDuplicateKey
		}
		return fmt.Errorf("create event artist: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteEventArtist(ctx context.Context, eventID, artistID string) error {
	res, err := r.Pool.Exec(ctx,
		`DELETE FROM event_artists WHERE event_id = $1 AND artist_id = $2`,
		eventID, artistID,
	)
	if err != nil {
		return fmt.Errorf("delete event artist: %w", err)
	}
	if res.RowsAffected() == 0 {
		return collab.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateEventParticipant(ctx context.Context, entry collab.EventParticipant) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO event_participants (event_id, user_id, status) VALUES ($1, $2, $3)`,
		entry.EventID, entry.UserID, string(entry.Status),
	)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return collab.ErrDuplicateKey
		}
		return fmt.Errorf("create event participant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateEventParticipant(ctx context.Context, eventID, userID string, status collab.ParticipantStatus) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE event_participants
		 SET status = $3, updated_at = now()
		 WHERE event_id = $1 AND user_id = $2`,
		eventID, userID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update event participant: %w", err)
	}
	if res.RowsAffected() == 0 {
		return collab.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListEventArtists(ctx context.Context, eventID string) ([]collab.EventArtist, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT event_id, artist_id, fee FROM event_artists WHERE event_id = $1 ORDER BY created_at, artist_id`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]collab.EventArtist, 0)
	for rows.Next() {
		var a collab.EventArtist
		if err := rows.Scan(&a.EventID, &a.ArtistID, &a.Fee); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListEventParticipants(ctx context.Context, eventID string) ([]collab.EventParticipant, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT event_id, user_id, status FROM event_participants WHERE event_id = $1 ORDER BY created_at, user_id`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]collab.EventParticipant, 0)
	for rows.Next() {
		var p collab.EventParticipant
		var status string
		if err := rows.Scan(&p.EventID, &p.UserID, &status); err != nil {
			return nil, err
		}
		p.Status = collab.ParticipantStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
