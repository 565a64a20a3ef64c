package query

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venue-ops/collab/internal/platform/pgutil"
)

var ErrEventNotFound = errors.New("event not found")

// InvitationView is one row of a user's invitation list. Side is "club" when
// the user sent the invitation and "artist" when they received it.
type InvitationView struct {
	InvitationID        string    `json:"invitation_id"`
	EventID             string    `json:"event_id"`
	EventName           string    `json:"event_name"`
	EventStartsAt       time.Time `json:"event_starts_at"`
	Side                string    `json:"side"`
	CounterpartID       string    `json:"counterpart_id"`
	CounterpartUsername string    `json:"counterpart_username"`
	Status              string    `json:"status"`
	Progress            int       `json:"progress"`
	MilestoneCount      int       `json:"milestone_count"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type RosterArtist struct {
	ArtistID  string `json:"artist_id"`
	StageName string `json:"stage_name"`
	Fee       int64  `json:"fee"`
}

type RosterParticipant struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

type RosterView struct {
	EventID      string              `json:"event_id"`
	EventName    string              `json:"event_name"`
	StartsAt     time.Time           `json:"starts_at"`
	Artists      []RosterArtist      `json:"artists"`
	Participants []RosterParticipant `json:"participants"`
}

// TimelineEntry is a lifecycle event as recorded by the data sink.
type TimelineEntry struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ActorID     string    `json:"actor_id,omitempty"`
	ActorRole   string    `json:"actor_role"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	FromStatus  string    `json:"from_status,omitempty"`
	ToStatus    string    `json:"to_status,omitempty"`
	Progress    int       `json:"progress"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func (r *Repository) ListInvitationsForUser(ctx context.Context, userID string, limit int) ([]InvitationView, error) {
	limit = clampLimit(limit)
	rows, err := r.Pool.Query(ctx,
		`SELECT i.id, i.event_id, e.name, e.starts_at,
		        CASE WHEN i.invited_by_id = $1 THEN 'club' ELSE 'artist' END,
		        CASE WHEN i.invited_by_id = $1 THEN i.user_id ELSE i.invited_by_id END,
		        COALESCE(u.username, ''),
		        i.status, i.progress,
		        (SELECT count(*) FROM milestones m WHERE m.invitation_id = i.id),
		        i.updated_at
		 FROM invitations i
		 INNER JOIN events e ON e.id = i.event_id
		 LEFT JOIN users u ON u.id = CASE WHEN i.invited_by_id = $1 THEN i.user_id ELSE i.invited_by_id END
		 WHERE i.invited_by_id = $1 OR i.user_id = $1
		 ORDER BY i.updated_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]InvitationView, 0, limit)
	for rows.Next() {
		var v InvitationView
		if err := rows.Scan(
			&v.InvitationID,
			&v.EventID,
			&v.EventName,
			&v.EventStartsAt,
			&v.Side,
			&v.CounterpartID,
			&v.CounterpartUsername,
			&v.Status,
			&v.Progress,
			&v.MilestoneCount,
			&v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) EventRoster(ctx context.Context, eventID string) (RosterView, error) {
	view := RosterView{EventID: eventID, Artists: []RosterArtist{}, Participants: []RosterParticipant{}}
	err := r.Pool.QueryRow(ctx,
		`SELECT name, starts_at FROM events WHERE id = $1`,
		eventID,
	).Scan(&view.EventName, &view.StartsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RosterView{}, ErrEventNotFound
		}
		return RosterView{}, err
	}

	rows, err := r.Pool.Query(ctx,
		`SELECT ea.artist_id, COALESCE(a.stage_name, ''), ea.fee
		 FROM event_artists ea
		 LEFT JOIN artists a ON a.id = ea.artist_id
		 WHERE ea.event_id = $1
		 ORDER BY ea.created_at, ea.artist_id`,
		eventID,
	)
	if err != nil {
		return RosterView{}, err
	}
	for rows.Next() {
		var a RosterArtist
		if err := rows.Scan(&a.ArtistID, &a.StageName, &a.Fee); err != nil {
			rows.Close()
			return RosterView{}, err
		}
		view.Artists = append(view.Artists, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RosterView{}, err
	}

	rows, err = r.Pool.Query(ctx,
		`SELECT ep.user_id, COALESCE(u.username, ''), ep.status
		 FROM event_participants ep
		 LEFT JOIN users u ON u.id = ep.user_id
		 WHERE ep.event_id = $1
		 ORDER BY ep.created_at, ep.user_id`,
		eventID,
	)
	if err != nil {
		return RosterView{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p RosterParticipant
		if err := rows.Scan(&p.UserID, &p.Username, &p.Status); err != nil {
			return RosterView{}, err
		}
		view.Participants = append(view.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return RosterView{}, err
	}
	return view, nil
}

// Timeline lists the recorded lifecycle events of an invitation, oldest
// first. It is empty until the data sink has created its tables.
func (r *Repository) Timeline(ctx context.Context, invitationID string, limit int) ([]TimelineEntry, error) {
	limit = clampLimit(limit)
	rows, err := r.Pool.Query(ctx,
		`SELECT event_id, event_type, actor_id, actor_role, milestone_id,
		        from_status, to_status, progress, occurred_at
		 FROM collaboration_events
		 WHERE invitation_id = $1
		 ORDER BY occurred_at, event_id
		 LIMIT $2`,
		invitationID, limit,
	)
	if err != nil {
		if pgutil.IsUndefinedTable(err) {
			return []TimelineEntry{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	result := make([]TimelineEntry, 0)
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(
			&e.EventID,
			&e.EventType,
			&e.ActorID,
			&e.ActorRole,
			&e.MilestoneID,
			&e.FromStatus,
			&e.ToStatus,
			&e.Progress,
			&e.OccurredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) GetInvitationProjectionOffset(ctx context.Context, invitationID string) (uint64, error) {
	var offset uint64
	err := r.Pool.QueryRow(ctx,
		`SELECT COALESCE(last_event_seq, 0)
		 FROM invitation_projection_offsets
		 WHERE invitation_id = $1`,
		invitationID,
	).Scan(&offset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgutil.IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return offset, nil
}
