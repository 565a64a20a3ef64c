package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/pgutil"
)

// InvitationPatch carries the fields of updateInvitation; either may be nil.
type InvitationPatch struct {
	Status   *collab.Status
	Progress *int
}

func (p InvitationPatch) Empty() bool {
	return p.Status == nil && p.Progress == nil
}

type Invitations interface {
	CreateInvitation(ctx context.Context, inv collab.Invitation) error
	GetInvitation(ctx context.Context, id string) (collab.Invitation, error)
	UpdateInvitation(ctx context.Context, id string, patch InvitationPatch) (collab.Invitation, error)
	EventDate(ctx context.Context, eventID string) (time.Time, error)
	ListAutoCompletionCandidates(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Milestones persists milestones. CreateMilestone assigns the position;
// SaveMilestone overwrites every mutable column (last writer wins).
type Milestones interface {
	CreateMilestone(ctx context.Context, m collab.Milestone) (collab.Milestone, error)
	GetMilestone(ctx context.Context, id string) (collab.Milestone, error)
	SaveMilestone(ctx context.Context, m collab.Milestone) (collab.Milestone, error)
	DeleteMilestone(ctx context.Context, id string) error
	ListMilestones(ctx context.Context, invitationID string) ([]collab.Milestone, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, msg collab.Message) (collab.Message, error)
	ListMessages(ctx context.Context, invitationID string) ([]collab.Message, error)
}

const createEventsSQL = `
CREATE TABLE IF NOT EXISTS events (
  id text PRIMARY KEY,
  name text NOT NULL DEFAULT '',
  organizer_id text NOT NULL DEFAULT '',
  starts_at timestamptz NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createInvitationsSQL = `
CREATE TABLE IF NOT EXISTS invitations (
  id text PRIMARY KEY,
  event_id text NOT NULL REFERENCES events(id),
  user_id text NOT NULL,
  invited_by_id text NOT NULL,
  status text NOT NULL DEFAULT 'pending',
  progress integer NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
  genre text NOT NULL DEFAULT '',
  description text NOT NULL DEFAULT '',
  expected_attendees integer NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createInvitationsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS invitations_status_progress_idx ON invitations (status, progress)`

const createMilestonesSQL = `
CREATE TABLE IF NOT EXISTS milestones (
  id text PRIMARY KEY,
  invitation_id text NOT NULL REFERENCES invitations(id) ON DELETE CASCADE,
  title text NOT NULL,
  description text NOT NULL DEFAULT '',
  assigned_to text NOT NULL DEFAULT 'both',
  priority text NOT NULL DEFAULT 'medium',
  status text NOT NULL DEFAULT 'pending',
  due_date timestamptz,
  completed_at timestamptz,
  position integer NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createMessagesSQL = `
CREATE TABLE IF NOT EXISTS collaboration_messages (
  seq bigserial PRIMARY KEY,
  id text NOT NULL UNIQUE,
  invitation_id text NOT NULL REFERENCES invitations(id) ON DELETE CASCADE,
  kind text NOT NULL,
  sender_type text NOT NULL,
  sender_id text NOT NULL DEFAULT '',
  content text NOT NULL,
  file_name text NOT NULL DEFAULT '',
  file_url text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`

const invitationColumns = `id, event_id, user_id, invited_by_id, status, progress,
       genre, description, expected_attendees, created_at, updated_at`

const milestoneColumns = `id, invitation_id, title, description, assigned_to, priority,
       status, due_date, completed_at, position, created_at`

const messageColumns = `id, invitation_id, kind, sender_type, sender_id, content,
       file_name, file_url, created_at`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createEventsSQL,
		createInvitationsSQL,
		createInvitationsStatusIndexSQL,
		createMilestonesSQL,
		createMessagesSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) CreateInvitation(ctx context.Context, inv collab.Invitation) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO invitations (
		   id, event_id, user_id, invited_by_id, status, progress,
		   genre, description, expected_attendees, created_at, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		inv.ID, inv.EventID, inv.UserID, inv.InvitedByID, string(inv.Status), inv.Progress,
		inv.Genre, inv.Description, inv.ExpectedAttendees, inv.CreatedAt,
	)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return collab.ErrDuplicateKey
		}
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetInvitation(ctx context.Context, id string) (collab.Invitation, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return collab.Invitation{}, collab.ErrNotFound
		}
		return collab.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) UpdateInvitation(ctx context.Context, id string, patch InvitationPatch) (collab.Invitation, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	row := r.Pool.QueryRow(ctx,
		`UPDATE invitations
		 SET status = COALESCE($2, status),
		     progress = COALESCE($3, progress),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+invitationColumns,
		id, status, patch.Progress,
	)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return collab.Invitation{}, collab.ErrNotFound
		}
		return collab.Invitation{}, fmt.Errorf("update invitation: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) CreateEvent(ctx context.Context, evt collab.Event) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO events (id, name, organizer_id, starts_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		evt.ID, evt.Name, evt.OrganizerID, evt.StartsAt, evt.CreatedAt,
	)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return collab.ErrDuplicateKey
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) EventDate(ctx context.Context, eventID string) (time.Time, error) {
	var startsAt time.Time
	err := r.Pool.QueryRow(ctx, `SELECT starts_at FROM events WHERE id = $1`, eventID).Scan(&startsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, collab.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get event date: %w", err)
	}
	return startsAt, nil
}

func (r *PostgresRepository) ListAutoCompletionCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT i.id
		 FROM invitations i
		 INNER JOIN events e ON e.id = i.event_id
		 WHERE i.status = $1 AND i.progress = 100 AND e.starts_at < $2
		 ORDER BY e.starts_at
		 LIMIT $3`,
		string(collab.StatusPreparation), now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) CreateMilestone(ctx context.Context, m collab.Milestone) (collab.Milestone, error) {
	row := r.Pool.QueryRow(ctx,
		`INSERT INTO milestones (
		   id, invitation_id, title, description, assigned_to, priority,
		   status, due_date, completed_at, position, created_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		   (SELECT COALESCE(MAX(position) + 1, 0) FROM milestones WHERE invitation_id = $2),
		   $10)
		 RETURNING `+milestoneColumns,
		m.ID, m.InvitationID, m.Title, m.Description, string(m.AssignedTo), string(m.Priority),
		string(m.Status), m.DueDate, m.CompletedAt, m.CreatedAt,
	)
	created, err := scanMilestone(row)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return collab.Milestone{}, collab.ErrDuplicateKey
		}
		return collab.Milestone{}, fmt.Errorf("create milestone: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetMilestone(ctx context.Context, id string) (collab.Milestone, error) {
	m, err := scanMilestone(r.Pool.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return collab.Milestone{}, collab.ErrNotFound
		}
		return collab.Milestone{}, fmt.Errorf("get milestone: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) SaveMilestone(ctx context.Context, m collab.Milestone) (collab.Milestone, error) {
	row := r.Pool.QueryRow(ctx,
		`UPDATE milestones
		 SET title = $2, description = $3, assigned_to = $4, priority = $5,
		     status = $6, due_date = $7, completed_at = $8
		 WHERE id = $1
		 RETURNING `+milestoneColumns,
		m.ID, m.Title, m.Description, string(m.AssignedTo), string(m.Priority),
		string(m.Status), m.DueDate, m.CompletedAt,
	)
	saved, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return collab.Milestone{}, collab.ErrNotFound
		}
		return collab.Milestone{}, fmt.Errorf("save milestone: %w", err)
	}
	return saved, nil
}

func (r *PostgresRepository) DeleteMilestone(ctx context.Context, id string) error {
	res, err := r.Pool.Exec(ctx, `DELETE FROM milestones WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete milestone: %w", err)
	}
	if res.RowsAffected() == 0 {
		return collab.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListMilestones(ctx context.Context, invitationID string) ([]collab.Milestone, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+milestoneColumns+` FROM milestones WHERE invitation_id = $1 ORDER BY position, created_at`,
		invitationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]collab.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, msg collab.Message) (collab.Message, error) {
	row := r.Pool.QueryRow(ctx,
		`INSERT INTO collaboration_messages (
		   id, invitation_id, kind, sender_type, sender_id, content, file_name, file_url, created_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+messageColumns,
		msg.ID, msg.InvitationID, string(msg.Kind), string(msg.SenderType), msg.SenderID,
		msg.Content, msg.FileName, msg.FileURL, msg.CreatedAt,
	)
	created, err := scanMessage(row)
	if err != nil {
		return collab.Message{}, fmt.Errorf("create collaboration message: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, invitationID string) ([]collab.Message, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+messageColumns+` FROM collaboration_messages WHERE invitation_id = $1 ORDER BY created_at, seq`,
		invitationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]collab.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanInvitation(row pgx.Row) (collab.Invitation, error) {
	var inv collab.Invitation
	var status string
	err := row.Scan(
		&inv.ID,
		&inv.EventID,
		&inv.UserID,
		&inv.InvitedByID,
		&status,
		&inv.Progress,
		&inv.Genre,
		&inv.Description,
		&inv.ExpectedAttendees,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	inv.Status = collab.Status(status)
	return inv, err
}

func scanMilestone(row pgx.Row) (collab.Milestone, error) {
	var m collab.Milestone
	var assignedTo, priority, status string
	err := row.Scan(
		&m.ID,
		&m.InvitationID,
		&m.Title,
		&m.Description,
		&assignedTo,
		&priority,
		&status,
		&m.DueDate,
		&m.CompletedAt,
		&m.Position,
		&m.CreatedAt,
	)
	m.AssignedTo = collab.Assignee(assignedTo)
	m.Priority = collab.Priority(priority)
	m.Status = collab.MilestoneStatus(status)
	return m, err
}

func scanMessage(row pgx.Row) (collab.Message, error) {
	var m collab.Message
	var kind, senderType string
	err := row.Scan(
		&m.ID,
		&m.InvitationID,
		&kind,
		&senderType,
		&m.SenderID,
		&m.Content,
		&m.FileName,
		&m.FileURL,
		&m.CreatedAt,
	)
	m.Kind = collab.MessageKind(kind)
	m.SenderType = collab.Role(senderType)
	return m, err
}
