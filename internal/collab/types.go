package collab

import (
	"strings"
	"time"
)

// Status is the lifecycle status of an invitation.
type Status string

const (
	StatusPending     Status = "pending"
	StatusNegotiation Status = "negotiation"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusDeclined    Status = "declined"
	StatusPreparation Status = "preparation"
	StatusCompleted   Status = "completed"
)

var allStatuses = []Status{
	StatusPending,
	StatusNegotiation,
	StatusAccepted,
	StatusRejected,
	StatusConfirmed,
	StatusCancelled,
	StatusDeclined,
	StatusPreparation,
	StatusCompleted,
}

// ParseStatus normalizes a status label.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

// Terminal reports whether the status closes the collaboration.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDeclined, StatusRejected:
		return true
	default:
		return false
	}
}

// Role is the side of the collaboration an actor is acting for.
type Role string

const (
	RoleClub   Role = "club"
	RoleArtist Role = "artist"
	// RoleSystem authors messages for cycles no party initiated.
	RoleSystem Role = "system"
)

// Actor is the explicit caller descriptor threaded through every operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is used by the sweeper.
var SystemActor = Actor{Role: RoleSystem}

type Assignee string

const (
	AssigneeArtist Assignee = "artist"
	AssigneeClub   Assignee = "club"
	AssigneeBoth   Assignee = "both"
)

func (a Assignee) Valid() bool {
	return a == AssigneeArtist || a == AssigneeClub || a == AssigneeBoth
}

// CanComplete reports whether a party with the given role may complete
// work assigned to a.
func (a Assignee) CanComplete(role Role) bool {
	if a == AssigneeBoth {
		return true
	}
	return string(a) == string(role)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

func (s MilestoneStatus) Valid() bool {
	return s == MilestonePending || s == MilestoneInProgress || s == MilestoneCompleted
}

type Invitation struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id"`
	UserID            string    `json:"user_id"`
	InvitedByID       string    `json:"invited_by_id"`
	Status            Status    `json:"status"`
	Progress          int       `json:"progress"`
	Genre             string    `json:"genre,omitempty"`
	Description       string    `json:"description,omitempty"`
	ExpectedAttendees int       `json:"expected_attendees,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ActorFor resolves which side of the invitation userID is acting for.
func ActorFor(inv Invitation, userID string) (Actor, error) {
	switch strings.TrimSpace(userID) {
	case "":
		return Actor{}, ErrNotParticipant
	case inv.InvitedByID:
		return Actor{ID: userID, Role: RoleClub}, nil
	case inv.UserID:
		return Actor{ID: userID, Role: RoleArtist}, nil
	default:
		return Actor{}, ErrNotParticipant
	}
}

type Milestone struct {
	ID           string          `json:"id"`
	InvitationID string          `json:"invitation_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	AssignedTo   Assignee        `json:"assigned_to"`
	Priority     Priority        `json:"priority"`
	Status       MilestoneStatus `json:"status"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Position     int             `json:"position"`
	CreatedAt    time.Time       `json:"created_at"`
}

type MessageKind string

const (
	MessageSystem MessageKind = "system"
	MessageChat   MessageKind = "chat"
	MessageFile   MessageKind = "file"
)

// Message is an immutable entry of the collaboration log.
type Message struct {
	ID           string      `json:"id"`
	InvitationID string      `json:"invitation_id"`
	Kind         MessageKind `json:"kind"`
	SenderType   Role        `json:"sender_type"`
	SenderID     string      `json:"sender_id,omitempty"`
	Content      string      `json:"content"`
	FileName     string      `json:"file_name,omitempty"`
	FileURL      string      `json:"file_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Event is the scheduled occasion an invitation belongs to. Its start time is
// the event date the autonomous completion rule compares against.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OrganizerID string    `json:"organizer_id"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type EventArtist struct {
	EventID  string `json:"event_id"`
	ArtistID string `json:"artist_id"`
	Fee      int64  `json:"fee"`
}

type ParticipantStatus string

const (
	ParticipantConfirmed ParticipantStatus = "confirmed"
	ParticipantCancel    ParticipantStatus = "cancel"
)

type EventParticipant struct {
	EventID string            `json:"event_id"`
	UserID  string            `json:"user_id"`
	Status  ParticipantStatus `json:"status"`
}
