package contracts

import "time"

const (
	ActionRefresh = "refresh-invitation"

	EventInvitationCreated  = "invitation.created"
	EventStatusChanged      = "invitation.status_changed"
	EventProgressChanged    = "invitation.progress_changed"
	EventMilestoneCreated   = "milestone.created"
	EventMilestoneUpdated   = "milestone.updated"
	EventMilestoneCompleted = "milestone.completed"
	EventMilestoneDeleted   = "milestone.deleted"

	EntityInvitation = "invitation"
)

// LifecycleCommand asks the lifecycle engine to run a cycle for one invitation.
type LifecycleCommand struct {
	CommandID    string    `json:"command_id"`
	InvitationID string    `json:"invitation_id"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// LifecycleEvent is published by the orchestrator after a committed change
// and consumed by the data sink.
type LifecycleEvent struct {
	EventID      string    `json:"event_id"`
	InvitationID string    `json:"invitation_id"`
	ActorID      string    `json:"actor_id,omitempty"`
	ActorRole    string    `json:"actor_role"`
	EventType    string    `json:"event_type"`
	MilestoneID  string    `json:"milestone_id,omitempty"`
	FromStatus   string    `json:"from_status,omitempty"`
	ToStatus     string    `json:"to_status,omitempty"`
	Progress     int       `json:"progress"`
	OccurredAt   time.Time `json:"occurred_at"`
	ShardID      int       `json:"shard_id"`
}

// IsLifecycleEventType reports whether t is one of the event types above.
func IsLifecycleEventType(t string) bool {
	switch t {
	case EventInvitationCreated, EventStatusChanged, EventProgressChanged,
		EventMilestoneCreated, EventMilestoneUpdated, EventMilestoneCompleted, EventMilestoneDeleted:
		return true
	default:
		return false
	}
}
