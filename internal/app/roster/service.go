package roster

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/metrics"
)

var ErrUnknownParty = errors.New("unknown invited party")

// Store is the roster side of the CRUD collaborator. Create calls report
// collab.ErrDuplicateKey when the key exists; delete and update report
// collab.ErrNotFound when it does not.
type Store interface {
	CreateEventArtist(ctx context.Context, entry collab.EventArtist) error
	DeleteEventArtist(ctx context.Context, eventID, artistID string) error
	CreateEventParticipant(ctx context.Context, entry collab.EventParticipant) error
	UpdateEventParticipant(ctx context.Context, eventID, userID string, status collab.ParticipantStatus) error
}

// PartyResolver looks up whether an invited user has an artist record.
type PartyResolver interface {
	ResolveParty(ctx context.Context, userID string) (collab.InvitedParty, error)
}

type Target string

const (
	TargetNone        Target = ""
	TargetArtist      Target = "artist"
	TargetParticipant Target = "participant"
)

type Action string

const (
	ActionNone                 Action = "none"
	ActionArtistAdded          Action = "artist_added"
	ActionArtistRemoved        Action = "artist_removed"
	ActionParticipantConfirmed Action = "participant_confirmed"
	ActionParticipantCancelled Action = "participant_cancelled"
)

// Outcome describes what a sync did. AlreadyInState is set when the store
// reported the record was already present (or already absent).
type Outcome struct {
	Target         Target `json:"target,omitempty"`
	Action         Action `json:"action"`
	AlreadyInState bool   `json:"already_in_state,omitempty"`
}

type Synchronizer struct {
	Store   Store
	Parties PartyResolver
	Logger  *log.Logger
	// Fee is recorded on new artist roster entries.
	Fee int64
}

func NewSynchronizer(store Store, parties PartyResolver, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synchronizer{Store: store, Parties: parties, Logger: logger}
}

// Sync brings the roster of the invitation's event in line with its status.
// Repeating a call with the same invitation leaves the roster unchanged.
func (s *Synchronizer) Sync(ctx context.Context, inv collab.Invitation) (Outcome, error) {
	party, err := s.Parties.ResolveParty(ctx, inv.UserID)
	if err != nil {
		s.Logger.Printf("roster sync: resolve party for invitation %s: %v", inv.ID, err)
		return Outcome{Action: ActionNone}, fmt.Errorf("resolve invited party: %w", err)
	}

	switch p := party.(type) {
	case collab.ArtistParty:
		return s.syncArtist(ctx, inv, p)
	case collab.UserParty:
		return s.syncParticipant(ctx, inv, p)
	default:
		return Outcome{Action: ActionNone}, ErrUnknownParty
	}
}

func isRostered(status collab.Status) bool {
	return status == collab.StatusConfirmed || status == collab.StatusCompleted
}

func cancelsParticipant(status collab.Status) bool {
	switch status {
	case collab.StatusCancelled, collab.StatusRejected, collab.StatusDeclined:
		return true
	default:
		return false
	}
}

func (s *Synchronizer) syncArtist(ctx context.Context, inv collab.Invitation, p collab.ArtistParty) (Outcome, error) {
	out := Outcome{Target: TargetArtist}
	if isRostered(inv.Status) {
		out.Action = ActionArtistAdded
		err := s.Store.CreateEventArtist(ctx, collab.EventArtist{EventID: inv.EventID, ArtistID: p.ArtistID, Fee: s.Fee})
		if errors.Is(err, collab.ErrDuplicateKey) {
			out.AlreadyInState = true
			err = nil
		}
		return out, s.record(out, inv, err)
	}

	out.Action = ActionArtistRemoved
	err := s.Store.DeleteEventArtist(ctx, inv.EventID, p.ArtistID)
	if errors.Is(err, collab.ErrNotFound) {
		out.AlreadyInState = true
		err = nil
	}
	return out, s.record(out, inv, err)
}

func (s *Synchronizer) syncParticipant(ctx context.Context, inv collab.Invitation, p collab.UserParty) (Outcome, error) {
	out := Outcome{Target: TargetParticipant}
	var status collab.ParticipantStatus
	switch {
	case isRostered(inv.Status):
		out.Action = ActionParticipantConfirmed
		status = collab.ParticipantConfirmed
	case cancelsParticipant(inv.Status):
		out.Action = ActionParticipantCancelled
		status = collab.ParticipantCancel
	default:
		return Outcome{Action: ActionNone}, nil
	}

	err := s.Store.CreateEventParticipant(ctx, collab.EventParticipant{EventID: inv.EventID, UserID: p.UserID, Status: status})
	if errors.Is(err, collab.ErrDuplicateKey) {
		out.AlreadyInState = true
		err = s.Store.UpdateEventParticipant(ctx, inv.EventID, p.UserID, status)
	}
	return out, s.record(out, inv, err)
}

func (s *Synchronizer) record(out Outcome, inv collab.Invitation, err error) error {
	result := "ok"
	if out.AlreadyInState {
		result = "noop"
	}
	if err != nil {
		result = "error"
		s.Logger.Printf("roster sync: %s for invitation %s (event %s) failed: %v", out.Action, inv.ID, inv.EventID, err)
		err = fmt.Errorf("%s: %w", out.Action, err)
	}
	metrics.RosterSync.WithLabelValues(string(out.Target), string(out.Action), result).Inc()
	return err
}
