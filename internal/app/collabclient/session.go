package collabclient

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
)

// Session keeps a local snapshot of one invitation. Commands are applied to
// the snapshot first, dispatched, and the snapshot is then replaced by the
// server's. If that refetch fails the optimistic snapshot stays and Stale
// reports true until the next successful reconcile.
type Session struct {
	Client *Client
	Actor  collab.Actor
	Logger *log.Logger
	Now    func() time.Time

	mu    sync.Mutex
	snap  lifecycle.Snapshot
	stale bool
}

// Open fetches the initial snapshot.
func Open(ctx context.Context, client *Client, invitationID, userID string) (*Session, error) {
	snap, err := client.Snapshot(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	actor, err := collab.ActorFor(snap.Invitation, userID)
	if err != nil {
		return nil, err
	}
	return &Session{
		Client: client,
		Actor:  actor,
		Logger: log.New(os.Stderr, "collabclient ", log.LstdFlags),
		Now:    func() time.Time { return time.Now().UTC() },
		snap:   snap,
	}, nil
}

// Snapshot returns the current local view.
func (s *Session) Snapshot() lifecycle.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.snap)
}

func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// SetMilestoneStatus completes or reopens a milestone. Completion of work
// assigned to the other party is refused locally and never dispatched.
func (s *Session) SetMilestoneStatus(ctx context.Context, milestoneID string, status collab.MilestoneStatus) error {
	s.mu.Lock()
	idx := indexOf(s.snap.Milestones, milestoneID)
	if idx < 0 {
		s.mu.Unlock()
		return collab.ErrNotFound
	}
	m := s.snap.Milestones[idx]
	if status == collab.MilestoneCompleted && m.Status != collab.MilestoneCompleted && !m.AssignedTo.CanComplete(s.Actor.Role) {
		s.mu.Unlock()
		return collab.ErrNotAuthorized
	}
	next := cloneSnapshot(s.snap)
	next.Milestones[idx].Status = status
	if status == collab.MilestoneCompleted {
		if m.CompletedAt == nil {
			now := s.Now()
			next.Milestones[idx].CompletedAt = &now
		}
	} else {
		next.Milestones[idx].CompletedAt = nil
	}
	s.applyLocked(next)
	s.mu.Unlock()

	_, err := s.Client.UpdateMilestone(ctx, s.invitationID(), milestoneID, lifecycle.MilestonePatch{Status: &status})
	return s.settle(ctx, "update milestone", err)
}

func (s *Session) CreateMilestone(ctx context.Context, f lifecycle.MilestoneFields) error {
	_, err := s.Client.CreateMilestone(ctx, s.invitationID(), f)
	return s.settle(ctx, "create milestone", err)
}

func (s *Session) DeleteMilestone(ctx context.Context, milestoneID string) error {
	s.mu.Lock()
	idx := indexOf(s.snap.Milestones, milestoneID)
	if idx < 0 {
		s.mu.Unlock()
		return collab.ErrNotFound
	}
	next := cloneSnapshot(s.snap)
	next.Milestones = append(next.Milestones[:idx], next.Milestones[idx+1:]...)
	s.applyLocked(next)
	s.mu.Unlock()

	err := s.Client.DeleteMilestone(ctx, s.invitationID(), milestoneID)
	return s.settle(ctx, "delete milestone", err)
}

// ChangeStatus refuses a transition the current band or a terminal status
// forbids without a round trip.
func (s *Session) ChangeStatus(ctx context.Context, target collab.Status) error {
	s.mu.Lock()
	if err := collab.ValidateChange(s.snap.Invitation.Status, s.snap.Invitation.Progress, target); err != nil {
		s.mu.Unlock()
		return err
	}
	next := cloneSnapshot(s.snap)
	next.Invitation.Status = target
	next.LegalTransitions = collab.TransitionsFrom(target, next.Invitation.Progress)
	s.snap = next
	s.mu.Unlock()

	_, err := s.Client.ChangeStatus(ctx, s.invitationID(), target)
	return s.settle(ctx, "change status", err)
}

func (s *Session) PostMessage(ctx context.Context, content string) error {
	_, err := s.Client.PostMessage(ctx, s.invitationID(), content)
	return s.settle(ctx, "post message", err)
}

// Reconcile replaces the local snapshot with the server's.
func (s *Session) Reconcile(ctx context.Context) error {
	snap, err := s.Client.Snapshot(ctx, s.invitationID())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stale = true
		return err
	}
	s.snap = snap
	s.stale = false
	return nil
}

// settle reconciles after a dispatch, successful or not, and returns the
// dispatch error.
func (s *Session) settle(ctx context.Context, op string, dispatchErr error) error {
	if dispatchErr != nil {
		s.logf("%s failed: %v", op, dispatchErr)
	}
	if err := s.Reconcile(ctx); err != nil {
		s.logf("%s: reconcile failed, keeping local snapshot: %v", op, err)
		if dispatchErr == nil {
			return nil
		}
	}
	return dispatchErr
}

func (s *Session) applyLocked(next lifecycle.Snapshot) {
	p := collab.ComputeProgress(next.Milestones)
	next.Progress = p
	next.Invitation.Progress = p.Percent
	next.Band = collab.BandFor(p.Percent).String()
	next.LegalTransitions = collab.TransitionsFrom(next.Invitation.Status, p.Percent)
	s.snap = next
}

func (s *Session) invitationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Invitation.ID
}

func (s *Session) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func indexOf(milestones []collab.Milestone, id string) int {
	for i := range milestones {
		if milestones[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneSnapshot(in lifecycle.Snapshot) lifecycle.Snapshot {
	out := in
	out.Milestones = append([]collab.Milestone(nil), in.Milestones...)
	out.LegalTransitions = append([]collab.Status(nil), in.LegalTransitions...)
	out.Messages = append([]collab.Message(nil), in.Messages...)
	return out
}

// IsStatusCode reports whether err is an APIError with the given status.
func IsStatusCode(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
