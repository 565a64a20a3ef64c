package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/venue-ops/collab/internal/collab"
)

type MilestoneFields struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	AssignedTo  collab.Assignee        `json:"assigned_to"`
	Priority    collab.Priority        `json:"priority"`
	Status      collab.MilestoneStatus `json:"status"`
	DueDate     *time.Time             `json:"due_date"`
}

// MilestonePatch is a partial update; nil fields are left untouched.
type MilestonePatch struct {
	Title        *string                 `json:"title"`
	Description  *string                 `json:"description"`
	AssignedTo   *collab.Assignee        `json:"assigned_to"`
	Priority     *collab.Priority        `json:"priority"`
	Status       *collab.MilestoneStatus `json:"status"`
	DueDate      *time.Time              `json:"due_date"`
	ClearDueDate bool                    `json:"clear_due_date"`
}

// MilestoneStore applies milestone mutations. Content edits are open to both
// parties; moving a milestone to completed is gated on its assignment.
type MilestoneStore struct {
	Repo  Milestones
	Now   func() time.Time
	NewID func() string
}

func NewMilestoneStore(repo Milestones) *MilestoneStore {
	return &MilestoneStore{
		Repo:  repo,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

func (s *MilestoneStore) ListFor(ctx context.Context, invitationID string) ([]collab.Milestone, error) {
	return s.Repo.ListMilestones(ctx, invitationID)
}

func (s *MilestoneStore) Create(ctx context.Context, actor collab.Actor, invitationID string, f MilestoneFields) (collab.Milestone, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return collab.Milestone{}, fmt.Errorf("%w: title is required", collab.ErrInvalidMilestone)
	}
	m := collab.Milestone{
		ID:           s.NewID(),
		InvitationID: invitationID,
		Title:        title,
		Description:  strings.TrimSpace(f.Description),
		AssignedTo:   f.AssignedTo,
		Priority:     f.Priority,
		Status:       f.Status,
		DueDate:      f.DueDate,
		CreatedAt:    s.Now(),
	}
	if m.AssignedTo == "" {
		m.AssignedTo = collab.AssigneeBoth
	}
	if m.Priority == "" {
		m.Priority = collab.PriorityMedium
	}
	if m.Status == "" {
		m.Status = collab.MilestonePending
	}
	if err := validate(m); err != nil {
		return collab.Milestone{}, err
	}
	if m.Status == collab.MilestoneCompleted {
		if !m.AssignedTo.CanComplete(actor.Role) {
			return collab.Milestone{}, collab.ErrNotAuthorized
		}
		now := s.Now()
		m.CompletedAt = &now
	}
	return s.Repo.CreateMilestone(ctx, m)
}

// Update returns the milestone before and after the patch. A completion by a
// party the milestone is not assigned to fails with collab.ErrNotAuthorized
// and writes nothing. The assignment in effect before the patch decides.
func (s *MilestoneStore) Update(ctx context.Context, actor collab.Actor, id string, patch MilestonePatch) (collab.Milestone, collab.Milestone, error) {
	before, err := s.Repo.GetMilestone(ctx, id)
	if err != nil {
		return collab.Milestone{}, collab.Milestone{}, err
	}

	after := before
	if patch.Title != nil {
		after.Title = strings.TrimSpace(*patch.Title)
		if after.Title == "" {
			return before, collab.Milestone{}, fmt.Errorf("%w: title is required", collab.ErrInvalidMilestone)
		}
	}
	if patch.Description != nil {
		after.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.AssignedTo != nil {
		after.AssignedTo = *patch.AssignedTo
	}
	if patch.Priority != nil {
		after.Priority = *patch.Priority
	}
	if patch.ClearDueDate {
		after.DueDate = nil
	} else if patch.DueDate != nil {
		after.DueDate = patch.DueDate
	}
	if patch.Status != nil {
		after.Status = *patch.Status
	}
	if err := validate(after); err != nil {
		return before, collab.Milestone{}, err
	}

	if patch.Status != nil {
		switch {
		case after.Status == collab.MilestoneCompleted && before.Status != collab.MilestoneCompleted:
			if !before.AssignedTo.CanComplete(actor.Role) {
				return before, collab.Milestone{}, collab.ErrNotAuthorized
			}
			now := s.Now()
			after.CompletedAt = &now
		case after.Status != collab.MilestoneCompleted:
			after.CompletedAt = nil
		}
	}

	saved, err := s.Repo.SaveMilestone(ctx, after)
	if err != nil {
		return before, collab.Milestone{}, err
	}
	return before, saved, nil
}

// Delete removes a milestone for either party and returns what was removed.
// An empty reply from the store counts as success.
func (s *MilestoneStore) Delete(ctx context.Context, id string) (collab.Milestone, error) {
	m, err := s.Repo.GetMilestone(ctx, id)
	if err != nil {
		return collab.Milestone{}, err
	}
	if err := s.Repo.DeleteMilestone(ctx, id); err != nil && !errors.Is(err, collab.ErrEmptyResponse) {
		return collab.Milestone{}, err
	}
	return m, nil
}

func validate(m collab.Milestone) error {
	switch {
	case !m.AssignedTo.Valid():
		return fmt.Errorf("%w: assigned_to must be artist, club or both", collab.ErrInvalidMilestone)
	case !m.Priority.Valid():
		return fmt.Errorf("%w: priority must be low, medium or high", collab.ErrInvalidMilestone)
	case !m.Status.Valid():
		return fmt.Errorf("%w: status must be pending, in_progress or completed", collab.ErrInvalidMilestone)
	}
	return nil
}
