package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nuid"
	"github.com/venue-ops/collab/internal/app/roster"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/contracts"
	"github.com/venue-ops/collab/internal/platform/memo"
	"github.com/venue-ops/collab/internal/platform/metrics"
	"github.com/venue-ops/collab/internal/sharding"
)

const (
	triggerManual = "manual"
	triggerAuto   = "auto"
)

type RosterSyncer interface {
	Sync(ctx context.Context, inv collab.Invitation) (roster.Outcome, error)
}

// PublishFunc publishes a lifecycle event; msgID deduplicates redeliveries.
type PublishFunc func(subject, msgID string, payload []byte) error

type InvitationFields struct {
	EventID           string `json:"event_id"`
	UserID            string `json:"user_id"`
	Genre             string `json:"genre"`
	Description       string `json:"description"`
	ExpectedAttendees int    `json:"expected_attendees"`
}

// Result is the state after one orchestration cycle. Warnings hold failures
// of best-effort steps (roster, message log, publishing) that did not undo
// the committed invitation write.
type Result struct {
	Invitation      collab.Invitation  `json:"invitation"`
	Milestones      []collab.Milestone `json:"milestones"`
	Milestone       *collab.Milestone  `json:"milestone,omitempty"`
	Progress        collab.Progress    `json:"progress"`
	StatusChanged   bool               `json:"status_changed"`
	PreviousStatus  collab.Status      `json:"previous_status,omitempty"`
	ProgressWritten bool               `json:"progress_written"`
	Roster          *roster.Outcome    `json:"roster,omitempty"`
	Message         *collab.Message    `json:"message,omitempty"`
	Warnings        []error            `json:"-"`
}

// WarningMessages renders Warnings for transport.
func (r Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// Snapshot is the full authoritative state of one collaboration.
type Snapshot struct {
	Invitation       collab.Invitation  `json:"invitation"`
	Milestones       []collab.Milestone `json:"milestones"`
	Progress         collab.Progress    `json:"progress"`
	Band             string             `json:"band"`
	LegalTransitions []collab.Status    `json:"legal_transitions"`
	Messages         []collab.Message   `json:"messages"`
}

type Orchestrator struct {
	Invitations Invitations
	Milestones  *MilestoneStore
	Messages    *MessageLog
	Roster      RosterSyncer
	Memo        memo.Memo
	Publish     PublishFunc
	Logger      *log.Logger
	Now         func() time.Time
	NewID       func() string
	NewEventID  func() string
}

func NewOrchestrator(invitations Invitations, milestones *MilestoneStore, messages *MessageLog, rosterSync RosterSyncer) *Orchestrator {
	return &Orchestrator{
		Invitations: invitations,
		Milestones:  milestones,
		Messages:    messages,
		Roster:      rosterSync,
		Memo:        memo.NewInMemory(),
		Logger:      log.Default(),
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       uuid.NewString,
		NewEventID:  nuid.Next,
	}
}

// change accumulates what one cycle records in the message log and publishes.
type change struct {
	actor  collab.Actor
	notes  []string
	events []contracts.LifecycleEvent
}

func (c *change) note(format string, args ...any) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

func (c *change) event(eventType, milestoneID string) {
	c.events = append(c.events, contracts.LifecycleEvent{EventType: eventType, MilestoneID: milestoneID})
}

func (o *Orchestrator) CreateInvitation(ctx context.Context, actor collab.Actor, f InvitationFields) (Result, error) {
	if actor.Role != collab.RoleClub || strings.TrimSpace(actor.ID) == "" {
		return Result{}, collab.ErrNotAuthorized
	}
	eventID := strings.TrimSpace(f.EventID)
	userID := strings.TrimSpace(f.UserID)
	if eventID == "" || userID == "" {
		return Result{}, fmt.Errorf("%w: event_id and user_id are required", collab.ErrInvalidInvitation)
	}
	if userID == actor.ID {
		return Result{}, fmt.Errorf("%w: cannot invite yourself", collab.ErrInvalidInvitation)
	}
	if f.ExpectedAttendees < 0 {
		return Result{}, fmt.Errorf("%w: expected_attendees must not be negative", collab.ErrInvalidInvitation)
	}

	now := o.Now()
	inv := collab.Invitation{
		ID:                o.NewID(),
		EventID:           eventID,
		UserID:            userID,
		InvitedByID:       actor.ID,
		Status:            collab.StatusPending,
		Genre:             strings.TrimSpace(f.Genre),
		Description:       strings.TrimSpace(f.Description),
		ExpectedAttendees: f.ExpectedAttendees,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.Invitations.CreateInvitation(ctx, inv); err != nil {
		return Result{}, err
	}

	ch := &change{actor: actor}
	ch.note("Invitation sent")
	ch.event(contracts.EventInvitationCreated, "")
	return o.finish(ctx, Result{Invitation: inv, Milestones: []collab.Milestone{}}, ch), nil
}

func (o *Orchestrator) CreateMilestone(ctx context.Context, actor collab.Actor, invitationID string, f MilestoneFields) (Result, error) {
	inv, err := o.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return Result{}, err
	}
	m, err := o.Milestones.Create(ctx, actor, inv.ID, f)
	if err != nil {
		return Result{}, err
	}

	ch := &change{actor: actor}
	ch.note("Milestone %q created", m.Title)
	ch.event(contracts.EventMilestoneCreated, m.ID)
	if m.Status == collab.MilestoneCompleted {
		ch.event(contracts.EventMilestoneCompleted, m.ID)
	}
	res, err := o.cycle(ctx, inv, ch, nil)
	res.Milestone = &m
	return res, err
}

func (o *Orchestrator) UpdateMilestone(ctx context.Context, actor collab.Actor, invitationID, milestoneID string, patch MilestonePatch) (Result, error) {
	inv, err := o.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return Result{}, err
	}
	if err := o.ownedMilestone(ctx, inv.ID, milestoneID); err != nil {
		return Result{}, err
	}
	before, after, err := o.Milestones.Update(ctx, actor, milestoneID, patch)
	if err != nil {
		return Result{}, err
	}

	ch := &change{actor: actor}
	switch {
	case before.Status != after.Status && after.Status == collab.MilestoneCompleted:
		ch.note("Milestone %q marked completed", after.Title)
		ch.event(contracts.EventMilestoneCompleted, after.ID)
	case before.Status != after.Status:
		ch.note("Milestone %q moved from %s to %s", after.Title, before.Status, after.Status)
		ch.event(contracts.EventMilestoneUpdated, after.ID)
	default:
		ch.note("Milestone %q edited", after.Title)
		ch.event(contracts.EventMilestoneUpdated, after.ID)
	}
	res, err := o.cycle(ctx, inv, ch, nil)
	res.Milestone = &after
	return res, err
}

func (o *Orchestrator) DeleteMilestone(ctx context.Context, actor collab.Actor, invitationID, milestoneID string) (Result, error) {
	inv, err := o.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return Result{}, err
	}
	if err := o.ownedMilestone(ctx, inv.ID, milestoneID); err != nil {
		return Result{}, err
	}
	removed, err := o.Milestones.Delete(ctx, milestoneID)
	if err != nil {
		return Result{}, err
	}

	ch := &change{actor: actor}
	ch.note("Milestone %q deleted", removed.Title)
	ch.event(contracts.EventMilestoneDeleted, removed.ID)
	return o.cycle(ctx, inv, ch, nil)
}

// ChangeStatus applies a party-chosen status. The target must be offered for
// the band of the progress recomputed from the current milestone set, and a
// terminal status cannot be left.
func (o *Orchestrator) ChangeStatus(ctx context.Context, actor collab.Actor, invitationID string, target collab.Status) (Result, error) {
	inv, err := o.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return Result{}, err
	}
	return o.cycle(ctx, inv, &change{actor: actor}, &target)
}

// Refresh runs one cycle without a mutation. It repairs drifted progress and
// fires the autonomous completion once the event date has passed.
func (o *Orchestrator) Refresh(ctx context.Context, invitationID string) (Result, error) {
	inv, err := o.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return Result{}, err
	}
	return o.cycle(ctx, inv, &change{actor: collab.SystemActor}, nil)
}

func (o *Orchestrator) PostMessage(ctx context.Context, actor collab.Actor, invitationID, content string) (collab.Message, error) {
	if _, err := o.Invitations.GetInvitation(ctx, invitationID); err != nil {
		return collab.Message{}, err
	}
	return o.Messages.PostChat(ctx, invitationID, actor, content)
}

func (o *Orchestrator) ShareFile(ctx context.Context, actor collab.Actor, invitationID, fileName, fileURL, note string) (collab.Message, error) {
	if _, err := o.Invitations.GetInvitation(ctx, invitationID); err != nil {
		return collab.Message{}, err
	}
	return o.Messages.ShareFile(ctx, invitationID, actor, fileName, fileURL, note)
}

func (o *Orchestrator) Invitation(ctx context.Context, invitationID string) (collab.Invitation, error) {
	return o.Invitations.GetInvitation(ctx, invitationID)
}

func (o *Orchestrator) Snapshot(ctx context.Context, invitationID string) (Snapshot, error) {
	inv, err := o.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return Snapshot{}, err
	}
	ms, err := o.Milestones.ListFor(ctx, inv.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list milestones: %w", err)
	}
	msgs, err := o.Messages.List(ctx, inv.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list messages: %w", err)
	}
	progress := collab.ComputeProgress(ms)
	return Snapshot{
		Invitation:       inv,
		Milestones:       ms,
		Progress:         progress,
		Band:             collab.BandFor(progress.Percent).String(),
		LegalTransitions: collab.TransitionsFrom(inv.Status, progress.Percent),
		Messages:         msgs,
	}, nil
}

func (o *Orchestrator) ownedMilestone(ctx context.Context, invitationID, milestoneID string) error {
	m, err := o.Milestones.Repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if m.InvitationID != invitationID {
		return collab.ErrNotFound
	}
	return nil
}

// cycle recomputes progress, validates an optional manual target, applies the
// autonomous rule and commits the invitation. Everything after the commit is
// best effort.
func (o *Orchestrator) cycle(ctx context.Context, inv collab.Invitation, ch *change, target *collab.Status) (Result, error) {
	ms, err := o.Milestones.ListFor(ctx, inv.ID)
	if err != nil {
		return Result{Invitation: inv}, fmt.Errorf("list milestones: %w", err)
	}
	progress := collab.ComputeProgress(ms)
	if target != nil {
		if err := collab.ValidateChange(inv.Status, progress.Percent, *target); err != nil {
			return Result{Invitation: inv, Milestones: ms, Progress: progress}, err
		}
	}

	fingerprint := collab.Fingerprint(ms)
	var patch InvitationPatch
	if !o.settled(ctx, inv, fingerprint, progress.Percent) {
		p := progress.Percent
		patch.Progress = &p
	}

	next, trigger := inv.Status, ""
	if target != nil && *target != inv.Status {
		next, trigger = *target, triggerManual
	}
	if o.autoCompletes(ctx, inv, progress.Percent, next) {
		next, trigger = collab.StatusCompleted, triggerAuto
	}
	if next != inv.Status {
		patch.Status = &next
	}

	res := Result{Invitation: inv, Milestones: ms, Progress: progress}
	if !patch.Empty() {
		updated, err := o.Invitations.UpdateInvitation(ctx, inv.ID, patch)
		if err != nil {
			metrics.ProgressWrites.WithLabelValues("failed").Inc()
			return res, fmt.Errorf("update invitation: %w", err)
		}
		res.Invitation = updated
	}
	if patch.Progress != nil {
		res.ProgressWritten = true
		metrics.ProgressWrites.WithLabelValues("written").Inc()
		if inv.Progress != progress.Percent {
			ch.event(contracts.EventProgressChanged, "")
		}
	} else {
		metrics.ProgressWrites.WithLabelValues("unchanged").Inc()
	}
	o.remember(ctx, inv.ID, fingerprint)

	if patch.Status != nil {
		res.StatusChanged = true
		res.PreviousStatus = inv.Status
		metrics.StatusTransitions.WithLabelValues(string(inv.Status), string(next), trigger).Inc()
		if trigger == triggerAuto {
			ch.note("Collaboration completed automatically after the event date")
		} else {
			ch.note("Status changed from %s to %s", inv.Status, next)
		}
		ch.events = append(ch.events, contracts.LifecycleEvent{
			EventType:  contracts.EventStatusChanged,
			FromStatus: string(inv.Status),
			ToStatus:   string(next),
		})

		if o.Roster != nil {
			outcome, err := o.Roster.Sync(ctx, res.Invitation)
			res.Roster = &outcome
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Errorf("roster sync: %w", err))
			}
		}
	}

	return o.finish(ctx, res, ch), nil
}

// settled reports whether the milestone set is the one the last committed
// cycle saw and the cached progress still matches it.
func (o *Orchestrator) settled(ctx context.Context, inv collab.Invitation, fingerprint uint64, percent int) bool {
	if inv.Progress != percent || o.Memo == nil {
		return false
	}
	last, ok, err := o.Memo.Last(ctx, inv.ID)
	if err != nil {
		o.Logger.Printf("progress memo lookup for invitation %s failed: %v", inv.ID, err)
		return false
	}
	return ok && last == fingerprint
}

func (o *Orchestrator) remember(ctx context.Context, invitationID string, fingerprint uint64) {
	if o.Memo == nil {
		return
	}
	if err := o.Memo.Remember(ctx, invitationID, fingerprint); err != nil {
		o.Logger.Printf("progress memo store for invitation %s failed: %v", invitationID, err)
	}
}

func (o *Orchestrator) autoCompletes(ctx context.Context, inv collab.Invitation, percent int, status collab.Status) bool {
	if percent != 100 || status != collab.StatusPreparation {
		return false
	}
	eventDate, err := o.Invitations.EventDate(ctx, inv.EventID)
	if err != nil {
		if !errors.Is(err, collab.ErrNotFound) {
			o.Logger.Printf("event date lookup for invitation %s failed: %v", inv.ID, err)
		}
		return false
	}
	return collab.ShouldAutoComplete(percent, status, eventDate, o.Now())
}

// finish appends the cycle's system message and publishes its events.
func (o *Orchestrator) finish(ctx context.Context, res Result, ch *change) Result {
	inv := res.Invitation
	if len(ch.notes) > 0 && o.Messages != nil {
		msg, err := o.Messages.AppendSystem(ctx, inv.ID, ch.actor, strings.Join(ch.notes, ". "))
		if err != nil {
			o.Logger.Printf("append system message for invitation %s failed: %v", inv.ID, err)
			res.Warnings = append(res.Warnings, fmt.Errorf("message log: %w", err))
		} else {
			res.Message = &msg
		}
	}

	if o.Publish == nil {
		return res
	}
	for _, evt := range ch.events {
		evt.EventID = o.NewEventID()
		evt.InvitationID = inv.ID
		evt.ActorID = ch.actor.ID
		evt.ActorRole = string(ch.actor.Role)
		evt.Progress = inv.Progress
		evt.OccurredAt = o.Now()
		evt.ShardID = sharding.GetShardID(inv.ID)

		payload, err := json.Marshal(evt)
		if err == nil {
			err = o.Publish(sharding.EventSubject(contracts.EntityInvitation, inv.ID), evt.EventID, payload)
		}
		if err != nil {
			o.Logger.Printf("publish %s for invitation %s failed: %v", evt.EventType, inv.ID, err)
			res.Warnings = append(res.Warnings, fmt.Errorf("publish %s: %w", evt.EventType, err))
		}
	}
	return res
}
