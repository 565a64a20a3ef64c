package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/venue-ops/collab/internal/app/roster"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/memo"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu          sync.Mutex
	invitations map[string]collab.Invitation
	eventDates  map[string]time.Time
	milestones  map[string]collab.Milestone
	messages    []collab.Message
	nextPos     int

	updates      []InvitationPatch
	updateErr    error
	messageErr   error
	deleteErr    error
	eventDateErr error
	deleteCalls  int
	saveCalls    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		invitations: map[string]collab.Invitation{},
		eventDates:  map[string]time.Time{},
		milestones:  map[string]collab.Milestone{},
	}
}

func (r *fakeRepo) CreateInvitation(_ context.Context, inv collab.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[inv.ID]; ok {
		return collab.ErrDuplicateKey
	}
	r.invitations[inv.ID] = inv
	return nil
}

func (r *fakeRepo) GetInvitation(_ context.Context, id string) (collab.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok {
		return collab.Invitation{}, collab.ErrNotFound
	}
	return inv, nil
}

func (r *fakeRepo) UpdateInvitation(_ context.Context, id string, patch InvitationPatch) (collab.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return collab.Invitation{}, r.updateErr
	}
	inv, ok := r.invitations[id]
	if !ok {
		return collab.Invitation{}, collab.ErrNotFound
	}
	r.updates = append(r.updates, patch)
	if patch.Status != nil {
		inv.Status = *patch.Status
	}
	if patch.Progress != nil {
		inv.Progress = *patch.Progress
	}
	inv.UpdatedAt = testNow
	r.invitations[id] = inv
	return inv, nil
}

func (r *fakeRepo) EventDate(_ context.Context, eventID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eventDateErr != nil {
		return time.Time{}, r.eventDateErr
	}
	d, ok := r.eventDates[eventID]
	if !ok {
		return time.Time{}, collab.ErrNotFound
	}
	return d, nil
}

func (r *fakeRepo) ListAutoCompletionCandidates(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, inv := range r.invitations {
		d, ok := r.eventDates[inv.EventID]
		if inv.Status == collab.StatusPreparation && ok && d.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *fakeRepo) CreateMilestone(_ context.Context, m collab.Milestone) (collab.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPos++
	m.Position = r.nextPos
	r.milestones[m.ID] = m
	return m, nil
}

func (r *fakeRepo) GetMilestone(_ context.Context, id string) (collab.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return collab.Milestone{}, collab.ErrNotFound
	}
	return m, nil
}

func (r *fakeRepo) SaveMilestone(_ context.Context, m collab.Milestone) (collab.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.milestones[m.ID]; !ok {
		return collab.Milestone{}, collab.ErrNotFound
	}
	r.saveCalls++
	r.milestones[m.ID] = m
	return m, nil
}

func (r *fakeRepo) DeleteMilestone(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	delete(r.milestones, id)
	return r.deleteErr
}

func (r *fakeRepo) ListMilestones(_ context.Context, invitationID string) ([]collab.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []collab.Milestone{}
	for _, m := range r.milestones {
		if m.InvitationID == invitationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeRepo) CreateMessage(_ context.Context, msg collab.Message) (collab.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messageErr != nil {
		return collab.Message{}, r.messageErr
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *fakeRepo) ListMessages(_ context.Context, invitationID string) ([]collab.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []collab.Message{}
	for _, m := range r.messages {
		if m.InvitationID == invitationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) systemMessages(invitationID string) []collab.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []collab.Message
	for _, m := range r.messages {
		if m.InvitationID == invitationID && m.Kind == collab.MessageSystem {
			out = append(out, m)
		}
	}
	return out
}

type fakeRoster struct {
	calls []collab.Invitation
	err   error
}

func (f *fakeRoster) Sync(_ context.Context, inv collab.Invitation) (roster.Outcome, error) {
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return roster.Outcome{}, f.err
	}
	return roster.Outcome{Target: roster.TargetArtist, Action: roster.ActionArtistAdded}, nil
}

type published struct {
	subject string
	msgID   string
	payload []byte
}

type failingMemo struct{}

func (failingMemo) Last(context.Context, string) (uint64, bool, error) {
	return 0, false, errors.New("memo down")
}

func (failingMemo) Remember(context.Context, string, uint64) error {
	return errors.New("memo down")
}

var _ memo.Memo = failingMemo{}

type harness struct {
	repo      *fakeRepo
	roster    *fakeRoster
	orch      *Orchestrator
	published []published
}

func newHarness() *harness {
	h := &harness{repo: newFakeRepo(), roster: &fakeRoster{}}
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	now := func() time.Time { return testNow }

	ms := NewMilestoneStore(h.repo)
	ms.Now, ms.NewID = now, newID
	ml := NewMessageLog(h.repo)
	ml.Now, ml.NewID = now, newID

	o := NewOrchestrator(h.repo, ms, ml, h.roster)
	o.Now, o.NewID, o.NewEventID = now, newID, newID
	o.Publish = func(subject, msgID string, payload []byte) error {
		h.published = append(h.published, published{subject: subject, msgID: msgID, payload: payload})
		return nil
	}
	h.orch = o
	return h
}

var (
	club   = collab.Actor{ID: "club-user", Role: collab.RoleClub}
	artist = collab.Actor{ID: "artist-user", Role: collab.RoleArtist}
)

// seed stores an invitation in the given state with one milestone per entry
// of statuses, all assigned to both parties.
func (h *harness) seed(status collab.Status, progress int, statuses ...collab.MilestoneStatus) collab.Invitation {
	inv := collab.Invitation{
		ID:          "inv-1",
		EventID:     "evt-1",
		UserID:      artist.ID,
		InvitedByID: club.ID,
		Status:      status,
		Progress:    progress,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	h.repo.invitations[inv.ID] = inv
	h.repo.eventDates[inv.EventID] = testNow.Add(30 * 24 * time.Hour)
	for i, st := range statuses {
		m := collab.Milestone{
			ID:           fmt.Sprintf("m-%d", i+1),
			InvitationID: inv.ID,
			Title:        fmt.Sprintf("Milestone %d", i+1),
			AssignedTo:   collab.AssigneeBoth,
			Priority:     collab.PriorityMedium,
			Status:       st,
			CreatedAt:    testNow,
		}
		if st == collab.MilestoneCompleted {
			done := testNow.Add(-time.Hour)
			m.CompletedAt = &done
		}
		h.repo.CreateMilestone(context.Background(), m)
	}
	return inv
}
