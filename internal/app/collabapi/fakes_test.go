package collabapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/venue-ops/collab/internal/app/identity"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/app/query"
	"github.com/venue-ops/collab/internal/app/roster"
	"github.com/venue-ops/collab/internal/collab"
)

type fakeIdentityRepo struct {
	mu            sync.Mutex
	users         map[string]identity.User
	artists       map[string]identity.Artist
	refreshByHash map[string]identity.RefreshToken
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{
		users:         map[string]identity.User{},
		artists:       map[string]identity.Artist{},
		refreshByHash: map[string]identity.RefreshToken{},
	}
}

func (f *fakeIdentityRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeIdentityRepo) CreateUser(ctx context.Context, user identity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return identity.ErrUsernameTaken
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeIdentityRepo) FindUserByUsername(ctx context.Context, username string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (f *fakeIdentityRepo) FindUserByID(ctx context.Context, userID string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (f *fakeIdentityRepo) CreateUserWithArtist(ctx context.Context, user identity.User, artist identity.Artist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return identity.ErrUsernameTaken
		}
	}
	f.users[user.ID] = user
	f.artists[artist.UserID] = artist
	return nil
}

func (f *fakeIdentityRepo) FindArtistByUserID(ctx context.Context, userID string) (identity.Artist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artists[userID]
	if !ok {
		return identity.Artist{}, identity.ErrNotFound
	}
	return a, nil
}

func (f *fakeIdentityRepo) CreateRefreshToken(ctx context.Context, token identity.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshByHash[token.TokenHash] = token
	return nil
}

func (f *fakeIdentityRepo) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (identity.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.refreshByHash[tokenHash]
	if !ok || rt.RevokedAt != nil {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	return rt, nil
}

func (f *fakeIdentityRepo) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for hash, rt := range f.refreshByHash {
		if rt.TokenID == tokenID {
			rt.RevokedAt = &now
			f.refreshByHash[hash] = rt
		}
	}
	return nil
}

type fakeStore struct {
	mu          sync.Mutex
	events      map[string]collab.Event
	invitations map[string]collab.Invitation
	milestones  map[string]collab.Milestone
	messages    []collab.Message
	nextPos     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:      map[string]collab.Event{},
		invitations: map[string]collab.Invitation{},
		milestones:  map[string]collab.Milestone{},
	}
}

func (s *fakeStore) CreateEvent(_ context.Context, evt collab.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.ID] = evt
	return nil
}

func (s *fakeStore) CreateInvitation(_ context.Context, inv collab.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[inv.EventID]; !ok {
		return collab.ErrNotFound
	}
	s.invitations[inv.ID] = inv
	return nil
}

func (s *fakeStore) GetInvitation(_ context.Context, id string) (collab.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return collab.Invitation{}, collab.ErrNotFound
	}
	return inv, nil
}

func (s *fakeStore) UpdateInvitation(_ context.Context, id string, patch lifecycle.InvitationPatch) (collab.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return collab.Invitation{}, collab.ErrNotFound
	}
	if patch.Status != nil {
		inv.Status = *patch.Status
	}
	if patch.Progress != nil {
		inv.Progress = *patch.Progress
	}
	s.invitations[id] = inv
	return inv, nil
}

func (s *fakeStore) EventDate(_ context.Context, eventID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[eventID]
	if !ok {
		return time.Time{}, collab.ErrNotFound
	}
	return evt.StartsAt, nil
}

func (s *fakeStore) ListAutoCompletionCandidates(context.Context, time.Time, int) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) CreateMilestone(_ context.Context, m collab.Milestone) (collab.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPos++
	m.Position = s.nextPos
	s.milestones[m.ID] = m
	return m, nil
}

func (s *fakeStore) GetMilestone(_ context.Context, id string) (collab.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return collab.Milestone{}, collab.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) SaveMilestone(_ context.Context, m collab.Milestone) (collab.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.milestones[m.ID] = m
	return m, nil
}

func (s *fakeStore) DeleteMilestone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.milestones, id)
	return nil
}

func (s *fakeStore) ListMilestones(_ context.Context, invitationID string) ([]collab.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []collab.Milestone{}
	for _, m := range s.milestones {
		if m.InvitationID == invitationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *fakeStore) CreateMessage(_ context.Context, msg collab.Message) (collab.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) ListMessages(_ context.Context, invitationID string) ([]collab.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []collab.Message{}
	for _, m := range s.messages {
		if m.InvitationID == invitationID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeReader struct {
	views    []query.InvitationView
	roster   map[string]query.RosterView
	timeline []query.TimelineEntry
	offset   uint64
	gotUser  string
	gotLimit int
}

func (f *fakeReader) ListInvitationsForUser(_ context.Context, userID string, limit int) ([]query.InvitationView, error) {
	f.gotUser, f.gotLimit = userID, limit
	return f.views, nil
}

func (f *fakeReader) EventRoster(_ context.Context, eventID string) (query.RosterView, error) {
	view, ok := f.roster[eventID]
	if !ok {
		return query.RosterView{}, query.ErrEventNotFound
	}
	return view, nil
}

func (f *fakeReader) Timeline(context.Context, string, int) ([]query.TimelineEntry, error) {
	return f.timeline, nil
}

func (f *fakeReader) GetInvitationProjectionOffset(context.Context, string) (uint64, error) {
	return f.offset, nil
}

type fakeRoster struct {
	mu    sync.Mutex
	calls []collab.Invitation
	err   error
}

func (f *fakeRoster) Sync(_ context.Context, inv collab.Invitation) (roster.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return roster.Outcome{}, f.err
	}
	return roster.Outcome{Action: roster.ActionNone}, nil
}
