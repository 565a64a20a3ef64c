package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/contracts"
	"github.com/venue-ops/collab/internal/sharding"
)

type fakeRefresher struct {
	ids []string
	res lifecycle.Result
	err error
}

func (f *fakeRefresher) Refresh(_ context.Context, invitationID string) (lifecycle.Result, error) {
	f.ids = append(f.ids, invitationID)
	return f.res, f.err
}

type fakeCandidates struct {
	ids   []string
	err   error
	limit int
}

func (f *fakeCandidates) ListAutoCompletionCandidates(_ context.Context, _ time.Time, limit int) ([]string, error) {
	f.limit = limit
	return f.ids, f.err
}

type sent struct {
	subject string
	msgID   string
	cmd     contracts.LifecycleCommand
}

func newTestService(t *testing.T, refresher *fakeRefresher, candidates *fakeCandidates) (*Service, *[]sent) {
	t.Helper()
	var out []sent
	svc := NewService(refresher, candidates, func(subject, msgID string, payload []byte) error {
		var cmd contracts.LifecycleCommand
		require.NoError(t, json.Unmarshal(payload, &cmd))
		out = append(out, sent{subject: subject, msgID: msgID, cmd: cmd})
		return nil
	})
	svc.Logger = log.New(io.Discard, "", 0)
	svc.Now = func() time.Time { return time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC) }
	n := 0
	svc.NewID = func() string {
		n++
		return fmt.Sprintf("cmd-%d", n)
	}
	return svc, &out
}

func TestHandleRefreshCommand(t *testing.T) {
	refresher := &fakeRefresher{res: lifecycle.Result{
		StatusChanged:  true,
		PreviousStatus: collab.StatusPreparation,
		Invitation:     collab.Invitation{ID: "inv-1", Status: collab.StatusCompleted},
	}}
	svc, _ := newTestService(t, refresher, &fakeCandidates{})

	payload, err := json.Marshal(contracts.LifecycleCommand{CommandID: "c1", InvitationID: "inv-1", Action: contracts.ActionRefresh})
	require.NoError(t, err)
	require.NoError(t, svc.Handle(context.Background(), sharding.CommandSubject("invitation", "inv-1"), payload))
	assert.Equal(t, []string{"inv-1"}, refresher.ids)
}

func TestHandleFallsBackToSubjectEntity(t *testing.T) {
	refresher := &fakeRefresher{}
	svc, _ := newTestService(t, refresher, &fakeCandidates{})

	payload := []byte(`{"command_id":"c1","action":"refresh-invitation"}`)
	require.NoError(t, svc.Handle(context.Background(), "app.command.7.invitation.inv-9", payload))
	assert.Equal(t, []string{"inv-9"}, refresher.ids)
}

func TestHandleRejectsBadCommands(t *testing.T) {
	refresher := &fakeRefresher{}
	svc, _ := newTestService(t, refresher, &fakeCandidates{})
	ctx := context.Background()

	err := svc.Handle(ctx, "app.command.1.invitation.inv-1", []byte("{invalid json"))
	require.ErrorIs(t, err, ErrInvalidCommandPayload)

	err = svc.Handle(ctx, "app.command.1.invitation.inv-1", []byte(`{"invitation_id":"inv-1","action":"archive"}`))
	require.ErrorIs(t, err, ErrUnsupportedCommandAction)

	err = svc.Handle(ctx, "bad.subject", []byte(`{"action":"refresh-invitation"}`))
	require.ErrorIs(t, err, ErrInvalidCommandPayload)
	assert.Empty(t, refresher.ids)
}

func TestHandleClassifiesRefreshErrors(t *testing.T) {
	refresher := &fakeRefresher{err: collab.ErrNotFound}
	svc, _ := newTestService(t, refresher, &fakeCandidates{})
	payload := []byte(`{"invitation_id":"inv-1","action":"refresh-invitation"}`)

	err := svc.Handle(context.Background(), "app.command.1.invitation.inv-1", payload)
	require.ErrorIs(t, err, ErrUnknownInvitation)

	refresher.err = errors.New("db down")
	err = svc.Handle(context.Background(), "app.command.1.invitation.inv-1", payload)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownInvitation)
}

func TestSweepPublishesRefreshCommands(t *testing.T) {
	candidates := &fakeCandidates{ids: []string{"inv-1", "inv-2"}}
	svc, out := newTestService(t, &fakeRefresher{}, candidates)
	svc.BatchSize = 25

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 25, candidates.limit)
	require.Len(t, *out, 2)

	first := (*out)[0]
	assert.Equal(t, sharding.CommandSubject(contracts.EntityInvitation, "inv-1"), first.subject)
	assert.Equal(t, "cmd-1", first.msgID)
	assert.Equal(t, contracts.ActionRefresh, first.cmd.Action)
	assert.Equal(t, "inv-1", first.cmd.InvitationID)
	assert.Equal(t, "inv-1", EntityFromSubject(first.subject))
}

func TestSweepSkipsFailedPublishes(t *testing.T) {
	candidates := &fakeCandidates{ids: []string{"inv-1", "inv-2"}}
	svc, _ := newTestService(t, &fakeRefresher{}, candidates)
	calls := 0
	svc.Publish = func(string, string, []byte) error {
		calls++
		if calls == 1 {
			return errors.New("nats down")
		}
		return nil
	}

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	candidates.err = errors.New("db down")
	_, err = svc.Sweep(context.Background())
	require.Error(t, err)
}

func TestShardFromSubjectFallback(t *testing.T) {
	assert.Equal(t, 532, ShardFromSubject("inv-2", "app.command.532.invitation.inv-2"))
	assert.Equal(t, sharding.GetShardID("inv-2"), ShardFromSubject("inv-2", "bad.subject"))
}
