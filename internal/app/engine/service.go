package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/contracts"
	"github.com/venue-ops/collab/internal/sharding"
)

var ErrInvalidCommandPayload = errors.New("invalid command payload")

// ErrUnsupportedCommandAction prevents unknown lifecycle actions.
var ErrUnsupportedCommandAction = errors.New("unsupported command action")

// ErrUnknownInvitation marks commands for invitations that no longer exist.
var ErrUnknownInvitation = errors.New("unknown invitation")

type PublishFunc func(subject, msgID string, payload []byte) error

type Refresher interface {
	Refresh(ctx context.Context, invitationID string) (lifecycle.Result, error)
}

type CandidateLister interface {
	ListAutoCompletionCandidates(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Service runs orchestration cycles on behalf of nobody in particular: it
// consumes refresh commands and sweeps for collaborations whose event date
// has passed.
type Service struct {
	Refresher  Refresher
	Candidates CandidateLister
	Publish    PublishFunc
	Logger     *log.Logger
	BatchSize  int
	Now        func() time.Time
	NewID      func() string
}

func NewService(refresher Refresher, candidates CandidateLister, publish PublishFunc) *Service {
	return &Service{
		Refresher:  refresher,
		Candidates: candidates,
		Publish:    publish,
		Logger:     log.Default(),
		BatchSize:  100,
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      nuid.Next,
	}
}

func (s *Service) Handle(ctx context.Context, commandSubject string, commandPayload []byte) error {
	var cmd contracts.LifecycleCommand
	if err := json.Unmarshal(commandPayload, &cmd); err != nil {
		return ErrInvalidCommandPayload
	}
	if strings.TrimSpace(cmd.Action) != contracts.ActionRefresh {
		return ErrUnsupportedCommandAction
	}
	invitationID := strings.TrimSpace(cmd.InvitationID)
	if invitationID == "" {
		invitationID = EntityFromSubject(commandSubject)
	}
	if invitationID == "" {
		return ErrInvalidCommandPayload
	}

	res, err := s.Refresher.Refresh(ctx, invitationID)
	if err != nil {
		if errors.Is(err, collab.ErrNotFound) {
			return ErrUnknownInvitation
		}
		return fmt.Errorf("refresh invitation %s: %w", invitationID, err)
	}
	if res.StatusChanged {
		s.Logger.Printf("invitation %s moved %s -> %s (command %s, shard %d)",
			invitationID, res.PreviousStatus, res.Invitation.Status, cmd.CommandID,
			ShardFromSubject(invitationID, commandSubject))
	}
	for _, w := range res.Warnings {
		s.Logger.Printf("invitation %s refresh warning: %v", invitationID, w)
	}
	return nil
}

// RequestRefresh publishes a refresh command on the invitation's shard.
func (s *Service) RequestRefresh(invitationID, reason string) error {
	cmd := contracts.LifecycleCommand{
		CommandID:    s.NewID(),
		InvitationID: invitationID,
		Action:       contracts.ActionRefresh,
		Reason:       reason,
		CreatedAt:    s.Now(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return s.Publish(sharding.CommandSubject(contracts.EntityInvitation, invitationID), cmd.CommandID, payload)
}

// Sweep requests a refresh for every collaboration the autonomous completion
// rule may apply to. It returns how many commands were published.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ids, err := s.Candidates.ListAutoCompletionCandidates(ctx, s.Now(), s.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list auto-completion candidates: %w", err)
	}
	published := 0
	for _, id := range ids {
		if err := s.RequestRefresh(id, "event date passed"); err != nil {
			s.Logger.Printf("sweep: publish refresh for invitation %s failed: %v", id, err)
			continue
		}
		published++
	}
	return published, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.Logger.Printf("sweep failed: %v", err)
				continue
			}
			if n > 0 {
				s.Logger.Printf("sweep requested %d refreshes", n)
			}
		}
	}
}

// ShardFromSubject reads the shard out of app.command.{shard}.{type}.{id},
// falling back to hashing entityID.
func ShardFromSubject(entityID, subject string) int {
	parts := strings.Split(subject, ".")
	if len(parts) > 2 {
		if shard, err := strconv.Atoi(parts[2]); err == nil {
			return shard
		}
	}
	return sharding.GetShardID(entityID)
}

// EntityFromSubject returns the entity id segment of a command subject.
func EntityFromSubject(subject string) string {
	parts := strings.SplitN(subject, ".", 5)
	if len(parts) != 5 {
		return ""
	}
	return parts[4]
}
