package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/venue-ops/collab/internal/collab"
)

// MessageLog is the append-only conversation of one collaboration. Reads
// always return the full sequence in creation order.
type MessageLog struct {
	Repo  Messages
	Now   func() time.Time
	NewID func() string
}

func NewMessageLog(repo Messages) *MessageLog {
	return &MessageLog{
		Repo:  repo,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

func (l *MessageLog) AppendSystem(ctx context.Context, invitationID string, actor collab.Actor, content string) (collab.Message, error) {
	return l.append(ctx, collab.Message{
		InvitationID: invitationID,
		Kind:         collab.MessageSystem,
		SenderType:   actor.Role,
		SenderID:     actor.ID,
		Content:      content,
	})
}

func (l *MessageLog) PostChat(ctx context.Context, invitationID string, actor collab.Actor, content string) (collab.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return collab.Message{}, collab.ErrEmptyMessage
	}
	return l.append(ctx, collab.Message{
		InvitationID: invitationID,
		Kind:         collab.MessageChat,
		SenderType:   actor.Role,
		SenderID:     actor.ID,
		Content:      content,
	})
}

// ShareFile records a file that was uploaded elsewhere; only the reference is kept.
func (l *MessageLog) ShareFile(ctx context.Context, invitationID string, actor collab.Actor, fileName, fileURL, note string) (collab.Message, error) {
	fileName = strings.TrimSpace(fileName)
	fileURL = strings.TrimSpace(fileURL)
	if fileName == "" || fileURL == "" {
		return collab.Message{}, collab.ErrEmptyMessage
	}
	content := strings.TrimSpace(note)
	if content == "" {
		content = "Shared " + fileName
	}
	return l.append(ctx, collab.Message{
		InvitationID: invitationID,
		Kind:         collab.MessageFile,
		SenderType:   actor.Role,
		SenderID:     actor.ID,
		Content:      content,
		FileName:     fileName,
		FileURL:      fileURL,
	})
}

func (l *MessageLog) List(ctx context.Context, invitationID string) ([]collab.Message, error) {
	return l.Repo.ListMessages(ctx, invitationID)
}

func (l *MessageLog) append(ctx context.Context, msg collab.Message) (collab.Message, error) {
	msg.ID = l.NewID()
	msg.CreatedAt = l.Now()
	return l.Repo.CreateMessage(ctx, msg)
}
