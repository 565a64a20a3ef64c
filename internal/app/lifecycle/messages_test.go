package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venue-ops/collab/internal/collab"
)

func TestMessageLogOrderAndKinds(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	log := h.orch.Messages

	_, err := log.AppendSystem(ctx, "inv-1", club, "Invitation sent")
	require.NoError(t, err)
	_, err = log.PostChat(ctx, "inv-1", artist, "  hello  ")
	require.NoError(t, err)
	_, err = log.ShareFile(ctx, "inv-1", club, "stage-plot.pdf", "https://files.example/stage-plot.pdf", "")
	require.NoError(t, err)
	_, err = log.PostChat(ctx, "inv-2", artist, "elsewhere")
	require.NoError(t, err)

	msgs, err := log.List(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, collab.MessageSystem, msgs[0].Kind)
	assert.Equal(t, collab.RoleClub, msgs[0].SenderType)
	assert.Equal(t, collab.MessageChat, msgs[1].Kind)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, artist.ID, msgs[1].SenderID)
	assert.Equal(t, collab.MessageFile, msgs[2].Kind)
	assert.Equal(t, "Shared stage-plot.pdf", msgs[2].Content)
	assert.Equal(t, "https://files.example/stage-plot.pdf", msgs[2].FileURL)
	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, testNow, m.CreatedAt)
	}
}

func TestMessageLogRejectsEmpty(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.orch.Messages.PostChat(ctx, "inv-1", artist, "   ")
	require.ErrorIs(t, err, collab.ErrEmptyMessage)
	_, err = h.orch.Messages.ShareFile(ctx, "inv-1", artist, "", "https://x", "note")
	require.ErrorIs(t, err, collab.ErrEmptyMessage)
	assert.Empty(t, h.repo.messages)
}
