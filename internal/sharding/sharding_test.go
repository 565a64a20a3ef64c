package sharding

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetShardID(t *testing.T) {
	tests := []struct {
		entityID string
		want     int
	}{
		{"user-1", 532},
		{"user-2", 942},
		{"inv-abc", 574},
	}

	for _, tt := range tests {
		t.Run(tt.entityID, func(t *testing.T) {
			require.Equal(t, tt.want, GetShardID(tt.entityID))
		})
	}
}

func TestSubjects(t *testing.T) {
	require.Equal(t, "app.command.532.invitation.user-1", CommandSubject("invitation", "user-1"))
	require.Equal(t, "app.event.532.invitation.user-1", EventSubject("invitation", "user-1"))
}

func TestDistribution(t *testing.T) {
	distribution := make(map[int]int)
	for i := 0; i < 1000; i++ {
		distribution[GetShardID(fmt.Sprintf("inv-%d", i))]++
	}
	require.GreaterOrEqual(t, len(distribution), 100, "sharding distribution is too poor")
}
