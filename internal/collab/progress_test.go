package collab

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func milestones(statuses ...MilestoneStatus) []Milestone {
	out := make([]Milestone, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, Milestone{ID: fmt.Sprintf("m%d", i+1), Status: s, Position: i})
	}
	return out
}

func TestComputeProgress_Empty(t *testing.T) {
	got := ComputeProgress(nil)
	require.Equal(t, 0, got.Percent)
	require.Nil(t, got.Current)
}

func TestComputeProgress_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		ms   []Milestone
		want int
	}{
		{"one of three", milestones(MilestoneCompleted, MilestonePending, MilestonePending), 33},
		{"two of three", milestones(MilestoneCompleted, MilestoneCompleted, MilestoneInProgress), 67},
		{"two of four", milestones(MilestoneCompleted, MilestonePending, MilestoneCompleted, MilestonePending), 50},
		{"one of eight rounds half up", milestones(MilestoneCompleted, MilestonePending, MilestonePending, MilestonePending, MilestonePending, MilestonePending, MilestonePending, MilestonePending), 13},
		{"none", milestones(MilestonePending, MilestoneInProgress), 0},
		{"all", milestones(MilestoneCompleted, MilestoneCompleted), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ComputeProgress(tt.ms).Percent)
		})
	}
}

func TestComputeProgress_MatchesRatioForAllSizes(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for done := 0; done <= total; done++ {
			statuses := make([]MilestoneStatus, total)
			for i := range statuses {
				statuses[i] = MilestonePending
				if i < done {
					statuses[i] = MilestoneCompleted
				}
			}
			got := ComputeProgress(milestones(statuses...)).Percent
			ratio := 100 * float64(done) / float64(total)
			want := int(ratio + 0.5)
			require.Equalf(t, want, got, "done=%d total=%d", done, total)
			require.GreaterOrEqual(t, got, 0)
			require.LessOrEqual(t, got, 100)
		}
	}
}

func TestComputeProgress_CurrentIsFirstIncompleteByPosition(t *testing.T) {
	ms := []Milestone{
		{ID: "late", Status: MilestonePending, Position: 5},
		{ID: "first", Status: MilestoneCompleted, Position: 0},
		{ID: "second", Status: MilestoneInProgress, Position: 1},
	}
	got := ComputeProgress(ms)
	require.NotNil(t, got.Current)
	require.Equal(t, "second", got.Current.ID)

	got = ComputeProgress(milestones(MilestoneCompleted, MilestoneCompleted))
	require.Nil(t, got.Current)
}

func TestFingerprint(t *testing.T) {
	a := milestones(MilestoneCompleted, MilestonePending)
	b := milestones(MilestoneCompleted, MilestonePending)
	require.Equal(t, Fingerprint(a), Fingerprint(b))

	b[1].Status = MilestoneCompleted
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))

	require.NotEqual(t, Fingerprint(a), Fingerprint(a[:1]))
	require.Equal(t, Fingerprint(nil), Fingerprint([]Milestone{}))
}
