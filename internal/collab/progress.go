package collab

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Progress is the value derived from a milestone set.
type Progress struct {
	Percent int `json:"percent"`
	// Current is the first milestone not yet completed; nil when there are
	// no milestones or all of them are done.
	Current *Milestone `json:"current,omitempty"`
}

// ComputeProgress derives the completion percentage and the current
// milestone. Milestones are considered in Position order.
func ComputeProgress(milestones []Milestone) Progress {
	if len(milestones) == 0 {
		return Progress{}
	}
	ordered := ordered(milestones)

	completed := 0
	var current *Milestone
	for i := range ordered {
		if ordered[i].Status == MilestoneCompleted {
			completed++
			continue
		}
		if current == nil {
			m := ordered[i]
			current = &m
		}
	}
	return Progress{
		Percent: roundPercent(completed, len(ordered)),
		Current: current,
	}
}

// roundPercent is round-half-up of 100*part/total in integer arithmetic.
func roundPercent(part, total int) int {
	return (200*part + total) / (2 * total)
}

// Fingerprint hashes the identity and status of every milestone in order.
// Two sets with equal fingerprints produce the same progress.
func Fingerprint(milestones []Milestone) uint64 {
	d := xxhash.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(milestones)))
	_, _ = d.Write(n[:])
	for _, m := range ordered(milestones) {
		_, _ = d.WriteString(m.ID)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(string(m.Status))
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

func ordered(milestones []Milestone) []Milestone {
	out := make([]Milestone, len(milestones))
	copy(out, milestones)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}
