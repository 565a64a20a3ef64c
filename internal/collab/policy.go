package collab

import "time"

// Band is a progress range that gates manual status transitions.
type Band int

const (
	BandNotStarted Band = iota
	BandEarly
	BandMid
	BandLate
	BandDone
)

func (b Band) String() string {
	switch b {
	case BandNotStarted:
		return "not_started"
	case BandEarly:
		return "early"
	case BandMid:
		return "mid"
	case BandLate:
		return "late"
	case BandDone:
		return "done"
	default:
		return "unknown"
	}
}

func BandFor(progress int) Band {
	switch {
	case progress <= 0:
		return BandNotStarted
	case progress < 30:
		return BandEarly
	case progress < 70:
		return BandMid
	case progress < 100:
		return BandLate
	default:
		return BandDone
	}
}

var legalByBand = map[Band][]Status{
	BandNotStarted: {StatusPending, StatusNegotiation},
	BandEarly:      {StatusAccepted, StatusRejected},
	BandMid:        {StatusPreparation, StatusCancelled},
	BandLate:       {StatusConfirmed, StatusDeclined},
	BandDone:       {StatusCompleted},
}

// LegalTransitions returns the statuses a party may choose at progress.
func LegalTransitions(progress int) []Status {
	legal := legalByBand[BandFor(progress)]
	out := make([]Status, len(legal))
	copy(out, legal)
	return out
}

// ValidateTransition returns ErrInvalidTransition unless target is offered
// for the band progress falls in.
func ValidateTransition(progress int, target Status) error {
	for _, s := range legalByBand[BandFor(progress)] {
		if s == target {
			return nil
		}
	}
	return ErrInvalidTransition
}

// TransitionsFrom returns the statuses a party may choose for a collaboration
// currently in status at progress. A terminal status offers none.
func TransitionsFrom(status Status, progress int) []Status {
	if status.Terminal() {
		return []Status{}
	}
	return LegalTransitions(progress)
}

// ValidateChange checks a manual change from current to target. Terminal
// statuses are never left by hand; otherwise target must be offered for the
// band progress falls in, even when it equals current.
func ValidateChange(current Status, progress int, target Status) error {
	if current.Terminal() && target != current {
		return ErrInvalidTransition
	}
	return ValidateTransition(progress, target)
}

// ShouldAutoComplete is the only automatic transition: a fully progressed
// collaboration in preparation completes once its event date has passed.
func ShouldAutoComplete(progress int, status Status, eventDate, now time.Time) bool {
	return progress == 100 && status == StatusPreparation && eventDate.Before(now)
}
