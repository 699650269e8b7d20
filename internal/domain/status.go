package domain

import "fmt"

// Status is the lifecycle state of a posting.
//
//	new ──► auto-rejected
//	 │ ───► ready_to_apply ──► applied ──► interview ──► offer
//	 │ ───► applied              │            │
//	 └────► dismissed            └────────────┴──► rejected
//
// auto-rejected, applied and ready_to_apply are never reconsidered for auto-apply.
type Status string

const (
	StatusNew          Status = "new"
	StatusAutoRejected Status = "auto-rejected"
	StatusReadyToApply Status = "ready_to_apply"
	StatusApplied      Status = "applied"
	StatusDismissed    Status = "dismissed"
	StatusInterview    Status = "interview"
	StatusOffer        Status = "offer"
	StatusRejected     Status = "rejected"
)

var validTransitions = map[Status][]Status{
	StatusNew:          {StatusAutoRejected, StatusReadyToApply, StatusApplied, StatusDismissed},
	StatusReadyToApply: {StatusApplied, StatusDismissed},
	StatusApplied:      {StatusInterview, StatusRejected},
	StatusInterview:    {StatusOffer, StatusRejected},
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusNew, StatusAutoRejected, StatusReadyToApply, StatusApplied,
		StatusDismissed, StatusInterview, StatusOffer, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown posting status %q", s)
}

// IsTransitionAllowed reports whether from → to is a legal move.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
