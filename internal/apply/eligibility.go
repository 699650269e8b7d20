package apply

import (
	"context"
	"regexp"

	"jobapply-engine/internal/domain"
)

// AutoApplyThreshold is the minimum match score for auto-apply.
const AutoApplyThreshold = 70

// MaxPerContactPerDay is how many applications one (contact, employer) pair may receive per day.
const MaxPerContactPerDay = 2

// History answers the anti-duplicate questions from the Posting Store. Every call reads fresh state.
type History interface {
	AppliedToURL(ctx context.Context, url string, exceptID int64) (bool, error)
	AppliedToTitleEmployer(ctx context.Context, title, employer string, exceptID int64) (bool, error)
	AppliedToContactToday(ctx context.Context, email, employer string) (int, error)
}

// Decision explains why a posting is or is not eligible.
type Decision struct {
	Eligible bool
	Reason   string
}

// Eligible decides auto-apply eligibility from the posting's persisted state.
func Eligible(ctx context.Context, h History, p domain.Posting) (Decision, error) {
	if p.Status != domain.StatusNew {
		return Decision{Reason: "status is " + string(p.Status)}, nil
	}
	if p.MatchScore < AutoApplyThreshold {
		return Decision{Reason: "score below threshold"}, nil
	}

	if ok, err := h.AppliedToURL(ctx, p.URL, p.ID); err != nil {
		return Decision{}, err
	} else if ok {
		return Decision{Reason: "already applied to this url"}, nil
	}

	if ok, err := h.AppliedToTitleEmployer(ctx, p.Title, p.Employer, p.ID); err != nil {
		return Decision{}, err
	} else if ok {
		return Decision{Reason: "already applied to this title at this employer"}, nil
	}

	if to := ResolveRecipient(p); to != "" {
		n, err := h.AppliedToContactToday(ctx, to, p.Employer)
		if err != nil {
			return Decision{}, err
		}
		if n >= MaxPerContactPerDay {
			return Decision{Reason: "daily limit reached for this contact"}, nil
		}
	}

	return Decision{Eligible: true}, nil
}

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// ResolveRecipient returns the contact email, else the first address in the description, else "".
func ResolveRecipient(p domain.Posting) string {
	if e := domain.NormalizeEmail(p.ContactEmail); e != "" {
		return e
	}
	return domain.NormalizeEmail(emailPattern.FindString(p.Description))
}
