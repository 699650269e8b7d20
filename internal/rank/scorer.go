package rank

import (
	"context"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
)

// Scorer rates a posting against the candidate profile. It never returns an error:
// failures are reported through the Outcome kind.
type Scorer interface {
	Score(ctx context.Context, p domain.Posting, profile config.Profile) Outcome
}

type Kind int

const (
	Scored Kind = iota
	Unavailable
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Scored:
		return "scored"
	case Unavailable:
		return "unavailable"
	default:
		return "malformed"
	}
}

// Outcome is the result of one scorer call. Score is always within [0,100].
type Outcome struct {
	Kind     Kind
	Score    int
	Analysis string
	Err      error
}

func unavailable(err error) Outcome {
	return Outcome{Kind: Unavailable, Analysis: "AI analysis error: " + err.Error(), Err: err}
}

// Clamp forces a score into [0,100].
func Clamp(score int) int {
	return max(0, min(100, score))
}
