package rank

import (
	"context"
	"errors"
	"log"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/detail"
)

// Enricher fetches the full description from a posting's page.
type Enricher interface {
	Fetch(ctx context.Context, url, platform string) detail.Result
}

// Stage is the Matching Stage: optional enrichment, then one scorer call.
// It never mutates stored postings; callers persist the returned Match.
type Stage struct {
	Scorer   Scorer
	Enricher Enricher
	Profile  config.Profile
}

type Match struct {
	domain.ScoredPosting
	Outcome Outcome
	// Enriched is true when Description was replaced by fetched text.
	Enriched bool
}

var errNoScorer = errors.New("no scorer configured")

func (s *Stage) Match(ctx context.Context, p domain.Posting) Match {
	m := Match{}

	if len(p.Description) < domain.MinDescriptionChars && s.Enricher != nil && !p.HasSyntheticURL() {
		res := s.Enricher.Fetch(ctx, p.URL, p.SourcePlatform)
		switch {
		case res.Kind == detail.Enriched && len(res.Description) > len(p.Description):
			p.Description = domain.Clip(res.Description, domain.MaxDescriptionChars)
			m.Enriched = true
		case res.Kind == detail.Unavailable:
			log.Printf("[match] enrichment unavailable url=%q err=%v", p.URL, res.Err)
		}
	}

	var out Outcome
	if s.Scorer == nil {
		out = unavailable(errNoScorer)
	} else {
		out = s.Scorer.Score(ctx, p, s.Profile)
	}
	out.Score = Clamp(out.Score)

	m.Outcome = out
	m.Posting = p
	m.Analysis = out.Analysis
	switch out.Kind {
	case Scored:
		m.Score = out.Score
		m.Scored = true
	default:
		m.Score = 0
		log.Printf("[match] %s title=%q err=%v", out.Kind, p.Title, out.Err)
	}
	m.Posting.MatchScore = m.Score
	m.Posting.AIAnalysis = m.Analysis
	return m
}
