package rank

import (
	"context"
	"fmt"
	"strings"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
)

// YAMLScorer scores by keyword rules from config. It is used when no LLM is configured
// and never reports Unavailable.
type YAMLScorer struct {
	Cfg config.Config
}

func (s YAMLScorer) Score(_ context.Context, p domain.Posting, _ config.Profile) Outcome {
	text := strings.ToLower(p.Title + " " + p.Location + " " + p.Description)

	score := 0
	var tags, penalties []string

	applyRules := func(rules []config.Rule) {
		for _, r := range rules {
			for _, needle := range r.Any {
				n := strings.ToLower(strings.TrimSpace(needle))
				if n != "" && strings.Contains(text, n) {
					score += r.Weight
					tags = append(tags, r.Tag)
					break
				}
			}
		}
	}

	applyRules(s.Cfg.Matching.TitleRules)
	applyRules(s.Cfg.Matching.KeywordRules)

	for _, pen := range s.Cfg.Matching.Penalties {
		for _, needle := range pen.Any {
			n := strings.ToLower(strings.TrimSpace(needle))
			if n != "" && strings.Contains(text, n) {
				score += pen.Weight
				penalties = append(penalties, pen.Reason)
				break
			}
		}
	}

	analysis := "Keyword match"
	if tags = uniq(tags); len(tags) > 0 {
		analysis += ": " + strings.Join(tags, ", ")
	} else {
		analysis += ": no rules matched"
	}
	if len(penalties) > 0 {
		analysis += fmt.Sprintf(" (penalties: %s)", strings.Join(uniq(penalties), ", "))
	}
	return Outcome{Kind: Scored, Score: Clamp(score), Analysis: analysis}
}

func uniq(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
