package ingest

import (
	"strings"

	"jobapply-engine/internal/domain"
)

// DefaultRejectPhrases mark postings the candidate cannot take up.
var DefaultRejectPhrases = []string{
	"visa sponsorship",
	"sponsorship required",
	"work permit required",
	"must be a citizen",
}

// excluded returns the first exclusion keyword found in title + description.
func excluded(keywords []string, p domain.Posting) (string, bool) {
	return firstHit(keywords, p.Title+" "+p.Description)
}

// rejected returns the first reject phrase found in title + description.
func rejected(phrases []string, p domain.Posting) (string, bool) {
	return firstHit(phrases, p.Title+" "+p.Description)
}

func firstHit(needles []string, text string) (string, bool) {
	text = strings.ToLower(text)
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if strings.Contains(text, n) {
			return n, true
		}
	}
	return "", false
}
