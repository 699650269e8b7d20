package rank

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"jobapply-engine/internal/domain"
)

var scoreNum = regexp.MustCompile(`-?\d+`)

// ParseResponse reads a "SCORE: n / ANALYSIS: text" reply. The score is clamped;
// a reply without a numeric score is Malformed with score 0.
func ParseResponse(text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{Kind: Malformed, Analysis: "AI response parsing error - no text content found"}
	}

	var (
		score    int
		found    bool
		analysis string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "*"))
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SCORE:"):
			if m := scoreNum.FindString(line[len("SCORE:"):]); m != "" {
				n, err := strconv.Atoi(m)
				switch {
				case err == nil:
					score, found = n, true
				case errors.Is(err, strconv.ErrRange):
					// out of int range; clamp by sign
					score, found = 100, true
					if strings.HasPrefix(m, "-") {
						score = 0
					}
				}
			}
		case strings.HasPrefix(upper, "ANALYSIS:"):
			analysis = strings.TrimLeft(line[len("ANALYSIS:"):], "* ")
		}
	}

	if analysis == "" {
		analysis = text
	}
	if !found {
		return Outcome{Kind: Malformed, Analysis: "AI response parsing error - no score found: " + domain.Clip(analysis, 200)}
	}
	return Outcome{Kind: Scored, Score: Clamp(score), Analysis: analysis}
}
