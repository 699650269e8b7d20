package email_scrape

import (
	"strings"

	"jobapply-engine/internal/scrape/util"
)

// Alert templates repeat the job link on logos, badges and buttons. Every anchor text
// is a title candidate; titleScore ranks them and betterTitle only switches on a clear win.

func stripBadTitleSuffixes(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, b := range []string{"Actively recruiting", "Easy Apply", "Promoted", "New to you", "Featured"} {
		s = strings.TrimSpace(strings.ReplaceAll(s, b, ""))
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "alumni") ||
		strings.Contains(low, "connections") ||
		strings.Contains(low, "applicants") {
		return ""
	}
	return util.CleanText(s)
}

func betterTitle(candidate, current string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return false
	}
	cur := strings.TrimSpace(current)
	if cur == "" {
		return titleScore(c) >= 2
	}

	cs := titleScore(c)
	ks := titleScore(cur)
	if ks >= 8 && cs < ks {
		return false
	}
	return cs >= ks+3
}

var titleWords = []string{
	"teacher", "kaiako", "educator", "tutor", "lecturer", "instructor",
	"assistant", "aide", "senco", "coordinator", "leader", "principal",
	"specialist", "support", "librarian", "counsellor", "manager", "administrator",
	"reliever", "kaiārahi",
}

func titleScore(s string) int {
	orig := strings.TrimSpace(s)
	if orig == "" {
		return -100
	}

	l := strings.ToLower(orig)
	score := 0

	if strings.Contains(l, "unsubscribe") || strings.Contains(l, "manage") && strings.Contains(l, "alert") {
		return -50
	}
	if strings.Contains(l, "http://") || strings.Contains(l, "https://") || strings.Contains(l, "www.") {
		return -30
	}

	// Salary-ish
	if strings.ContainsAny(orig, "$€£") {
		score -= 8
	}
	if strings.Contains(l, "per hour") || strings.Contains(l, "per year") || strings.Contains(l, "/year") ||
		strings.Contains(l, "p.a.") {
		score -= 6
	}

	// CTA-ish
	for _, bad := range []string{"apply", "view job", "see job", "see details", "learn more", "sign in", "see all"} {
		if strings.Contains(l, bad) {
			score -= 6
		}
	}

	// Separator soup means concatenated row data
	if strings.Contains(orig, "|") || strings.Contains(orig, "•") || strings.Contains(orig, " · ") {
		score -= 2
	}

	for _, w := range titleWords {
		if strings.Contains(l, w) {
			score += 4
			break
		}
	}

	for _, w := range []string{"junior", "senior", "year 1", "year 2", "year 3", "new entrant", "primary", "fixed term", "permanent"} {
		if strings.Contains(l, w) {
			score += 2
		}
	}

	n := len([]rune(orig))
	if n >= 6 && n <= 80 {
		score += 2
	} else if n < 4 || n > 140 {
		score -= 6
	}

	if strings.HasSuffix(orig, ".") || strings.Contains(l, "you will") || strings.Contains(l, "we are") {
		score -= 4
	}

	digits := 0
	for _, r := range orig {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= 6 {
		score -= 4
	}
	return score
}
