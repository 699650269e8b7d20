package email_scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/util"
)

// Route picks the alert parser from sender, subject and body. The empty string means
// the message is not a recognised job alert.
func Route(from, subject, body string) string {
	f := strings.ToLower(from)
	s := strings.ToLower(subject)
	b := strings.ToLower(body)

	switch {
	case strings.Contains(f, "linkedin") || strings.Contains(s, "linkedin") || strings.Contains(b, "linkedin.com/jobs") ||
		strings.Contains(b, "linkedin.com/comm/jobs"):
		return PlatformLinkedIn
	case strings.Contains(f, "seek") || strings.Contains(s, "seek") || strings.Contains(b, "seek.co.nz/job"):
		return PlatformSeek
	case strings.Contains(f, "gazette.education.govt.nz") || strings.Contains(f, "education.govt.nz") ||
		strings.Contains(f, "edgazette") || strings.Contains(s, "education gazette") ||
		strings.Contains(b, "gazette.education.govt.nz"):
		return PlatformGazette
	}
	return ""
}

// ParseAlert extracts postings from one alert email. HTML cards are preferred; when the
// body yields no cards the plain text is scanned for job URLs.
func ParseAlert(m Message) []domain.RawPosting {
	body := m.Body()
	platform := Route(m.From, m.Subject, body+"\n"+m.Text)
	if platform == "" {
		return nil
	}

	var out []domain.RawPosting
	if strings.TrimSpace(m.HTML) != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(m.HTML)); err == nil {
			switch platform {
			case PlatformLinkedIn:
				out = parseLinkedIn(doc)
			case PlatformSeek:
				out = parseSeek(doc)
			case PlatformGazette:
				out = parseGazette(doc)
			}
		}
	}

	if len(out) == 0 {
		text := m.Text
		if strings.TrimSpace(text) == "" && m.HTML != "" {
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(m.HTML)); err == nil {
				text = doc.Text()
			}
		}
		switch platform {
		case PlatformLinkedIn:
			out = parseText(text, reLinkedInURL, PlatformLinkedIn, "LinkedIn Job")
		case PlatformSeek:
			out = parseText(text, reSeekURL, PlatformSeek, "Seek Job")
		case PlatformGazette:
			out = parseText(text, reGazetteURL, PlatformGazette, "Education Gazette Job")
		}
	}

	for i := range out {
		out[i].EventID = m.ID
	}
	return out
}

// parseText finds job URLs in a plain-text body and takes the nearest non-URL line above
// each one as its title.
func parseText(text string, re *regexp.Regexp, platform, defaultTitle string) []domain.RawPosting {
	var out []domain.RawPosting
	seen := map[string]bool{}
	prev := ""

	for _, ln := range util.CleanLines(text) {
		urls := re.FindAllString(ln, -1)
		if len(urls) == 0 {
			if !strings.Contains(ln, "://") {
				prev = ln
			}
			continue
		}
		for _, u := range urls {
			u = util.CanonicalURL(reTrailingPunct.ReplaceAllString(u, ""))
			if seen[u] || util.IsGenericURL(u) {
				continue
			}
			if platform == PlatformGazette && !isGazetteVacancyURL(u) {
				continue
			}
			seen[u] = true

			title := defaultTitle
			if t := stripBadTitleSuffixes(prev); titleScore(t) > 0 {
				title = t
			}
			r := domain.RawPosting{Title: title, URL: u, SourcePlatform: platform}
			switch platform {
			case PlatformLinkedIn:
				r.SourceID = linkedInSourceID(u)
			case PlatformSeek:
				if m := reSeekJobID.FindStringSubmatch(u); m != nil {
					r.SourceID = "seek:" + m[1]
				}
			}
			out = append(out, r)
		}
		prev = ""
	}
	return out
}
