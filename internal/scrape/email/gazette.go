package email_scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/util"
)

const PlatformGazette = "Education Gazette NZ"

var (
	reGazetteURL      = regexp.MustCompile(`https?://(?:www\.)?gazette\.education\.govt\.nz/[^\s<>"]+`)
	reTrailingPunct   = regexp.MustCompile(`[\]).]+$`)
	reGazetteLocation = regexp.MustCompile(`(?i)Location:\s*([^\n]+)`)
)

func isGazetteVacancyURL(u string) bool {
	lu := strings.ToLower(u)
	if !strings.Contains(lu, "gazette.education.govt.nz") || util.IsGenericURL(lu) {
		return false
	}
	return strings.Contains(lu, "vacanc") || strings.Contains(lu, "jobs")
}

func parseGazette(doc *goquery.Document) []domain.RawPosting {
	var out []domain.RawPosting
	seen := map[string]int{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = reTrailingPunct.ReplaceAllString(strings.TrimSpace(href), "")
		if !isGazetteVacancyURL(href) {
			return
		}
		jobURL := util.CanonicalURL(href)
		title := stripBadTitleSuffixes(a.Text())

		if i, ok := seen[jobURL]; ok {
			if betterTitle(title, out[i].Title) {
				out[i].Title = title
			}
			return
		}

		r := domain.RawPosting{
			Title:          title,
			URL:            jobURL,
			SourcePlatform: PlatformGazette,
			Employer:       "Unknown School",
		}

		parent := a.Closest("tr, td, div, p")
		if parent.Length() > 0 {
			text := parent.Text()
			lines := util.CleanLines(text)
			if title != "" {
				for i, ln := range lines {
					if strings.Contains(ln, title) && i+1 < len(lines) {
						r.Employer = lines[i+1]
						break
					}
				}
			}
			if m := reGazetteLocation.FindStringSubmatch(text); m != nil {
				r.Location = util.CleanText(m[1])
			} else {
				r.Location = util.NZRegion(text)
			}
			r.Description = util.Truncate(util.CleanText(text), 500)
			r.ContactEmail = util.ExtractContactEmail(text)
		}
		if r.Title == "" {
			r.Title = "Education Gazette Job"
		}

		seen[jobURL] = len(out)
		out = append(out, r)
	})
	return out
}
