package email_scrape

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/util"
)

const PlatformLinkedIn = "LinkedIn"

var (
	reSalary        = regexp.MustCompile(`\$\s?\d[\d,]*(?:K|k)?(?:\s*-\s*\$\s?\d[\d,]*(?:K|k)?)?(?:\s*(?:/|per)\s*(?:year|yr|hour|hr))?`)
	reLinkedInJobID = regexp.MustCompile(`/jobs/view/(\d+)`)
	reLinkedInURL   = regexp.MustCompile(`https?://(?:[a-z]+\.)?linkedin\.com/(?:comm/)?jobs/view/\d+`)
)

// parseLinkedIn merges every anchor pointing at the same job id into one posting, so a logo
// link seen before the title link does not produce an untitled duplicate.
func parseLinkedIn(doc *goquery.Document) []domain.RawPosting {
	type job struct {
		raw   domain.RawPosting
		order int
	}
	byKey := map[string]*job{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		jobURL := unwrapRedirect(strings.TrimSpace(href))
		if !looksLikeLinkedInJobURL(jobURL) {
			return
		}
		jobURL = util.CanonicalURL(jobURL)

		sourceID := linkedInSourceID(jobURL)
		key := sourceID
		if key == "" {
			key = jobURL
		}

		j, ok := byKey[key]
		if !ok {
			j = &job{
				raw: domain.RawPosting{
					URL:            jobURL,
					SourceID:       sourceID,
					SourcePlatform: PlatformLinkedIn,
				},
				order: len(byKey),
			}
			byKey[key] = j
		}

		if t := stripBadTitleSuffixes(a.Text()); betterTitle(t, j.raw.Title) {
			j.raw.Title = t
		}

		card := a.Closest("table")
		if card.Length() == 0 {
			card = a.Closest("tr")
		}
		if card.Length() == 0 {
			card = a.Parent()
		}

		// "Company · Location" sits in a <p> under the title.
		card.Find("p").Each(func(_ int, p *goquery.Selection) {
			t := util.CleanText(p.Text())
			if t == "" {
				return
			}
			if j.raw.Employer == "" && strings.Contains(t, " · ") {
				parts := strings.SplitN(t, " · ", 2)
				j.raw.Employer = strings.TrimSpace(parts[0])
				j.raw.Location = strings.TrimSpace(parts[1])
				return
			}
			if t2 := stripBadTitleSuffixes(t); betterTitle(t2, j.raw.Title) && !strings.Contains(t2, " · ") {
				j.raw.Title = t2
			}
		})

		if j.raw.SalaryInfo == "" {
			if m := reSalary.FindString(util.CleanText(card.Text())); m != "" {
				j.raw.SalaryInfo = strings.TrimSpace(m)
			}
		}
	})

	out := make([]domain.RawPosting, len(byKey))
	for _, j := range byKey {
		if j.raw.Title == "" {
			j.raw.Title = "LinkedIn Job"
		}
		out[j.order] = j.raw
	}
	return out
}

func linkedInSourceID(jobURL string) string {
	if m := reLinkedInJobID.FindStringSubmatch(jobURL); len(m) == 2 {
		return "linkedin:" + m[1]
	}
	return ""
}

func looksLikeLinkedInJobURL(href string) bool {
	h := strings.ToLower(href)
	return strings.Contains(h, "linkedin.com") && strings.Contains(h, "/jobs/view/")
}

// unwrapRedirect follows ?url= wrappers and google /url?q= redirects.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if raw := u.Query().Get("url"); raw != "" {
		if uu, err := url.Parse(raw); err == nil && uu.Host != "" {
			return uu.String()
		}
	}
	if strings.Contains(strings.ToLower(u.Host), "google.") && strings.HasPrefix(u.Path, "/url") {
		if q := u.Query().Get("q"); q != "" {
			if uu, err := url.Parse(q); err == nil && uu.Host != "" {
				return uu.String()
			}
		}
	}
	return href
}
