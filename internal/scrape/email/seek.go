package email_scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/util"
)

const PlatformSeek = "Seek NZ"

var (
	reSeekURL      = regexp.MustCompile(`https?://(?:www\.)?seek\.co\.nz/job/\d+`)
	reSeekJobID    = regexp.MustCompile(`seek\.co\.nz/job/(\d+)`)
	reSeekCompany  = regexp.MustCompile(`(?im)(?:^|\s)(?:at|@|Company:)\s+([^\n]+)`)
	reSeekLocation = regexp.MustCompile(`(?im)(?:Location:|\bin\b)\s*([^\n]*(?:NZ|New Zealand)[^\n]*)`)
	reSeekSalary   = regexp.MustCompile(`\$[\d,]+(?:\s*-\s*\$[\d,]+)?`)
)

func parseSeek(doc *goquery.Document) []domain.RawPosting {
	var out []domain.RawPosting
	index := map[string]int{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = unwrapRedirect(strings.TrimSpace(href))
		m := reSeekJobID.FindStringSubmatch(href)
		if m == nil {
			return
		}
		jobURL := util.CanonicalURL(href)
		key := "seek:" + m[1]

		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, domain.RawPosting{
				URL:            jobURL,
				SourceID:       key,
				SourcePlatform: PlatformSeek,
			})
		}
		r := &out[i]

		if t := stripBadTitleSuffixes(a.Text()); betterTitle(t, r.Title) {
			r.Title = t
		}

		parent := a.Closest("tr, td, div, table")
		if parent.Length() == 0 {
			return
		}
		text := parent.Text()
		if r.Employer == "" {
			if m := reSeekCompany.FindStringSubmatch(text); m != nil {
				r.Employer = util.CleanText(m[1])
			}
		}
		if r.Location == "" {
			if m := reSeekLocation.FindStringSubmatch(text); m != nil {
				r.Location = util.CleanText(m[1])
			}
		}
		if r.SalaryInfo == "" {
			r.SalaryInfo = reSeekSalary.FindString(text)
		}
	})

	for i := range out {
		if out[i].Title == "" {
			out[i].Title = "Seek Job"
		}
	}
	return out
}
