package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nzRegions are checked in order; cities come before the wider regions that contain them.
var nzRegions = []string{
	"Auckland",
	"Wellington",
	"Christchurch",
	"Hamilton",
	"Tauranga",
	"Dunedin",
	"Canterbury",
	"Waikato",
	"Bay of Plenty",
	"Otago",
	"Northland",
	"Manawat\u016b",
	"Manawatu",
	"Hawke's Bay",
	"Taranaki",
	"Nelson",
	"Southland",
	"Marlborough",
	"Gisborne",
	"West Coast",
}

// NZRegion returns the first New Zealand city or region named in text.
func NZRegion(text string) string {
	low := strings.ToLower(text)
	for _, r := range nzRegions {
		if strings.Contains(low, strings.ToLower(r)) {
			return r
		}
	}
	return ""
}

func FindLocation(doc *goquery.Document) string {
	candidates := []string{
		"[data-automation='job-detail-location']",
		".job-details-jobs-unified-top-card__bullet",
		".topcard__flavor--bullet",
		".vacancy-location",
		".location",
		"[data-testid='job-location']",
	}

	for _, sel := range candidates {
		if t := CleanText(doc.Find(sel).First().Text()); t != "" {
			return NormalizeLocation(t)
		}
	}

	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if loc := ExtractLocationFromLabeledText(v); loc != "" {
			return NormalizeLocation(loc)
		}
	}

	body := doc.Find("body").Text()
	if loc := ExtractLocationFromLabeledText(body); loc != "" {
		return NormalizeLocation(loc)
	}
	return NZRegion(body)
}

// ExtractLocationFromLabeledText reads the value after a "Location:" style label.
func ExtractLocationFromLabeledText(s string) string {
	low := strings.ToLower(s)

	labels := []string{
		"location:",
		"locations:",
		"job location:",
	}

	for _, lab := range labels {
		if i := strings.Index(low, lab); i >= 0 {
			start := i + len(lab)
			rest := strings.TrimSpace(s[start:])

			for _, cut := range []string{"\n", "\r", " | ", " \u00b7 "} {
				if j := strings.Index(rest, cut); j >= 0 {
					rest = rest[:j]
				}
			}

			rest = CleanText(rest)
			if rest != "" && len(rest) <= 80 {
				return rest
			}
		}
	}
	return ""
}
