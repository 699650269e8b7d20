package util

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const emailAtom = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

// contactPatterns are tried in order; labelled addresses win over bare school domains.
var contactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)email[:\s]+(` + emailAtom + `)`),
	regexp.MustCompile(`(?i)contact[:\s]+(` + emailAtom + `)`),
	regexp.MustCompile(`(?i)apply to[:\s]+(` + emailAtom + `)`),
	regexp.MustCompile(`(?i)([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.school\.nz)`),
	regexp.MustCompile(`(?i)([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.edu\.nz)`),
	regexp.MustCompile(`(?i)mailto:(` + emailAtom + `)`),
}

// ExtractContactEmail finds an application address in free text.
func ExtractContactEmail(text string) string {
	for _, re := range contactPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimRight(m[1], ".")
		}
	}
	return ""
}

// ContactEmailFromDoc prefers mailto links, then falls back to the page text.
func ContactEmailFromDoc(doc *goquery.Document) string {
	var out string
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
		if strings.Contains(addr, "@") {
			out = addr
			return false
		}
		return true
	})
	if out != "" {
		return out
	}
	return ExtractContactEmail(doc.Text())
}
