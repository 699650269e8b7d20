package util

import (
	"net/url"
	"sort"
	"strings"
)

// CanonicalURL drops tracking parameters and fragments so the same posting reached
// through different alert links keeps one identity. LinkedIn and Seek job links lose
// their whole query string.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if isQuerylessHost(u.Host) {
		u.RawQuery = ""
		return u.String()
	}

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") ||
			lk == "gclid" || lk == "fbclid" || lk == "msclkid" ||
			lk == "mc_cid" || lk == "mc_eid" ||
			lk == "mkt_tok" || lk == "trackingid" || lk == "refid" {
			q.Del(k)
		}
	}

	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isQuerylessHost(host string) bool {
	return strings.Contains(host, "linkedin.com") || strings.Contains(host, "seek.co.nz") ||
		strings.Contains(host, "seek.com.au")
}

// IsGenericURL reports links that point at alert management pages rather than a posting.
func IsGenericURL(u string) bool {
	lu := strings.ToLower(u)
	for _, s := range []string{
		"linkedin.com/comm/jobs/alerts",
		"unsubscribe",
		"subscription",
		"contact-us",
		"/about-",
		"mailto:",
	} {
		if strings.Contains(lu, s) {
			return true
		}
	}
	return false
}

// Absolute resolves href against base; empty on failure.
func Absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if h.IsAbs() {
		return h.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}
