package detail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/util"
)

var ErrNoDescription = errors.New("no description on page")

// selectors are tried in order per platform; the generic list is the fallback for all.
var (
	linkedInSelectors = []string{
		".show-more-less-html__markup",
		".description__text",
		".jobs-description__content",
		"div[class*='description']",
	}
	seekSelectors = []string{
		"[data-automation='jobAdDetails']",
		"[data-automation='jobDescription']",
		"div[class*='content']",
	}
	genericSelectors = []string{
		".vacancy-content",
		"div[class*='description']",
		"div[class*='details']",
		"article",
		"main",
	}
)

// Fetcher loads a posting's page and extracts the description text.
type Fetcher struct {
	HC      *http.Client
	Limiter *util.HostLimiter
}

func NewFetcher(limiter *util.HostLimiter) *Fetcher {
	return &Fetcher{
		HC:      &http.Client{Timeout: 15 * time.Second},
		Limiter: limiter,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url, platform string) Result {
	if strings.TrimSpace(url) == "" || strings.HasPrefix(url, domain.SyntheticURLPrefix) {
		return Result{Kind: Unavailable, Err: errors.New("no fetchable url")}
	}
	if err := f.Limiter.WaitURL(ctx, url); err != nil {
		return Result{Kind: Unavailable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Kind: Unavailable, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html")

	hc := f.HC
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Result{Kind: Unavailable, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Result{Kind: Unavailable, Err: fmt.Errorf("detail status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{Kind: Unavailable, Err: fmt.Errorf("detail parse: %w", err)}
	}
	desc := Extract(doc, platform)
	if desc == "" {
		return Result{Kind: Unavailable, Err: ErrNoDescription}
	}
	return Result{Kind: Enriched, Description: desc}
}

// Extract picks the description block for the platform, truncated to the stored maximum.
func Extract(doc *goquery.Document, platform string) string {
	var sels []string
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "linkedin"):
		sels = linkedInSelectors
	case strings.Contains(p, "seek"):
		sels = seekSelectors
	}
	sels = append(append([]string(nil), sels...), genericSelectors...)

	for _, sel := range sels {
		if t := util.CleanText(doc.Find(sel).First().Text()); len(t) >= domain.MinDescriptionChars {
			return util.Truncate(t, domain.MaxDescriptionChars)
		}
	}
	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if t := util.CleanText(v); len(t) >= domain.MinDescriptionChars {
			return util.Truncate(t, domain.MaxDescriptionChars)
		}
	}
	return ""
}
