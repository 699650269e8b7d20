// Package search runs paid job-search actors for LinkedIn and Seek through the actor-run
// HTTP API, gated by the daily quota.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/quota"
	"jobapply-engine/internal/scrape/types"
)

const SourceName = "search"

const (
	PlatformLinkedIn = "LinkedIn"
	PlatformSeek     = "Seek NZ"
)

// Gate is the quota check around each paid call.
type Gate interface {
	Allow(ctx context.Context, items int) error
	Record(ctx context.Context, items int) error
}

// Actor is one hosted scraper. Platform selects the input shape and field mapping.
type Actor struct {
	ID       string
	Platform string
}

type Fetcher struct {
	APIBase    string
	Token      string
	Actors     []Actor
	Keywords   []string
	Location   string
	MaxResults int

	Quota    Gate
	Cache    Cache
	CacheTTL time.Duration

	HC *http.Client
}

func (f *Fetcher) Name() string { return SourceName }

func (f *Fetcher) client() *http.Client {
	if f.HC != nil {
		return f.HC
	}
	return &http.Client{Timeout: 5 * time.Minute}
}

// Fetch runs every actor for every keyword. Quota exhaustion stops further calls without
// failing the run; per-call errors are joined and returned with whatever was fetched.
func (f *Fetcher) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	res := types.ScrapeResult{Source: SourceName}
	if strings.TrimSpace(f.Token) == "" {
		return res, errors.New("search: api token is not configured")
	}

	maxItems := f.MaxResults
	if maxItems <= 0 {
		maxItems = 25
	}

	var errs []error
	calls := 0
outer:
	for _, a := range f.Actors {
		if a.ID == "" {
			continue
		}
		for _, kw := range f.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			items, cached, err := f.search(ctx, a, kw, maxItems)
			if errors.Is(err, quota.ErrExhausted) {
				log.Printf("[search] stopping: %v", err)
				res.QuotaStopped = true
				break outer
			}
			if err != nil {
				log.Printf("[search] actor=%s keyword=%q err=%v", a.ID, kw, err)
				errs = append(errs, fmt.Errorf("%s %q: %w", a.Platform, kw, err))
				continue
			}
			if !cached {
				calls++
			}
			for _, it := range items {
				if p, ok := mapItem(it, a.Platform, f.Location); ok {
					res.Postings = append(res.Postings, p)
				}
			}
		}
	}

	log.Printf("[search] calls=%d postings=%d errors=%d", calls, len(res.Postings), len(errs))
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if len(res.Postings) == 0 {
			return res, err
		}
		res.Err = err
	}
	return res, nil
}

func (f *Fetcher) search(ctx context.Context, a Actor, keyword string, maxItems int) ([]map[string]any, bool, error) {
	key := cacheKey(a.ID, keyword, f.Location, maxItems)
	if f.Cache != nil {
		if b, ok, err := f.Cache.Get(ctx, key); err != nil {
			log.Printf("[search] cache get: %v", err)
		} else if ok {
			var items []map[string]any
			if err := json.Unmarshal(b, &items); err == nil {
				return items, true, nil
			}
		}
	}

	if f.Quota != nil {
		if err := f.Quota.Allow(ctx, maxItems); err != nil {
			return nil, false, err
		}
	}

	b, err := f.run(ctx, a, keyword, maxItems)
	if err != nil {
		return nil, false, err
	}
	var items []map[string]any
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, false, fmt.Errorf("decode dataset: %w", err)
	}

	if f.Quota != nil {
		if err := f.Quota.Record(ctx, len(items)); err != nil {
			log.Printf("[search] %v", err)
		}
	}
	if f.Cache != nil {
		ttl := f.CacheTTL
		if ttl <= 0 {
			ttl = 6 * time.Hour
		}
		if err := f.Cache.Set(ctx, key, b, ttl); err != nil {
			log.Printf("[search] cache set: %v", err)
		}
	}
	return items, false, nil
}

func (f *Fetcher) run(ctx context.Context, a Actor, keyword string, maxItems int) ([]byte, error) {
	input := map[string]any{"maxItems": maxItems}
	switch a.Platform {
	case PlatformSeek:
		input["keyword"] = keyword
		input["place"] = strings.ReplaceAll(strings.ToLower(f.Location), " ", "-")
		input["workType"] = "Any"
	default:
		input["keywords"] = keyword
		input["location"] = f.Location
		input["remote"] = "Any"
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(f.APIBase, "/")
	if base == "" {
		base = "https://api.apify.com"
	}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?%s",
		base, strings.ReplaceAll(a.ID, "/", "~"), url.Values{"token": {f.Token}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %w", a.ID, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("actor %s read: %w", a.ID, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("actor %s status %d: %s", a.ID, resp.StatusCode, strings.TrimSpace(string(b[:min(len(b), 200)])))
	}
	return b, nil
}

// mapItem applies the per-field fallbacks. Items without a title are dropped.
func mapItem(it map[string]any, platform, defaultLocation string) (domain.RawPosting, bool) {
	r := domain.RawPosting{
		Title:          pick(it, "job_title", "title"),
		Employer:       pick(it, "company", "company_name", "companyName", "advertiser"),
		URL:            pick(it, "job_url", "url", "jobUrl", "link"),
		Description:    pick(it, "description", "job_description", "descriptionText", "teaser"),
		Location:       pick(it, "location", "suburb"),
		SalaryInfo:     pick(it, "salary", "compensation", "salaryRange"),
		PostedDate:     pick(it, "posted_date", "listedDate", "postedAt"),
		SourcePlatform: platform,
	}
	if r.Location == "" {
		r.Location = defaultLocation
	}
	if id := pick(it, "id", "jobId"); id != "" {
		switch platform {
		case PlatformSeek:
			r.SourceID = "seek:" + id
		case PlatformLinkedIn:
			r.SourceID = "linkedin:" + id
		}
	}
	return r, r.Title != ""
}

func pick(it map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := it[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
