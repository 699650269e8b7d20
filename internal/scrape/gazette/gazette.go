// Package gazette scrapes vacancies straight from the Education Gazette website.
package gazette

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/scrape/types"
	"jobapply-engine/internal/scrape/util"
)

const (
	SourceName = "gazette"
	Platform   = "Education Gazette NZ"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

type Config struct {
	BaseURL  string
	ListPath string
	MaxJobs  int
	Workers  int
}

type Scraper struct {
	cfg     Config
	hc      *http.Client
	limiter *util.HostLimiter
}

func New(cfg Config, limiter *util.HostLimiter) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://gazette.education.govt.nz"
	}
	if cfg.ListPath == "" {
		cfg.ListPath = "/vacancies/"
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Scraper{
		cfg:     cfg,
		hc:      &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

func (s *Scraper) Name() string { return SourceName }

func (s *Scraper) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	res := types.ScrapeResult{Source: SourceName}

	listURL := util.Absolute(s.cfg.BaseURL, s.cfg.ListPath)
	links, err := s.listVacancies(ctx, listURL)
	if err != nil {
		// The home page carries the latest vacancies too.
		log.Printf("[gazette] listing %s failed (%v), trying home page", listURL, err)
		links, err = s.listVacancies(ctx, s.cfg.BaseURL)
		if err != nil {
			return res, err
		}
	}
	if len(links) > s.cfg.MaxJobs {
		links = links[:s.cfg.MaxJobs]
	}

	var (
		mu     sync.Mutex
		out    = make([]domain.RawPosting, len(links))
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, link := range links {
		g.Go(func() error {
			p, err := s.fetchVacancy(gctx, link)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("[gazette] %s: %v", link, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, p := range out {
		if p.URL != "" {
			res.Postings = append(res.Postings, p)
		}
	}
	log.Printf("[gazette] links=%d postings=%d failed=%d", len(links), len(res.Postings), failed)
	return res, nil
}

func (s *Scraper) get(ctx context.Context, u string) (*goquery.Document, error) {
	if err := s.limiter.WaitURL(ctx, u); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-NZ,en;q=0.8")

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// listVacancies collects distinct vacancy detail links, in page order.
func (s *Scraper) listVacancies(ctx context.Context, listURL string) ([]string, error) {
	doc, err := s.get(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("gazette list: %w", err)
	}

	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := util.Absolute(listURL, href)
		if !isVacancyLink(abs) {
			return
		}
		abs = util.CanonicalURL(abs)
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links, nil
}

// isVacancyLink matches /vacancies/<ref>-<slug>/ detail pages, not the listing itself.
func isVacancyLink(u string) bool {
	lu := strings.ToLower(u)
	i := strings.Index(lu, "/vacancies/")
	if i < 0 || util.IsGenericURL(lu) {
		return false
	}
	rest := strings.Trim(lu[i+len("/vacancies/"):], "/")
	if rest == "" || strings.HasPrefix(rest, "?") {
		return false
	}
	return strings.Contains(rest, "-")
}

func (s *Scraper) fetchVacancy(ctx context.Context, u string) (domain.RawPosting, error) {
	doc, err := s.get(ctx, u)
	if err != nil {
		return domain.RawPosting{}, err
	}
	return parseVacancy(doc, u), nil
}

func parseVacancy(doc *goquery.Document, u string) domain.RawPosting {
	title := firstText(doc, "h1", ".vacancy-title")
	if title == "" {
		title = "Teaching Position"
	}
	school := firstText(doc, ".school-name", ".vacancy-school", ".organisation", "strong")

	content := doc.Find(".vacancy-content").First()
	if content.Length() == 0 {
		content = doc.Find("article").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	desc := util.Truncate(util.CleanText(content.Text()), 2000)

	location := util.NZRegion(desc)
	if location == "" {
		location = util.FindLocation(doc)
	}

	return domain.RawPosting{
		Title:          title,
		Employer:       school,
		Location:       location,
		Description:    desc,
		URL:            u,
		SourcePlatform: Platform,
		ContactEmail:   util.ContactEmailFromDoc(doc),
	}
}

func firstText(doc *goquery.Document, sels ...string) string {
	for _, sel := range sels {
		if t := util.CleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
