package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/llms"

	"jobapply-engine/internal/apply"
	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/ingest"
	"jobapply-engine/internal/mailer"
	"jobapply-engine/internal/quota"
	"jobapply-engine/internal/rank"
	"jobapply-engine/internal/scrape/detail"
	email_scrape "jobapply-engine/internal/scrape/email"
	"jobapply-engine/internal/scrape/gazette"
	"jobapply-engine/internal/scrape/search"
	"jobapply-engine/internal/scrape/types"
	"jobapply-engine/internal/scrape/util"
	"jobapply-engine/internal/secrets"
	"jobapply-engine/internal/store"
)

// engine builds pipeline components from the live config. Everything except the
// LLM client and the search cache is rebuilt per use, so dashboard edits apply to the next run.
type engine struct {
	cfgVal  *atomic.Value // config.Config
	db      *store.DB
	limiter *util.HostLimiter
	detail  *detail.Fetcher

	mu       sync.Mutex
	model    llms.Model
	modelKey string
	cache    search.Cache
	cacheURL string
}

func newEngine(cfgVal *atomic.Value, db *store.DB) *engine {
	limiter := util.NewHostLimiter(1, 2)
	return &engine{
		cfgVal:  cfgVal,
		db:      db,
		limiter: limiter,
		detail:  detail.NewFetcher(limiter),
	}
}

func (e *engine) cfg() config.Config { return e.cfgVal.Load().(config.Config) }

// llm returns the cached client for the configured provider, or nil when keyword scoring is selected
// or no key is available.
func (e *engine) llm(ctx context.Context, cfg config.Config) llms.Model {
	if cfg.Matching.Provider == "keywords" {
		return nil
	}
	key := secrets.Lookup(secrets.LLMAPIKey, cfg)
	id := fmt.Sprintf("%s|%s|%s|%d", cfg.Matching.Provider, cfg.Matching.Model, cfg.Matching.BaseURL, len(key))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil && e.modelKey == id {
		return e.model
	}
	m, err := rank.NewModel(ctx, cfg.Matching.Provider, cfg.Matching.Model, cfg.Matching.BaseURL, key)
	if err != nil {
		log.Printf("[engine] llm unavailable (%s): %v", cfg.Matching.Provider, err)
		return nil
	}
	e.model, e.modelKey = m, id
	return m
}

func (e *engine) stage(ctx context.Context) *rank.Stage {
	cfg := e.cfg()
	st := &rank.Stage{Enricher: e.detail, Profile: cfg.Profile}
	if m := e.llm(ctx, cfg); m != nil {
		st.Scorer = rank.LLMScorer{
			Model:       m,
			Temperature: cfg.Matching.Temperature,
			MaxTokens:   cfg.Matching.MaxTokens,
			Timeout:     time.Duration(cfg.Matching.TimeoutSeconds) * time.Second,
		}
	} else if len(cfg.Matching.TitleRules)+len(cfg.Matching.KeywordRules) > 0 {
		st.Scorer = rank.YAMLScorer{Cfg: cfg}
	}
	return st
}

func (e *engine) workflow(ctx context.Context) *apply.Workflow {
	cfg := e.cfg()
	w := &apply.Workflow{
		Store:            e.db,
		Profile:          cfg.Profile,
		AutoApplyEnabled: cfg.Apply.AutoApplyEnabled,
	}
	if m := e.llm(ctx, cfg); m != nil {
		w.Writer = apply.LLMWriter{Model: m}
	}
	if cfg.Apply.AutoApplyEnabled && cfg.SMTP.Host != "" {
		w.Sender = mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			TLS:      cfg.SMTP.TLS,
			Auth:     smtpAuth(cfg),
		})
	}
	return w
}

func (e *engine) governor() *quota.Governor {
	cfg := e.cfg()
	return quota.New(e.db, search.SourceName, cfg.Quota.MaxSearchesPerDay, cfg.Quota.MaxItemsPerDay)
}

func (e *engine) searchCache(ctx context.Context, cfg config.Config) search.Cache {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Cache.RedisURL == e.cacheURL {
		return e.cache
	}
	if e.cache != nil {
		if c, ok := e.cache.(*search.RedisCache); ok {
			_ = c.Close()
		}
		e.cache = nil
	}
	e.cacheURL = cfg.Cache.RedisURL
	if cfg.Cache.RedisURL == "" {
		return nil
	}
	c, err := search.NewRedisCache(ctx, cfg.Cache.RedisURL)
	if err != nil {
		log.Printf("[engine] search cache disabled: %v", err)
		return nil
	}
	e.cache = c
	return c
}

// sources returns the fetchers enabled in the current config.
func (e *engine) sources(ctx context.Context) []types.Fetcher {
	cfg := e.cfg()
	var out []types.Fetcher

	if cfg.Email.Enabled {
		out = append(out, &email_scrape.Fetcher{
			IMAP: email_scrape.IMAPConfig{
				Host:    cfg.Email.IMAPHost,
				Port:    cfg.Email.IMAPPort,
				Mailbox: cfg.Email.Mailbox,
				Auth:    imapAuth(cfg),
			},
			LookbackDays: cfg.Email.LookbackDays,
			FromAny:      cfg.Email.FromAny,
			Events:       e.db,
		})
	}

	if cfg.Search.Enabled {
		var actors []search.Actor
		if cfg.Search.LinkedInActor != "" {
			actors = append(actors, search.Actor{ID: cfg.Search.LinkedInActor, Platform: search.PlatformLinkedIn})
		}
		if cfg.Search.SeekActor != "" {
			actors = append(actors, search.Actor{ID: cfg.Search.SeekActor, Platform: search.PlatformSeek})
		}
		token, err := secrets.Get(secrets.SearchToken, cfg)
		if err != nil {
			log.Printf("[engine] search disabled: %v", err)
		} else {
			out = append(out, &search.Fetcher{
				APIBase:    cfg.Search.APIBase,
				Token:      token,
				Actors:     actors,
				Keywords:   cfg.Search.Keywords,
				Location:   cfg.Search.Location,
				MaxResults: cfg.Search.MaxResults,
				Quota:      e.governor(),
				Cache:      e.searchCache(ctx, cfg),
				CacheTTL:   time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
				HC:         &http.Client{Timeout: time.Duration(cfg.Search.TimeoutSeconds) * time.Second},
			})
		}
	}

	if cfg.Gazette.Enabled {
		out = append(out, gazette.New(gazette.Config{
			BaseURL:  cfg.Gazette.BaseURL,
			ListPath: cfg.Gazette.ListPath,
			MaxJobs:  cfg.Gazette.MaxJobs,
			Workers:  cfg.Gazette.Workers,
		}, e.limiter))
	}
	return out
}

func (e *engine) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cache.(*search.RedisCache); ok {
		_ = c.Close()
	}
}

func imapAuth(cfg config.Config) mailer.Auth {
	a := mailer.Auth{Mechanism: cfg.Email.Auth, Username: cfg.Email.Username}
	if cfg.Email.Auth == "oauth2" {
		a.ClientID = cfg.Email.OAuth.ClientID
		a.TokenURL = cfg.Email.OAuth.TokenURL
		a.Scopes = cfg.Email.OAuth.Scopes
		a.ClientSecret = secrets.Lookup(secrets.OAuthClientSecret, cfg)
		a.RefreshToken = secrets.Lookup(secrets.IMAPRefreshToken, cfg)
		return a
	}
	a.Password = secrets.Lookup(secrets.IMAPPassword, cfg)
	return a
}

func smtpAuth(cfg config.Config) mailer.Auth {
	a := mailer.Auth{Mechanism: cfg.SMTP.Auth, Username: cfg.SMTP.Username}
	if cfg.SMTP.Auth == "oauth2" {
		a.ClientID = cfg.SMTP.OAuth.ClientID
		a.TokenURL = cfg.SMTP.OAuth.TokenURL
		a.Scopes = cfg.SMTP.OAuth.Scopes
		a.ClientSecret = secrets.Lookup(secrets.OAuthClientSecret, cfg)
		a.RefreshToken = secrets.Lookup(secrets.SMTPRefreshToken, cfg)
		return a
	}
	a.Password = secrets.Lookup(secrets.SMTPPassword, cfg)
	return a
}

// liveIngest applies the current exclusion and rejection filters to each run.
type liveIngest struct {
	e        *engine
	onInsert func(domain.Posting)
}

func (l liveIngest) Ingest(ctx context.Context, raws []domain.RawPosting, fallback bool) ingest.Report {
	cfg := l.e.cfg()
	p := ingest.New(l.e.db, ingest.Options{
		ExcludeKeywords: cfg.Filters.ExcludeKeywords,
		RejectPhrases:   cfg.Filters.RejectPhrases,
		DefaultLocation: cfg.Filters.DefaultLocation,
	})
	p.OnInsert = l.onInsert
	return p.Ingest(ctx, raws, fallback)
}

// liveMatcher and liveWorkflow rebuild their stage per posting from the current config.
type liveMatcher struct{ e *engine }

func (m liveMatcher) Match(ctx context.Context, p domain.Posting) rank.Match {
	return m.e.stage(ctx).Match(ctx, p)
}

type liveWorkflow struct{ e *engine }

func (w liveWorkflow) Process(ctx context.Context, id int64) (apply.Result, error) {
	return w.e.workflow(ctx).Process(ctx, id)
}

type liveQuota struct{ e *engine }

func (q liveQuota) Status(ctx context.Context) (quota.Status, error) {
	return q.e.governor().Status(ctx)
}
