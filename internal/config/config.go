package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Tag    string   `yaml:"tag" json:"tag"`
	Weight int      `yaml:"weight" json:"weight"`
	Any    []string `yaml:"any" json:"any"`
}

type Penalty struct {
	Reason string   `yaml:"reason" json:"reason"`
	Weight int      `yaml:"weight" json:"weight"`
	Any    []string `yaml:"any" json:"any"`
}

// Profile is the fixed candidate profile every posting is scored and written against.
type Profile struct {
	Name        string `yaml:"name" json:"name"`
	Email       string `yaml:"email" json:"email"`
	Phone       string `yaml:"phone" json:"phone"`
	Summary     string `yaml:"summary" json:"summary"`
	SummaryFile string `yaml:"summary_file" json:"summary_file"`
	Preferences string `yaml:"preferences" json:"preferences"`
	CVPath      string `yaml:"cv_path" json:"cv_path"`
}

type Config struct {
	App struct {
		Host    string `yaml:"host" json:"host"`
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	Profile Profile `yaml:"profile" json:"profile"`

	Filters struct {
		ExcludeKeywords []string `yaml:"exclude_keywords" json:"exclude_keywords"`
		RejectPhrases   []string `yaml:"reject_phrases" json:"reject_phrases"`
		DefaultLocation string   `yaml:"default_location" json:"default_location"`
	} `yaml:"filters" json:"filters"`

	Quota struct {
		MaxSearchesPerDay int `yaml:"max_searches_per_day" json:"max_searches_per_day"`
		MaxItemsPerDay    int `yaml:"max_items_per_day" json:"max_items_per_day"`
	} `yaml:"quota" json:"quota"`

	Search struct {
		Enabled        bool     `yaml:"enabled" json:"enabled"`
		APIBase        string   `yaml:"api_base" json:"api_base"`
		LinkedInActor  string   `yaml:"linkedin_actor" json:"linkedin_actor"`
		SeekActor      string   `yaml:"seek_actor" json:"seek_actor"`
		Keywords       []string `yaml:"keywords" json:"keywords"`
		Location       string   `yaml:"location" json:"location"`
		MaxResults     int      `yaml:"max_results" json:"max_results"`
		TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"search" json:"search"`

	Email struct {
		Enabled      bool     `yaml:"enabled" json:"enabled"`
		IMAPHost     string   `yaml:"imap_host" json:"imap_host"`
		IMAPPort     int      `yaml:"imap_port" json:"imap_port"`
		Username     string   `yaml:"username" json:"username"`
		Mailbox      string   `yaml:"mailbox" json:"mailbox"`
		LookbackDays int      `yaml:"lookback_days" json:"lookback_days"`
		FromAny      []string `yaml:"from_any" json:"from_any"`
		// Auth is "password" (default) or "oauth2".
		Auth  string      `yaml:"auth" json:"auth"`
		OAuth OAuthConfig `yaml:"oauth" json:"oauth"`
	} `yaml:"email" json:"email"`

	Gazette struct {
		Enabled  bool   `yaml:"enabled" json:"enabled"`
		BaseURL  string `yaml:"base_url" json:"base_url"`
		ListPath string `yaml:"list_path" json:"list_path"`
		MaxJobs  int    `yaml:"max_jobs" json:"max_jobs"`
		Workers  int    `yaml:"workers" json:"workers"`
	} `yaml:"gazette" json:"gazette"`

	Matching struct {
		// Provider is "openai", "googleai" or "keywords".
		Provider       string    `yaml:"provider" json:"provider"`
		Model          string    `yaml:"model" json:"model"`
		BaseURL        string    `yaml:"base_url" json:"base_url"`
		Temperature    float64   `yaml:"temperature" json:"temperature"`
		MaxTokens      int       `yaml:"max_tokens" json:"max_tokens"`
		TimeoutSeconds int       `yaml:"timeout_seconds" json:"timeout_seconds"`
		TitleRules     []Rule    `yaml:"title_rules" json:"title_rules"`
		KeywordRules   []Rule    `yaml:"keyword_rules" json:"keyword_rules"`
		Penalties      []Penalty `yaml:"penalties" json:"penalties"`
	} `yaml:"matching" json:"matching"`

	Apply struct {
		AutoApplyEnabled bool `yaml:"auto_apply_enabled" json:"auto_apply_enabled"`
	} `yaml:"apply" json:"apply"`

	SMTP struct {
		Host     string `yaml:"host" json:"host"`
		Port     int    `yaml:"port" json:"port"`
		Username string `yaml:"username" json:"username"`
		From     string `yaml:"from" json:"from"`
		FromName string `yaml:"from_name" json:"from_name"`
		// TLS is "starttls" (default), "implicit" or "none".
		TLS   string      `yaml:"tls" json:"tls"`
		Auth  string      `yaml:"auth" json:"auth"`
		OAuth OAuthConfig `yaml:"oauth" json:"oauth"`
	} `yaml:"smtp" json:"smtp"`

	Schedule struct {
		Enabled bool   `yaml:"enabled" json:"enabled"`
		Every   string `yaml:"every" json:"every"`
	} `yaml:"schedule" json:"schedule"`

	Cache struct {
		RedisURL   string `yaml:"redis_url" json:"redis_url"`
		TTLMinutes int    `yaml:"ttl_minutes" json:"ttl_minutes"`
	} `yaml:"cache" json:"cache"`
}

// OAuthConfig holds the non-secret half of a refresh-token grant. The refresh token lives in the keychain.
type OAuthConfig struct {
	ClientID string   `yaml:"client_id" json:"client_id"`
	TokenURL string   `yaml:"token_url" json:"token_url"`
	Scopes   []string `yaml:"scopes" json:"scopes"`
}

// Load reads a YAML config, expanding ${VAR} references from the environment first.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return cfg, err
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.App.Host == "" {
		cfg.App.Host = "127.0.0.1"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 38471
	}
	if cfg.Filters.DefaultLocation == "" {
		cfg.Filters.DefaultLocation = "New Zealand"
	}
	if cfg.Quota.MaxSearchesPerDay == 0 {
		cfg.Quota.MaxSearchesPerDay = 10
	}
	if cfg.Quota.MaxItemsPerDay == 0 {
		cfg.Quota.MaxItemsPerDay = 500
	}
	if cfg.Search.APIBase == "" {
		cfg.Search.APIBase = "https://api.apify.com"
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 25
	}
	if cfg.Search.TimeoutSeconds == 0 {
		cfg.Search.TimeoutSeconds = 120
	}
	if cfg.Email.IMAPPort == 0 {
		cfg.Email.IMAPPort = 993
	}
	if cfg.Email.Mailbox == "" {
		cfg.Email.Mailbox = "INBOX"
	}
	if cfg.Email.LookbackDays == 0 {
		cfg.Email.LookbackDays = 30
	}
	if cfg.Gazette.BaseURL == "" {
		cfg.Gazette.BaseURL = "https://gazette.education.govt.nz"
	}
	if cfg.Gazette.ListPath == "" {
		cfg.Gazette.ListPath = "/vacancies/?Role=Teaching"
	}
	if cfg.Gazette.MaxJobs == 0 {
		cfg.Gazette.MaxJobs = 50
	}
	if cfg.Gazette.Workers == 0 {
		cfg.Gazette.Workers = 4
	}
	if cfg.Matching.Provider == "" {
		cfg.Matching.Provider = "openai"
	}
	if cfg.Matching.MaxTokens == 0 {
		cfg.Matching.MaxTokens = 300
	}
	if cfg.Matching.Temperature == 0 {
		cfg.Matching.Temperature = 0.3
	}
	if cfg.Matching.TimeoutSeconds == 0 {
		cfg.Matching.TimeoutSeconds = 60
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TLS == "" {
		cfg.SMTP.TLS = "starttls"
	}
	if cfg.Schedule.Every == "" {
		cfg.Schedule.Every = "3h"
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = 360
	}
	cfg.Matching.Provider = strings.ToLower(strings.TrimSpace(cfg.Matching.Provider))
}
