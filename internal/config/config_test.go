package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ── Load ───────────────────────────────────────────────────────────────────

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	t.Setenv("JOBAPPLY_TEST_NAME", "Aroha Ngata")
	writeFile(t, path, `
profile:
  name: ${JOBAPPLY_TEST_NAME}
matching:
  provider: " OpenAI "
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profile.Name != "Aroha Ngata" {
		t.Errorf("name = %q", cfg.Profile.Name)
	}
	if cfg.Matching.Provider != "openai" {
		t.Errorf("provider = %q", cfg.Matching.Provider)
	}
	if cfg.App.Port != 38471 || cfg.Email.Mailbox != "INBOX" || cfg.Schedule.Every != "3h" {
		t.Errorf("defaults not applied: %+v", cfg.App)
	}
	if cfg.Quota.MaxSearchesPerDay != 10 || cfg.Quota.MaxItemsPerDay != 500 {
		t.Errorf("quota defaults = %+v", cfg.Quota)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error")
	}
}

// ── Validate ───────────────────────────────────────────────────────────────

func validConfig() Config {
	var c Config
	ApplyDefaults(&c)
	c.Profile.Name = "A"
	c.Profile.Summary = "Experienced primary teacher."
	return c
}

func TestNormalizeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.App.Port = 70000 }, "app.port"},
		{"search without keywords", func(c *Config) {
			c.Search.Enabled = true
			c.Search.SeekActor = "x/y"
		}, "search.keywords"},
		{"search without actor", func(c *Config) {
			c.Search.Enabled = true
			c.Search.Keywords = []string{"teacher"}
		}, "linkedin_actor"},
		{"email without host", func(c *Config) {
			c.Email.Enabled = true
			c.Email.IMAPHost = ""
			c.Email.Username = "me"
		}, "email.imap_host"},
		{"oauth without client", func(c *Config) {
			c.Email.Enabled = true
			c.Email.IMAPHost = "imap.example.com"
			c.Email.Username = "me"
			c.Email.Auth = "oauth2"
		}, "email.oauth.client_id"},
		{"keywords provider needs rules", func(c *Config) { c.Matching.Provider = "keywords" }, "title_rules"},
		{"unknown provider", func(c *Config) { c.Matching.Provider = "magic" }, "matching.provider"},
		{"auto-apply without smtp", func(c *Config) { c.Apply.AutoApplyEnabled = true }, "smtp.host"},
		{"bad smtp tls", func(c *Config) {
			c.Apply.AutoApplyEnabled = true
			c.SMTP.Host = "smtp.example.com"
			c.SMTP.From = "me@example.com"
			c.SMTP.TLS = "ssl3"
		}, "smtp.tls"},
		{"bad schedule", func(c *Config) {
			c.Schedule.Enabled = true
			c.Schedule.Every = "often"
		}, "schedule.every"},
		{"empty rule term", func(c *Config) {
			c.Matching.TitleRules = []Rule{{Tag: "t", Any: []string{" "}}}
		}, "any[0] cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			_, res := NormalizeAndValidate(c)
			if tt.wantErr == "" {
				if !res.OK() {
					t.Fatalf("errors = %v", res.Errors)
				}
				return
			}
			if !strings.Contains(strings.Join(res.Errors, "\n"), tt.wantErr) {
				t.Fatalf("errors = %v, want %q", res.Errors, tt.wantErr)
			}
		})
	}
}

func TestNormalizeAndValidate_TrimsListsAndWarns(t *testing.T) {
	c := validConfig()
	c.Filters.ExcludeKeywords = []string{" Principal ", "principal", ""}
	c.Search.Keywords = []string{"principal", "teacher"}

	out, res := NormalizeAndValidate(c)
	if len(out.Filters.ExcludeKeywords) != 1 || out.Filters.ExcludeKeywords[0] != "Principal" {
		t.Fatalf("exclude = %q", out.Filters.ExcludeKeywords)
	}
	if !strings.Contains(strings.Join(res.Warnings, "\n"), "also an exclusion keyword") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

// ── Save / bootstrap / overlay ─────────────────────────────────────────────

func TestSaveAtomic_KeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	c := validConfig()
	if err := SaveAtomic(path, c); err != nil {
		t.Fatal(err)
	}
	c.Profile.Name = "B"
	if err := SaveAtomic(path, c); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil || got.Profile.Name != "B" {
		t.Fatalf("reloaded name = %q, %v", got.Profile.Name, err)
	}
	bak, err := Load(path + ".bak")
	if err != nil || bak.Profile.Name != "A" {
		t.Fatalf("backup name = %q, %v", bak.Profile.Name, err)
	}

	c.App.Port = -1
	if err := SaveAtomic(path, c); err == nil {
		t.Fatal("invalid config saved")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("copies default", func(t *testing.T) {
		def := filepath.Join(dir, "default.yml")
		writeFile(t, def, "profile:\n  name: Seeded\n")
		data := filepath.Join(dir, "a")
		p, err := EnsureUserConfig(data, def)
		if err != nil {
			t.Fatal(err)
		}
		cfg, _ := Load(p)
		if cfg.Profile.Name != "Seeded" {
			t.Fatalf("name = %q", cfg.Profile.Name)
		}
		// second call leaves the user's file alone
		writeFile(t, p, "profile:\n  name: Edited\n")
		if _, err := EnsureUserConfig(data, def); err != nil {
			t.Fatal(err)
		}
		cfg, _ = Load(p)
		if cfg.Profile.Name != "Edited" {
			t.Fatalf("overwritten: %q", cfg.Profile.Name)
		}
	})

	t.Run("writes built-in defaults", func(t *testing.T) {
		p, err := EnsureUserConfig(filepath.Join(dir, "b"), filepath.Join(dir, "missing.yml"))
		if err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(p)
		if err != nil || cfg.App.Port != 38471 {
			t.Fatalf("cfg = %+v, %v", cfg.App, err)
		}
	})
}

func TestOverlayProfile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profile.md"), "\n  Ten years teaching Years 1-4.  \n")

	c := Config{}
	c.Profile.Summary = "inline"
	c.Profile.SummaryFile = "profile.md"
	if err := OverlayProfile(&c, dir); err != nil {
		t.Fatal(err)
	}
	if c.Profile.Summary != "Ten years teaching Years 1-4." {
		t.Fatalf("summary = %q", c.Profile.Summary)
	}

	c.Profile.SummaryFile = "missing.md"
	if err := OverlayProfile(&c, dir); err == nil {
		t.Fatal("expected error for missing file")
	}
}
