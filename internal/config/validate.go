package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Filters.ExcludeKeywords = trimList(out.Filters.ExcludeKeywords)
	if out.Filters.RejectPhrases != nil {
		out.Filters.RejectPhrases = trimList(out.Filters.RejectPhrases)
	}
	out.Search.Keywords = trimList(out.Search.Keywords)
	out.Email.FromAny = trimList(out.Email.FromAny)

	// ---- app ----
	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	// ---- profile ----
	if strings.TrimSpace(out.Profile.Name) == "" {
		res.addWarn("profile.name is empty; cover letters will be unsigned.")
	}
	if strings.TrimSpace(out.Profile.Summary) == "" && strings.TrimSpace(out.Profile.SummaryFile) == "" {
		res.addWarn("profile.summary is empty; match scores will be unreliable.")
	}

	// ---- quota ----
	if out.Quota.MaxSearchesPerDay < 0 {
		res.addErr("quota.max_searches_per_day must be >= 0")
	}
	if out.Quota.MaxItemsPerDay < 0 {
		res.addErr("quota.max_items_per_day must be >= 0")
	}

	// ---- search ----
	if out.Search.Enabled {
		if len(out.Search.Keywords) == 0 {
			res.addErr("search.keywords is required when search.enabled=true")
		}
		if out.Search.LinkedInActor == "" && out.Search.SeekActor == "" {
			res.addErr("search.linkedin_actor or search.seek_actor is required when search.enabled=true")
		}
		if out.Quota.MaxItemsPerDay > 0 && out.Search.MaxResults > out.Quota.MaxItemsPerDay {
			res.addWarn("search.max_results (%d) exceeds quota.max_items_per_day (%d); no search will ever run.",
				out.Search.MaxResults, out.Quota.MaxItemsPerDay)
		}
	}

	// ---- email (password is in the keychain, not here) ----
	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.IMAPHost) == "" {
			res.addErr("email.imap_host is required when email.enabled=true")
		}
		if out.Email.IMAPPort == 0 {
			res.addErr("email.imap_port is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addErr("email.username is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Mailbox) == "" {
			res.addErr("email.mailbox is required when email.enabled=true")
		}
		if out.Email.LookbackDays > 365 {
			res.addWarn("email.lookback_days is %d; the first run may be slow.", out.Email.LookbackDays)
		}
		checkAuth(&res, "email", out.Email.Auth, out.Email.OAuth)
	}

	// ---- matching ----
	switch out.Matching.Provider {
	case "openai", "googleai":
		if strings.TrimSpace(out.Matching.Model) == "" {
			res.addWarn("matching.model is empty; the provider default will be used.")
		}
	case "keywords":
		if len(out.Matching.TitleRules) == 0 && len(out.Matching.KeywordRules) == 0 {
			res.addErr("matching.provider=keywords needs title_rules or keyword_rules")
		}
	default:
		res.addErr("matching.provider must be openai, googleai or keywords")
	}
	checkRules := func(name string, rules []Rule) {
		for i, r := range rules {
			if r.Tag == "" {
				res.addErr("%s[%d].tag is required", name, i)
			}
			if len(r.Any) == 0 {
				res.addErr("%s[%d].any must have at least 1 term", name, i)
			}
			for j, term := range r.Any {
				if strings.TrimSpace(term) == "" {
					res.addErr("%s[%d].any[%d] cannot be empty", name, i, j)
				}
			}
		}
	}
	checkRules("matching.title_rules", out.Matching.TitleRules)
	checkRules("matching.keyword_rules", out.Matching.KeywordRules)
	for i, p := range out.Matching.Penalties {
		if p.Reason == "" {
			res.addErr("matching.penalties[%d].reason is required", i)
		}
		if len(p.Any) == 0 {
			res.addErr("matching.penalties[%d].any must have at least 1 term", i)
		}
	}

	// ---- apply / smtp ----
	if out.Apply.AutoApplyEnabled {
		if strings.TrimSpace(out.SMTP.Host) == "" {
			res.addErr("smtp.host is required when apply.auto_apply_enabled=true")
		}
		if strings.TrimSpace(out.SMTP.From) == "" {
			res.addErr("smtp.from is required when apply.auto_apply_enabled=true")
		}
		switch out.SMTP.TLS {
		case "", "starttls", "implicit", "none":
		default:
			res.addErr("smtp.tls must be starttls, implicit or none")
		}
		checkAuth(&res, "smtp", out.SMTP.Auth, out.SMTP.OAuth)
	}

	// ---- schedule ----
	if out.Schedule.Enabled {
		d, err := time.ParseDuration(out.Schedule.Every)
		switch {
		case err != nil:
			res.addErr("schedule.every must be a duration like 3h: %v", err)
		case d < 5*time.Minute:
			res.addWarn("schedule.every is very low (%s) and may burn through quota.", d)
		}
	}

	// ---- conflicts ----
	excl := map[string]bool{}
	for _, k := range out.Filters.ExcludeKeywords {
		excl[strings.ToLower(k)] = true
	}
	for _, k := range out.Search.Keywords {
		if excl[strings.ToLower(k)] {
			res.addWarn("search keyword is also an exclusion keyword: %q", k)
		}
	}

	return out, res
}

func checkAuth(res *Validation, section, auth string, oauth OAuthConfig) {
	switch auth {
	case "", "password":
	case "oauth2":
		if oauth.ClientID == "" || oauth.TokenURL == "" {
			res.addErr("%s.oauth.client_id and %s.oauth.token_url are required when %s.auth=oauth2", section, section, section)
		}
	default:
		res.addErr("%s.auth must be password or oauth2", section)
	}
}
