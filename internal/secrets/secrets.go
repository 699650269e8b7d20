package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"jobapply-engine/internal/config"
)

// KeyringService groups the app's secrets in the OS keychain.
const KeyringService = "jobapply"

var ErrNotFound = errors.New("secret not found")

type Name string

const (
	IMAPPassword      Name = "imap_password"
	IMAPRefreshToken  Name = "imap_refresh_token"
	SMTPPassword      Name = "smtp_password"
	SMTPRefreshToken  Name = "smtp_refresh_token"
	OAuthClientSecret Name = "oauth_client_secret"
	LLMAPIKey         Name = "llm_api_key"
	SearchToken       Name = "search_token"
)

// envFallback lists environment variables checked, in order, when the keychain has nothing.
var envFallback = map[Name][]string{
	IMAPPassword:      {"JOBAPPLY_IMAP_PASSWORD"},
	IMAPRefreshToken:  {"JOBAPPLY_IMAP_REFRESH_TOKEN"},
	SMTPPassword:      {"JOBAPPLY_SMTP_PASSWORD"},
	SMTPRefreshToken:  {"JOBAPPLY_SMTP_REFRESH_TOKEN"},
	OAuthClientSecret: {"JOBAPPLY_OAUTH_CLIENT_SECRET"},
	LLMAPIKey:         {"JOBAPPLY_LLM_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY"},
	SearchToken:       {"JOBAPPLY_SEARCH_TOKEN", "APIFY_API_KEY"},
}

// Parse accepts the names used by the dashboard (imap_password, llm_api_key, ...).
func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := envFallback[n]; !ok {
		return "", fmt.Errorf("unknown secret %q", s)
	}
	return n, nil
}

// Account is the keychain account for a secret; mailbox secrets are keyed per user and host.
func Account(n Name, cfg config.Config) string {
	switch n {
	case IMAPPassword, IMAPRefreshToken:
		return fmt.Sprintf("jobapply:%s:%s@%s", n, cfg.Email.Username, cfg.Email.IMAPHost)
	case SMTPPassword, SMTPRefreshToken:
		return fmt.Sprintf("jobapply:%s:%s@%s", n, cfg.SMTP.Username, cfg.SMTP.Host)
	case LLMAPIKey:
		return fmt.Sprintf("jobapply:%s:%s", n, cfg.Matching.Provider)
	default:
		return "jobapply:" + string(n)
	}
}

// Get reads the keychain first, then the environment.
func Get(n Name, cfg config.Config) (string, error) {
	v, err := keyring.Get(KeyringService, Account(n, cfg))
	if err == nil && strings.TrimSpace(v) != "" {
		return v, nil
	}
	for _, env := range envFallback[n] {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s (set it in the keychain or via %s)", ErrNotFound, n, strings.Join(envFallback[n], "/"))
}

// Lookup is Get without the error, for optional secrets.
func Lookup(n Name, cfg config.Config) string {
	v, _ := Get(n, cfg)
	return v
}

func Set(n Name, cfg config.Config, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(KeyringService, Account(n, cfg), value)
}

func Delete(n Name, cfg config.Config) error {
	err := keyring.Delete(KeyringService, Account(n, cfg))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
