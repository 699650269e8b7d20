package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MinDescriptionChars is the minimum-content threshold. A stored description shorter than this
	// is upgraded by a longer incoming one, and a posting below it is enriched before scoring.
	MinDescriptionChars = 50

	// MaxDescriptionChars caps stored description text.
	MaxDescriptionChars = 5000

	DefaultEmployer = "Unknown Company"
	DefaultLocation = "New Zealand"

	// SyntheticURLPrefix marks identities generated for postings without a URL.
	SyntheticURLPrefix = "urn:posting:"
)

var ErrInvalidPosting = errors.New("invalid posting")

// RawPosting is what a source adapter hands to the pipeline. Nothing is guaranteed present.
type RawPosting struct {
	Title          string
	Employer       string
	URL            string
	Description    string
	SourcePlatform string
	Location       string
	PostedDate     string
	ClosingDate    string
	SalaryInfo     string
	ContactEmail   string

	// EventID is the source event (e.g. email message id) the posting came from.
	EventID string
	// SourceID is a platform-native id when the source has one (linkedin:123).
	SourceID string
}

// Posting is the normalized record stored by the Posting Store.
type Posting struct {
	ID              int64      `json:"id"`
	Title           string     `json:"job_title"`
	Employer        string     `json:"company_name"`
	Location        string     `json:"location"`
	Description     string     `json:"description"`
	URL             string     `json:"job_url"`
	PostedDate      string     `json:"posted_date"`
	ClosingDate     string     `json:"closing_date"`
	SourcePlatform  string     `json:"source_platform"`
	SalaryInfo      string     `json:"salary_info"`
	ContactEmail    string     `json:"contact_email"`
	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejection_reason"`
	MatchScore      int        `json:"match_score"`
	AIAnalysis      string     `json:"ai_analysis"`
	ApplicationDate *time.Time `json:"application_date,omitempty"`
	Notes           string     `json:"notes"`
	EventID         string     `json:"email_id"`
	SourceID        string     `json:"raw_source_id"`
	ReceivedAt      time.Time  `json:"received_at"`
}

// ScoredPosting is a posting plus the Matching Stage verdict.
type ScoredPosting struct {
	Posting
	Score    int
	Analysis string
	// Scored is false when the scorer was unavailable or its answer unusable.
	Scored bool
}

// NormalizeOptions carries the source-appropriate defaults.
type NormalizeOptions struct {
	DefaultLocation string
	DefaultEmployer string
	Now             time.Time
}

// Normalize validates a raw record and converts it into a Posting with status new.
// Title and source platform are required; a missing URL gets a synthetic identity.
func Normalize(raw RawPosting, opts NormalizeOptions) (Posting, error) {
	title := cleanSpaces(raw.Title)
	if title == "" {
		return Posting{}, fmt.Errorf("%w: missing title", ErrInvalidPosting)
	}
	platform := cleanSpaces(raw.SourcePlatform)
	if platform == "" {
		return Posting{}, fmt.Errorf("%w: missing source platform", ErrInvalidPosting)
	}

	employer := cleanSpaces(raw.Employer)
	if employer == "" {
		employer = firstNonEmpty(opts.DefaultEmployer, DefaultEmployer)
	}
	location := cleanSpaces(raw.Location)
	if location == "" {
		location = firstNonEmpty(opts.DefaultLocation, DefaultLocation)
	}

	u := strings.TrimSpace(raw.URL)
	if u == "" {
		u = SyntheticURL(title, employer, platform)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	return Posting{
		Title:          title,
		Employer:       employer,
		Location:       location,
		Description:    Clip(strings.TrimSpace(raw.Description), MaxDescriptionChars),
		URL:            u,
		PostedDate:     strings.TrimSpace(raw.PostedDate),
		ClosingDate:    strings.TrimSpace(raw.ClosingDate),
		SourcePlatform: platform,
		SalaryInfo:     strings.TrimSpace(raw.SalaryInfo),
		ContactEmail:   NormalizeEmail(raw.ContactEmail),
		Status:         StatusNew,
		EventID:        strings.TrimSpace(raw.EventID),
		SourceID:       strings.TrimSpace(raw.SourceID),
		ReceivedAt:     now.UTC(),
	}, nil
}

// SyntheticURL builds a stable identity for postings that arrive without a URL.
func SyntheticURL(title, employer, platform string) string {
	key := strings.ToLower(cleanSpaces(title)) + "|" + strings.ToLower(cleanSpaces(employer)) + "|" + strings.ToLower(cleanSpaces(platform))
	sum := sha1.Sum([]byte(key))
	return SyntheticURLPrefix + hex.EncodeToString(sum[:])
}

// HasSyntheticURL reports whether the posting has no real URL.
func (p Posting) HasSyntheticURL() bool {
	return strings.HasPrefix(p.URL, SyntheticURLPrefix)
}

// NormalizeEmail returns a lowercased address or "" for placeholders like "N/A".
func NormalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "mailto:")
	if s == "" || strings.EqualFold(s, "n/a") || !strings.Contains(s, "@") {
		return ""
	}
	return strings.ToLower(s)
}

// Clip truncates s to at most max bytes without splitting a UTF-8 sequence.
func Clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

func cleanSpaces(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
