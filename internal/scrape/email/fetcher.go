package email_scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"jobapply-engine/internal/scrape/types"
)

const SourceName = "email"

// EventStore records which alert emails were already turned into postings.
type EventStore interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, source string) error
}

// Fetcher reads job alert emails over IMAP.
type Fetcher struct {
	IMAP         IMAPConfig
	LookbackDays int
	// FromAny limits parsing to senders containing one of these substrings. Empty means any sender.
	FromAny     []string
	MaxMessages int
	Events      EventStore

	Now func() time.Time
}

func (f *Fetcher) Name() string { return SourceName }

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Fetcher) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	res := types.ScrapeResult{Source: SourceName}

	c, err := Dial(ctx, f.IMAP)
	if err != nil {
		return res, err
	}
	defer LogoutAndClose(c)

	days := f.LookbackDays
	if days <= 0 {
		days = 30
	}
	since := f.now().AddDate(0, 0, -days)

	msgs, err := FetchSince(ctx, c, f.IMAP.Mailbox, since, f.MaxMessages)
	if err != nil {
		return res, err
	}
	return f.Collect(ctx, msgs)
}

// Collect decodes and parses messages not yet processed. The message ids are marked
// processed by the result's Finalize, after their postings were ingested.
func (f *Fetcher) Collect(ctx context.Context, msgs []RawMessage) (types.ScrapeResult, error) {
	res := types.ScrapeResult{Source: SourceName}
	var done []string
	var skipped, unknown int

	for _, raw := range msgs {
		m, err := ParseMessage(raw.Body)
		if err != nil {
			log.Printf("[email] uid=%d decode: %v", raw.UID, err)
			continue
		}
		if m.ID == "" {
			m.ID = fmt.Sprintf("imap:%s:%d", mailboxOrInbox(f.IMAP.Mailbox), raw.UID)
		}
		if m.From == "" {
			m.From = raw.From
		}
		if m.Subject == "" {
			m.Subject = raw.Subject
		}
		if !fromAllowed(m.From, f.FromAny) {
			continue
		}

		if f.Events != nil {
			seen, err := f.Events.EventProcessed(ctx, m.ID)
			if err != nil {
				return res, fmt.Errorf("check event %s: %w", m.ID, err)
			}
			if seen {
				skipped++
				continue
			}
		}

		postings := ParseAlert(m)
		if len(postings) == 0 && Route(m.From, m.Subject, m.Body()) == "" {
			unknown++
		}
		res.Postings = append(res.Postings, postings...)
		done = append(done, m.ID)
	}

	log.Printf("[email] messages=%d already_processed=%d unrecognised=%d postings=%d",
		len(msgs), skipped, unknown, len(res.Postings))

	if f.Events != nil && len(done) > 0 {
		res.Finalize = func(ctx context.Context) error {
			for _, id := range done {
				if err := f.Events.MarkEventProcessed(ctx, id, SourceName); err != nil {
					return fmt.Errorf("mark event %s: %w", id, err)
				}
			}
			return nil
		}
	}
	return res, nil
}

func fromAllowed(from string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	f := strings.ToLower(from)
	for _, a := range allow {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && strings.Contains(f, a) {
			return true
		}
	}
	return false
}

func mailboxOrInbox(m string) string {
	if m == "" {
		return "INBOX"
	}
	return m
}
