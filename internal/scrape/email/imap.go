package email_scrape

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"jobapply-engine/internal/mailer"
)

// RawMessage is one fetched alert email, still undecoded.
type RawMessage struct {
	UID     imap.UID
	From    string
	Subject string
	Date    time.Time

	// Body is the full RFC822 message, fetched with BODY.PEEK[] so the \Seen flag is left alone.
	Body []byte
}

type IMAPConfig struct {
	Host    string
	Port    int
	Mailbox string
	Auth    mailer.Auth
}

// Dial connects over TLS and authenticates. Password auth uses LOGIN; oauth2 uses
// AUTHENTICATE with an OAUTHBEARER token refreshed from the stored refresh token.
func Dial(ctx context.Context, cfg IMAPConfig) (*imapclient.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("imap host is required")
	}
	if cfg.Auth.Username == "" {
		return nil, errors.New("imap username is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 993
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Best-effort close on context cancel.
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	if cfg.Auth.Mechanism == "oauth2" {
		sc, err := mailer.SASLClient(ctx, cfg.Auth)
		if err == nil {
			err = c.Authenticate(sc)
		}
		if err != nil {
			stop()
			_ = c.Close()
			return nil, fmt.Errorf("imap authenticate: %w", err)
		}
	} else {
		if cfg.Auth.Password == "" {
			stop()
			_ = c.Close()
			return nil, errors.New("imap password is required")
		}
		if err := c.Login(cfg.Auth.Username, cfg.Auth.Password).Wait(); err != nil {
			stop()
			_ = c.Close()
			return nil, fmt.Errorf("imap login: %w", err)
		}
	}
	return c, nil
}

// FetchSince pulls up to max messages received since the cutoff, newest first.
func FetchSince(ctx context.Context, c *imapclient.Client, mailbox string, since time.Time, max int) ([]RawMessage, error) {
	if c == nil {
		return nil, errors.New("imap client is nil")
	}
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if max <= 0 {
		max = 200
	}

	if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	searchData, err := c.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]RawMessage, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		m := RawMessage{UID: buf.UID}
		if buf.Envelope != nil {
			m.Subject = buf.Envelope.Subject
			m.Date = buf.Envelope.Date
			m.From = joinAddrs(buf.Envelope.From)
		}
		if b := buf.FindBodySection(bodyAll); b != nil {
			m.Body = append([]byte(nil), b...)
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

// LogoutAndClose logs out then closes the connection.
func LogoutAndClose(c *imapclient.Client) {
	if c == nil {
		return
	}
	if err := c.Logout().Wait(); err != nil {
		log.Printf("[email] imap logout: %v", err)
	}
	_ = c.Close()
}

func joinAddrs(addrs []imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if addr == "" {
			addr = strings.TrimSpace(a.Name)
		}
		if addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}
