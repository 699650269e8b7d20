// Package mailer submits outgoing applications over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Config struct {
	Host     string
	Port     int
	From     string
	FromName string
	// TLS is "starttls", "implicit" or "none".
	TLS  string
	Auth Auth

	Timeout time.Duration
}

type SMTPSender struct {
	Cfg Config
	Now func() time.Time
}

func New(cfg Config) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &SMTPSender{Cfg: cfg, Now: time.Now}
}

// Send delivers m. A nil error means the server accepted the message.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if m.To == "" {
		return errors.New("send: no recipient")
	}
	if s.Cfg.Host == "" || s.Cfg.From == "" {
		return errors.New("send: smtp host and from address are required")
	}

	var buf bytes.Buffer
	if err := s.compose(&buf, m); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	c, err := s.dial()
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer c.Close()

	timeout := s.Cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	c.CommandTimeout = timeout
	c.SubmissionTimeout = timeout

	sc, err := SASLClient(ctx, s.Cfg.Auth)
	if err != nil {
		return err
	}
	if sc != nil {
		if err := c.Auth(sc); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.SendMail(s.Cfg.From, []string{m.To}, &buf); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(s.Cfg.Host, strconv.Itoa(s.Cfg.Port))
	tc := &tls.Config{ServerName: s.Cfg.Host}
	switch s.Cfg.TLS {
	case "implicit":
		return smtp.DialTLS(addr, tc)
	case "none":
		return smtp.Dial(addr)
	default:
		return smtp.DialStartTLS(addr, tc)
	}
}

func (s *SMTPSender) compose(w io.Writer, m Message) error {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: s.Cfg.FromName, Address: s.Cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: m.To}})
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return err
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return err
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(th)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, m.Body); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return err
	}
	if err := iw.Close(); err != nil {
		return err
	}

	for _, a := range m.Attachments {
		var ah mail.AttachmentHeader
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.SetContentType(ct, nil)
		ah.SetFilename(a.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return err
		}
		if _, err := aw.Write(a.Data); err != nil {
			return err
		}
		if err := aw.Close(); err != nil {
			return err
		}
	}
	return mw.Close()
}
