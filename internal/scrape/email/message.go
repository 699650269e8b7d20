package email_scrape

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is a decoded alert email.
type Message struct {
	ID      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Body returns the HTML part when present, else the plain text.
func (m Message) Body() string {
	if strings.TrimSpace(m.HTML) != "" {
		return m.HTML
	}
	return m.Text
}

// ParseMessage decodes headers (RFC 2047 words included), transfer encodings and charsets,
// keeping the first text/plain and text/html inline parts. Attachments are skipped.
func ParseMessage(raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var m Message
	h := mr.Header
	m.ID, _ = h.MessageID()
	m.Subject, _ = h.Subject()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		addrs := make([]string, 0, len(from))
		for _, a := range from {
			addrs = append(addrs, a.Address)
		}
		m.From = strings.Join(addrs, ", ")
	} else {
		m.From = h.Get("From")
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return m, fmt.Errorf("read part: %w", err)
		}

		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		switch ct {
		case "text/plain":
			if m.Text != "" {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return m, fmt.Errorf("read text part: %w", err)
			}
			m.Text = string(b)
		case "text/html":
			if m.HTML != "" {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return m, fmt.Errorf("read html part: %w", err)
			}
			m.HTML = string(b)
		}
	}
	return m, nil
}
