// Package apply runs the Application Workflow: eligibility, cover letter,
// recipient resolution, sending and the resulting status transition.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/mailer"
)

type Store interface {
	History
	GetByID(ctx context.Context, id int64) (domain.Posting, error)
	TransitionStatus(ctx context.Context, id int64, from, to domain.Status, notes string) (bool, error)
	SetContactEmail(ctx context.Context, id int64, email string) error
	SaveCoverLetter(ctx context.Context, postingID int64, body string, pdf []byte) error
}

type Sender interface {
	Send(ctx context.Context, m mailer.Message) error
}

type SendKind int

const (
	Sent SendKind = iota
	NoRecipient
	Failed
	Disabled
)

func (k SendKind) String() string {
	switch k {
	case Sent:
		return "sent"
	case NoRecipient:
		return "no_recipient"
	case Failed:
		return "failed"
	default:
		return "disabled"
	}
}

type SendOutcome struct {
	Kind      SendKind
	Recipient string
	Err       error
}

// Result reports what the workflow did with one posting. Status is empty when nothing changed.
type Result struct {
	PostingID int64
	Decision  Decision
	Send      SendOutcome
	Status    domain.Status
}

type Workflow struct {
	Store   Store
	Writer  Writer
	Sender  Sender
	Profile config.Profile

	AutoApplyEnabled bool

	Now func() time.Time
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Process re-reads the posting and, if eligible, prepares and sends or parks the application.
// Errors are persistence failures; send failures are reported in Result.Send.
func (w *Workflow) Process(ctx context.Context, id int64) (Result, error) {
	res := Result{PostingID: id}

	p, err := w.Store.GetByID(ctx, id)
	if err != nil {
		return res, fmt.Errorf("load posting %d: %w", id, err)
	}

	d, err := Eligible(ctx, w.Store, p)
	if err != nil {
		return res, fmt.Errorf("eligibility %d: %w", id, err)
	}
	res.Decision = d
	if !d.Eligible {
		return res, nil
	}

	letter := w.letter(ctx, p)
	pdf, err := RenderPDF(letter, w.now())
	if err != nil {
		log.Printf("[apply] pdf failed id=%d err=%v", id, err)
	}
	if err := w.Store.SaveCoverLetter(ctx, id, letter, pdf); err != nil {
		return res, err
	}

	res.Send = w.send(ctx, p, letter, pdf)

	if res.Send.Kind == Sent {
		note := fmt.Sprintf("Auto-sent via email on %s", w.now().Format("2006-01-02 15:04"))
		ok, err := w.Store.TransitionStatus(ctx, id, domain.StatusNew, domain.StatusApplied, appendNote(p.Notes, note))
		if err != nil {
			return res, err
		}
		if !ok {
			log.Printf("[apply] sent but status already changed id=%d", id)
			return res, nil
		}
		if err := w.Store.SetContactEmail(ctx, id, res.Send.Recipient); err != nil {
			return res, err
		}
		res.Status = domain.StatusApplied
		log.Printf("[apply] applied id=%d title=%q to=%s", id, p.Title, res.Send.Recipient)
		return res, nil
	}

	if res.Send.Kind == Failed {
		log.Printf("[apply] send failed id=%d to=%s err=%v", id, res.Send.Recipient, res.Send.Err)
	}
	note := "Cover letter ready! Apply manually at job portal: " + p.URL
	ok, err := w.Store.TransitionStatus(ctx, id, domain.StatusNew, domain.StatusReadyToApply, appendNote(p.Notes, note))
	if err != nil {
		return res, err
	}
	if ok {
		res.Status = domain.StatusReadyToApply
		log.Printf("[apply] ready_to_apply id=%d title=%q (%s)", id, p.Title, res.Send.Kind)
	}
	return res, nil
}

func (w *Workflow) letter(ctx context.Context, p domain.Posting) string {
	if w.Writer != nil {
		text, err := w.Writer.Write(ctx, p, w.Profile)
		if err == nil {
			return text
		}
		log.Printf("[apply] writer failed, using template id=%d err=%v", p.ID, err)
	}
	return TemplateLetter(p, w.Profile)
}

func (w *Workflow) send(ctx context.Context, p domain.Posting, letter string, pdf []byte) SendOutcome {
	to := ResolveRecipient(p)
	if !w.AutoApplyEnabled || w.Sender == nil {
		return SendOutcome{Kind: Disabled, Recipient: to}
	}
	if to == "" {
		return SendOutcome{Kind: NoRecipient}
	}

	msg := mailer.Message{
		To:      to,
		Subject: Subject(p, w.Profile),
		Body:    letter,
	}
	if len(pdf) > 0 {
		msg.Attachments = append(msg.Attachments, mailer.Attachment{
			Filename:    PDFFilename(p.Title, p.Employer),
			ContentType: "application/pdf",
			Data:        pdf,
		})
	}
	if cv, ok := readCV(w.Profile.CVPath); ok {
		msg.Attachments = append(msg.Attachments, cv)
	}

	if err := w.Sender.Send(ctx, msg); err != nil {
		return SendOutcome{Kind: Failed, Recipient: to, Err: err}
	}
	return SendOutcome{Kind: Sent, Recipient: to}
}

func readCV(path string) (mailer.Attachment, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return mailer.Attachment{}, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[apply] cv unreadable path=%q err=%v", path, err)
		}
		return mailer.Attachment{}, false
	}
	ct := "application/octet-stream"
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		ct = "application/pdf"
	}
	return mailer.Attachment{Filename: filepath.Base(path), ContentType: ct, Data: b}, true
}

func appendNote(existing, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
