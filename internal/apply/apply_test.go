package apply_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobapply-engine/internal/apply"
	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/mailer"
	"jobapply-engine/internal/store"
)

type fakeSender struct {
	err  error
	sent []mailer.Message
}

func (f *fakeSender) Send(_ context.Context, m mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeWriter struct {
	text string
	err  error
}

func (f fakeWriter) Write(context.Context, domain.Posting, config.Profile) (string, error) {
	return f.text, f.err
}

var testNow = time.Date(2025, 4, 10, 14, 5, 0, 0, time.Local)

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "apply.db"))
	if err != nil {
		t.Fatal(err)
	}
	db.Now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func workflow(db *store.DB, s *fakeSender) *apply.Workflow {
	return &apply.Workflow{
		Store:            db,
		Writer:           fakeWriter{text: "Dear Hiring Manager,\n\nI am applying."},
		Sender:           s,
		Profile:          config.Profile{Name: "Jane Teacher", Email: "jane@example.com"},
		AutoApplyEnabled: true,
		Now:              func() time.Time { return testNow },
	}
}

// seed inserts a scored posting and returns its id.
func seed(t *testing.T, db *store.DB, title, employer, url, email, desc string, score int) int64 {
	t.Helper()
	ctx := context.Background()
	id, ok, err := db.Insert(ctx, domain.Posting{
		Title: title, Employer: employer, URL: url, ContactEmail: email, Description: desc,
		Location: "New Zealand", SourcePlatform: "Seek NZ", Status: domain.StatusNew,
	})
	if err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	if err := db.SetScore(ctx, id, score, "test"); err != nil {
		t.Fatal(err)
	}
	return id
}

// ── Eligibility ────────────────────────────────────────────────────────────

func TestEligible_StatusAndScoreMonotonic(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	statuses := []domain.Status{
		domain.StatusAutoRejected, domain.StatusReadyToApply, domain.StatusApplied,
		domain.StatusDismissed, domain.StatusInterview,
	}
	for _, st := range statuses {
		p := domain.Posting{ID: 99, Title: "T", Employer: "E", URL: "u", Status: st, MatchScore: 100}
		d, err := apply.Eligible(ctx, db, p)
		if err != nil || d.Eligible {
			t.Errorf("status %s: eligible=%v err=%v", st, d.Eligible, err)
		}
	}
	for _, score := range []int{0, 50, 69} {
		p := domain.Posting{ID: 99, Title: "T", Employer: "E", URL: "u", Status: domain.StatusNew, MatchScore: score}
		d, _ := apply.Eligible(ctx, db, p)
		if d.Eligible {
			t.Errorf("score %d eligible", score)
		}
	}
	d, _ := apply.Eligible(ctx, db, domain.Posting{ID: 99, Title: "T", Employer: "E", URL: "u", Status: domain.StatusNew, MatchScore: 70})
	if !d.Eligible {
		t.Errorf("score 70 not eligible: %s", d.Reason)
	}
}

func TestEligible_SameTitleEmployerDifferentURL(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)

	first := seed(t, db, "Grade 2 Teacher", "Example School", "https://x/1", "", "", 90)
	if _, err := db.TransitionStatus(ctx, first, domain.StatusNew, domain.StatusApplied, ""); err != nil {
		t.Fatal(err)
	}
	second := seed(t, db, "grade 2 teacher", "EXAMPLE SCHOOL", "https://y/2", "office@example.school.nz", "", 95)

	p, _ := db.GetByID(ctx, second)
	d, err := apply.Eligible(ctx, db, p)
	if err != nil {
		t.Fatal(err)
	}
	if d.Eligible {
		t.Fatal("duplicate title/employer was eligible")
	}

	s := &fakeSender{}
	res, err := workflow(db, s).Process(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 0 || res.Status != "" {
		t.Errorf("duplicate was processed: %+v", res)
	}
}

func TestEligible_ContactDailyLimit(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	s := &fakeSender{}
	wf := workflow(db, s)

	ids := []int64{
		seed(t, db, "Year 1 Teacher", "Hill School", "https://x/1", "office@hill.school.nz", "", 80),
		seed(t, db, "Year 3 Teacher", "Hill School", "https://x/2", "office@hill.school.nz", "", 80),
		seed(t, db, "Year 5 Teacher", "Hill School", "https://x/3", "office@hill.school.nz", "", 80),
	}
	var applied int
	for _, id := range ids {
		res, err := wf.Process(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status == domain.StatusApplied {
			applied++
		}
	}
	if applied != apply.MaxPerContactPerDay {
		t.Errorf("applied = %d, want %d", applied, apply.MaxPerContactPerDay)
	}
	last, _ := db.GetByID(ctx, ids[2])
	if last.Status != domain.StatusNew {
		t.Errorf("third posting status = %q, want untouched new", last.Status)
	}
}

// ── Recipient ──────────────────────────────────────────────────────────────

func TestResolveRecipient(t *testing.T) {
	tests := []struct {
		name, contact, desc, want string
	}{
		{"contact field wins", "HR@School.nz", "email jobs@other.nz", "hr@school.nz"},
		{"from description", "", "Send CV to principal@hill.school.nz by Friday.", "principal@hill.school.nz"},
		{"first match", "", "a@one.co.nz or b@two.co.nz", "a@one.co.nz"},
		{"placeholder contact", "N/A", "no email here", ""},
		{"none", "", "Apply online.", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := apply.ResolveRecipient(domain.Posting{ContactEmail: tc.contact, Description: tc.desc})
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// ── Process ────────────────────────────────────────────────────────────────

func TestProcess_EndToEnd(t *testing.T) {
	tests := []struct {
		name       string
		contact    string
		desc       string
		wantStatus domain.Status
		wantSent   int
		wantNote   string
	}{
		{"contact email present", "office@example.primary.nz", "Great school.", domain.StatusApplied, 1, "Auto-sent via email on 2025-04-10 14:05"},
		{"email in description", "", "Apply to jobs@example.primary.nz", domain.StatusApplied, 1, "Auto-sent via email"},
		{"no contact", "", "Apply via the portal.", domain.StatusReadyToApply, 0, "Cover letter ready! Apply manually at job portal: https://x/1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			db := openStore(t)
			s := &fakeSender{}
			id := seed(t, db, "Foundation Phase Teacher", "Example Primary", "https://x/1", tc.contact, tc.desc, 85)

			res, err := workflow(db, s).Process(ctx, id)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if res.Status != tc.wantStatus || len(s.sent) != tc.wantSent {
				t.Fatalf("status=%q sent=%d, want %q %d", res.Status, len(s.sent), tc.wantStatus, tc.wantSent)
			}

			got, _ := db.GetByID(ctx, id)
			if got.Status != tc.wantStatus {
				t.Errorf("stored status = %q", got.Status)
			}
			if !strings.Contains(got.Notes, tc.wantNote) {
				t.Errorf("notes = %q, want %q", got.Notes, tc.wantNote)
			}
			if tc.wantStatus == domain.StatusApplied {
				if got.ApplicationDate == nil {
					t.Error("application_date not stamped")
				}
				if got.ContactEmail != res.Send.Recipient {
					t.Errorf("contact_email = %q, want %q", got.ContactEmail, res.Send.Recipient)
				}
				m := s.sent[0]
				if m.Subject != "Application for Foundation Phase Teacher - Jane Teacher" {
					t.Errorf("subject = %q", m.Subject)
				}
				if len(m.Attachments) != 1 || m.Attachments[0].ContentType != "application/pdf" {
					t.Errorf("attachments = %+v", m.Attachments)
				}
			} else if got.ApplicationDate != nil {
				t.Error("application_date set for ready_to_apply")
			}

			cl, err := db.GetCoverLetter(ctx, id)
			if err != nil || !strings.Contains(cl.Body, "I am applying.") || len(cl.PDF) == 0 {
				t.Errorf("cover letter = %+v err=%v", cl, err)
			}
		})
	}
}

func TestProcess_SendFailureDowngrades(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	s := &fakeSender{err: errors.New("550 mailbox unavailable")}
	id := seed(t, db, "T", "E", "https://x/1", "hr@e.nz", "", 90)

	res, err := workflow(db, s).Process(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.Send.Kind != apply.Failed || res.Status != domain.StatusReadyToApply {
		t.Errorf("result = %+v", res)
	}
	got, _ := db.GetByID(ctx, id)
	if got.Status != domain.StatusReadyToApply || got.ApplicationDate != nil {
		t.Errorf("stored = %q app_date=%v", got.Status, got.ApplicationDate)
	}
}

func TestProcess_DisabledParksApplication(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	s := &fakeSender{}
	wf := workflow(db, s)
	wf.AutoApplyEnabled = false
	id := seed(t, db, "T", "E", "https://x/1", "hr@e.nz", "", 90)

	res, err := wf.Process(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.Send.Kind != apply.Disabled || res.Status != domain.StatusReadyToApply || len(s.sent) != 0 {
		t.Errorf("result = %+v sent=%d", res, len(s.sent))
	}
}

func TestProcess_WriterFailureUsesTemplate(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	wf := workflow(db, &fakeSender{})
	wf.Writer = fakeWriter{err: errors.New("rate limited")}
	id := seed(t, db, "Grade 2 Teacher", "Example School", "https://x/1", "", "", 90)

	if _, err := wf.Process(ctx, id); err != nil {
		t.Fatal(err)
	}
	cl, err := db.GetCoverLetter(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cl.Body, "Grade 2 Teacher position at Example School") ||
		!strings.Contains(cl.Body, "Jane Teacher") {
		t.Errorf("template letter = %q", cl.Body)
	}
}

func TestProcess_NotReconsidered(t *testing.T) {
	ctx := context.Background()
	db := openStore(t)
	s := &fakeSender{}
	wf := workflow(db, s)
	id := seed(t, db, "T", "E", "https://x/1", "", "", 90)

	if _, err := wf.Process(ctx, id); err != nil {
		t.Fatal(err)
	}
	res, err := wf.Process(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision.Eligible || res.Status != "" {
		t.Errorf("ready_to_apply posting was reconsidered: %+v", res)
	}
}

func TestRenderPDF(t *testing.T) {
	b, err := apply.RenderPDF("Dear team,\n\n“Quoted” – café\n\nKind regards", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "%PDF-") {
		t.Errorf("output does not look like a PDF: %q", b[:min(len(b), 8)])
	}
	if got := apply.PDFFilename("Grade 2 Teacher!", "Example School"); got != "CoverLetter_Example_School_Grade_2_Teacher.pdf" {
		t.Errorf("filename = %q", got)
	}
}
