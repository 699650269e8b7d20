package batch_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"jobapply-engine/internal/apply"
	"jobapply-engine/internal/batch"
	"jobapply-engine/internal/config"
	"jobapply-engine/internal/csvimport"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/ingest"
	"jobapply-engine/internal/mailer"
	"jobapply-engine/internal/rank"
	"jobapply-engine/internal/scrape/types"
	"jobapply-engine/internal/store"
)

type fakeSource struct {
	name      string
	postings  []domain.RawPosting
	err       error
	finalized atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(context.Context) (types.ScrapeResult, error) {
	if f.err != nil {
		return types.ScrapeResult{}, f.err
	}
	return types.ScrapeResult{
		Postings: f.postings,
		Finalize: func(context.Context) error {
			f.finalized.Add(1)
			return nil
		},
	}, nil
}

type fixedScorer struct{ score int }

func (s fixedScorer) Score(context.Context, domain.Posting, config.Profile) rank.Outcome {
	return rank.Outcome{Kind: rank.Scored, Score: s.score, Analysis: "SCORE fixed"}
}

type fakeSender struct{ sent []mailer.Message }

func (f *fakeSender) Send(_ context.Context, m mailer.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

var desc = strings.Repeat("Foundation phase classroom teaching with a caring team. ", 2)

type harness struct {
	db     *store.DB
	runner *batch.Runner
	sender *fakeSender
	lock   string
}

func newHarness(t *testing.T, score int, sources ...types.Fetcher) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "batch.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sender := &fakeSender{}
	lock := filepath.Join(dir, "batch.lock")
	r := &batch.Runner{
		Store:   db,
		Ingest:  ingest.New(db, ingest.Options{}),
		Matcher: &rank.Stage{Scorer: fixedScorer{score: score}},
		Workflow: &apply.Workflow{
			Store:            db,
			Sender:           sender,
			Profile:          config.Profile{Name: "Jane Teacher", Email: "jane@example.com"},
			AutoApplyEnabled: true,
		},
		Sources:  func() []types.Fetcher { return sources },
		LockPath: lock,
	}
	return &harness{db: db, runner: r, sender: sender, lock: lock}
}

func postingsOf(t *testing.T, db *store.DB) map[string]domain.Posting {
	t.Helper()
	rows, err := db.Query(context.Background(), store.PostingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]domain.Posting{}
	for _, p := range rows {
		out[p.URL] = p
	}
	return out
}

// ── End to end ──

func TestRunBatch_AppliesOrParksByRecipient(t *testing.T) {
	src := &fakeSource{name: "email", postings: []domain.RawPosting{
		{Title: "Foundation Phase Teacher", Employer: "Example Primary", URL: "https://x/1", Description: desc,
			ContactEmail: "office@example.school.nz", SourcePlatform: "Education Gazette NZ"},
		{Title: "Junior Teacher", Employer: "Other School", URL: "https://x/2", Description: desc,
			SourcePlatform: "Seek NZ"},
	}}
	h := newHarness(t, 85, src)
	ctx := context.Background()

	sum, err := h.runner.RunBatch(ctx, "manual")
	if err != nil {
		t.Fatal(err)
	}
	if sum.RunID == "" || sum.Trigger != "manual" {
		t.Errorf("summary id/trigger = %q/%q", sum.RunID, sum.Trigger)
	}
	if sum.Imported != 2 || sum.Scored != 2 || sum.AutoApplied != 1 || sum.ReadyToApply != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(h.sender.sent) != 1 || h.sender.sent[0].To != "office@example.school.nz" {
		t.Fatalf("sent = %+v", h.sender.sent)
	}

	rows := postingsOf(t, h.db)
	if rows["https://x/1"].Status != domain.StatusApplied || rows["https://x/1"].MatchScore != 85 {
		t.Errorf("x/1 = %+v", rows["https://x/1"])
	}
	if rows["https://x/2"].Status != domain.StatusReadyToApply {
		t.Errorf("x/2 status = %s", rows["https://x/2"].Status)
	}
	if src.finalized.Load() != 1 {
		t.Errorf("finalized = %d", src.finalized.Load())
	}

	saved, err := h.db.GetSetting(ctx, batch.SummarySettingKey)
	if err != nil || !strings.Contains(saved, sum.RunID) {
		t.Errorf("saved summary = %q err=%v", saved, err)
	}
	if st := h.runner.Status(); st.Running || st.Last == nil || st.LastOkAt == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunBatch_SecondRunIsIdempotent(t *testing.T) {
	src := &fakeSource{name: "email", postings: []domain.RawPosting{
		{Title: "Foundation Phase Teacher", Employer: "Example Primary", URL: "https://x/1", Description: desc,
			ContactEmail: "office@example.school.nz", SourcePlatform: "Seek NZ"},
	}}
	h := newHarness(t, 85, src)
	ctx := context.Background()

	if _, err := h.runner.RunBatch(ctx, "schedule"); err != nil {
		t.Fatal(err)
	}
	sum, err := h.runner.RunBatch(ctx, "schedule")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Imported != 0 || sum.Skipped != 1 || sum.AutoApplied != 0 {
		t.Fatalf("second summary = %+v", sum)
	}
	if len(h.sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(h.sender.sent))
	}
	if n := len(postingsOf(t, h.db)); n != 1 {
		t.Fatalf("rows = %d", n)
	}
}

func TestRunBatch_LowScoreStaysNew(t *testing.T) {
	src := &fakeSource{name: "search", postings: []domain.RawPosting{
		{Title: "Year 9 Maths Teacher", Employer: "College", URL: "https://x/3", Description: desc,
			ContactEmail: "hr@college.school.nz", SourcePlatform: "LinkedIn"},
	}}
	h := newHarness(t, 40, src)
	sum, err := h.runner.RunBatch(context.Background(), "manual")
	if err != nil {
		t.Fatal(err)
	}
	if sum.AutoApplied != 0 || sum.ReadyToApply != 0 || len(h.sender.sent) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := postingsOf(t, h.db)["https://x/3"]; got.Status != domain.StatusNew || got.MatchScore != 40 {
		t.Fatalf("row = %+v", got)
	}
}

// ── Source failures ──

func TestRunBatch_FailingSourceDoesNotAbort(t *testing.T) {
	bad := &fakeSource{name: "gazette", err: errors.New("site down")}
	good := &fakeSource{name: "email", postings: []domain.RawPosting{
		{Title: "Junior Teacher", Employer: "Other School", URL: "https://x/2", Description: desc, SourcePlatform: "Seek NZ"},
	}}
	h := newHarness(t, 85, bad, good)

	sum, err := h.runner.RunBatch(context.Background(), "manual")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Imported != 1 {
		t.Fatalf("imported = %d", sum.Imported)
	}
	var sawErr bool
	for _, s := range sum.Sources {
		if s.Name == "gazette" && s.Error == "site down" {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatalf("sources = %+v", sum.Sources)
	}
}

// cancellingMatcher cancels the run on its first call.
type cancellingMatcher struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (m *cancellingMatcher) Match(context.Context, domain.Posting) rank.Match {
	m.calls.Add(1)
	m.cancel()
	return rank.Match{}
}

func TestRunBatch_CancelledRunKeepsSourceCounts(t *testing.T) {
	src := &fakeSource{name: "email", postings: []domain.RawPosting{
		{Title: "Foundation Phase Teacher", Employer: "Example Primary", URL: "https://x/1", Description: desc,
			SourcePlatform: "Seek NZ"},
		{Title: "Junior Teacher", Employer: "Other School", URL: "https://x/2", Description: desc,
			SourcePlatform: "Seek NZ"},
	}}
	h := newHarness(t, 85, src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := &cancellingMatcher{cancel: cancel}
	h.runner.Matcher = m

	sum, err := h.runner.RunBatch(ctx, "manual")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum.Imported != 2 {
		t.Fatalf("imported = %d, want 2 (summary %+v)", sum.Imported, sum)
	}
	if got := m.calls.Load(); got != 1 {
		t.Fatalf("matcher calls = %d, want 1", got)
	}
	if got := src.finalized.Load(); got != 0 {
		t.Fatalf("finalized = %d, want 0 after cancel", got)
	}
}

// ── Run lock ──

func TestRunBatch_RefusesWhileLocked(t *testing.T) {
	h := newHarness(t, 85)

	other := flock.New(h.lock)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock ok=%v err=%v", ok, err)
	}
	defer func() { _ = other.Unlock() }()

	if _, err := h.runner.RunBatch(context.Background(), "manual"); !errors.Is(err, batch.ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
	if _, err := h.runner.ImportCSV(context.Background(), strings.NewReader("Title,Employer,Link\nA,B,https://x/9\n")); !errors.Is(err, batch.ErrRunInProgress) {
		t.Fatalf("csv err = %v, want ErrRunInProgress", err)
	}

	_ = other.Unlock()
	if _, err := h.runner.RunBatch(context.Background(), "manual"); err != nil {
		t.Fatalf("after unlock: %v", err)
	}
}

// ── CSV import ──

func TestImportCSV(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	if _, err := h.runner.ImportCSV(ctx, strings.NewReader("Name,URL\nx,y\n")); !errors.Is(err, csvimport.ErrUnrecognizedFormat) {
		t.Fatalf("err = %v", err)
	}

	in := "Title;Employer;Description;Email;Link;Closing\n" +
		"Grade 2 Teacher;Example School;" + desc + ";office@example.school.nz;https://x/10;\n" +
		";Missing Title;;;https://x/11;\n"
	sum, err := h.runner.ImportCSV(ctx, strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Imported != 1 || sum.Invalid != 1 || sum.Skipped != 0 || sum.AutoApplied != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := postingsOf(t, h.db)["https://x/10"]; got.SourcePlatform != csvimport.Platform {
		t.Fatalf("platform = %q", got.SourcePlatform)
	}
}
