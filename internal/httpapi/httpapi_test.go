package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"jobapply-engine/internal/batch"
	"jobapply-engine/internal/config"
	"jobapply-engine/internal/csvimport"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/events"
	"jobapply-engine/internal/quota"
	"jobapply-engine/internal/secrets"
	"jobapply-engine/internal/store"
)

type fakeRunner struct {
	running   bool
	runs      atomic.Int32
	imported  string
	importErr error
}

func (f *fakeRunner) RunBatch(context.Context, string) (batch.Summary, error) {
	f.runs.Add(1)
	return batch.Summary{}, nil
}

func (f *fakeRunner) ImportCSV(_ context.Context, in io.Reader) (batch.Summary, error) {
	if f.importErr != nil {
		return batch.Summary{}, f.importErr
	}
	b, _ := io.ReadAll(in)
	f.imported = string(b)
	return batch.Summary{Trigger: "csv"}, nil
}

func (f *fakeRunner) Status() batch.Status { return batch.Status{Running: f.running} }

type fakeQuota struct{}

func (fakeQuota) Status(context.Context) (quota.Status, error) {
	return quota.Status{MaxSearches: 10, RemainingSearches: 7}, nil
}

type harness struct {
	db      *store.DB
	runner  *fakeRunner
	hub     *events.Hub
	h       http.Handler
	secret  map[secrets.Name]string
	cfgVal  *atomic.Value
	cfgPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfgVal := &atomic.Value{}
	cfgVal.Store(cfg)
	cfgPath := filepath.Join(dir, "config.yml")

	hs := &harness{
		db:      db,
		runner:  &fakeRunner{},
		hub:     events.NewHub(),
		secret:  map[secrets.Name]string{},
		cfgVal:  cfgVal,
		cfgPath: cfgPath,
	}
	mux := NewMux(Deps{
		Store:       db,
		Hub:         hs.hub,
		Batch:       hs.runner,
		Quota:       fakeQuota{},
		CfgVal:      cfgVal,
		UserCfgPath: cfgPath,
		LoadCfg:     func() (config.Config, error) { return config.Load(cfgPath) },
		SetSecret: func(n secrets.Name, _ config.Config, v string) error {
			hs.secret[n] = v
			return nil
		},
	})
	hs.h = Chain(mux, RequestID, Recover, Cors)
	return hs
}

func (hs *harness) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func (hs *harness) insert(t *testing.T, p domain.Posting) int64 {
	t.Helper()
	id, ok, err := hs.db.Insert(context.Background(), p)
	if err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	return id
}

func posting(title, employer, url, platform string, score int) domain.Posting {
	return domain.Posting{
		Title: title, Employer: employer, URL: url, SourcePlatform: platform,
		Location: "Auckland", Description: "desc", MatchScore: score,
	}
}

// ── Postings ───────────────────────────────────────────────────────────────

func TestListPostings_Filters(t *testing.T) {
	hs := newHarness(t)
	hs.insert(t, posting("Primary Teacher", "Kauri School", "https://a.example/1", "Seek NZ", 80))
	hs.insert(t, posting("Maths Teacher", "Rimu College", "https://a.example/2", "LinkedIn", 40))

	tests := []struct {
		name  string
		query string
		want  int
		code  int
	}{
		{"all", "", 2, http.StatusOK},
		{"platform", "?platform=LinkedIn", 1, http.StatusOK},
		{"min score", "?min_score=70", 1, http.StatusOK},
		{"text", "?q=kauri", 1, http.StatusOK},
		{"status", "?status=new", 2, http.StatusOK},
		{"limit", "?limit=1", 1, http.StatusOK},
		{"bad status", "?status=bogus", 0, http.StatusBadRequest},
		{"bad score", "?min_score=101", 0, http.StatusBadRequest},
		{"bad limit", "?limit=0", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hs.do(t, http.MethodGet, "/postings"+tt.query, nil, "")
			if rec.Code != tt.code {
				t.Fatalf("code = %d body=%s", rec.Code, rec.Body)
			}
			if tt.code != http.StatusOK {
				return
			}
			var got []domain.Posting
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d postings, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGetPosting(t *testing.T) {
	hs := newHarness(t)
	id := hs.insert(t, posting("Primary Teacher", "Kauri School", "https://a.example/1", "Seek NZ", 80))

	if rec := hs.do(t, http.MethodGet, "/postings/"+itoa(id), nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec := hs.do(t, http.MethodGet, "/postings/999", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing code = %d", rec.Code)
	}
	if rec := hs.do(t, http.MethodGet, "/postings/abc", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id code = %d", rec.Code)
	}
}

func TestPatchPosting_Transitions(t *testing.T) {
	hs := newHarness(t)
	id := hs.insert(t, posting("Primary Teacher", "Kauri School", "https://a.example/1", "Seek NZ", 80))
	ch := hs.hub.Subscribe()
	defer hs.hub.Unsubscribe(ch)

	patch := func(body string) *httptest.ResponseRecorder {
		return hs.do(t, http.MethodPatch, "/postings/"+itoa(id), strings.NewReader(body), "application/json")
	}

	if rec := patch(`{"status":"interview"}`); rec.Code != http.StatusConflict {
		t.Fatalf("new→interview code = %d", rec.Code)
	}
	rec := patch(`{"status":"applied","notes":"Phoned the principal"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("new→applied code = %d body=%s", rec.Code, rec.Body)
	}
	var p domain.Posting
	_ = json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Status != domain.StatusApplied || p.Notes != "Phoned the principal" || p.ApplicationDate == nil {
		t.Fatalf("posting = %+v", p)
	}
	if msg := <-ch; !strings.Contains(msg, events.TypePostingUpdated) {
		t.Fatalf("event = %s", msg)
	}

	if rec := patch(`{"notes":"Interview Friday"}`); rec.Code != http.StatusOK {
		t.Fatalf("notes-only code = %d", rec.Code)
	}
	if rec := patch(`{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch code = %d", rec.Code)
	}
	if rec := patch(`{"status":"hired"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status code = %d", rec.Code)
	}
}

// racingStore moves the posting to ready_to_apply right after the handler reads it,
// the way a batch run can between the read and the write.
type racingStore struct {
	*store.DB
	raced bool
}

func (s *racingStore) GetByID(ctx context.Context, id int64) (domain.Posting, error) {
	p, err := s.DB.GetByID(ctx, id)
	if err == nil && !s.raced {
		s.raced = true
		if _, err := s.DB.TransitionStatus(ctx, id, domain.StatusNew, domain.StatusReadyToApply, "queued by batch"); err != nil {
			return p, err
		}
	}
	return p, err
}

func TestPatchPosting_ConcurrentTransitionConflicts(t *testing.T) {
	hs := newHarness(t)
	ph := PostingsHandler{Store: &racingStore{DB: hs.db}}

	for i, body := range []string{`{"status":"dismissed"}`, `{"notes":"call back"}`} {
		id := hs.insert(t, posting("Primary Teacher", "Kauri School", "https://a.example/"+strconv.Itoa(i), "Seek NZ", 80))
		ph.Store.(*racingStore).raced = false

		req := httptest.NewRequest(http.MethodPatch, "/postings/"+itoa(id), strings.NewReader(body))
		rec := httptest.NewRecorder()
		ph.Patch(rec, req)
		if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "status_changed") {
			t.Fatalf("%s: code = %d body=%s", body, rec.Code, rec.Body)
		}

		got, err := hs.db.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.StatusReadyToApply || got.Notes != "queued by batch" {
			t.Fatalf("%s: posting = status %s notes %q, want the batch write kept", body, got.Status, got.Notes)
		}
	}
}

func TestStats(t *testing.T) {
	hs := newHarness(t)
	hs.insert(t, posting("Primary Teacher", "Kauri School", "https://a.example/1", "Seek NZ", 80))

	rec := hs.do(t, http.MethodGet, "/stats", nil, "")
	var st store.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Total != 1 || st.New != 1 || st.HighMatch != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCoverLetter(t *testing.T) {
	hs := newHarness(t)
	id := hs.insert(t, posting("Primary Teacher", "Kauri School", "https://a.example/1", "Seek NZ", 80))

	if rec := hs.do(t, http.MethodGet, "/cover-letters/"+itoa(id), nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("before save code = %d", rec.Code)
	}
	if err := hs.db.SaveCoverLetter(context.Background(), id, "Dear Hiring Manager", []byte("%PDF-1.3")); err != nil {
		t.Fatal(err)
	}

	rec := hs.do(t, http.MethodGet, "/cover-letters/"+itoa(id), nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf code=%d ct=%s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "CoverLetter_Kauri_School") {
		t.Fatalf("disposition = %s", rec.Header().Get("Content-Disposition"))
	}

	rec = hs.do(t, http.MethodGet, "/cover-letters/"+itoa(id)+"?format=text", nil, "")
	if rec.Body.String() != "Dear Hiring Manager" {
		t.Fatalf("text = %q", rec.Body.String())
	}
}

// ── Batch / import / quota ─────────────────────────────────────────────────

func TestBatchRun(t *testing.T) {
	hs := newHarness(t)

	if rec := hs.do(t, http.MethodPost, "/batch/run", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d", rec.Code)
	}
	hs.runner.running = true
	if rec := hs.do(t, http.MethodPost, "/batch/run", nil, ""); rec.Code != http.StatusConflict {
		t.Fatalf("running code = %d", rec.Code)
	}
	rec := hs.do(t, http.MethodGet, "/batch/status", nil, "")
	if !strings.Contains(rec.Body.String(), `"running":true`) {
		t.Fatalf("status = %s", rec.Body)
	}
	if rec := hs.do(t, http.MethodGet, "/batch/run", nil, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code = %d", rec.Code)
	}
}

func TestImportCSV(t *testing.T) {
	const csvBody = "Title,Employer,Link\nTeacher,Kauri School,https://x.example/1\n"

	t.Run("raw body", func(t *testing.T) {
		hs := newHarness(t)
		rec := hs.do(t, http.MethodPost, "/import/csv", strings.NewReader(csvBody), "text/csv")
		if rec.Code != http.StatusOK || hs.runner.imported != csvBody {
			t.Fatalf("code=%d imported=%q", rec.Code, hs.runner.imported)
		}
	})

	t.Run("multipart", func(t *testing.T) {
		hs := newHarness(t)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", "jobs.csv")
		_, _ = fw.Write([]byte(csvBody))
		_ = mw.Close()

		rec := hs.do(t, http.MethodPost, "/import/csv", &buf, mw.FormDataContentType())
		if rec.Code != http.StatusOK || hs.runner.imported != csvBody {
			t.Fatalf("code=%d imported=%q", rec.Code, hs.runner.imported)
		}
	})

	t.Run("errors", func(t *testing.T) {
		for err, code := range map[error]int{
			csvimport.ErrUnrecognizedFormat: http.StatusBadRequest,
			batch.ErrRunInProgress:          http.StatusConflict,
		} {
			hs := newHarness(t)
			hs.runner.importErr = err
			if rec := hs.do(t, http.MethodPost, "/import/csv", strings.NewReader("x"), "text/csv"); rec.Code != code {
				t.Fatalf("%v: code = %d, want %d", err, rec.Code, code)
			}
		}
	})
}

func TestQuota(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "/quota", nil, "")
	var st quota.Status
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.RemainingSearches != 7 {
		t.Fatalf("quota = %+v", st)
	}
}

// ── Config / secrets ───────────────────────────────────────────────────────

func TestConfigPutValidatesAndReloads(t *testing.T) {
	hs := newHarness(t)

	cfg := hs.cfgVal.Load().(config.Config)
	cfg.Matching.Provider = "nonsense"
	b, _ := json.Marshal(cfg)
	if rec := hs.do(t, http.MethodPut, "/config", bytes.NewReader(b), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid config code = %d", rec.Code)
	}

	cfg.Matching.Provider = "openai"
	cfg.Profile.Name = "Aroha Ngata"
	b, _ = json.Marshal(cfg)
	rec := hs.do(t, http.MethodPut, "/config", bytes.NewReader(b), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body)
	}
	if got := hs.cfgVal.Load().(config.Config).Profile.Name; got != "Aroha Ngata" {
		t.Fatalf("live config name = %q", got)
	}

	rec = hs.do(t, http.MethodGet, "/config/path", nil, "")
	if !strings.Contains(rec.Body.String(), "config.yml") {
		t.Fatalf("path = %s", rec.Body)
	}
}

func TestSetSecret(t *testing.T) {
	hs := newHarness(t)

	rec := hs.do(t, http.MethodPost, "/api/secrets/imap_password", strings.NewReader(`{"value":"hunter2"}`), "application/json")
	if rec.Code != http.StatusNoContent || hs.secret[secrets.IMAPPassword] != "hunter2" {
		t.Fatalf("code=%d stored=%v", rec.Code, hs.secret)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatal("secret echoed")
	}
	if rec := hs.do(t, http.MethodPost, "/api/secrets/root", strings.NewReader(`{"value":"x"}`), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown secret code = %d", rec.Code)
	}
}

// ── Middleware ─────────────────────────────────────────────────────────────

func TestCorsOnlyForLocalOrigins(t *testing.T) {
	hs := newHarness(t)
	for origin, allowed := range map[string]bool{
		"tauri://localhost":        true,
		"http://localhost:5173":    true,
		"http://127.0.0.1:38471":   true,
		"https://evil.example.com": false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/postings", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		hs.h.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin") != ""; got != allowed {
			t.Errorf("%s: allowed=%v, want %v", origin, got, allowed)
		}
		if rec.Code != http.StatusNoContent {
			t.Errorf("%s: preflight code = %d", origin, rec.Code)
		}
	}
}

func TestRecoverReturnsJSONError(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), RequestID, Recover)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var e APIError
	_ = json.Unmarshal(rec.Body.Bytes(), &e)
	if rec.Code != http.StatusInternalServerError || e.Error.Code != "internal_error" || e.Error.RequestID == "" {
		t.Fatalf("code=%d err=%+v", rec.Code, e)
	}
}

func TestCheckpointLoopbackOnly(t *testing.T) {
	hs := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/db/checkpoint", nil)
	req.RemoteAddr = "10.0.0.5:5555"
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote code = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/db/checkpoint", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("loopback code = %d body=%s", rec.Code, rec.Body)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
