// Package batch runs one ingestion pass: fetch every enabled source, ingest, match and
// hand new postings to the application workflow. At most one pass runs at a time.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobapply-engine/internal/apply"
	"jobapply-engine/internal/csvimport"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/events"
	"jobapply-engine/internal/ingest"
	"jobapply-engine/internal/rank"
	"jobapply-engine/internal/scrape/types"
)

const SummarySettingKey = "last_batch_summary"

var ErrRunInProgress = errors.New("batch run already in progress")

type Store interface {
	SetScore(ctx context.Context, id int64, score int, analysis string) error
	UpdateDescription(ctx context.Context, id int64, description string) error
	SetSetting(ctx context.Context, key, value string) error
}

type Ingester interface {
	Ingest(ctx context.Context, raws []domain.RawPosting, fallback bool) ingest.Report
}

type Matcher interface {
	Match(ctx context.Context, p domain.Posting) rank.Match
}

type Applier interface {
	Process(ctx context.Context, id int64) (apply.Result, error)
}

// Runner wires the pipeline stages. Sources is called at the start of every run so
// config edits take effect without a restart.
type Runner struct {
	Store    Store
	Ingest   Ingester
	Matcher  Matcher
	Workflow Applier
	Sources  func() []types.Fetcher

	LockPath string
	Timeouts map[string]time.Duration

	// OnEvent, when set, receives run lifecycle notifications for the dashboard.
	OnEvent func(typ string, data any)

	Now func() time.Time

	running atomic.Bool
	status  atomic.Value // Status
}

type SourceSummary struct {
	Name     string `json:"name"`
	Postings int    `json:"postings"`
	Error    string `json:"error,omitempty"`
}

type Summary struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ingest.Report

	// Invalid counts uploaded CSV rows dropped for a missing title or link.
	Invalid int `json:"invalid"`

	Scored       int  `json:"scored"`
	Unscored     int  `json:"unscored"`
	AutoApplied  int  `json:"auto_applied"`
	ReadyToApply int  `json:"ready_to_apply"`
	SendFailed   int  `json:"send_failed"`
	QuotaStopped bool `json:"quota_stopped"`

	Sources []SourceSummary `json:"sources"`
}

// Status is the in-memory view of the latest run.
type Status struct {
	Running   bool     `json:"running"`
	LastRunAt string   `json:"last_run_at"`
	LastOkAt  string   `json:"last_ok_at"`
	LastError string   `json:"last_error"`
	Last      *Summary `json:"last,omitempty"`
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) Status() Status {
	st, _ := r.status.Load().(Status)
	st.Running = r.running.Load()
	return st
}

func (r *Runner) emit(typ string, data any) {
	if r.OnEvent != nil {
		r.OnEvent(typ, data)
	}
}

// lock takes the in-process guard and the cross-process file lock.
func (r *Runner) lock() (func(), error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	if r.LockPath == "" {
		return func() { r.running.Store(false) }, nil
	}
	fl := flock.New(r.LockPath)
	ok, err := fl.TryLock()
	if err != nil {
		r.running.Store(false)
		return nil, fmt.Errorf("batch lock: %w", err)
	}
	if !ok {
		r.running.Store(false)
		return nil, ErrRunInProgress
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Printf("[batch] unlock: %v", err)
		}
		r.running.Store(false)
	}, nil
}

func (r *Runner) begin(trigger string) *Summary {
	s := &Summary{RunID: uuid.NewString(), Trigger: trigger, StartedAt: r.now()}
	st := r.Status()
	st.LastRunAt = s.StartedAt.Format(time.RFC3339)
	r.status.Store(st)
	log.Printf("[batch] run=%s trigger=%s started", s.RunID, trigger)
	r.emit(events.TypeBatchStarted, map[string]string{"run_id": s.RunID, "trigger": trigger})
	return s
}

func (r *Runner) finish(ctx context.Context, s *Summary, runErr error) {
	s.FinishedAt = r.now()

	st := r.Status()
	st.Last = s
	if runErr != nil {
		st.LastError = runErr.Error()
	} else {
		st.LastError = ""
		st.LastOkAt = s.FinishedAt.Format(time.RFC3339)
	}
	r.status.Store(st)

	if b, err := json.Marshal(s); err == nil && r.Store != nil {
		if err := r.Store.SetSetting(ctx, SummarySettingKey, string(b)); err != nil {
			log.Printf("[batch] save summary: %v", err)
		}
	}
	log.Printf("[batch] run=%s done imported=%d updated=%d skipped=%d excluded=%d rejected=%d failed=%d invalid=%d scored=%d applied=%d ready=%d quota_stopped=%v",
		s.RunID, s.Imported, s.Updated, s.Skipped, s.Excluded, s.Rejected, s.Failed, s.Invalid,
		s.Scored, s.AutoApplied, s.ReadyToApply, s.QuotaStopped)
	r.emit(events.TypeBatchFinished, s)
}

// RunBatch fetches all sources in parallel, then processes their postings one source at a time.
// A failing source contributes zero postings; it never aborts the run.
func (r *Runner) RunBatch(ctx context.Context, trigger string) (Summary, error) {
	unlock, err := r.lock()
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	s := r.begin(trigger)
	results := r.fetchAll(ctx)
	for _, res := range results {
		r.process(ctx, s, res)
	}
	r.finish(ctx, s, ctx.Err())
	return *s, ctx.Err()
}

// ImportCSV runs an uploaded spreadsheet through the same stages under the same lock.
// Malformed input is rejected before any row is processed.
func (r *Runner) ImportCSV(ctx context.Context, in io.Reader) (Summary, error) {
	parsed, err := csvimport.Parse(in)
	if err != nil {
		return Summary{}, err
	}

	unlock, err := r.lock()
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	s := r.begin("csv")
	r.process(ctx, s, types.ScrapeResult{
		Source:        "csv",
		Postings:      parsed.Postings,
		FallbackMatch: true,
	})
	s.Invalid += parsed.Skipped
	r.finish(ctx, s, ctx.Err())
	return *s, ctx.Err()
}

func (r *Runner) timeout(name string) time.Duration {
	if d, ok := r.Timeouts[name]; ok && d > 0 {
		return d
	}
	return 5 * time.Minute
}

func (r *Runner) fetchAll(ctx context.Context) []types.ScrapeResult {
	var fetchers []types.Fetcher
	if r.Sources != nil {
		fetchers = r.Sources()
	}

	out := make([]types.ScrapeResult, len(fetchers))
	var g errgroup.Group
	for i, f := range fetchers {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, r.timeout(f.Name()))
			defer cancel()

			log.Printf("[%s] Running...", f.Name())
			res, err := f.Fetch(fctx)
			res.Source = f.Name()
			if err != nil {
				log.Printf("[%s] error: %v", f.Name(), err)
				res.Err = err
			}
			out[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Runner) process(ctx context.Context, s *Summary, res types.ScrapeResult) {
	ss := SourceSummary{Name: res.Source, Postings: len(res.Postings)}
	if res.Err != nil {
		ss.Error = res.Err.Error()
	}
	s.Sources = append(s.Sources, ss)
	s.QuotaStopped = s.QuotaStopped || res.QuotaStopped

	if len(res.Postings) == 0 && res.Finalize == nil {
		return
	}

	rep := r.Ingest.Ingest(ctx, res.Postings, res.FallbackMatch)
	log.Printf("[batch] source=%s postings=%d imported=%d updated=%d skipped=%d failed=%d",
		res.Source, len(res.Postings), rep.Imported, rep.Updated, rep.Skipped, rep.Failed)

	failed := rep.Failed
	for _, p := range rep.New {
		if ctx.Err() != nil {
			break
		}
		if err := r.handleNew(ctx, s, p); err != nil {
			log.Printf("[batch] posting id=%d: %v", p.ID, err)
			failed++
		}
	}
	rep.New = nil
	s.Report.Merge(rep)
	s.Failed += failed - rep.Failed

	// Events are only marked done when every posting from them was persisted, so a
	// failed or cancelled run is retried in full next time.
	if res.Finalize != nil && failed == 0 && ctx.Err() == nil {
		if err := res.Finalize(ctx); err != nil {
			log.Printf("[batch] finalize %s: %v", res.Source, err)
		}
	}
}

func (r *Runner) handleNew(ctx context.Context, s *Summary, p domain.Posting) error {
	if r.Matcher != nil {
		m := r.Matcher.Match(ctx, p)
		if m.Enriched {
			if err := r.Store.UpdateDescription(ctx, p.ID, m.Description); err != nil {
				return fmt.Errorf("save description: %w", err)
			}
		}
		if err := r.Store.SetScore(ctx, p.ID, m.Score, m.Analysis); err != nil {
			return fmt.Errorf("save score: %w", err)
		}
		if m.Scored {
			s.Scored++
		} else {
			s.Unscored++
		}
	}

	if r.Workflow == nil {
		return nil
	}
	res, err := r.Workflow.Process(ctx, p.ID)
	if err != nil {
		return err
	}
	switch res.Status {
	case domain.StatusApplied:
		s.AutoApplied++
		r.emit(events.TypePostingApplied, map[string]any{"id": p.ID, "title": p.Title})
	case domain.StatusReadyToApply:
		s.ReadyToApply++
	}
	if res.Send.Kind == apply.Failed {
		s.SendFailed++
	}
	return nil
}
