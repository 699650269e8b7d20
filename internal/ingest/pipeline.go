// Package ingest normalizes raw postings from every source and routes them
// through the Posting Store with the dedup and merge policy.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/store"
)

// Store is the subset of the Posting Store the pipeline writes through.
type Store interface {
	FindByURL(ctx context.Context, url string) (domain.Posting, error)
	FindByTitleEmployer(ctx context.Context, title, employer string) (domain.Posting, error)
	Insert(ctx context.Context, p domain.Posting) (int64, bool, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	Reject(ctx context.Context, id int64, reason string) error
}

type Options struct {
	ExcludeKeywords []string
	RejectPhrases   []string
	DefaultLocation string
	Now             func() time.Time
}

type Pipeline struct {
	Store Store
	Opts  Options

	// OnInsert is called for every newly stored posting.
	OnInsert func(domain.Posting)
}

func New(s Store, opts Options) *Pipeline {
	return &Pipeline{Store: s, Opts: opts}
}

type Kind int

const (
	Inserted Kind = iota
	Updated
	Skipped
	Excluded
	Rejected
	Failed
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Excluded:
		return "excluded"
	case Rejected:
		return "rejected"
	default:
		return "failed"
	}
}

// Result is the outcome for one raw posting.
type Result struct {
	Kind    Kind
	Posting domain.Posting
	Reason  string
	Err     error
}

// Report aggregates one Ingest call.
type Report struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Excluded int `json:"excluded"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`

	// New holds inserted postings still in status new, in input order. These go to matching.
	New []domain.Posting `json:"-"`
}

func (r *Report) add(res Result) {
	switch res.Kind {
	case Inserted:
		r.Imported++
		r.New = append(r.New, res.Posting)
	case Updated:
		r.Updated++
	case Skipped:
		r.Skipped++
	case Excluded:
		r.Excluded++
	case Rejected:
		r.Rejected++
	case Failed:
		r.Failed++
	}
}

// Merge folds another report into r.
func (r *Report) Merge(o Report) {
	r.Imported += o.Imported
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.Excluded += o.Excluded
	r.Rejected += o.Rejected
	r.Failed += o.Failed
	r.New = append(r.New, o.New...)
}

// Ingest processes a batch sequentially. A failing item is counted and logged; the batch continues.
// fallback enables (title, employer) matching when the source has no stable URL per item.
func (p *Pipeline) Ingest(ctx context.Context, raws []domain.RawPosting, fallback bool) Report {
	var rep Report
	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		res := p.IngestOne(ctx, raw, fallback)
		switch res.Kind {
		case Failed:
			log.Printf("[ingest] failed title=%q url=%q err=%v", raw.Title, raw.URL, res.Err)
		case Excluded, Rejected:
			log.Printf("[ingest] %s (%s) title=%q url=%q", res.Kind, res.Reason, res.Posting.Title, res.Posting.URL)
		}
		rep.add(res)
	}
	return rep
}

func (p *Pipeline) IngestOne(ctx context.Context, raw domain.RawPosting, fallback bool) Result {
	now := time.Now()
	if p.Opts.Now != nil {
		now = p.Opts.Now()
	}
	post, err := domain.Normalize(raw, domain.NormalizeOptions{
		DefaultLocation: p.Opts.DefaultLocation,
		Now:             now,
	})
	if err != nil {
		return Result{Kind: Failed, Err: err}
	}

	if kw, hit := excluded(p.Opts.ExcludeKeywords, post); hit {
		return Result{Kind: Excluded, Posting: post, Reason: kw}
	}

	existing, err := p.Store.FindByURL(ctx, post.URL)
	switch {
	case err == nil:
		return p.merge(ctx, existing, post)
	case !errors.Is(err, store.ErrNotFound):
		return Result{Kind: Failed, Posting: post, Err: err}
	}

	if fallback || post.HasSyntheticURL() {
		existing, err := p.Store.FindByTitleEmployer(ctx, post.Title, post.Employer)
		switch {
		case err == nil:
			return p.merge(ctx, existing, post)
		case !errors.Is(err, store.ErrNotFound):
			return Result{Kind: Failed, Posting: post, Err: err}
		}
	}

	id, inserted, err := p.Store.Insert(ctx, post)
	if err != nil {
		return Result{Kind: Failed, Posting: post, Err: err}
	}
	if !inserted {
		// Another writer stored the same url between lookup and insert.
		return Result{Kind: Skipped, Posting: post, Reason: "duplicate"}
	}
	post.ID = id
	if p.OnInsert != nil {
		p.OnInsert(post)
	}

	if phrase, hit := rejected(p.rejectPhrases(), post); hit {
		reason := fmt.Sprintf("matched %q", phrase)
		if err := p.Store.Reject(ctx, id, reason); err != nil {
			return Result{Kind: Failed, Posting: post, Err: err}
		}
		post.Status = domain.StatusAutoRejected
		post.RejectionReason = reason
		return Result{Kind: Rejected, Posting: post, Reason: reason}
	}

	return Result{Kind: Inserted, Posting: post}
}

// merge upgrades a short stored description with a substantially longer incoming one.
// Anything else is a duplicate.
func (p *Pipeline) merge(ctx context.Context, existing, incoming domain.Posting) Result {
	if ShouldReplaceDescription(existing.Description, incoming.Description) {
		if err := p.Store.UpdateDescription(ctx, existing.ID, incoming.Description); err != nil {
			return Result{Kind: Failed, Posting: existing, Err: err}
		}
		existing.Description = incoming.Description
		return Result{Kind: Updated, Posting: existing}
	}
	return Result{Kind: Skipped, Posting: existing, Reason: "duplicate"}
}

// ShouldReplaceDescription reports whether incoming is substantially more complete than stored.
func ShouldReplaceDescription(stored, incoming string) bool {
	return len(incoming) > domain.MinDescriptionChars && len(stored) < domain.MinDescriptionChars
}

func (p *Pipeline) rejectPhrases() []string {
	if p.Opts.RejectPhrases == nil {
		return DefaultRejectPhrases
	}
	return p.Opts.RejectPhrases
}
