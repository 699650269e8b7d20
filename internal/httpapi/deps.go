package httpapi

import (
	"context"
	"io"
	"sync/atomic"

	"jobapply-engine/internal/batch"
	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/events"
	"jobapply-engine/internal/quota"
	"jobapply-engine/internal/secrets"
	"jobapply-engine/internal/store"
)

// Store is the read/write surface the dashboard needs; *store.DB satisfies it.
type Store interface {
	Query(ctx context.Context, f store.PostingFilter) ([]domain.Posting, error)
	GetByID(ctx context.Context, id int64) (domain.Posting, error)
	TransitionStatus(ctx context.Context, id int64, from, to domain.Status, notes string) (bool, error)
	Aggregate(ctx context.Context) (store.Stats, error)
	GetCoverLetter(ctx context.Context, postingID int64) (store.CoverLetter, error)
	Checkpoint(ctx context.Context) error
}

type BatchRunner interface {
	RunBatch(ctx context.Context, trigger string) (batch.Summary, error)
	ImportCSV(ctx context.Context, in io.Reader) (batch.Summary, error)
	Status() batch.Status
}

type QuotaReporter interface {
	Status(ctx context.Context) (quota.Status, error)
}

type Deps struct {
	Store Store
	Hub   *events.Hub
	Batch BatchRunner
	Quota QuotaReporter

	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// SetSecret defaults to secrets.Set.
	SetSecret func(n secrets.Name, cfg config.Config, value string) error

	// BaseCtx parents background batch runs so they stop on shutdown.
	BaseCtx context.Context
}
