package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"jobapply-engine/internal/batch"
	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/events"
	"jobapply-engine/internal/httpapi"
	"jobapply-engine/internal/scheduler"
	"jobapply-engine/internal/scrape/types"
	"jobapply-engine/internal/store"
)

func main() {
	// Engine data dir: use env if provided (the desktop shell passes one), else local folder.
	dataDir := os.Getenv("JOBAPPLY_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}
	loadDotenv(dataDir)

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	// Load config and keep it reloadable
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		if err := config.OverlayProfile(&cfg, filepath.Dir(userCfgPath)); err != nil {
			log.Printf("[config] profile summary_file: %v", err)
		}
		return cfg, nil
	}
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	if _, vr := config.NormalizeAndValidate(cfg); !vr.OK() {
		log.Printf("[config] %d problem(s) in %s: %v", len(vr.Errors), userCfgPath, vr.Errors)
	}
	cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "jobapply.db")
	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub()
	eng := newEngine(&cfgVal, db)
	defer eng.close()

	onInsert := func(p domain.Posting) {
		hub.Emit(events.TypePostingCreated, map[string]any{"id": p.ID, "title": p.Title, "platform": p.SourcePlatform})
	}

	runner := &batch.Runner{
		Store:    db,
		Ingest:   liveIngest{e: eng, onInsert: onInsert},
		Matcher:  liveMatcher{e: eng},
		Workflow: liveWorkflow{e: eng},
		Sources:  func() []types.Fetcher { return eng.sources(ctx) },
		LockPath: filepath.Join(dataDir, "batch.lock"),
		OnEvent:  hub.Emit,
	}

	if cfg.Schedule.Enabled {
		spec, err := scheduler.Spec(cfg.Schedule.Every)
		if err != nil {
			log.Fatalf("schedule: %v", err)
		}
		sched, err := scheduler.Start(ctx, spec, "batch", func(ctx context.Context) error {
			_, err := runner.RunBatch(ctx, "scheduled")
			if errors.Is(err, batch.ErrRunInProgress) {
				return nil
			}
			return err
		})
		if err != nil {
			log.Fatal(err)
		}
		defer sched.Stop()
		log.Printf("[batch] scheduled %s", spec)
	}

	mux := httpapi.NewMux(httpapi.Deps{
		Store:       db,
		Hub:         hub,
		Batch:       runner,
		Quota:       liveQuota{e: eng},
		CfgVal:      &cfgVal,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,
		BaseCtx:     ctx,
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.RequestID, httpapi.Recover, httpapi.AccessLog, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	token := os.Getenv("JOBAPPLY_SHUTDOWN_TOKEN")
	if token == "" {
		if token, err = randomToken(16); err != nil {
			log.Fatal(err)
		}
	}
	mux.HandleFunc("/shutdown", shutdownHandler(token, srv))

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("engine listening on http://%s (db=%s config=%s)", addr, dbPath, userCfgPath)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	stop()
}
