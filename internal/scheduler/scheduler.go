package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Task func(ctx context.Context) error

// Scheduler runs one named task on a cron spec ("@every 3h", "0 7 * * *").
type Scheduler struct {
	c    *cron.Cron
	name string
}

// Start schedules task and runs it once immediately in the background. Overlapping
// ticks are skipped while the previous run is still going.
func Start(ctx context.Context, spec, name string, task Task) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	run := func() {
		if err := task(ctx); err != nil {
			log.Printf("[%s] error: %v", name, err)
		}
	}
	if _, err := c.AddFunc(spec, run); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	c.Start()
	go run()

	s := &Scheduler{c: c, name: name}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s, nil
}

// Spec turns a Go duration string into an @every spec; cron expressions pass through.
func Spec(every string) (string, error) {
	if every == "" {
		return "", fmt.Errorf("empty schedule")
	}
	if strings.HasPrefix(every, "@") || strings.Contains(every, " ") {
		return every, nil
	}
	d, err := time.ParseDuration(every)
	if err != nil {
		return "", fmt.Errorf("schedule every %q: %w", every, err)
	}
	if d < time.Minute {
		return "", fmt.Errorf("schedule every %q: must be at least 1m", every)
	}
	return "@every " + d.String(), nil
}

// Stop waits for a running task to return.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.c.Stop().Done()
	log.Printf("[%s] scheduler stopped", s.name)
}
