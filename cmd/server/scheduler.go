package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ============================================================================
// Scheduler
// ============================================================================

// Scheduler owns every periodic trigger. Jobs never overlap themselves;
// window-gated jobs are skipped outside the daily activity window. Cleanup
// and scoring fire outside the window on purpose.
type Scheduler struct {
	cron   *cron.Cron
	config *AppConfig
	wg     sync.WaitGroup
}

// job wraps a runnable with an overlap guard and optional window gating.
type job struct {
	name       string
	windowOnly bool
	run        func(context.Context) error

	running atomic.Bool
}

func NewScheduler(config *AppConfig) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(config.Location())),
		config: config,
	}
}

// Register adds a cron-spec trigger. windowOnly jobs are re-checked against
// the activity window at fire time, not at registration.
func (s *Scheduler) Register(spec, name string, windowOnly bool, run func(context.Context) error) error {
	j := &job{name: name, windowOnly: windowOnly, run: run}
	_, err := s.cron.AddFunc(spec, func() { s.fire(j) })
	if err != nil {
		return fmt.Errorf("registering job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) fire(j *job) {
	if j.windowOnly && !s.config.InActivityWindow(time.Now()) {
		return
	}
	if !j.running.CompareAndSwap(false, true) {
		log.Printf("Skipping %s: previous run still executing", j.name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		if err := j.run(context.Background()); err != nil {
			log.Printf("Job %s failed: %v", j.name, err)
		}
	}()
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	fmt.Printf("⏰ Scheduler started (%d jobs, window %02d:00–%02d:59 %s)\n",
		len(s.cron.Entries()), s.config.WindowStartHour, s.config.WindowEndHour, s.config.Timezone)
}

// Stop halts new fires and waits for in-flight jobs within the grace window.
func (s *Scheduler) Stop(grace time.Duration) {
	ctx := s.cron.Stop()
	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Printf("Shutdown grace window elapsed with jobs still running")
	}
}
