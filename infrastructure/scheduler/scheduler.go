// Package scheduler runs periodic tasks on a cron-style schedule through
// a bounded worker pool, so a burst of stale listings never spawns
// unbounded concurrent upstream calls.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task is one idempotent unit of scheduled work. Re-running a Task for the
// same listing must be safe, since every cron tick and every RunOnce call
// runs the task again whether or not an earlier run completed upstream.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler registers cron-style periodic tasks and executes them through
// a bounded worker pool.
type Scheduler struct {
	cron *cron.Cron
	sem  chan struct{}

	mu      sync.Mutex
	running map[string]bool
}

// New builds a Scheduler whose worker pool allows at most poolSize
// concurrently executing tasks.
func New(poolSize int) *Scheduler {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Scheduler{
		cron:    cron.New(),
		sem:     make(chan struct{}, poolSize),
		running: make(map[string]bool),
	}
}

// Register adds a task on the given cron spec (standard 5-field syntax).
// A task already running when its next tick fires is skipped rather than
// queued twice.
func (s *Scheduler) Register(ctx context.Context, spec string, task Task) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		if s.running[task.Name] {
			s.mu.Unlock()
			log.Debug().Str("task", task.Name).Msg("scheduler: skipping tick, previous run still active")
			return
		}
		s.running[task.Name] = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.running[task.Name] = false
			s.mu.Unlock()
		}()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-s.sem }()

		if err := task.Run(ctx); err != nil {
			log.Error().Err(err).Str("task", task.Name).Msg("scheduler: task failed")
		}
	})
	return err
}

// Start begins the cron loop in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron loop without waiting; the returned context is done
// once in-flight ticks have finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// RunOnce synchronously executes task once, bypassing the cron schedule.
// Used by the CLI's "refresh" subcommand for an on-demand trigger.
func (s *Scheduler) RunOnce(ctx context.Context, task Task) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	return task.Run(ctx)
}
