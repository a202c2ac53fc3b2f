// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler runs the core's periodic background jobs —
// deduplicator cleanup and a baseline-related periodic task (in
// cmd/sentinel, the metrics refresh) — as dedicated gocron jobs, the same way the teacher runs retention and
// sync work as named background services rather than amortizing them
// into the request path.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/llm-sentinel/sentinel/internal/slog"
)

// Scheduler wraps a gocron.Scheduler; the jobs registered against it
// are held by gocron, and Stop waits for them through its Shutdown.
type Scheduler struct {
	inner gocron.Scheduler
}

// New constructs a Scheduler. Construction failure is a startup-time
// configuration error.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}
	return &Scheduler{inner: s}, nil
}

// RegisterDedupCleanup schedules fn to run every interval, logging and
// continuing on panic recovery so a single bad sweep cannot take the
// process down.
func (s *Scheduler) RegisterDedupCleanup(interval time.Duration, fn func()) error {
	_, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(wrapJob("dedup_cleanup", fn)),
	)
	if err != nil {
		return fmt.Errorf("scheduler: registering dedup cleanup: %w", err)
	}
	return nil
}

// RegisterBaselineEviction schedules fn to run every interval under the
// "baseline_eviction" job name. It runs whatever fn does; the baseline
// store bounds its own key count on Update, and cmd/sentinel passes the
// pipeline's RefreshMetrics here rather than an eviction sweep.
func (s *Scheduler) RegisterBaselineEviction(interval time.Duration, fn func()) error {
	_, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(wrapJob("baseline_eviction", fn)),
	)
	if err != nil {
		return fmt.Errorf("scheduler: registering baseline eviction: %w", err)
	}
	return nil
}

func wrapJob(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("scheduled job panicked", slog.String("job", name), slog.String("recover", fmt.Sprint(r)))
			}
		}()
		fn()
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.inner.Start()
}

// Stop halts the scheduler and waits for in-flight jobs to finish,
// honoring a shutdown grace period the way the pipeline driver does
// for in-flight storage writes and publishes.
func (s *Scheduler) Stop() error {
	return s.inner.Shutdown()
}
