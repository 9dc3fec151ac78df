//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package scheduler runs recurring ETL loads. Jobs live in a JSON file and
// fire on daily, hourly, or weekly rules; a poll loop checks what is due
// and runs it through an injected runner, one job at a time.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/logging"
)

// DefaultPollInterval is how often the loop checks for due jobs.
const DefaultPollInterval = 30 * time.Second

// Runner executes one due job, typically a full pipeline run.
type Runner func(ctx context.Context, job Job) error

// Scheduler polls the store and runs whatever is due. Jobs run
// sequentially; a long load delays the jobs behind it rather than
// stacking concurrent pipelines on the warehouse.
type Scheduler struct {
	store *Store
	run   Runner
	poll  time.Duration
	log   zerolog.Logger
}

// New builds a scheduler over the store. poll <= 0 selects the default.
func New(store *Store, run Runner, poll time.Duration) *Scheduler {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Scheduler{
		store: store,
		run:   run,
		poll:  poll,
		log:   logging.Component("scheduler"),
	}
}

// Start blocks, running due jobs until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.log.Info().
		Dur("poll_interval", s.poll).
		Int("jobs", len(s.store.List())).
		Msg("Scheduler started")

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs every job due at this tick. The run is marked even when it
// fails so a broken job does not retry every 30 seconds.
func (s *Scheduler) runDue(ctx context.Context) {
	now := time.Now()
	for _, job := range s.store.List() {
		if !job.Due(now) {
			continue
		}

		s.log.Info().
			Str("job", job.Name).
			Str("csv_path", job.CSVPath).
			Msg("Running scheduled job")

		start := time.Now()
		if err := s.run(ctx, job); err != nil {
			s.log.Error().Err(err).Str("job", job.Name).Msg("Scheduled job failed")
		} else {
			s.log.Info().
				Str("job", job.Name).
				Dur("duration", time.Since(start)).
				Msg("Scheduled job finished")
		}

		if err := s.store.MarkRun(job.Name, time.Now()); err != nil {
			s.log.Warn().Err(err).Str("job", job.Name).Msg("Recording job run failed")
		}

		if ctx.Err() != nil {
			return
		}
	}
}
