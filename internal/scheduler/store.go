//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/logging"
)

// Store persists scheduled jobs in a JSON file so schedules survive
// process restarts. All methods are safe for concurrent use.
type Store struct {
	path string
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

// OpenStore loads the schedule file at path, starting empty when the
// file does not exist yet.
func OpenStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		jobs: make(map[string]Job),
		log:  logging.Component("scheduler").With().Str("store", path).Logger(),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule store: %w", err)
	}

	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse schedule store %s: %w", path, err)
	}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s, nil
}

// Add validates and persists a new job. New jobs start enabled; the name
// must be unused.
func (s *Store) Add(job Job) (Job, error) {
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	job.Enabled = true
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return Job{}, fmt.Errorf("job %q already exists", job.Name)
	}
	s.jobs[job.Name] = job
	if err := s.persist(); err != nil {
		delete(s.jobs, job.Name)
		return Job{}, err
	}

	s.log.Info().Str("job", job.Name).Str("schedule", job.Describe()).Msg("Scheduled job added")
	return job, nil
}

// List returns all jobs sorted by name.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs
}

// Get looks a job up by name.
func (s *Store) Get(name string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j, ok
}

// SetEnabled flips a job on or off.
func (s *Store) SetEnabled(name string, enabled bool) error {
	return s.update(name, func(j *Job) { j.Enabled = enabled })
}

// MarkRun records when the job last fired, resetting its next-run clock.
func (s *Store) MarkRun(name string, at time.Time) error {
	return s.update(name, func(j *Job) { j.LastRun = &at })
}

// Remove deletes a job.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	delete(s.jobs, name)
	if err := s.persist(); err != nil {
		s.jobs[name] = old
		return err
	}
	s.log.Info().Str("job", name).Msg("Scheduled job removed")
	return nil
}

func (s *Store) update(name string, apply func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	j := old
	apply(&j)
	s.jobs[name] = j
	if err := s.persist(); err != nil {
		s.jobs[name] = old
		return err
	}
	return nil
}

// persist writes the store file. Callers hold s.mu.
func (s *Store) persist() error {
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write schedule store: %w", err)
	}
	return nil
}
