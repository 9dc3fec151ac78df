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
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType selects the recurrence rule.
type JobType string

const (
	JobDaily  JobType = "daily"
	JobHourly JobType = "hourly"
	JobWeekly JobType = "weekly"
)

// Job is one recurring ETL load. Jobs are keyed by Name.
type Job struct {
	Name    string  `json:"name"`
	Type    JobType `json:"type"`
	CSVPath string  `json:"csv_path"`

	// Time is the fire time as "HH:MM" for daily and weekly jobs.
	Time string `json:"time,omitempty"`

	// Hours is the interval for hourly jobs.
	Hours int `json:"hours,omitempty"`

	// Day is the weekday name for weekly jobs, case-insensitive.
	Day string `json:"day,omitempty"`

	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Validate checks the fields the job's type requires.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("job name is required")
	}
	if strings.TrimSpace(j.CSVPath) == "" {
		return errors.New("csv path is required")
	}

	switch j.Type {
	case JobDaily:
		_, _, err := parseClock(j.Time)
		return err
	case JobHourly:
		if j.Hours < 1 {
			return fmt.Errorf("hourly job needs hours >= 1, got %d", j.Hours)
		}
		return nil
	case JobWeekly:
		if _, ok := weekdays[strings.ToLower(j.Day)]; !ok {
			return fmt.Errorf("invalid weekday %q", j.Day)
		}
		_, _, err := parseClock(j.Time)
		return err
	default:
		return fmt.Errorf("unknown job type %q", j.Type)
	}
}

// NextRun is the first fire time strictly after the given instant,
// typically the job's last run. Hourly jobs first fire one interval after
// creation.
func (j Job) NextRun(after time.Time) time.Time {
	switch j.Type {
	case JobHourly:
		h := j.Hours
		if h < 1 {
			h = 1
		}
		return after.Add(time.Duration(h) * time.Hour)

	case JobWeekly:
		hour, min, _ := parseClock(j.Time)
		day := weekdays[strings.ToLower(j.Day)]
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, min, 0, 0, after.Location())
		for next.Weekday() != day || !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	default: // daily
		hour, min, _ := parseClock(j.Time)
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, min, 0, 0, after.Location())
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// Due reports whether the job should fire at now, measured against its
// last run (or its creation when it has never run).
func (j Job) Due(now time.Time) bool {
	if !j.Enabled {
		return false
	}
	base := j.CreatedAt
	if j.LastRun != nil {
		base = *j.LastRun
	}
	return !now.Before(j.NextRun(base))
}

// Describe renders the recurrence for listings, e.g. "daily at 02:00".
func (j Job) Describe() string {
	switch j.Type {
	case JobHourly:
		if j.Hours == 1 {
			return "every hour"
		}
		return fmt.Sprintf("every %d hours", j.Hours)
	case JobWeekly:
		return fmt.Sprintf("weekly on %s at %s", strings.ToLower(j.Day), j.Time)
	default:
		return fmt.Sprintf("daily at %s", j.Time)
	}
}
