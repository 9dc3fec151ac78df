package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// 2011-06-01 was a Wednesday.
var wednesday = time.Date(2011, 6, 1, 10, 0, 0, 0, time.UTC)

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid daily", Job{Name: "nightly", Type: JobDaily, CSVPath: "a.csv", Time: "02:00"}, false},
		{"valid hourly", Job{Name: "often", Type: JobHourly, CSVPath: "a.csv", Hours: 6}, false},
		{"valid weekly", Job{Name: "weekly", Type: JobWeekly, CSVPath: "a.csv", Day: "Friday", Time: "03:30"}, false},
		{"missing name", Job{Type: JobDaily, CSVPath: "a.csv", Time: "02:00"}, true},
		{"missing csv", Job{Name: "nightly", Type: JobDaily, Time: "02:00"}, true},
		{"bad time", Job{Name: "nightly", Type: JobDaily, CSVPath: "a.csv", Time: "2am"}, true},
		{"zero hours", Job{Name: "often", Type: JobHourly, CSVPath: "a.csv"}, true},
		{"bad weekday", Job{Name: "weekly", Type: JobWeekly, CSVPath: "a.csv", Day: "Funday", Time: "03:30"}, true},
		{"unknown type", Job{Name: "x", Type: "monthly", CSVPath: "a.csv"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNextRunDaily(t *testing.T) {
	job := Job{Type: JobDaily, Time: "02:00"}
	next := job.NextRun(wednesday)
	want := time.Date(2011, 6, 2, 2, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Expected next run %s, got %s", want, next)
	}

	job.Time = "14:00"
	next = job.NextRun(wednesday)
	want = time.Date(2011, 6, 1, 14, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Expected same-day run %s, got %s", want, next)
	}
}

func TestNextRunWeekly(t *testing.T) {
	tests := []struct {
		day  string
		at   string
		want time.Time
	}{
		{"friday", "03:00", time.Date(2011, 6, 3, 3, 0, 0, 0, time.UTC)},
		{"wednesday", "09:00", time.Date(2011, 6, 8, 9, 0, 0, 0, time.UTC)},
		{"Wednesday", "23:00", time.Date(2011, 6, 1, 23, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		job := Job{Type: JobWeekly, Day: tt.day, Time: tt.at}
		next := job.NextRun(wednesday)
		if !next.Equal(tt.want) {
			t.Errorf("%s %s: expected %s, got %s", tt.day, tt.at, tt.want, next)
		}
		if next.Weekday() != job.NextRun(next).Weekday() {
			t.Errorf("Consecutive runs should share the weekday")
		}
	}
}

func TestNextRunHourly(t *testing.T) {
	job := Job{Type: JobHourly, Hours: 6}
	next := job.NextRun(wednesday)
	if want := wednesday.Add(6 * time.Hour); !next.Equal(want) {
		t.Errorf("Expected %s, got %s", want, next)
	}
}

func TestDue(t *testing.T) {
	created := wednesday.Add(-24 * time.Hour)

	daily := Job{Type: JobDaily, Time: "02:00", Enabled: true, CreatedAt: created}
	if !daily.Due(wednesday) {
		t.Error("Daily job past its fire time should be due")
	}

	justRan := wednesday.Add(-time.Hour)
	daily.LastRun = &justRan
	if daily.Due(wednesday) {
		t.Error("Daily job that ran today should not be due again")
	}

	disabled := Job{Type: JobDaily, Time: "02:00", Enabled: false, CreatedAt: created}
	if disabled.Due(wednesday) {
		t.Error("Disabled job must never be due")
	}

	hourly := Job{Type: JobHourly, Hours: 1, Enabled: true, CreatedAt: created}
	ranRecently := wednesday.Add(-30 * time.Minute)
	hourly.LastRun = &ranRecently
	if hourly.Due(wednesday) {
		t.Error("Hourly job 30m after its run should not be due")
	}
	ranAWhileAgo := wednesday.Add(-61 * time.Minute)
	hourly.LastRun = &ranAWhileAgo
	if !hourly.Due(wednesday) {
		t.Error("Hourly job 61m after its run should be due")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	if _, err := store.Add(Job{Name: "nightly", Type: JobDaily, CSVPath: "daily.csv", Time: "02:00"}); err != nil {
		t.Fatalf("Add daily failed: %v", err)
	}
	if _, err := store.Add(Job{Name: "often", Type: JobHourly, CSVPath: "hourly.csv", Hours: 4}); err != nil {
		t.Fatalf("Add hourly failed: %v", err)
	}
	if _, err := store.Add(Job{Name: "nightly", Type: JobDaily, CSVPath: "x.csv", Time: "03:00"}); err == nil {
		t.Error("Expected duplicate name to be rejected")
	}
	if _, err := store.Add(Job{Name: "bad", Type: "monthly", CSVPath: "x.csv"}); err == nil {
		t.Error("Expected invalid job to be rejected")
	}

	if err := store.SetEnabled("often", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	ranAt := time.Date(2011, 6, 1, 2, 0, 14, 0, time.UTC)
	if err := store.MarkRun("nightly", ranAt); err != nil {
		t.Fatalf("MarkRun failed: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	jobs := reopened.List()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs after reopen, got %d", len(jobs))
	}

	nightly, ok := reopened.Get("nightly")
	if !ok {
		t.Fatal("nightly job missing after reopen")
	}
	if nightly.LastRun == nil || !nightly.LastRun.Equal(ranAt) {
		t.Errorf("Expected last run %s, got %v", ranAt, nightly.LastRun)
	}
	if !nightly.Enabled {
		t.Error("nightly should still be enabled")
	}

	often, _ := reopened.Get("often")
	if often.Enabled {
		t.Error("often should be disabled after reopen")
	}
	if often.Hours != 4 || often.CSVPath != "hourly.csv" {
		t.Errorf("Hourly job fields lost: %+v", often)
	}

	if err := reopened.Remove("often"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := reopened.Remove("often"); err == nil {
		t.Error("Expected error removing a missing job")
	}
	if len(reopened.List()) != 1 {
		t.Errorf("Expected 1 job after remove, got %d", len(reopened.List()))
	}
}

func TestRunDue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	created := time.Now().Add(-48 * time.Hour).UTC()
	if _, err := store.Add(Job{Name: "backfill", Type: JobDaily, CSVPath: "a.csv", Time: "00:01", CreatedAt: created}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var runs int
	sched := New(store, func(ctx context.Context, job Job) error {
		runs++
		if job.Name != "backfill" {
			t.Errorf("Expected backfill job, got %q", job.Name)
		}
		return nil
	}, time.Minute)

	sched.runDue(context.Background())
	if runs != 1 {
		t.Fatalf("Expected 1 run, got %d", runs)
	}

	job, _ := store.Get("backfill")
	if job.LastRun == nil {
		t.Fatal("Expected last run to be recorded")
	}

	sched.runDue(context.Background())
	if runs != 1 {
		t.Errorf("Daily job must not fire twice in a day, got %d runs", runs)
	}
}

func TestRunDueMarksFailedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	created := time.Now().Add(-48 * time.Hour).UTC()
	if _, err := store.Add(Job{Name: "broken", Type: JobDaily, CSVPath: "a.csv", Time: "00:01", CreatedAt: created}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var runs int
	sched := New(store, func(ctx context.Context, job Job) error {
		runs++
		return errors.New("source went away")
	}, time.Minute)

	sched.runDue(context.Background())
	sched.runDue(context.Background())
	if runs != 1 {
		t.Errorf("Failed job must still be marked as run, got %d runs", runs)
	}
}
