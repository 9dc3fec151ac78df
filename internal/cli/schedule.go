//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/cache"
	"github.com/pgEdge/retail-dw/internal/logging"
	"github.com/pgEdge/retail-dw/internal/pipeline"
	"github.com/pgEdge/retail-dw/internal/scheduler"
)

var (
	scheduleName    string
	scheduleCSVPath string
	scheduleTime    string
	scheduleHours   int
	scheduleDay     string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage and run scheduled ETL jobs",
	Long: `Register recurring ETL jobs in the job store and run them with the
scheduler daemon. Jobs are keyed by name and survive restarts.

Example:
  retail-dw schedule daily --name nightly --csv-path data/daily.csv --time 02:00
  retail-dw schedule list
  retail-dw schedule start`,
}

var scheduleDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Register a job that runs every day at a fixed time",
	RunE: func(cmd *cobra.Command, args []string) error {
		return addJob(cmd, scheduler.Job{
			Name:    scheduleName,
			Type:    scheduler.JobDaily,
			CSVPath: scheduleCSVPath,
			Time:    scheduleTime,
		})
	},
}

var scheduleHourlyCmd = &cobra.Command{
	Use:   "hourly",
	Short: "Register a job that runs every N hours",
	RunE: func(cmd *cobra.Command, args []string) error {
		return addJob(cmd, scheduler.Job{
			Name:    scheduleName,
			Type:    scheduler.JobHourly,
			CSVPath: scheduleCSVPath,
			Hours:   scheduleHours,
		})
	},
}

var scheduleWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Register a job that runs weekly on a fixed day and time",
	RunE: func(cmd *cobra.Command, args []string) error {
		return addJob(cmd, scheduler.Job{
			Name:    scheduleName,
			Type:    scheduler.JobWeekly,
			CSVPath: scheduleCSVPath,
			Day:     scheduleDay,
			Time:    scheduleTime,
		})
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered jobs",
	RunE:  runScheduleList,
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setJobEnabled(cmd, args[0], true)
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a job without removing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setJobEnabled(cmd, args[0], false)
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a job from the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduler until interrupted",
	RunE:  runScheduleStart,
}

func init() {
	for _, c := range []*cobra.Command{scheduleDailyCmd, scheduleHourlyCmd, scheduleWeeklyCmd} {
		c.Flags().StringVar(&scheduleName, "name", "", "unique job name (required)")
		c.Flags().StringVar(&scheduleCSVPath, "csv-path", "", "source CSV to load (required)")
		c.MarkFlagRequired("name")
		c.MarkFlagRequired("csv-path")
	}
	scheduleDailyCmd.Flags().StringVar(&scheduleTime, "time", "02:00", "run time, 24h HH:MM")
	scheduleHourlyCmd.Flags().IntVar(&scheduleHours, "hours", 1, "run every N hours")
	scheduleWeeklyCmd.Flags().StringVar(&scheduleDay, "day", "sunday", "weekday to run on")
	scheduleWeeklyCmd.Flags().StringVar(&scheduleTime, "time", "03:00", "run time, 24h HH:MM")

	scheduleCmd.AddCommand(scheduleDailyCmd, scheduleHourlyCmd, scheduleWeeklyCmd,
		scheduleListCmd, scheduleEnableCmd, scheduleDisableCmd, scheduleRemoveCmd,
		scheduleStartCmd)
}

func openJobStore() (*scheduler.Store, error) {
	if err := cfg.ValidateScheduler(); err != nil {
		return nil, err
	}
	return scheduler.OpenStore(cfg.Scheduler.StorePath)
}

func addJob(cmd *cobra.Command, job scheduler.Job) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	added, err := store.Add(job)
	if err != nil {
		return err
	}
	cmd.Printf("Job %q registered: %s\n", added.Name, added.Describe())
	return nil
}

func setJobEnabled(cmd *cobra.Command, name string, enabled bool) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	if err := store.SetEnabled(name, enabled); err != nil {
		return err
	}
	if enabled {
		cmd.Printf("Job %q enabled\n", name)
	} else {
		cmd.Printf("Job %q disabled\n", name)
	}
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	if err := store.Remove(args[0]); err != nil {
		return err
	}
	cmd.Printf("Job %q removed\n", args[0])
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	jobs := store.List()
	if len(jobs) == 0 {
		cmd.Println("No jobs registered.")
		return nil
	}

	cmd.Printf("%-20s  %-34s  %-8s  %-19s  %-19s\n",
		"NAME", "SCHEDULE", "ENABLED", "LAST RUN", "NEXT RUN")
	for _, j := range jobs {
		lastRun := "never"
		base := j.CreatedAt
		if j.LastRun != nil {
			lastRun = j.LastRun.Format("2006-01-02 15:04")
			base = *j.LastRun
		}
		nextRun := "-"
		if j.Enabled {
			nextRun = j.NextRun(base).Format("2006-01-02 15:04")
		}
		cmd.Printf("%-20s  %-34s  %-8t  %-19s  %-19s\n",
			j.Name, clip(j.Describe(), 34), j.Enabled, lastRun, nextRun)
	}
	return nil
}

func runScheduleStart(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	if err := cfg.ValidateETL(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	dims := cache.NewDimensionCache(cfg.Cache.DimensionSize)

	runner := func(ctx context.Context, job scheduler.Job) error {
		p := pipeline.New(pipelineConfig(job.CSVPath, job.Name, false), pool, dims)
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		if res.Status != pipeline.StatusSuccess {
			return fmt.Errorf("finished with status %s", res.Status)
		}
		return nil
	}

	poll := time.Duration(cfg.Scheduler.PollInterval) * time.Second
	sched := scheduler.New(store, runner, poll)
	logging.Info().
		Int("jobs", len(store.List())).
		Dur("poll_interval", poll).
		Msg("Scheduler starting, press Ctrl+C to stop")
	return sched.Start(ctx)
}
