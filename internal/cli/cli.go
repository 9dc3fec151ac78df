//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for retail-dw.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pgEdge/retail-dw/internal/config"
	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
	"github.com/pgEdge/retail-dw/pkg/version"
)

var (
	// Global flags
	cfgFile     string
	logLevel    string
	logFormat   string
	environment string

	// Global config
	cfg *config.Config

	// num renders counts with thousands separators for human output.
	num = message.NewPrinter(language.English)

	rootCmd = &cobra.Command{
		Use:   "retail-dw",
		Short: "Retail data warehouse ETL platform",
		Long: `retail-dw loads retail transaction CSVs into a PostgreSQL star
schema. It cleans and transforms the source rows, resolves dimension keys,
and batch-loads partitioned fact tables, keeping data versions, lineage,
and quality metrics for every run.

Typical flow:
  retail-dw setup                          create the warehouse schema
  retail-dw etl --source transactions.csv  run a load
  retail-dw monitor --last 10              review recent runs`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./retail-dw.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&environment, "environment", "",
		"deployment environment (development, staging, production)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(etlCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(qualityCmd)
	rootCmd.AddCommand(versionsCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if environment != "" {
		cfg.Environment = environment
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	return nil
}

// connect opens the shared warehouse pool with search_path on the
// configured schema.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.Database.ConnString(), cfg.Database.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	return pool, nil
}

// signalContext derives a context cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	}()

	return ctx, cancel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
