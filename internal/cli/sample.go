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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/datagen"
)

var (
	sampleRows   int
	sampleOutput string
	sampleSeed   uint64
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Generate a sample retail CSV for testing the pipeline",
	Long: `Generate a seeded sample CSV in the raw export format. The file
loads end to end: mostly merchandise sales plus credit notes, postage
and fee lines, guest checkouts, and a few broken rows that exercise
the rejection paths.

Example:
  retail-dw sample --rows 10000 --output sample.csv
  retail-dw sample --rows 500 --seed 42 --output small.csv`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().IntVar(&sampleRows, "rows", 1000, "data rows to generate")
	sampleCmd.Flags().StringVar(&sampleOutput, "output", "sample_retail.csv", "output file path")
	sampleCmd.Flags().Uint64Var(&sampleSeed, "seed", 0, "random seed, 0 picks one")
}

func runSample(cmd *cobra.Command, args []string) error {
	g := datagen.NewGenerator(datagen.GeneratorConfig{
		Rows: sampleRows,
		Seed: sampleSeed,
	})
	n, err := g.WriteFile(sampleOutput)
	if err != nil {
		return fmt.Errorf("failed to generate sample: %w", err)
	}
	cmd.Printf("Wrote %s rows to %s\n", num.Sprintf("%d", n), sampleOutput)
	return nil
}
