package main

import (
	"os"

	"github.com/danpilch/schaap/pkg/benchmark"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	opts := benchmark.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the cost of one stack snapshot",
		RunE: func(*cobra.Command, []string) error {
			result := benchmark.Run(opts)
			benchmark.RenderResults(os.Stdout, result, benchmark.MeasureOverhead())
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "timed snapshots")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", opts.Warmup, "untimed warmup snapshots")
	return cmd
}
