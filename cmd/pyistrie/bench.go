package main

import (
	"fmt"

	"github.com/microsoft/python-inference-script-sub000/internal/bench"
	"github.com/microsoft/python-inference-script-sub000/internal/dict"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		raw         bool
		runs        int
		format      string
		nsThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench <state> [key]...",
		Short: "Benchmark lookup latency of a stored trie",
		Long: "Matches the given keys, or every stored key when none are given,\n" +
			"once per run and reports per-run timing.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			tr, err := loadTrie(args, raw)
			if err != nil {
				return err
			}

			keys := args[1:]
			if len(keys) == 0 {
				items, err := tr.Items()
				if err != nil {
					return err
				}
				for _, p := range items {
					keys = append(keys, p.Key)
				}
			} else {
				norm, err := dict.NewNormalizer(dictOptions(cfg))
				if err != nil {
					return err
				}
				for i, k := range keys {
					keys[i] = norm.Key(k)
				}
			}

			results, err := bench.Run(cmd.Context(), tr, keys, runs)
			if err != nil {
				return err
			}
			stats := bench.ComputeStats(bench.Durations(results))

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckNsThreshold(bench.MeanNsPerKey(results), nsThreshold)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Treat <state> as a raw trie file path")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of passes over the key set")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&nsThreshold, "ns-threshold", 0, "Exit non-zero if mean ns per lookup exceeds this value (0 = disabled)")

	return cmd
}
