package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/microsoft/python-inference-script-sub000/internal/dict"
	"github.com/microsoft/python-inference-script-sub000/internal/storage"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
	"github.com/spf13/cobra"
)

func newCompileCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compile [dictionary]",
		Short: "Compile a key/value dictionary into a stored trie",
		Long: "Reads one key and value per line (\"-\" or no argument reads stdin) and\n" +
			"saves the compiled trie to the storage root, printing the state name.\n" +
			"With --output the raw trie is written to a file instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			start := time.Now()

			pairs, err := dict.ReadPairs(in, dictOptions(cfg))
			if err != nil {
				return err
			}

			opts := codecOptions(cfg)
			if cfg.Codec.PayloadWidth > 0 {
				opts = append(opts, trie.WithPayloadWidth(cfg.Codec.PayloadWidth))
			}

			tr, err := trie.New(pairs, opts...)
			if err != nil {
				return err
			}
			stats := tr.Stats()
			slog.Info("compiled trie",
				"pairs", len(pairs),
				"blob_bytes", stats.BlobBytes,
				"max_code", stats.MaxCode,
				"payload_width", stats.PayloadWidth,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			out := cmd.OutOrStdout()
			if output != "" {
				return writeRaw(storage.NewOS(filepath.Dir(output), ""), filepath.Base(output), tr, opts)
			}

			name, err := tr.Save(openStorage(cfg), opts...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, name)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the raw trie to this file instead of the storage root")

	return cmd
}

// writeRaw writes tr to the named stream of s. The stream is atomic, so a
// failed write leaves nothing under name.
func writeRaw(s storage.Storage, name string, tr *trie.Trie, opts []trie.Option) error {
	if err := tr.EncodeTo(s, name, opts...); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// loadTrie restores a saved trie by state name, or reads a raw trie file
// when raw is set.
func loadTrie(args []string, raw bool) (*trie.Trie, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}
	if !raw {
		return trie.Restore(openStorage(cfg), args[0], codecOptions(cfg)...)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trie.Load(f, codecOptions(cfg)...)
}
