package main

import (
	"fmt"

	"github.com/microsoft/python-inference-script-sub000/internal/dict"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "match <state> <key>...",
		Short: "Look up keys in a stored trie",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			tr, err := loadTrie(args, raw)
			if err != nil {
				return err
			}

			norm, err := dict.NewNormalizer(dictOptions(cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, key := range args[1:] {
				v, err := tr.Match(norm.Key(key))
				switch {
				case trie.IsNotFound(err):
					_, err = fmt.Fprintf(out, "%s\tnot found\n", key)
				case err != nil:
					return err
				default:
					_, err = fmt.Fprintf(out, "%s\t%d\n", key, v)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Treat <state> as a raw trie file path")

	return cmd
}
