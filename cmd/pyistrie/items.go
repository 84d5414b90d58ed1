package main

import (
	"github.com/microsoft/python-inference-script-sub000/internal/dict"
	"github.com/spf13/cobra"
)

func newItemsCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "items <state>",
		Short: "Print every key and value of a stored trie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			tr, err := loadTrie(args, raw)
			if err != nil {
				return err
			}

			items, err := tr.Items()
			if err != nil {
				return err
			}
			return dict.WritePairs(cmd.OutOrStdout(), items, cfg.Dict.Separator)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Treat <state> as a raw trie file path")

	return cmd
}
