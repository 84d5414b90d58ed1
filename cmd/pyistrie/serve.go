package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/microsoft/python-inference-script-sub000/internal/dict"
	"github.com/microsoft/python-inference-script-sub000/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "serve <state>",
		Short: "Serve lookups against a stored trie over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
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

			srv := server.New(cfg, tr, server.WithKeyNormalizer(norm.Key))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("serving trie", "source", args[0], "addr", cfg.Server.ListenAddr)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Treat <state> as a raw trie file path")

	return cmd
}
