package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/microsoft/python-inference-script-sub000/internal/config"
	"github.com/microsoft/python-inference-script-sub000/internal/dict"
	"github.com/microsoft/python-inference-script-sub000/internal/server"
	"github.com/microsoft/python-inference-script-sub000/internal/storage"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "pyistrie",
		Short:         "Compile, query and serve immutable tries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newMatchCmd())
	cmd.AddCommand(newItemsCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Storage.RootDir == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}

func openStorage(cfg config.Config) storage.Storage {
	return storage.NewOS(cfg.Storage.RootDir, cfg.Storage.Prefix)
}

// codecOptions are the options every load and save of a stored trie uses.
func codecOptions(cfg config.Config) []trie.Option {
	return []trie.Option{trie.WithTagValidation(cfg.Codec.ValidateTags)}
}

func dictOptions(cfg config.Config) dict.Options {
	return dict.Options{
		Separator: cfg.Dict.Separator,
		Normalize: cfg.Dict.Normalize,
		FoldCase:  cfg.Dict.FoldCase,
	}
}
