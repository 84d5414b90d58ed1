package main

import (
	"errors"
	"fmt"

	"github.com/microsoft/python-inference-script-sub000/internal/doctor"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor <state>",
		Short: "Verify checksums and decode every key of a stored trie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "storage: %s\n", cfg.Storage.RootDir)

			result := doctor.Run(doctor.Config{
				Storage:   openStorage(cfg),
				StateName: args[0],
				Options:   codecOptions(cfg),
			}, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}
