package main

import (
	"github.com/spf13/cobra"

	"github.com/szaher/designs/keyreplay/internal/automation"
)

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <account>",
		Short: "Replay an account's login script now",
		Long: `Run loads the account, decrypts its secret file and types its script into
the focused window after the configured go delay. With --dry-run the
commands are printed instead, secret values redacted, and sleeps skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := appOptions{}
			var recorder *automation.Recorder
			if dryRun {
				recorder = automation.NewRecorder(cmd.OutOrStdout(), nil)
				opts.sink = recorder
				opts.noDelays = true
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if recorder != nil {
				recorder.Redact = a.redactor.RedactString
			}

			ctx, cancel := commandContext()
			defer cancel()
			return a.service.Replay(ctx, args[0])
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the commands instead of typing them")

	return cmd
}
