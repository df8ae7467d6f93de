package main

import (
	"github.com/spf13/cobra"
)

func newGoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "go",
		Short: "Replay the account remembered by select",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			return a.service.Go(ctx)
		},
	}
}
