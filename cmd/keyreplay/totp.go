package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totp [account]",
		Short: "Print the current one-time code",
		Long:  "Totp prints the code for the given account, or for the remembered account when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			code, err := a.service.TOTP(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}
