package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/szaher/designs/keyreplay/internal/runtime"
	"github.com/szaher/designs/keyreplay/internal/script"
)

func newCheckCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "check <account>",
		Short: "Validate a descriptor and list its script",
		Long: `Check resolves the account, confirms its secret file exists, and prints the
commands its script expands to with placeholders left in place. Nothing
is decrypted. With --watch the check is repeated every time the
descriptor is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			w := cmd.OutOrStdout()
			if err := printCheck(ctx, w, a.service, args[0]); err != nil {
				if !watch {
					return err
				}
				fmt.Fprintf(w, "Error: %v\n", err)
			}
			if !watch {
				return nil
			}

			return a.accounts.Watch(ctx, args[0], func() {
				fmt.Fprintln(w, "---")
				if err := printCheck(ctx, w, a.service, args[0]); err != nil {
					fmt.Fprintf(w, "Error: %v\n", err)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Check again whenever the descriptor changes")

	return cmd
}

func printCheck(ctx context.Context, w io.Writer, service *runtime.Service, name string) error {
	d, cmds, err := service.Check(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "descriptor:    %s\n", d.Path)
	fmt.Fprintf(w, "password file: %s\n", d.PasswordFile)
	if d.URL != "" {
		fmt.Fprintf(w, "url:           %s\n", d.URL)
	} else {
		fmt.Fprintln(w, "url:           (none, select will fail)")
	}
	if len(cmds) == 0 {
		fmt.Fprintln(w, "script:        (empty)")
		return nil
	}

	fmt.Fprintln(w, "script:")
	var cmdArgs []string
	for i, c := range cmds {
		note := ""
		switch strings.ToLower(c.Name) {
		case script.CmdTypeDelay, script.CmdType, script.CmdKey, script.CmdNotify, script.CmdSleep:
		default:
			note = "  (ignored)"
		}
		fmt.Fprintf(w, "  %2d  %s: %s%s\n", i+1, c.Name, c.Arg, note)
		cmdArgs = append(cmdArgs, c.Arg)
	}
	if names := script.Placeholders(strings.Join(cmdArgs, "\n")); len(names) > 0 {
		fmt.Fprintf(w, "placeholders:  %s\n", strings.Join(names, ", "))
	}
	return nil
}
