// Package main is the entry point for the keyreplay CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags.
var (
	configPath    string
	baseDir       string
	verbose       bool
	jsonLogs      bool
	correlationID string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "keyreplay",
		Short: "Replay account login scripts into the focused window",
		Long: `Keyreplay reads account descriptors from a base directory, decrypts
their secret files, and types the account's login script into whatever
window has focus. It runs as a local HTTP service for bookmarklets and
hotkeys, or directly from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/keyreplay/config.yaml)")
	root.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Account base directory (overrides config and BASE_DIR)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON")
	root.PersistentFlags().StringVar(&correlationID, "correlation-id", "", "Set explicit correlation ID")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newSelectCmd())
	root.AddCommand(newGoCmd())
	root.AddCommand(newTOTPCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newCheckCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
