package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/designs/keyreplay/internal/runtime"
)

func newServeCmd() *cobra.Command {
	var (
		listen        string
		memorySession bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP service",
		Long: `Serve answers the bookmarklet and hotkey endpoints:

  GET /?account=<name>           remember the account and redirect to its url
  GET /?mode=go                  replay the remembered account
  GET /?mode=totp&account=<name> show the current one-time code
  GET /healthz, GET /metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{memorySession: memorySession})
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.cfg.Listen
			}

			srv := runtime.NewServer(a.service,
				runtime.WithLogger(a.logger),
				runtime.WithMetricsHandler(a.metrics.Handler()),
			)

			ctx, cancel := signalContext()
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(listen) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&memorySession, "memory-session", false, "Remember the selected account in memory instead of the session file")

	return cmd
}
