package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/szaher/designs/keyreplay/internal/account"
	"github.com/szaher/designs/keyreplay/internal/automation"
	"github.com/szaher/designs/keyreplay/internal/config"
	"github.com/szaher/designs/keyreplay/internal/runtime"
	"github.com/szaher/designs/keyreplay/internal/secrets"
	"github.com/szaher/designs/keyreplay/internal/session"
	"github.com/szaher/designs/keyreplay/internal/telemetry"
	"github.com/szaher/designs/keyreplay/internal/tools"
)

// app holds everything a command needs, built from the config file, the
// environment and the global flags.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	redactor *secrets.RedactFilter
	metrics  *telemetry.Metrics
	accounts *account.Store
	service  *runtime.Service
}

type appOptions struct {
	// sink replaces the xdotool sink when set.
	sink automation.Sink

	// memorySession keeps the selected account in process memory instead
	// of the session file.
	memorySession bool

	// noDelays skips the go delay and every sleep command.
	noDelays bool

	logOutput io.Writer
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	redactor := secrets.NewRedactFilter(telemetry.NewHandler(opts.logOutput, level, jsonLogs))
	logger := slog.New(redactor)

	accounts, err := account.NewStore(cfg.BaseDir, account.WithSecretExtension(cfg.SecretExtension))
	if err != nil {
		return nil, err
	}

	gpgRunner := tools.NewCommandRunner(cfg.Automation.AllowedCommands, cfg.GPG.Timeout.Std())
	decrypter := secrets.NewByExtension(secrets.NewGPG(gpgRunner, cfg.GPG.Binary, cfg.GPG.Home))
	if cfg.Age.IdentityFile != "" {
		ageDecrypter, err := secrets.NewAge(cfg.Age.IdentityFile)
		if err != nil {
			return nil, err
		}
		decrypter.Register(".age", ageDecrypter)
	}

	sink := opts.sink
	if sink == nil {
		sink = automation.NewXdotool(tools.NewCommandRunner(cfg.Automation.AllowedCommands, 0), automation.XdotoolConfig{
			Xdotool:        cfg.Automation.Xdotool,
			NotifySend:     cfg.Automation.NotifySend,
			NotifyDuration: cfg.Automation.NotifyDuration.Std(),
		})
	}

	var slot session.Store
	if opts.memorySession {
		slot = session.NewMemoryStore(cfg.Session.Expiry.Std())
	} else {
		slot = session.NewFileStore(cfg.Session.File, cfg.Session.Expiry.Std())
	}

	metrics := telemetry.NewMetrics()
	svcOpts := runtime.Options{
		Accounts:      accounts,
		Decrypter:     secrets.NewShared(decrypter),
		Sink:          sink,
		Slot:          slot,
		Logger:        logger,
		Redactor:      redactor,
		Metrics:       metrics,
		DefaultScript: cfg.DefaultScript,
		GoDelay:       cfg.GoDelay.Std(),
		TypeDelay:     cfg.TypeDelay.Std(),
	}
	if opts.noDelays {
		svcOpts.GoDelay = 0
		svcOpts.Sleeper = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	}

	service, err := runtime.NewService(svcOpts)
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}

	logger.Debug("configuration loaded", "base_dir", accounts.Base(), "session_file", cfg.Session.File)
	return &app{
		cfg:      cfg,
		logger:   logger,
		redactor: redactor,
		metrics:  metrics,
		accounts: accounts,
		service:  service,
	}, nil
}

// commandContext returns a context carrying the correlation ID that is
// cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signalContext()
	return telemetry.WithCorrelationID(ctx, correlationID), cancel
}
