// Package runtime ties descriptor loading, secret decryption, the session
// slot and the script interpreter together, and serves them over HTTP.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/szaher/designs/keyreplay/internal/account"
	"github.com/szaher/designs/keyreplay/internal/automation"
	"github.com/szaher/designs/keyreplay/internal/script"
	"github.com/szaher/designs/keyreplay/internal/secrets"
	"github.com/szaher/designs/keyreplay/internal/session"
	"github.com/szaher/designs/keyreplay/internal/telemetry"
)

// Version is the keyreplay release, overridden at build time with -ldflags.
var Version = "0.1.0"

// DefaultGoDelay is the pause before a replay starts typing, giving the
// user time to release the hotkey that triggered it.
const DefaultGoDelay = 500 * time.Millisecond

// ErrNoTOTP is returned when an account's secret data has no totp seed.
var ErrNoTOTP = errors.New("account has no totp seed")

// Options configures a Service. Accounts, Decrypter, Sink and Slot are
// required; everything else has a usable zero value.
type Options struct {
	Accounts  *account.Store
	Decrypter secrets.Decrypter
	Sink      automation.Sink
	Slot      session.Store

	Logger   *slog.Logger
	Redactor *secrets.RedactFilter
	Metrics  *telemetry.Metrics

	// DefaultScript is used for descriptors without a script key.
	DefaultScript string
	GoDelay       time.Duration
	TypeDelay     time.Duration

	Now     func() time.Time
	Sleeper script.Sleeper
}

// Service runs the account flows: select, go, run, totp and show.
type Service struct {
	accounts  *account.Store
	decrypter secrets.Decrypter
	sink      automation.Sink
	slot      session.Store

	logger   *slog.Logger
	redactor *secrets.RedactFilter
	metrics  *telemetry.Metrics

	defaultScript string
	goDelay       time.Duration
	typeDelay     time.Duration
	now           func() time.Time
	sleep         script.Sleeper

	// replayMu keeps two replays from typing into the same window at once.
	replayMu sync.Mutex
}

// NewService creates a service from opts.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Accounts == nil:
		return nil, errors.New("runtime: account store is required")
	case opts.Decrypter == nil:
		return nil, errors.New("runtime: decrypter is required")
	case opts.Sink == nil:
		return nil, errors.New("runtime: automation sink is required")
	case opts.Slot == nil:
		return nil, errors.New("runtime: session store is required")
	}

	s := &Service{
		accounts:      opts.Accounts,
		decrypter:     opts.Decrypter,
		sink:          opts.Sink,
		slot:          opts.Slot,
		logger:        opts.Logger,
		redactor:      opts.Redactor,
		metrics:       opts.Metrics,
		defaultScript: opts.DefaultScript,
		goDelay:       opts.GoDelay,
		typeDelay:     opts.TypeDelay,
		now:           opts.Now,
		sleep:         opts.Sleeper,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.typeDelay == 0 {
		s.typeDelay = script.DefaultTypeDelay
	}
	return s, nil
}

// Lookup loads the descriptor for name.
func (s *Service) Lookup(ctx context.Context, name string) (*account.Descriptor, error) {
	d, err := s.accounts.Load(name)
	switch {
	case err == nil:
		s.recordLookup("ok")
	case errors.Is(err, account.ErrNotFound):
		s.recordLookup("not_found")
	default:
		s.recordLookup("error")
	}
	if err != nil {
		telemetry.RequestLogger(ctx, s.logger, name).Debug("account lookup failed", "error", err)
		return nil, err
	}
	return d, nil
}

// Select remembers name in the session slot and returns the account's login
// URL. The slot is only written when the descriptor has a URL.
func (s *Service) Select(ctx context.Context, name string) (string, error) {
	d, err := s.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	if err := d.RequireURL(); err != nil {
		return "", err
	}
	if err := s.slot.Put(ctx, session.SlotAccount, name); err != nil {
		return "", fmt.Errorf("remember account: %w", err)
	}
	telemetry.RequestLogger(ctx, s.logger, name).Info("account selected", "url", d.URL)
	return d.URL, nil
}

// Selected returns the account remembered by the last Select.
func (s *Service) Selected(ctx context.Context) (string, error) {
	name, err := s.slot.Get(ctx, session.SlotAccount)
	if err != nil {
		return "", fmt.Errorf("no account selected: %w", err)
	}
	return name, nil
}

// Go replays the script of the remembered account.
func (s *Service) Go(ctx context.Context) error {
	name, err := s.Selected(ctx)
	if err != nil {
		return err
	}
	return s.Replay(ctx, name)
}

// Replay loads and decrypts name, waits for the go delay and runs the
// account's script against the sink. Replays never overlap.
func (s *Service) Replay(ctx context.Context, name string) error {
	logger := telemetry.RequestLogger(ctx, s.logger, name)

	d, err := s.Lookup(ctx, name)
	if err != nil {
		return err
	}
	data, err := s.Secrets(ctx, d)
	if err != nil {
		return err
	}

	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	if err := s.pause(ctx, s.goDelay); err != nil {
		s.recordRun("cancelled")
		return err
	}

	source := d.ScriptOrDefault(s.defaultScript)
	if source == "" {
		logger.Warn("account has no script", "descriptor", d.Path)
	}

	logger.Info("replaying script", "descriptor", d.Path)
	if err := s.interpreter(logger).Run(ctx, source, data); err != nil {
		s.recordRun("cancelled")
		return fmt.Errorf("replay %s: %w", name, err)
	}
	s.recordRun("ok")
	return nil
}

// Secrets decrypts the descriptor's secret file. Decrypted values are
// registered with the redactor before anything else sees them, and a totp
// seed is turned into the current code.
func (s *Service) Secrets(ctx context.Context, d *account.Descriptor) (map[string]string, error) {
	start := time.Now()
	data, err := s.decrypter.Decrypt(ctx, d.PasswordFile)
	if err == nil && len(data) == 0 {
		err = &secrets.DecryptError{Path: d.PasswordFile}
	}
	if err != nil {
		s.observeDecrypt("error", time.Since(start))
		return nil, err
	}
	s.observeDecrypt("ok", time.Since(start))

	if s.redactor != nil {
		s.redactor.AddData(data)
	}
	if err := secrets.ApplyTOTP(data, s.now()); err != nil {
		return nil, err
	}
	if s.redactor != nil {
		s.redactor.AddSecret(data[secrets.KeyTOTP])
	}
	return data, nil
}

// TOTP returns the current one-time code for name. An empty name or "null"
// means the remembered account.
func (s *Service) TOTP(ctx context.Context, name string) (string, error) {
	if name == "" || name == "null" {
		var err error
		if name, err = s.Selected(ctx); err != nil {
			return "", err
		}
	}

	d, err := s.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	data, err := s.Secrets(ctx, d)
	if err != nil {
		return "", err
	}
	code, ok := data[secrets.KeyTOTP]
	if !ok || code == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNoTOTP)
	}
	return code, nil
}

// Show loads and decrypts name without running anything.
func (s *Service) Show(ctx context.Context, name string) (*account.Descriptor, map[string]string, error) {
	d, err := s.Lookup(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Secrets(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	return d, data, nil
}

// Check loads name and returns the commands its script expands to, with
// placeholders left in place. Nothing is decrypted.
func (s *Service) Check(ctx context.Context, name string) (*account.Descriptor, []script.Command, error) {
	d, err := s.Lookup(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return d, script.Commands(d.ScriptOrDefault(s.defaultScript)), nil
}

// Redact replaces decrypted values seen so far in text.
func (s *Service) Redact(text string) string {
	if s.redactor == nil {
		return text
	}
	return s.redactor.RedactString(text)
}

func (s *Service) interpreter(logger *slog.Logger) *script.Interpreter {
	opts := []script.Option{
		script.WithLogger(logger),
		script.WithTypeDelay(s.typeDelay),
	}
	if s.sleep != nil {
		opts = append(opts, script.WithSleeper(s.sleep))
	}
	if s.metrics != nil {
		opts = append(opts, script.WithCommandHook(s.metrics.RecordCommand))
	}
	return script.New(s.sink, opts...)
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	return script.Sleep(ctx, d)
}

func (s *Service) recordLookup(result string) {
	if s.metrics != nil {
		s.metrics.RecordLookup(result)
	}
}

func (s *Service) recordRun(status string) {
	if s.metrics != nil {
		s.metrics.RecordScriptRun(status)
	}
}

func (s *Service) observeDecrypt(status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveDecrypt(status, d)
	}
}
