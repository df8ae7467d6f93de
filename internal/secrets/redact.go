package secrets

import (
	"context"
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Redacted replaces secret values in logs and printed output.
const Redacted = "***REDACTED***"

// RedactFilter wraps a slog handler to scrub decrypted secret values from log
// output. Values are registered as soon as a secret file is decrypted.
type RedactFilter struct {
	inner   slog.Handler
	mu      *sync.RWMutex
	secrets map[string]bool
}

// NewRedactFilter creates a log handler that redacts known secret values.
func NewRedactFilter(inner slog.Handler) *RedactFilter {
	return &RedactFilter{
		inner:   inner,
		mu:      &sync.RWMutex{},
		secrets: make(map[string]bool),
	}
}

// AddSecret registers a value to be redacted from log output.
func (f *RedactFilter) AddSecret(value string) {
	if value == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[value] = true
}

// AddData registers every value of decrypted secret data.
func (f *RedactFilter) AddData(data map[string]string) {
	for _, v := range data {
		f.AddSecret(v)
	}
}

// Enabled delegates to the inner handler.
func (f *RedactFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.inner.Enabled(ctx, level)
}

// Handle redacts secret values from the message and string attributes.
func (f *RedactFilter) Handle(ctx context.Context, record slog.Record) error {
	secrets := f.snapshot()
	if len(secrets) == 0 {
		return f.inner.Handle(ctx, record)
	}

	redacted := slog.NewRecord(record.Time, record.Level, replaceAll(record.Message, secrets), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a, secrets))
		return true
	})

	return f.inner.Handle(ctx, redacted)
}

// WithAttrs shares the parent's secret set so AddSecret reaches every child.
func (f *RedactFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactFilter{
		inner:   f.inner.WithAttrs(attrs),
		mu:      f.mu,
		secrets: f.secrets,
	}
}

// WithGroup shares the parent's secret set so AddSecret reaches every child.
func (f *RedactFilter) WithGroup(name string) slog.Handler {
	return &RedactFilter{
		inner:   f.inner.WithGroup(name),
		mu:      f.mu,
		secrets: f.secrets,
	}
}

// RedactString replaces any known secret values in s.
func (f *RedactFilter) RedactString(s string) string {
	return replaceAll(s, f.snapshot())
}

// snapshot returns the known secrets, longest first, so a secret containing
// another is replaced whole.
func (f *RedactFilter) snapshot() []string {
	f.mu.RLock()
	secrets := make([]string, 0, len(f.secrets))
	for s := range f.secrets {
		secrets = append(secrets, s)
	}
	f.mu.RUnlock()
	slices.SortFunc(secrets, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	return secrets
}

func redactAttr(a slog.Attr, secrets []string) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, replaceAll(a.Value.String(), secrets))
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]any, len(attrs))
		for i, ga := range attrs {
			out[i] = redactAttr(ga, secrets)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, replaceAll(err.Error(), secrets))
		}
	}
	return a
}

func replaceAll(s string, secrets []string) string {
	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return s
}
