// Package automation delivers simulated user input to the desktop.
package automation

import (
	"context"
	"time"
)

// Sink receives the input produced by a script. Implementations should not
// retain text after returning; it usually contains secrets.
type Sink interface {
	// TypeText types text, pausing delay between characters.
	TypeText(ctx context.Context, text string, delay time.Duration) error

	// SendKey sends a key or key chord by name, e.g. "Return" or "ctrl+l".
	SendKey(ctx context.Context, key string) error

	// Notify shows a transient desktop notification.
	Notify(ctx context.Context, text string) error
}
