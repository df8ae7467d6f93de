package automation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/szaher/designs/keyreplay/internal/tools"
)

// DefaultNotifyDuration is how long notifications stay on screen.
const DefaultNotifyDuration = 10 * time.Second

// XdotoolConfig names the binaries used by Xdotool.
type XdotoolConfig struct {
	Xdotool        string
	NotifySend     string
	NotifyDuration time.Duration
}

// Xdotool is a Sink backed by the xdotool and notify-send commands.
type Xdotool struct {
	runner tools.Runner
	config XdotoolConfig
}

// NewXdotool creates an X11 sink. Empty config fields take their defaults.
func NewXdotool(runner tools.Runner, config XdotoolConfig) *Xdotool {
	if config.Xdotool == "" {
		config.Xdotool = "xdotool"
	}
	if config.NotifySend == "" {
		config.NotifySend = "notify-send"
	}
	if config.NotifyDuration <= 0 {
		config.NotifyDuration = DefaultNotifyDuration
	}
	return &Xdotool{runner: runner, config: config}
}

// TypeText runs "xdotool type --delay <ms> -- <text>".
func (x *Xdotool) TypeText(ctx context.Context, text string, delay time.Duration) error {
	ms := strconv.FormatInt(delay.Milliseconds(), 10)
	if _, err := x.runner.Run(ctx, x.config.Xdotool, "type", "--delay", ms, "--", text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

// SendKey runs "xdotool key -- <key>".
func (x *Xdotool) SendKey(ctx context.Context, key string) error {
	if _, err := x.runner.Run(ctx, x.config.Xdotool, "key", "--", key); err != nil {
		return fmt.Errorf("send key %q: %w", key, err)
	}
	return nil
}

// Notify runs "notify-send -t <ms> -- <text>".
func (x *Xdotool) Notify(ctx context.Context, text string) error {
	ms := strconv.FormatInt(x.config.NotifyDuration.Milliseconds(), 10)
	if _, err := x.runner.Run(ctx, x.config.NotifySend, "-t", ms, "--", text); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
