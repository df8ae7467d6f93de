// Package script interprets account login scripts.
//
// A script is a sequence of "command: argument" lines. Arguments may contain
// <<name>> placeholders that are replaced with the account's secret values
// before the command runs. Commands run strictly in order on the caller's
// goroutine; sleep blocks the whole run.
package script

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/szaher/designs/keyreplay/internal/automation"
	"github.com/szaher/designs/keyreplay/internal/parser"
)

// DefaultTypeDelay is the per-character typing delay a run starts with.
const DefaultTypeDelay = 12 * time.Millisecond

// Command names understood by the interpreter. Matching is case-insensitive.
const (
	CmdTypeDelay = "typedelay"
	CmdType      = "type"
	CmdKey       = "key"
	CmdNotify    = "notify"
	CmdSleep     = "sleep"
)

var placeholder = regexp.MustCompile(`<<(\w+)>>`)

// Command is one line of a parsed script.
type Command struct {
	Name string
	Arg  string
}

// Commands expands a standard script name and parses the body into commands
// in source order.
func Commands(source string) []Command {
	entries := parser.Parse(Expand(source))
	cmds := make([]Command, len(entries))
	for i, e := range entries {
		cmds[i] = Command{Name: e.Key, Arg: e.Value}
	}
	return cmds
}

// Substitute replaces every <<name>> in s with data[name]. Placeholders
// without a value are left exactly as written.
func Substitute(s string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := data[m[2:len(m)-2]]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct placeholder names used in s, in order of
// first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Interpreter runs scripts against an automation sink.
type Interpreter struct {
	sink      automation.Sink
	sleep     Sleeper
	typeDelay time.Duration
	logger    *slog.Logger
	onCommand func(name string)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = logger }
}

// WithSleeper replaces the function used by the sleep command.
func WithSleeper(s Sleeper) Option {
	return func(in *Interpreter) { in.sleep = s }
}

// WithTypeDelay sets the typing delay each run starts with.
func WithTypeDelay(d time.Duration) Option {
	return func(in *Interpreter) { in.typeDelay = d }
}

// WithCommandHook registers fn to be called with the lower-cased name of
// every command before it is dispatched.
func WithCommandHook(fn func(name string)) Option {
	return func(in *Interpreter) { in.onCommand = fn }
}

// New creates an Interpreter that sends input to sink.
func New(sink automation.Sink, opts ...Option) *Interpreter {
	in := &Interpreter{
		sink:      sink,
		sleep:     Sleep,
		typeDelay: DefaultTypeDelay,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run executes source with data substituted into its placeholders. Unknown
// commands are skipped. Sink failures are logged and the run continues. Run
// returns early only when ctx is done; input already sent stays sent.
func (in *Interpreter) Run(ctx context.Context, source string, data map[string]string) error {
	delay := in.typeDelay

	for i, cmd := range Commands(source) {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := strings.ToLower(cmd.Name)
		arg := Substitute(cmd.Arg, data)
		if in.onCommand != nil {
			in.onCommand(name)
		}
		in.logger.Debug("script command", "line", i+1, "command", name)

		var err error
		switch name {
		case CmdTypeDelay:
			delay = time.Duration(leadingInt(arg)) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
		case CmdType:
			err = in.sink.TypeText(ctx, arg, delay)
		case CmdKey:
			err = in.sink.SendKey(ctx, arg)
		case CmdNotify:
			err = in.sink.Notify(ctx, arg)
		case CmdSleep:
			d, ok := parseSeconds(arg)
			if !ok {
				in.logger.Warn("invalid sleep duration, skipping", "line", i+1)
				continue
			}
			if err := in.sleep(ctx, d); err != nil {
				return err
			}
		default:
			in.logger.Debug("unknown script command ignored", "line", i+1, "command", name)
		}

		if err != nil {
			in.logger.Warn("automation command failed", "line", i+1, "command", name, "error", err)
		}
	}
	return nil
}

// leadingInt parses the optionally signed run of digits at the start of s,
// ignoring surrounding space and anything after the digits. It returns 0
// when there are none.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

const maxSleepSeconds = 24 * 60 * 60

// parseSeconds reads a non-negative, possibly fractional, number of seconds.
func parseSeconds(s string) (time.Duration, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !(f >= 0 && f <= maxSleepSeconds) {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
