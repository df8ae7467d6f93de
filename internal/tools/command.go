// Package tools runs the external helper binaries (gpg, xdotool,
// notify-send) that back decryption and input automation.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Runner executes a binary with an argument vector and returns its stdout.
// Arguments are passed to the process as-is; nothing goes through a shell.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// CommandRunner runs allowlisted binaries as subprocesses.
type CommandRunner struct {
	// Allowlist names the binaries (by base name) that may be executed.
	Allowlist []string

	// Timeout bounds each invocation; zero means no limit.
	Timeout time.Duration

	// Env adds variables on top of the inherited environment.
	Env map[string]string
}

// NewCommandRunner creates a runner restricted to allowlist.
func NewCommandRunner(allowlist []string, timeout time.Duration) *CommandRunner {
	return &CommandRunner{Allowlist: allowlist, Timeout: timeout}
}

// Run executes binary with args. A non-zero exit status is returned as an
// error that includes the process's stderr.
func (r *CommandRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	if err := ValidateBinary(binary, r.Allowlist); err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	if len(r.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", binary, err, bytes.TrimSpace(stderr.Bytes()))
	}

	return stdout.Bytes(), nil
}
