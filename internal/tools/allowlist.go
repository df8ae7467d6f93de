package tools

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
)

// ErrBinaryNotAllowed indicates a binary is not in the allowlist.
type ErrBinaryNotAllowed struct {
	Binary string
}

func (e *ErrBinaryNotAllowed) Error() string {
	return fmt.Sprintf("binary %q not in allowlist", e.Binary)
}

// ErrBinaryNotFound indicates a binary is in the allowlist but not on the system.
type ErrBinaryNotFound struct {
	Binary string
}

func (e *ErrBinaryNotFound) Error() string {
	return fmt.Sprintf("binary %q not found on system", e.Binary)
}

// ErrNoAllowlist indicates no allowlist is configured and all execution is blocked.
type ErrNoAllowlist struct{}

func (e *ErrNoAllowlist) Error() string {
	return "command execution blocked: no allowlist configured. Set allowed_commands in the keyreplay config."
}

// ValidateBinary checks if a binary name is permitted by the allowlist and
// present on the system. A nil or empty allowlist blocks every binary.
func ValidateBinary(binary string, allowlist []string) error {
	if len(allowlist) == 0 {
		return &ErrNoAllowlist{}
	}

	baseName := filepath.Base(binary)
	if !slices.Contains(allowlist, baseName) {
		return &ErrBinaryNotAllowed{Binary: baseName}
	}

	if _, err := exec.LookPath(binary); err != nil {
		return &ErrBinaryNotFound{Binary: baseName}
	}

	return nil
}
