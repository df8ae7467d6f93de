package account

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every lookup failure: a missing descriptor, a
// path that escapes the base directory, or a missing secret file.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a descriptor lookup that failed, with every path
// variant that was tried.
type NotFoundError struct {
	Base      string
	Attempted []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("couldn't find %s in %s", strings.Join(e.Attempted, " or "), e.Base)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// MissingFileError reports a file that vanished after resolution or a secret
// file that does not exist.
type MissingFileError struct {
	Kind string
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("couldn't find %s file: %s", e.Kind, e.Path)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *MissingFileError) Is(target error) bool {
	return target == ErrNotFound
}
