// Package account maps user supplied account names onto descriptor files
// confined to a base directory and loads them.
package account

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extensions tried, in order, when the account name does not resolve as is.
var Extensions = []string{".conf", ".txt"}

// DefaultSecretExtension is appended to a descriptor path, minus its own
// extension, when the descriptor does not name its secret file.
const DefaultSecretExtension = ".gpg"

// Store resolves and loads account descriptors below a base directory.
type Store struct {
	base      string
	secretExt string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSecretExtension overrides the extension used to derive secret file paths.
func WithSecretExtension(ext string) StoreOption {
	return func(s *Store) {
		if ext != "" {
			s.secretExt = ext
		}
	}
}

// NewStore creates a Store rooted at baseDir. The base directory must exist;
// its canonical form is what resolved paths are compared against.
func NewStore(baseDir string, opts ...StoreOption) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("account store: base directory is required")
	}
	base, err := canonical(baseDir)
	if err != nil {
		return nil, fmt.Errorf("account store: %w", err)
	}
	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("account store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("account store: %s is not a directory", base)
	}

	s := &Store{base: base, secretExt: DefaultSecretExtension}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Base returns the canonical base directory.
func (s *Store) Base() string {
	return s.base
}

// Resolve turns userPath into the canonical path of an existing descriptor
// inside the base directory. When userPath does not exist as given, each of
// Extensions is appended in turn, skipping one the path already ends with.
//
// The comparison against the base is a plain string prefix check on canonical
// paths, so symlinks and ".." segments are collapsed before it happens.
func (s *Store) Resolve(userPath string) (string, error) {
	joined := s.base + "/" + userPath
	attempted := []string{joined}

	resolved, err := canonical(joined)
	if err != nil {
		for _, ext := range Extensions {
			if strings.HasSuffix(joined, ext) {
				continue
			}
			candidate := joined + ext
			attempted = append(attempted, candidate)
			if resolved, err = canonical(candidate); err == nil {
				break
			}
		}
	}

	if err != nil || !strings.HasPrefix(resolved, s.base) {
		return "", &NotFoundError{Base: s.base, Attempted: attempted}
	}
	return resolved, nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
