// Package secrets decrypts account secret files into key/value data.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/szaher/designs/keyreplay/internal/parser"
)

// ErrDecryptFailed is matched by every decryption failure, including a
// backend that succeeded but produced no key/value data.
var ErrDecryptFailed = errors.New("decryption failed")

// Decrypter turns an encrypted secret file into key/value data.
type Decrypter interface {
	Decrypt(ctx context.Context, path string) (map[string]string, error)
}

// DecryptError wraps a backend failure for one file.
type DecryptError struct {
	Path string
	Err  error
}

func (e *DecryptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decryption failed for %s", e.Path)
	}
	return fmt.Sprintf("decryption failed for %s: %v", e.Path, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecryptFailed) hold.
func (e *DecryptError) Is(target error) bool {
	return target == ErrDecryptFailed
}

// parsePlaintext parses decrypted text with the descriptor line format.
func parsePlaintext(path string, plaintext []byte) (map[string]string, error) {
	data := parser.ParseMap(string(plaintext))
	if len(data) == 0 {
		return nil, &DecryptError{Path: path}
	}
	return data, nil
}

// ByExtension routes each file to a backend chosen by its extension.
type ByExtension struct {
	backends map[string]Decrypter
	fallback Decrypter
}

// NewByExtension creates a router that uses fallback for unknown extensions.
// fallback may be nil, in which case unknown extensions fail.
func NewByExtension(fallback Decrypter) *ByExtension {
	return &ByExtension{backends: make(map[string]Decrypter), fallback: fallback}
}

// Register assigns d to files ending in ext (for example ".age").
func (b *ByExtension) Register(ext string, d Decrypter) {
	b.backends[strings.ToLower(ext)] = d
}

// Decrypt dispatches to the backend registered for path's extension.
func (b *ByExtension) Decrypt(ctx context.Context, path string) (map[string]string, error) {
	d, ok := b.backends[strings.ToLower(filepath.Ext(path))]
	if !ok {
		d = b.fallback
	}
	if d == nil {
		return nil, &DecryptError{Path: path, Err: fmt.Errorf("no backend for %q files", filepath.Ext(path))}
	}
	return d.Decrypt(ctx, path)
}
