package account

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/szaher/designs/keyreplay/internal/parser"
)

// Recognized descriptor keys.
const (
	KeyScript       = "script"
	KeyPasswordFile = "passwordFile"
	KeyURL          = "url"
)

// ErrNoURL is returned by RequireURL for a descriptor without a url key.
var ErrNoURL = errors.New("descriptor has no url")

// Descriptor is the loaded configuration of one account.
type Descriptor struct {
	// Path is the canonical path of the descriptor file.
	Path string

	// Script is either a script body or the name of a standard script.
	// It is empty when the descriptor has no script key.
	Script string

	// PasswordFile is the encrypted secret file for the account.
	PasswordFile string

	// URL is the login page the selection flow redirects to.
	URL string

	// Extra holds any keys not listed above.
	Extra map[string]string
}

// HasScript reports whether the descriptor declared a script.
func (d *Descriptor) HasScript() bool {
	return d.Script != ""
}

// ScriptOrDefault returns the descriptor's script, or name when it has none.
func (d *Descriptor) ScriptOrDefault(name string) string {
	if d.Script != "" {
		return d.Script
	}
	return name
}

// RequireURL fails when the descriptor has no redirect target.
func (d *Descriptor) RequireURL() error {
	if d.URL == "" {
		return fmt.Errorf("%s: %w", d.Path, ErrNoURL)
	}
	return nil
}

// Load resolves userPath and reads the descriptor it points at. The secret
// file is derived from the descriptor path when not given, and must exist.
func (s *Store) Load(userPath string) (*Descriptor, error) {
	path, err := s.Resolve(userPath)
	if err != nil {
		return nil, fmt.Errorf("load account %q: %w", userPath, err)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, &MissingFileError{Kind: "config", Path: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor %s: %w", path, err)
	}

	values := parser.ParseMap(string(data))
	d := &Descriptor{
		Path:   path,
		Script: values[KeyScript],
		URL:    values[KeyURL],
		Extra:  make(map[string]string),
	}
	for k, v := range values {
		switch k {
		case KeyScript, KeyPasswordFile, KeyURL:
		default:
			d.Extra[k] = v
		}
	}

	if pf, ok := values[KeyPasswordFile]; ok {
		d.PasswordFile = pf
		if !filepath.IsAbs(pf) {
			d.PasswordFile = filepath.Join(filepath.Dir(path), pf)
		}
	} else {
		d.PasswordFile = stripExtension(path) + s.secretExt
	}

	if _, err := os.Stat(d.PasswordFile); err != nil {
		return nil, &MissingFileError{Kind: "password", Path: d.PasswordFile}
	}

	return d, nil
}

// stripExtension removes the text after the final '.', as long as that dot
// is part of the file name rather than a directory.
func stripExtension(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || strings.ContainsRune(path[dot:], '/') || dot == len(path)-1 {
		return path
	}
	return path[:dot]
}
