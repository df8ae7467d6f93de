package secrets

import (
	"context"
	"os"

	"github.com/szaher/designs/keyreplay/internal/tools"
)

// GPG decrypts files with the gpg command line tool. With a hardware key the
// call blocks until the user confirms on the device.
type GPG struct {
	runner tools.Runner
	binary string
	home   string
}

// NewGPG creates a gpg backend. home is passed as --homedir when non-empty.
func NewGPG(runner tools.Runner, binary, home string) *GPG {
	if binary == "" {
		binary = "gpg"
	}
	return &GPG{runner: runner, binary: binary, home: home}
}

// Decrypt runs "gpg [--homedir home] --quiet --decrypt path".
func (g *GPG) Decrypt(ctx context.Context, path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DecryptError{Path: path, Err: err}
	}

	var args []string
	if g.home != "" {
		args = append(args, "--homedir", g.home)
	}
	args = append(args, "--quiet", "--decrypt", path)

	out, err := g.runner.Run(ctx, g.binary, args...)
	if err != nil {
		return nil, &DecryptError{Path: path, Err: err}
	}
	return parsePlaintext(path, out)
}
