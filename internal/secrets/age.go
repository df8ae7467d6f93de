package secrets

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Age decrypts age-encrypted files, binary or ASCII armored, with the
// identities from an age identity file.
type Age struct {
	identities []age.Identity
}

// NewAge loads the identities in identityFile.
func NewAge(identityFile string) (*Age, error) {
	f, err := os.Open(identityFile)
	if err != nil {
		return nil, fmt.Errorf("opening age identity file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity file %s: %w", identityFile, err)
	}
	return &Age{identities: identities}, nil
}

// NewAgeWithIdentities creates a backend from already parsed identities.
func NewAgeWithIdentities(identities ...age.Identity) *Age {
	return &Age{identities: identities}
}

// Decrypt reads and decrypts path. ctx is unused; age decryption does not block
// on anything external.
func (a *Age) Decrypt(_ context.Context, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecryptError{Path: path, Err: err}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var src io.Reader = br
	if peek, _ := br.Peek(len(armor.Header)); string(peek) == armor.Header {
		src = armor.NewReader(br)
	}

	r, err := age.Decrypt(src, a.identities...)
	if err != nil {
		return nil, &DecryptError{Path: path, Err: err}
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecryptError{Path: path, Err: err}
	}
	return parsePlaintext(path, plaintext)
}
