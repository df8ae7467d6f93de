package secrets

import (
	"context"
	"maps"

	"golang.org/x/sync/singleflight"
)

// Shared coalesces concurrent decryptions of the same file into one backend
// call, so a single hardware confirmation serves every waiting request. Each
// caller gets its own copy of the data.
type Shared struct {
	inner Decrypter
	group singleflight.Group
}

// NewShared wraps inner.
func NewShared(inner Decrypter) *Shared {
	return &Shared{inner: inner}
}

// Decrypt decrypts path, joining an in-flight decryption of it if one exists.
// A caller giving up only stops its own wait; the shared decryption keeps
// running for the others.
func (s *Shared) Decrypt(ctx context.Context, path string) (map[string]string, error) {
	ch := s.group.DoChan(path, func() (interface{}, error) {
		return s.inner.Decrypt(context.WithoutCancel(ctx), path)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return maps.Clone(res.Val.(map[string]string)), nil
	}
}
