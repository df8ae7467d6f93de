// Package session remembers small values between requests, such as the
// account picked on the selection page that a later replay request uses.
//
// A Store holds named slots, and the application uses a single slot
// (SlotAccount) for everyone: two concurrent selections overwrite each other
// and the last writer wins. Values are not guaranteed to survive a restart.
package session

import (
	"context"
	"errors"
)

// SlotAccount is the slot holding the most recently selected account.
const SlotAccount = "account"

// ErrEmpty is returned by Get for a slot that was never written or expired.
var ErrEmpty = errors.New("session slot is empty")

// Store reads and writes named slots.
type Store interface {
	// Put replaces the value of slot.
	Put(ctx context.Context, slot, value string) error

	// Get returns the value of slot, or ErrEmpty.
	Get(ctx context.Context, slot string) (string, error)
}
