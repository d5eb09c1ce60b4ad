package session

import (
	"context"
	"errors"
	"time"
)

// ErrSlotClosed is returned by operations on a slot whose backend was closed.
var ErrSlotClosed = errors.New("credential slot closed")

// Change notifies a watcher that the persisted credential was written or
// cleared. Origin is the handle that made the change, when the backend can
// tell; an empty Origin means unknown.
type Change struct {
	Origin string
	At     time.Time
}

// Slot is the single persisted location of the credential, shared by every
// client process pointed at the same backend. Each Slot value is one handle
// with its own Origin.
type Slot interface {
	// Origin identifies this handle in Change notifications.
	Origin() string
	// Load returns the persisted token and whether one is present.
	Load(ctx context.Context) (string, bool, error)
	Store(ctx context.Context, token string) error
	// Clear removes the credential. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
	// Watch delivers changes made through other handles until ctx is done,
	// then closes the channel. Bursts may be coalesced.
	Watch(ctx context.Context) (<-chan Change, error)
}

// changeBuffer is the per-watcher queue depth. A watcher only needs to know
// that something changed, so a full queue drops the newer notification.
const changeBuffer = 4

func notify(ch chan Change, c Change) {
	select {
	case ch <- c:
	default:
	}
}
