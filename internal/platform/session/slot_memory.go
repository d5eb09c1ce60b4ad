package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend holds one credential in process memory. Handles opened from
// the same backend behave like independent clients sharing a store, which is
// what tests and the in-process sandbox need.
type MemoryBackend struct {
	mu       sync.RWMutex
	token    string
	present  bool
	watchers map[*memoryWatcher]struct{}
}

type memoryWatcher struct {
	origin string
	ch     chan Change
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{watchers: make(map[*memoryWatcher]struct{})}
}

// Open returns a new handle on the backend with a fresh origin.
func (b *MemoryBackend) Open() Slot {
	return &memorySlot{backend: b, origin: uuid.New().String()}
}

// broadcast notifies every watcher except those belonging to the writer.
// Callers hold b.mu.
func (b *MemoryBackend) broadcast(origin string) {
	c := Change{Origin: origin, At: time.Now()}
	for w := range b.watchers {
		if w.origin == origin {
			continue
		}
		notify(w.ch, c)
	}
}

type memorySlot struct {
	backend *MemoryBackend
	origin  string
}

func (s *memorySlot) Origin() string { return s.origin }

func (s *memorySlot) Load(_ context.Context) (string, bool, error) {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()
	return s.backend.token, s.backend.present, nil
}

func (s *memorySlot) Store(_ context.Context, token string) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token, b.present = token, true
	b.broadcast(s.origin)
	return nil
}

func (s *memorySlot) Clear(_ context.Context) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.present {
		return nil
	}
	b.token, b.present = "", false
	b.broadcast(s.origin)
	return nil
}

func (s *memorySlot) Watch(ctx context.Context) (<-chan Change, error) {
	w := &memoryWatcher{origin: s.origin, ch: make(chan Change, changeBuffer)}

	b := s.backend
	b.mu.Lock()
	b.watchers[w] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.watchers, w)
		close(w.ch)
		b.mu.Unlock()
	}()
	return w.ch, nil
}
