package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu         sync.RWMutex
	byUsername map[string]*Account
}

// NewMemoryRepo returns an in-process Repository. Usernames compare
// case-insensitively.
func NewMemoryRepo() Repository {
	return &memoryRepo{byUsername: make(map[string]*Account)}
}

func (r *memoryRepo) Create(_ context.Context, a *Account) error {
	key := strings.ToLower(a.Username)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[key]; ok {
		return ErrUsernameTaken
	}
	a.ID = uuid.New().String()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	r.byUsername[key] = &cp
	return nil
}

func (r *memoryRepo) GetByUsername(_ context.Context, username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}
