package authorization

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items []*Request
}

// NewMemoryRepo returns an in-process Repository.
func NewMemoryRepo() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Create(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req.ID = uuid.New().String()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	cp := *req
	r.items = append(r.items, &cp)
	return nil
}

func (r *memoryRepo) List(_ context.Context) ([]*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Request, 0, len(r.items))
	for i := len(r.items) - 1; i >= 0; i-- {
		cp := *r.items[i]
		out = append(out, &cp)
	}
	return out, nil
}
