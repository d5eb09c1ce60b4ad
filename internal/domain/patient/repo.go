package patient

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when no patient has the given id.
var ErrNotFound = errors.New("patient not found")

// Repository stores patients for the sandbox API.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
