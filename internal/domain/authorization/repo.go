package authorization

import "context"

// Repository stores authorization requests for the sandbox API.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	List(ctx context.Context) ([]*Request, error)
}
