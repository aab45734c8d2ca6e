package catalog

import "context"

type Repository interface {
	Get(ctx context.Context, productID string) (*Product, error)
	// DecrementStock fails with InsufficientStockError when quantity exceeds
	// the available amount. Must run inside the caller's atomic unit.
	DecrementStock(ctx context.Context, productID string, quantity int) error
	RestoreStock(ctx context.Context, productID string, quantity int) error
}
