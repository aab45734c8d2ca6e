package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	// NextSequence returns the next value of the per-period order counter,
	// atomically within the caller's unit. period is a YYYYMMDD day key.
	NextSequence(ctx context.Context, period string) (int, error)
}
