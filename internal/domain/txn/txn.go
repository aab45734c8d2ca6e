package txn

import "context"

// Runner executes fn as one atomic unit. Every repository call made with the
// context passed to fn joins the same unit; if fn returns an error, every
// side effect inside the unit is rolled back.
type Runner interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}
