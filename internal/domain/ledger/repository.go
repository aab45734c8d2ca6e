package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	// LockBalance reads the cached balance while holding a lock on the
	// wallet row until the caller's atomic unit ends, creating a zero
	// balance for a previously unseen user. Concurrent mutations on the
	// same (ledger, user) pair serialize on this lock.
	LockBalance(ctx context.Context, name Name, userID string) (decimal.Decimal, error)
	Append(ctx context.Context, tx *Transaction) error
	SaveBalance(ctx context.Context, name Name, userID string, balance decimal.Decimal) error

	Balance(ctx context.Context, name Name, userID string) (decimal.Decimal, error)
	Transactions(ctx context.Context, name Name, userID string) ([]*Transaction, error)
}
