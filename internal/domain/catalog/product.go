package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("catalog: product not found")
	ErrInvalidQuantity = errors.New("catalog: quantity must be greater than zero")
)

// InsufficientStockError names the product and what is actually left, so
// callers can report which line of an order cannot be fulfilled.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Product is a read-only catalog record from the order core's point of view.
// AvailableQty is the only field the core mutates, and only through the
// repository's stock operations inside an order's atomic unit.
type Product struct {
	ID            string
	Name          string
	UnitPrice     decimal.Decimal
	StemsPerBunch int
	AvailableQty  int
}

func (p *Product) CheckStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.AvailableQty {
		return &InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.AvailableQty}
	}
	return nil
}
