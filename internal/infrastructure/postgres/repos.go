package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/catalog"
	"github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/payment"
)

// Port accessors. The store is one type; these expose it per repository
// interface so the services stay coupled to the domain ports only.

func (s *Store) Products() catalog.Repository { return &productRepo{s} }
func (s *Store) Buyers() buyer.Repository     { return &buyerRepo{s} }
func (s *Store) Orders() order.Repository     { return &orderRepo{s} }
func (s *Store) Ledgers() ledger.Repository   { return &ledgerRepo{s} }
func (s *Store) Payments() payment.Repository { return &paymentRepo{s} }
func (s *Store) Invoices() invoice.Repository { return &invoiceRepo{s} }

func scanDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}

// --- catalog ---

type productRepo struct{ s *Store }

func (r *productRepo) Get(ctx context.Context, productID string) (*catalog.Product, error) {
	query := `SELECT id, name, unit_price, stems_per_bunch, available_qty
		FROM products WHERE id = $1`
	if inTx(ctx) {
		query += ` FOR UPDATE`
	}

	var (
		p        catalog.Product
		rawPrice string
	)
	err := r.s.q(ctx).QueryRowContext(ctx, query, productID).
		Scan(&p.ID, &p.Name, &rawPrice, &p.StemsPerBunch, &p.AvailableQty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get product: %w", err)
	}
	if p.UnitPrice, err = scanDecimal(rawPrice); err != nil {
		return nil, fmt.Errorf("postgres: product %s unit price: %w", productID, err)
	}
	return &p, nil
}

func (r *productRepo) DecrementStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return catalog.ErrInvalidQuantity
	}
	res, err := r.s.q(ctx).ExecContext(ctx,
		`UPDATE products SET available_qty = available_qty - $2
		 WHERE id = $1 AND available_qty >= $2`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("postgres: decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// Distinguish a missing product from a short row.
	p, err := r.Get(ctx, productID)
	if err != nil {
		return err
	}
	return &catalog.InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.AvailableQty}
}

func (r *productRepo) RestoreStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return catalog.ErrInvalidQuantity
	}
	res, err := r.s.q(ctx).ExecContext(ctx,
		`UPDATE products SET available_qty = available_qty + $2 WHERE id = $1`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("postgres: restore stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// --- buyer ---

type buyerRepo struct{ s *Store }

func (r *buyerRepo) Get(ctx context.Context, userID string) (*buyer.Profile, error) {
	var p buyer.Profile
	err := r.s.q(ctx).QueryRowContext(ctx,
		`SELECT user_id, company_name, first_name, last_name, tax_id, address
		 FROM buyer_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.CompanyName, &p.FirstName, &p.LastName, &p.TaxID, &p.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, buyer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get buyer profile: %w", err)
	}
	return &p, nil
}

// --- order ---

type orderRepo struct{ s *Store }

func (r *orderRepo) Insert(ctx context.Context, o *order.Order) error {
	q := r.s.q(ctx)
	_, err := q.ExecContext(ctx,
		`INSERT INTO orders (id, number, user_id, status, subtotal, discount, credits_used,
			total, shipping_address, payment_method, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.Number, o.UserID, string(o.Status),
		o.Subtotal.String(), o.Discount.String(), o.CreditsUsed.String(), o.Total.String(),
		o.ShippingAddress, o.PaymentMethod, o.Notes, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	for i, it := range o.Items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, product_name,
				quantity, unit_price, stems_per_bunch, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, i, it.ProductID, it.ProductName,
			it.Quantity, it.UnitPrice.String(), it.StemsPerBunch, it.LineTotal.String())
		if err != nil {
			return fmt.Errorf("postgres: insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	query := `SELECT id, number, user_id, status, subtotal, discount, credits_used,
			total, shipping_address, payment_method, notes, created_at, updated_at
		FROM orders WHERE id = $1`
	if inTx(ctx) {
		query += ` FOR UPDATE`
	}

	o, err := r.scanOrder(r.s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) scanOrder(row *sql.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
		raw    [4]string
	)
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &status, &raw[0], &raw[1], &raw[2], &raw[3],
		&o.ShippingAddress, &o.PaymentMethod, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order: %w", err)
	}
	o.Status = order.Status(status)
	for i, dst := range []*decimal.Decimal{&o.Subtotal, &o.Discount, &o.CreditsUsed, &o.Total} {
		if *dst, err = scanDecimal(raw[i]); err != nil {
			return nil, fmt.Errorf("postgres: order %s amounts: %w", o.ID, err)
		}
	}
	return &o, nil
}

func (r *orderRepo) items(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := r.s.q(ctx).QueryContext(ctx,
		`SELECT product_id, product_name, quantity, unit_price, stems_per_bunch, line_total
		 FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var (
			it       order.Item
			rawPrice string
			rawTotal string
		)
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity,
			&rawPrice, &it.StemsPerBunch, &rawTotal); err != nil {
			return nil, fmt.Errorf("postgres: scan order item: %w", err)
		}
		if it.UnitPrice, err = scanDecimal(rawPrice); err != nil {
			return nil, err
		}
		if it.LineTotal, err = scanDecimal(rawTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *orderRepo) Update(ctx context.Context, o *order.Order) error {
	res, err := r.s.q(ctx).ExecContext(ctx,
		`UPDATE orders SET status = $2, notes = $3, updated_at = $4 WHERE id = $1`,
		o.ID, string(o.Status), o.Notes, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	rows, err := r.s.q(ctx).QueryContext(ctx,
		`SELECT id FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *orderRepo) NextSequence(ctx context.Context, period string) (int, error) {
	return r.s.nextSequence(ctx, "order", period)
}

// --- ledger ---

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) LockBalance(ctx context.Context, name ledger.Name, userID string) (decimal.Decimal, error) {
	// Upsert-then-lock: the insert creates the zero row on first contact,
	// and losing the upsert race is fine because the locking read follows.
	_, err := r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO balances (ledger, user_id, balance) VALUES ($1, $2, 0)
		 ON CONFLICT (ledger, user_id) DO NOTHING`,
		string(name), userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: ensure balance row: %w", err)
	}

	var raw string
	err = r.s.q(ctx).QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE ledger = $1 AND user_id = $2 FOR UPDATE`,
		string(name), userID).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: lock balance: %w", err)
	}
	return scanDecimal(raw)
}

func (r *ledgerRepo) Append(ctx context.Context, tx *ledger.Transaction) error {
	_, err := r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO ledger_transactions (id, ledger, user_id, kind, amount,
			balance_before, balance_after, description, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, string(tx.Ledger), tx.UserID, string(tx.Kind), tx.Amount.String(),
		tx.BalanceBefore.String(), tx.BalanceAfter.String(),
		tx.Description, tx.ReferenceID, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append ledger transaction: %w", err)
	}
	return nil
}

func (r *ledgerRepo) SaveBalance(ctx context.Context, name ledger.Name, userID string, balance decimal.Decimal) error {
	_, err := r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO balances (ledger, user_id, balance) VALUES ($1, $2, $3)
		 ON CONFLICT (ledger, user_id) DO UPDATE SET balance = EXCLUDED.balance`,
		string(name), userID, balance.String())
	if err != nil {
		return fmt.Errorf("postgres: save balance: %w", err)
	}
	return nil
}

func (r *ledgerRepo) Balance(ctx context.Context, name ledger.Name, userID string) (decimal.Decimal, error) {
	var raw string
	err := r.s.q(ctx).QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE ledger = $1 AND user_id = $2`,
		string(name), userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: read balance: %w", err)
	}
	return scanDecimal(raw)
}

func (r *ledgerRepo) Transactions(ctx context.Context, name ledger.Name, userID string) ([]*ledger.Transaction, error) {
	rows, err := r.s.q(ctx).QueryContext(ctx,
		`SELECT id, ledger, user_id, kind, amount, balance_before, balance_after,
			description, reference_id, created_at
		 FROM ledger_transactions
		 WHERE ledger = $1 AND user_id = $2
		 ORDER BY created_at DESC, id DESC`,
		string(name), userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger transactions: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction
	for rows.Next() {
		var (
			tx         ledger.Transaction
			lname      string
			kind       string
			raw        [3]string
			created    time.Time
		)
		if err := rows.Scan(&tx.ID, &lname, &tx.UserID, &kind, &raw[0], &raw[1], &raw[2],
			&tx.Description, &tx.ReferenceID, &created); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger transaction: %w", err)
		}
		tx.Ledger = ledger.Name(lname)
		tx.Kind = ledger.Kind(kind)
		tx.CreatedAt = created
		for i, dst := range []*decimal.Decimal{&tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter} {
			if *dst, err = scanDecimal(raw[i]); err != nil {
				return nil, fmt.Errorf("postgres: ledger transaction %s amounts: %w", tx.ID, err)
			}
		}
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}

// --- payment ---

type paymentRepo struct{ s *Store }

const paymentColumns = `id, user_id, remote_id, amount, currency, status,
	redirect_url, callback_payload, created_at, updated_at`

func (r *paymentRepo) Insert(ctx context.Context, o *payment.Order) error {
	_, err := r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO payment_orders (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.RemoteID, o.Amount.String(), o.Currency, string(o.Status),
		o.RedirectURL, string(o.CallbackPayload), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert payment order: %w", err)
	}
	return nil
}

func (r *paymentRepo) Get(ctx context.Context, id string) (*payment.Order, error) {
	return r.one(ctx, `WHERE id = $1`, id)
}

func (r *paymentRepo) FindByRemoteID(ctx context.Context, remoteID string) (*payment.Order, error) {
	return r.one(ctx, `WHERE remote_id = $1`, remoteID)
}

func (r *paymentRepo) one(ctx context.Context, where string, arg any) (*payment.Order, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_orders ` + where
	if inTx(ctx) {
		query += ` FOR UPDATE`
	}

	var (
		o         payment.Order
		status    string
		rawAmount string
		payload   string
	)
	err := r.s.q(ctx).QueryRowContext(ctx, query, arg).
		Scan(&o.ID, &o.UserID, &o.RemoteID, &rawAmount, &o.Currency, &status,
			&o.RedirectURL, &payload, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get payment order: %w", err)
	}
	o.Status = payment.Status(status)
	if payload != "" {
		o.CallbackPayload = json.RawMessage(payload)
	}
	if o.Amount, err = scanDecimal(rawAmount); err != nil {
		return nil, fmt.Errorf("postgres: payment order %s amount: %w", o.ID, err)
	}
	return &o, nil
}

func (r *paymentRepo) Update(ctx context.Context, o *payment.Order) error {
	res, err := r.s.q(ctx).ExecContext(ctx,
		`UPDATE payment_orders SET status = $2, callback_payload = $3, updated_at = $4
		 WHERE id = $1`,
		o.ID, string(o.Status), string(o.CallbackPayload), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update payment order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// --- invoice ---

type invoiceRepo struct{ s *Store }

func (r *invoiceRepo) Insert(ctx context.Context, inv *invoice.Invoice) error {
	q := r.s.q(ctx)
	_, err := q.ExecContext(ctx,
		`INSERT INTO invoices (id, number, order_id, user_id, buyer_name, buyer_tax_id,
			status, subtotal, vat, total, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.Number, inv.OrderID, inv.UserID, inv.BuyerName, inv.BuyerTaxID,
		string(inv.Status), inv.Subtotal.String(), inv.VAT.String(), inv.Total.String(),
		inv.IssuedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert invoice: %w", err)
	}
	for i, it := range inv.Items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO invoice_items (invoice_id, position, description, quantity,
				unit_price, subtotal, vat, total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inv.ID, i, it.Description, it.Quantity,
			it.UnitPrice.String(), it.Subtotal.String(), it.VAT.String(), it.Total.String())
		if err != nil {
			return fmt.Errorf("postgres: insert invoice item: %w", err)
		}
	}
	return nil
}

func (r *invoiceRepo) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return r.one(ctx, `WHERE id = $1`, id)
}

func (r *invoiceRepo) GetByOrder(ctx context.Context, orderID string) (*invoice.Invoice, error) {
	return r.one(ctx, `WHERE order_id = $1`, orderID)
}

func (r *invoiceRepo) one(ctx context.Context, where string, arg any) (*invoice.Invoice, error) {
	var (
		inv    invoice.Invoice
		status string
		raw    [3]string
	)
	err := r.s.q(ctx).QueryRowContext(ctx,
		`SELECT id, number, order_id, user_id, buyer_name, buyer_tax_id,
			status, subtotal, vat, total, issued_at
		 FROM invoices `+where, arg).
		Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.UserID, &inv.BuyerName, &inv.BuyerTaxID,
			&status, &raw[0], &raw[1], &raw[2], &inv.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get invoice: %w", err)
	}
	inv.Status = invoice.Status(status)
	for i, dst := range []*decimal.Decimal{&inv.Subtotal, &inv.VAT, &inv.Total} {
		if *dst, err = scanDecimal(raw[i]); err != nil {
			return nil, fmt.Errorf("postgres: invoice %s amounts: %w", inv.ID, err)
		}
	}

	rows, err := r.s.q(ctx).QueryContext(ctx,
		`SELECT description, quantity, unit_price, subtotal, vat, total
		 FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list invoice items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it      invoice.Item
			rawItem [4]string
		)
		if err := rows.Scan(&it.Description, &it.Quantity,
			&rawItem[0], &rawItem[1], &rawItem[2], &rawItem[3]); err != nil {
			return nil, fmt.Errorf("postgres: scan invoice item: %w", err)
		}
		for i, dst := range []*decimal.Decimal{&it.UnitPrice, &it.Subtotal, &it.VAT, &it.Total} {
			if *dst, err = scanDecimal(rawItem[i]); err != nil {
				return nil, err
			}
		}
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepo) NextSequence(ctx context.Context, period string) (int, error) {
	return r.s.nextSequence(ctx, "invoice", period)
}
