package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type txKey struct{}

// Store implements the repository ports on PostgreSQL. Every atomic unit is
// one transaction; reads that precede writes inside a unit lock their rows
// with FOR UPDATE so concurrent read-modify-write cycles on the same wallet,
// product, or order cannot interleave.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			stems_per_bunch INT NOT NULL,
			available_qty INT NOT NULL CHECK (available_qty >= 0)
		);`,
		`CREATE TABLE IF NOT EXISTS buyer_profiles (
			user_id TEXT PRIMARY KEY,
			company_name TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			tax_id TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL,
			discount NUMERIC(12,2) NOT NULL,
			credits_used NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			shipping_address TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id TEXT NOT NULL REFERENCES orders(id),
			position INT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			stems_per_bunch INT NOT NULL,
			line_total NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (order_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id TEXT PRIMARY KEY,
			ledger TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			balance_before NUMERIC(12,2) NOT NULL,
			balance_after NUMERIC(12,2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reference_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ledger_transactions_user_idx
			ON ledger_transactions (ledger, user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS balances (
			ledger TEXT NOT NULL,
			user_id TEXT NOT NULL,
			balance NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (ledger, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS payment_orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			remote_id TEXT NOT NULL UNIQUE,
			amount NUMERIC(12,2) NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			redirect_url TEXT NOT NULL DEFAULT '',
			callback_payload TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
			user_id TEXT NOT NULL,
			buyer_name TEXT NOT NULL,
			buyer_tax_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL,
			vat NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			invoice_id TEXT NOT NULL REFERENCES invoices(id),
			position INT NOT NULL,
			description TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL,
			vat NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (invoice_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS sequences (
			scope TEXT NOT NULL,
			period TEXT NOT NULL,
			value INT NOT NULL,
			PRIMARY KEY (scope, period)
		);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

// Atomic implements txn.Runner: one transaction per unit, joined by every
// repository call made with the unit's context.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// inTx reports whether the context runs inside an atomic unit, which decides
// whether locking reads use FOR UPDATE.
func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// nextSequence bumps the per-period counter row, creating it on first use.
func (s *Store) nextSequence(ctx context.Context, scope, period string) (int, error) {
	var value int
	err := s.q(ctx).QueryRowContext(ctx,
		`INSERT INTO sequences (scope, period, value) VALUES ($1, $2, 1)
		 ON CONFLICT (scope, period) DO UPDATE SET value = sequences.value + 1
		 RETURNING value`,
		scope, period,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("postgres: next %s sequence: %w", scope, err)
	}
	return value, nil
}
