// Package postgres implements the domain repositories on PostgreSQL using
// pgx. Checkout and redemption run inside a single transaction each, and
// stock and points are changed with conditional updates so that concurrent
// writers can never drive them negative.
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/nusa-pos/db"
	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
)

const uniqueViolation = "23505"

// NewPool creates a pgxpool.Pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint violation on
// the named constraint. An empty constraint matches any.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Store bundles the repositories sharing one pool.
type Store struct {
	Products  *ProductRepository
	Vouchers  *VoucherRepository
	Customers *CustomerRepository
	Orders    *OrderRepository
}

// NewStore returns every repository backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Products:  NewProductRepository(pool),
		Vouchers:  NewVoucherRepository(pool),
		Customers: NewCustomerRepository(pool),
		Orders:    NewOrderRepository(pool),
	}
}

// UpsertProduct inserts or replaces a catalog entry.
func (s *Store) UpsertProduct(ctx context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.Products.Upsert(ctx, p)
}

// UpsertVoucher inserts or replaces a voucher.
func (s *Store) UpsertVoucher(ctx context.Context, v voucher.Voucher) error {
	return s.Vouchers.Upsert(ctx, v)
}

// UpsertCustomer inserts or replaces a customer keyed by phone.
func (s *Store) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	return s.Customers.Upsert(ctx, c)
}
