package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/nusa-pos/internal/domain/customer"
)

const (
	customerColumns = `id, name, phone, address, points`

	getCustomerByIDSQL    = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	getCustomerByPhoneSQL = `SELECT ` + customerColumns + ` FROM customers WHERE phone = $1`

	upsertCustomerSQL = `INSERT INTO customers (id, name, phone, address, points)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE
		SET name = EXCLUDED.name, address = EXCLUDED.address, points = EXCLUDED.points`

	deductPointsSQL = `UPDATE customers SET points = points - $2
		WHERE id = $1 AND points >= $2
		RETURNING points`

	customerPointsSQL = `SELECT points FROM customers WHERE id = $1`

	insertRedemptionSQL = `INSERT INTO redemptions (id, customer_id, points, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listRedemptionsSQL = `SELECT id, customer_id, points, description, created_at
		FROM redemptions WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a customer by identifier.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByIDSQL, id)
}

// FindByPhone returns a customer by phone number.
func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByPhoneSQL, phone)
}

func (r *CustomerRepository) getOne(ctx context.Context, query, arg string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}
	return &c, nil
}

// Upsert inserts a customer or overwrites the one holding the same phone.
func (r *CustomerRepository) Upsert(ctx context.Context, c customer.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, err := r.pool.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.Phone, c.Address, c.Points); err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.Phone, err)
	}
	return nil
}

// Redeem deducts the points and records the redemption in one transaction.
func (r *CustomerRepository) Redeem(ctx context.Context, red *customer.Redemption) (int64, error) {
	var balance int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, deductPointsSQL, red.CustomerID, red.Points).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return insufficientOrMissing(ctx, tx, red)
		}
		if err != nil {
			return fmt.Errorf("deducting points: %w", err)
		}

		if _, err := tx.Exec(ctx, insertRedemptionSQL,
			red.ID, red.CustomerID, red.Points, red.Description, red.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting redemption %q: %w", red.ID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func insufficientOrMissing(ctx context.Context, tx pgx.Tx, red *customer.Redemption) error {
	var available int64
	err := tx.QueryRow(ctx, customerPointsSQL, red.CustomerID).Scan(&available)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return customer.ErrNotFound
	case err != nil:
		return fmt.Errorf("reading points: %w", err)
	}
	return &customer.InsufficientPointsError{
		CustomerID: red.CustomerID,
		Requested:  red.Points,
		Available:  available,
	}
}

// ListRedemptions returns a customer's redemptions, newest first.
func (r *CustomerRepository) ListRedemptions(ctx context.Context, customerID string, limit int) ([]customer.Redemption, error) {
	rows, err := r.pool.Query(ctx, listRedemptionsSQL, customerID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing redemptions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (customer.Redemption, error) {
		var red customer.Redemption
		err := row.Scan(&red.ID, &red.CustomerID, &red.Points, &red.Description, &red.CreatedAt)
		return red, err
	})
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Points)
	return c, err
}

// sqlLimit maps a non-positive limit to NULL, which Postgres treats as
// LIMIT ALL.
func sqlLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
