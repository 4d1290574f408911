package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/nusa-pos/internal/domain/order"
)

const (
	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	accruePointsSQL = `INSERT INTO customers (id, name, phone, address, points)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE
		SET points = customers.points + EXCLUDED.points
		RETURNING id, points`

	nextQueueNumberSQL = `INSERT INTO queue_counters (business_day, last_number)
		VALUES ($1, 1)
		ON CONFLICT (business_day) DO UPDATE
		SET last_number = queue_counters.last_number + 1
		RETURNING last_number`

	insertOrderSQL = `INSERT INTO orders (
			id, queue_number, business_day, customer_id, customer_name, customer_phone,
			customer_address, items, subtotal, discount, total, voucher_code,
			points_earned, payment_method, table_ref, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17)`

	orderColumns = `id, queue_number, business_day, customer_id, customer_name, customer_phone,
		customer_address, items, subtotal, discount, total, voucher_code,
		points_earned, payment_method, table_ref, COALESCE(idempotency_key, ''), created_at`

	getOrderByIDSQL       = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByKeySQL      = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	listRecentOrdersSQL   = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1`
	listOrdersByPhoneSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE customer_phone = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	idempotencyConstraint = "orders_idempotency_key_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Commit runs the whole checkout in one transaction. Stock rows are updated
// in product ID order so concurrent checkouts lock them in the same order.
func (r *OrderRepository) Commit(ctx context.Context, o *order.Order) (int64, error) {
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return 0, &order.InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return 0, fmt.Errorf("marshaling order items: %w", err)
	}

	lines := slices.SortedFunc(slices.Values(o.Items), func(a, b order.LineItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	var (
		balance    int64
		queue      int
		customerID string
	)
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, item := range lines {
			if err := decrementStock(ctx, tx, item); err != nil {
				return err
			}
		}

		if err := tx.QueryRow(ctx, accruePointsSQL,
			uuid.NewString(), o.CustomerName, o.CustomerPhone, o.CustomerAddress, o.PointsEarned,
		).Scan(&customerID, &balance); err != nil {
			return fmt.Errorf("accruing points: %w", err)
		}

		if err := tx.QueryRow(ctx, nextQueueNumberSQL, o.BusinessDay).Scan(&queue); err != nil {
			return fmt.Errorf("drawing queue number: %w", err)
		}

		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, queue, o.BusinessDay, customerID, o.CustomerName, o.CustomerPhone,
			o.CustomerAddress, itemsJSON, o.Subtotal, o.Discount, o.Total, o.VoucherCode,
			o.PointsEarned, o.PaymentMethod, o.TableRef, o.IdempotencyKey, o.CreatedAt,
		); err != nil {
			if isUniqueViolation(err, idempotencyConstraint) {
				return order.ErrDuplicateKey
			}
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	o.QueueNumber = queue
	o.CustomerID = customerID
	return balance, nil
}

func decrementStock(ctx context.Context, tx pgx.Tx, item order.LineItem) error {
	tag, err := tx.Exec(ctx, decrementStockSQL, item.ProductID, item.Quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", item.ProductID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, productExistsSQL, item.ProductID).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", item.ProductID, err)
	}
	if !exists {
		return &order.ProductNotFoundError{ProductID: item.ProductID}
	}
	return &order.StockConflictError{ProductID: item.ProductID}
}

// GetByID returns an order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// FindByIdempotencyKey returns the order committed under key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByKeySQL, key)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// ListRecent returns the latest orders, newest first.
func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listRecentOrdersSQL, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByCustomerPhone returns the orders placed under phone, newest first.
func (r *OrderRepository) ListByCustomerPhone(ctx context.Context, phone string, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByPhoneSQL, phone, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", phone, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		items []byte
	)
	if err := row.Scan(
		&o.ID, &o.QueueNumber, &o.BusinessDay, &o.CustomerID, &o.CustomerName, &o.CustomerPhone,
		&o.CustomerAddress, &items, &o.Subtotal, &o.Discount, &o.Total, &o.VoucherCode,
		&o.PointsEarned, &o.PaymentMethod, &o.TableRef, &o.IdempotencyKey, &o.CreatedAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
