package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for checkout validation and order lookups.
var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrProductRequired       = errors.New("product id required")
	ErrCustomerRequired      = errors.New("customer phone required")
	ErrPaymentMethodRequired = errors.New("payment method required")
	ErrNotFound              = errors.New("order not found")
	// ErrDuplicateKey is returned by Repository.Commit when another order
	// already holds the idempotency key.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

// InvalidQuantityError indicates a cart line with a non-positive quantity,
// or duplicate lines whose merged quantity does not fit in int64.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int64
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > 0 {
		return fmt.Sprintf("quantity for product %s is too large", e.ProductID)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// AmountOverflowError indicates that pricing a cart line, or the cart as a
// whole, exceeds the largest representable amount.
type AmountOverflowError struct {
	ProductID string
}

func (e *AmountOverflowError) Error() string {
	return fmt.Sprintf("order amount for product %s is too large", e.ProductID)
}

// ProductNotFoundError indicates a cart line referencing an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates that a product cannot cover the requested
// quantity. It is detected before any mutation.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int64
	Available int64
}

// Shortfall is the number of units missing to fulfil the line.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %d, available %d, short by %d",
		e.ProductID, e.Name, e.Requested, e.Available, e.Shortfall())
}

// StockConflictError is returned by Repository.Commit when a conditional
// stock decrement fails because a concurrent checkout consumed the stock
// after validation. Nothing is committed; the whole checkout may be retried.
type StockConflictError struct {
	ProductID string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock for product %s changed concurrently, retry checkout", e.ProductID)
}

// CartLine is one requested product and quantity.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// LineItem is a priced order line. ProductName and UnitPrice are snapshots
// taken at checkout, so the line stays readable after catalog changes.
type LineItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
	Gross       int64  `json:"gross"`
	Discount    int64  `json:"discount"`
	Total       int64  `json:"total"`
}

// Order is an immutable checkout record.
type Order struct {
	ID string
	// QueueNumber is unique within BusinessDay (YYYY-MM-DD, store-local).
	QueueNumber     int
	BusinessDay     string
	CustomerID      string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Items           []LineItem
	Subtotal        int64
	Discount        int64
	Total           int64
	// VoucherCode is empty when no valid voucher was applied.
	VoucherCode    string
	PointsEarned   int64
	PaymentMethod  string
	TableRef       string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Repository persists orders.
type Repository interface {
	// Commit applies a checkout as one atomic unit: decrements stock for
	// every line (failing with *StockConflictError if any would go
	// negative), upserts the customer by phone adding o.PointsEarned,
	// draws the next queue number for o.BusinessDay and inserts the order.
	// It assigns o.QueueNumber and o.CustomerID and returns the customer's
	// new point balance. On any error nothing is persisted.
	Commit(ctx context.Context, o *Order) (int64, error)

	GetByID(ctx context.Context, id string) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	ListRecent(ctx context.Context, limit int) ([]Order, error)
	ListByCustomerPhone(ctx context.Context, phone string, limit int) ([]Order, error)
}
