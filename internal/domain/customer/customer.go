package customer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for customer lookups and redemption input.
var (
	ErrNotFound            = errors.New("customer not found")
	ErrInvalidPoints       = errors.New("points must be greater than 0")
	ErrDescriptionRequired = errors.New("description required")
	ErrReferenceRequired   = errors.New("customer id or phone required")
)

// InsufficientPointsError indicates a redemption larger than the balance.
type InsufficientPointsError struct {
	CustomerID string
	Requested  int64
	Available  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for customer %s: requested %d, available %d",
		e.CustomerID, e.Requested, e.Available)
}

// Customer is a loyalty member identified by phone number.
type Customer struct {
	ID      string
	Name    string
	Phone   string
	Address string
	Points  int64
}

// Redemption is an immutable record of points spent by a customer.
type Redemption struct {
	ID          string
	CustomerID  string
	Points      int64
	Description string
	CreatedAt   time.Time
}

// Repository provides customer lookups and the point redemption ledger.
// Point balances only grow through order.Repository.Commit and only shrink
// through Redeem.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	FindByPhone(ctx context.Context, phone string) (*Customer, error)

	// Redeem atomically checks the balance, deducts r.Points and stores r.
	// It returns the new balance, or *InsufficientPointsError leaving the
	// balance untouched.
	Redeem(ctx context.Context, r *Redemption) (int64, error)
	ListRedemptions(ctx context.Context, customerID string, limit int) ([]Redemption, error)
}
