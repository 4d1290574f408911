package product

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	ErrInvalid  = errors.New("invalid product")
)

// Product represents a catalog item available for sale. Price is in the
// smallest currency unit; Stock is the number of units on hand and never
// drops below zero.
type Product struct {
	ID       string
	Name     string
	Category string
	Price    int64
	Stock    int64
}

// Validate rejects products with a negative price or stock.
func (p Product) Validate() error {
	switch {
	case p.Price < 0:
		return errors.Wrapf(ErrInvalid, "product %s: negative price %d", p.ID, p.Price)
	case p.Stock < 0:
		return errors.Wrapf(ErrInvalid, "product %s: negative stock %d", p.ID, p.Stock)
	}
	return nil
}

// Repository defines read operations for the product catalog. Stock is only
// ever decremented through order.Repository.Commit.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
