package memory

import (
	"context"

	"github.com/xenking/nusa-pos/internal/domain/customer"
)

// CustomerRepository implements customer.Repository.
type CustomerRepository struct {
	s *Store
}

// GetByID returns a customer by identifier.
func (r CustomerRepository) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

// FindByPhone returns a customer by phone number.
func (r CustomerRepository) FindByPhone(_ context.Context, phone string) (*customer.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.phoneIndex[phone]
	if !ok {
		return nil, customer.ErrNotFound
	}
	c := r.s.customers[id]
	return &c, nil
}

// Redeem checks and deducts the balance and appends the redemption record.
func (r CustomerRepository) Redeem(_ context.Context, red *customer.Redemption) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.customers[red.CustomerID]
	if !ok {
		return 0, customer.ErrNotFound
	}
	if c.Points < red.Points {
		return 0, &customer.InsufficientPointsError{
			CustomerID: c.ID,
			Requested:  red.Points,
			Available:  c.Points,
		}
	}

	c.Points -= red.Points
	r.s.customers[c.ID] = c
	r.s.redemptions = append(r.s.redemptions, *red)
	return c.Points, nil
}

// ListRedemptions returns up to limit redemptions of a customer, newest
// first. A non-positive limit returns all of them.
func (r CustomerRepository) ListRedemptions(_ context.Context, customerID string, limit int) ([]customer.Redemption, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []customer.Redemption
	for i := len(r.s.redemptions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if r.s.redemptions[i].CustomerID == customerID {
			out = append(out, r.s.redemptions[i])
		}
	}
	return out, nil
}
