package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/order"
)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	s *Store
}

// Commit stages every effect of the checkout, runs the commit hook, and only
// then applies stock, customer, queue counter and order together.
func (r OrderRepository) Commit(_ context.Context, o *order.Order) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IdempotencyKey != "" {
		if _, dup := s.keyIndex[o.IdempotencyKey]; dup {
			return 0, order.ErrDuplicateKey
		}
	}

	stock := make(map[string]int64, len(o.Items))
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return 0, &order.InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		p, ok := s.products[item.ProductID]
		if !ok {
			return 0, &order.ProductNotFoundError{ProductID: item.ProductID}
		}
		current, staged := stock[p.ID]
		if !staged {
			current = p.Stock
		}
		if current < item.Quantity {
			return 0, &order.StockConflictError{ProductID: p.ID}
		}
		stock[p.ID] = current - item.Quantity
	}

	var c customer.Customer
	if id, ok := s.phoneIndex[o.CustomerPhone]; ok {
		c = s.customers[id]
	} else {
		c = customer.Customer{
			ID:      uuid.NewString(),
			Name:    o.CustomerName,
			Phone:   o.CustomerPhone,
			Address: o.CustomerAddress,
		}
	}
	c.Points += o.PointsEarned

	queue := s.queues[o.BusinessDay] + 1

	staged := cloneOrder(*o)
	staged.QueueNumber = queue
	staged.CustomerID = c.ID

	if s.commitHook != nil {
		if err := s.commitHook(&staged); err != nil {
			return 0, err
		}
	}

	for id, left := range stock {
		p := s.products[id]
		p.Stock = left
		s.products[id] = p
	}
	s.customers[c.ID] = c
	s.phoneIndex[c.Phone] = c.ID
	s.queues[o.BusinessDay] = queue

	s.orders = append(s.orders, staged)
	s.orderIndex[staged.ID] = len(s.orders) - 1
	if staged.IdempotencyKey != "" {
		s.keyIndex[staged.IdempotencyKey] = len(s.orders) - 1
	}

	o.QueueNumber = queue
	o.CustomerID = c.ID
	return c.Points, nil
}

// GetByID returns an order by its identifier.
func (r OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	i, ok := r.s.orderIndex[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := cloneOrder(r.s.orders[i])
	return &o, nil
}

// FindByIdempotencyKey returns the order committed under key.
func (r OrderRepository) FindByIdempotencyKey(_ context.Context, key string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	i, ok := r.s.keyIndex[key]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := cloneOrder(r.s.orders[i])
	return &o, nil
}

// ListRecent returns up to limit orders, newest first. A non-positive limit
// returns every order.
func (r OrderRepository) ListRecent(_ context.Context, limit int) ([]order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.collectOrders(limit, func(*order.Order) bool { return true }), nil
}

// ListByCustomerPhone returns up to limit orders for a phone, newest first.
func (r OrderRepository) ListByCustomerPhone(_ context.Context, phone string, limit int) ([]order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.collectOrders(limit, func(o *order.Order) bool { return o.CustomerPhone == phone }), nil
}

func (s *Store) collectOrders(limit int, match func(*order.Order) bool) []order.Order {
	var out []order.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if match(&s.orders[i]) {
			out = append(out, cloneOrder(s.orders[i]))
		}
	}
	return out
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
