// Package memory implements every domain repository on top of process
// memory. It backs development deployments without Postgres and serves as
// the substitute store in tests. A single mutex serializes writes, so Commit
// and Redeem are trivially atomic.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/order"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
)

var (
	_ product.Repository  = ProductRepository{}
	_ voucher.Repository  = VoucherRepository{}
	_ customer.Repository = CustomerRepository{}
	_ order.Repository    = OrderRepository{}
)

// Store holds products, vouchers, customers, orders and redemptions.
type Store struct {
	mu sync.RWMutex

	products   map[string]product.Product
	vouchers   map[string]voucher.Voucher
	customers  map[string]customer.Customer
	phoneIndex map[string]string

	orders      []order.Order
	orderIndex  map[string]int
	keyIndex    map[string]int
	queues      map[string]int
	redemptions []customer.Redemption

	commitHook func(*order.Order) error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		products:   make(map[string]product.Product),
		vouchers:   make(map[string]voucher.Voucher),
		customers:  make(map[string]customer.Customer),
		phoneIndex: make(map[string]string),
		orderIndex: make(map[string]int),
		keyIndex:   make(map[string]int),
		queues:     make(map[string]int),
	}
}

// SetCommitHook installs a function called by Commit after every effect has
// been staged and before any is applied. A non-nil error aborts the commit
// and leaves the store untouched.
func (s *Store) SetCommitHook(fn func(*order.Order) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = fn
}

// UpsertProduct inserts or replaces a product.
func (s *Store) UpsertProduct(_ context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

// UpsertVoucher inserts or replaces a voucher, normalizing its code.
func (s *Store) UpsertVoucher(_ context.Context, v voucher.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Code = voucher.NormalizeCode(v.Code)
	s.vouchers[v.Code] = v
	return nil
}

// UpsertCustomer inserts or replaces a customer keyed by phone.
func (s *Store) UpsertCustomer(_ context.Context, c customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.phoneIndex[c.Phone]; ok {
		c.ID = id
	} else if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.customers[c.ID] = c
	s.phoneIndex[c.Phone] = c.ID
	return nil
}

// Products returns the product.Repository view of the store.
func (s *Store) Products() ProductRepository { return ProductRepository{s: s} }

// Vouchers returns the voucher.Repository view of the store.
func (s *Store) Vouchers() VoucherRepository { return VoucherRepository{s: s} }

// Customers returns the customer.Repository view of the store.
func (s *Store) Customers() CustomerRepository { return CustomerRepository{s: s} }

// Orders returns the order.Repository view of the store.
func (s *Store) Orders() OrderRepository { return OrderRepository{s: s} }

// ProductRepository implements product.Repository.
type ProductRepository struct {
	s *Store
}

// List returns all products ordered by ID.
func (r ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// GetByID returns a single product.
func (r ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products matching any of ids; unknown ids are skipped.
func (r ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// VoucherRepository implements voucher.Repository.
type VoucherRepository struct {
	s *Store
}

// FindActive returns the active voucher for a normalized code.
func (r VoucherRepository) FindActive(_ context.Context, code string) (*voucher.Voucher, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.vouchers[voucher.NormalizeCode(code)]
	if !ok || !v.Active {
		return nil, voucher.ErrInvalidVoucher
	}
	return &v, nil
}
