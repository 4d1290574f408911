package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/nusa-pos/internal/domain/loyalty"
)

// RedeemRequest identifies the customer by ID or, failing that, by phone.
type RedeemRequest struct {
	CustomerID  string
	Phone       string
	Points      int64
	Description string
}

// RedeemResult is returned after a successful redemption.
type RedeemResult struct {
	Redemption *Redemption
	Balance    int64
	// Value is the currency value of the redeemed points.
	Value int64
}

// Service implements loyalty point redemption and customer lookups.
type Service struct {
	repo   Repository
	policy loyalty.Policy
	now    func() time.Time
}

// NewService creates a customer Service.
func NewService(repo Repository, policy loyalty.Policy) *Service {
	return &Service{repo: repo, policy: policy, now: time.Now}
}

// Resolve finds a customer by id, or by phone when id is empty.
func (s *Service) Resolve(ctx context.Context, id, phone string) (*Customer, error) {
	id, phone = strings.TrimSpace(id), strings.TrimSpace(phone)
	switch {
	case id != "":
		return s.repo.GetByID(ctx, id)
	case phone != "":
		return s.repo.FindByPhone(ctx, phone)
	default:
		return nil, ErrReferenceRequired
	}
}

// Redeem deducts points from a customer's balance and records the
// redemption. The balance check and deduction happen in the store as a
// single step, so concurrent redemptions can never overdraw.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	if req.Points <= 0 {
		return nil, ErrInvalidPoints
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, ErrDescriptionRequired
	}

	c, err := s.Resolve(ctx, req.CustomerID, req.Phone)
	if err != nil {
		return nil, err
	}

	r := &Redemption{
		ID:          uuid.NewString(),
		CustomerID:  c.ID,
		Points:      req.Points,
		Description: desc,
		CreatedAt:   s.now().UTC(),
	}
	balance, err := s.repo.Redeem(ctx, r)
	if err != nil {
		var insufficient *InsufficientPointsError
		if errors.As(err, &insufficient) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "redeem points")
	}

	zctx.From(ctx).Info("Points redeemed",
		zap.String("customer_id", c.ID),
		zap.Int64("points", r.Points),
		zap.Int64("balance", balance),
	)

	return &RedeemResult{
		Redemption: r,
		Balance:    balance,
		Value:      s.policy.Value(r.Points),
	}, nil
}

// Redemptions returns the most recent redemptions of a customer.
func (s *Service) Redemptions(ctx context.Context, id, phone string, limit int) (*Customer, []Redemption, error) {
	c, err := s.Resolve(ctx, id, phone)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.repo.ListRedemptions(ctx, c.ID, limit)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list redemptions")
	}
	return c, list, nil
}
