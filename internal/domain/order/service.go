package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/nusa-pos/internal/domain/loyalty"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
)

const instrumentationName = "github.com/xenking/nusa-pos/internal/domain/order"

// DefaultMaxAttempts bounds optimistic retries after a stock conflict.
const DefaultMaxAttempts = 3

// KeyFilter remembers idempotency keys the process has committed. A false
// MaybeSeen means the key was never committed through this filter, so the
// replay lookup can be skipped; the store's unique key still catches keys
// committed elsewhere.
type KeyFilter interface {
	MaybeSeen(key string) bool
	Add(key string)
}

type alwaysSeen struct{}

func (alwaysSeen) MaybeSeen(string) bool { return true }
func (alwaysSeen) Add(string)            {}

// Customer identifies who is checking out. Phone is the loyalty key.
type Customer struct {
	Name    string
	Phone   string
	Address string
}

// PlaceOrderRequest holds the input of a checkout.
type PlaceOrderRequest struct {
	Customer       Customer
	Items          []CartLine
	VoucherCode    string
	PaymentMethod  string
	TableRef       string
	IdempotencyKey string
}

// PlaceOrderResult holds the output of a checkout.
type PlaceOrderResult struct {
	Order *Order
	// PointsBalance is the customer's balance after this order. It is zero
	// for replays.
	PointsBalance int64
	// Replayed is set when the idempotency key matched an earlier order.
	Replayed bool
	Warnings []string
}

// Option configures a Service.
type Option func(*Service)

// WithKeyFilter sets the idempotency key pre-filter.
func WithKeyFilter(f KeyFilter) Option {
	return func(s *Service) { s.keys = f }
}

// WithLocation sets the time zone that defines the business day for queue
// numbers.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithTelemetry sets the meter and tracer providers.
func WithTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.meterProvider = mp
		s.tracerProvider = tp
	}
}

// WithMaxAttempts sets how many times a checkout is priced and committed
// before a stock conflict is reported to the caller.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = max(n, 1) }
}

// Service is the checkout transaction processor.
type Service struct {
	products product.Repository
	vouchers voucher.Validator
	orders   Repository
	policy   loyalty.Policy

	keys        KeyFilter
	loc         *time.Location
	now         func() time.Time
	maxAttempts int

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	placed         metric.Int64Counter
	rejected       metric.Int64Counter
	conflicts      metric.Int64Counter
	pointsEarned   metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	vouchers voucher.Validator,
	orders Repository,
	policy loyalty.Policy,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products:       products,
		vouchers:       vouchers,
		orders:         orders,
		policy:         policy,
		keys:           alwaysSeen{},
		loc:            time.UTC,
		now:            time.Now,
		maxAttempts:    DefaultMaxAttempts,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.placed, err = meter.Int64Counter("pos.checkout.orders",
		metric.WithDescription("Committed checkouts"),
	); err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	if s.rejected, err = meter.Int64Counter("pos.checkout.rejections",
		metric.WithDescription("Checkouts rejected, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "create rejections counter")
	}
	if s.conflicts, err = meter.Int64Counter("pos.checkout.stock_conflicts",
		metric.WithDescription("Commits aborted by a concurrent stock change"),
	); err != nil {
		return nil, errors.Wrap(err, "create conflicts counter")
	}
	if s.pointsEarned, err = meter.Int64Counter("pos.loyalty.points_earned",
		metric.WithDescription("Loyalty points accrued by checkouts"),
	); err != nil {
		return nil, errors.Wrap(err, "create points counter")
	}

	return s, nil
}

// PlaceOrder validates the cart against current stock, prices it, applies
// the voucher, and commits stock, points and the order record atomically.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int("pos.cart.lines", len(req.Items))),
	)
	defer span.End()

	res, err := s.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectionReason(err))))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("pos.order.id", res.Order.ID),
		attribute.Bool("pos.order.replayed", res.Replayed),
	)
	return res, nil
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	cust := Customer{
		Name:    strings.TrimSpace(req.Customer.Name),
		Phone:   strings.TrimSpace(req.Customer.Phone),
		Address: strings.TrimSpace(req.Customer.Address),
	}
	if cust.Phone == "" {
		return nil, ErrCustomerRequired
	}
	payment := strings.TrimSpace(req.PaymentMethod)
	if payment == "" {
		return nil, ErrPaymentMethodRequired
	}

	lines, err := Aggregate(req.Items)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" && s.keys.MaybeSeen(key) {
		existing, err := s.orders.FindByIdempotencyKey(ctx, key)
		switch {
		case err == nil:
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "lookup idempotency key")
		}
	}

	lg := zctx.From(ctx)
	var lastConflict error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		q, warnings, err := s.quote(ctx, lines, req.VoucherCode)
		if err != nil {
			return nil, err
		}

		o := s.newOrder(cust, payment, req.TableRef, key, q)
		balance, err := s.orders.Commit(ctx, o)
		if err == nil {
			if key != "" {
				s.keys.Add(key)
			}
			s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", payment)))
			s.pointsEarned.Add(ctx, o.PointsEarned)
			lg.Info("Order committed",
				zap.String("order_id", o.ID),
				zap.Int("queue_number", o.QueueNumber),
				zap.Int64("total", o.Total),
				zap.Int64("points_earned", o.PointsEarned),
				zap.Int("attempt", attempt),
			)
			return &PlaceOrderResult{Order: o, PointsBalance: balance, Warnings: warnings}, nil
		}

		var conflict *StockConflictError
		switch {
		case errors.As(err, &conflict):
			s.conflicts.Add(ctx, 1)
			lg.Warn("Stock conflict, re-validating cart",
				zap.String("product_id", conflict.ProductID),
				zap.Int("attempt", attempt),
			)
			lastConflict = err
		case errors.Is(err, ErrDuplicateKey) && key != "":
			s.keys.Add(key)
			existing, ferr := s.orders.FindByIdempotencyKey(ctx, key)
			if ferr != nil {
				return nil, errors.Wrap(ferr, "lookup idempotency key")
			}
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		default:
			return nil, errors.Wrap(err, "commit order")
		}
	}

	return nil, lastConflict
}

// quote loads the products and the voucher concurrently and prices the cart.
func (s *Service) quote(ctx context.Context, lines []CartLine, code string) (*Quote, []string, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	var (
		fetched  []product.Product
		applied  *voucher.Voucher
		warnings []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if fetched, err = s.products.GetByIDs(gctx, ids); err != nil {
			return errors.Wrap(err, "get products")
		}
		return nil
	})
	if code = voucher.NormalizeCode(code); code != "" {
		g.Go(func() error {
			v, err := s.vouchers.Validate(gctx, code)
			switch {
			case errors.Is(err, voucher.ErrInvalidVoucher):
				warnings = append(warnings, "voucher "+code+" is not valid")
				return nil
			case err != nil:
				return errors.Wrap(err, "validate voucher")
			}
			applied = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if len(warnings) > 0 {
		zctx.From(ctx).Warn("Voucher rejected, checking out without discount", zap.String("voucher_code", code))
	}

	catalog := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		catalog[p.ID] = p
	}

	q, err := NewQuote(lines, catalog, applied, s.policy)
	if err != nil {
		return nil, nil, err
	}
	return q, warnings, nil
}

func (s *Service) newOrder(c Customer, payment, table, key string, q *Quote) *Order {
	now := s.now()
	return &Order{
		ID:              uuid.NewString(),
		BusinessDay:     now.In(s.loc).Format(time.DateOnly),
		CustomerName:    c.Name,
		CustomerPhone:   c.Phone,
		CustomerAddress: c.Address,
		Items:           q.Items,
		Subtotal:        q.Subtotal,
		Discount:        q.Discount,
		Total:           q.Total,
		VoucherCode:     q.VoucherCode,
		PointsEarned:    q.PointsEarned,
		PaymentMethod:   payment,
		TableRef:        strings.TrimSpace(table),
		IdempotencyKey:  key,
		CreatedAt:       now.UTC(),
	}
}

// Get returns a committed order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// Recent returns the latest orders, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Order, error) {
	return s.orders.ListRecent(ctx, limit)
}

// History returns a customer's orders by phone, newest first.
func (s *Service) History(ctx context.Context, phone string, limit int) ([]Order, error) {
	return s.orders.ListByCustomerPhone(ctx, strings.TrimSpace(phone), limit)
}

func rejectionReason(err error) string {
	var (
		iq  *InvalidQuantityError
		pnf *ProductNotFoundError
		is  *InsufficientStockError
		sc  *StockConflictError
	)
	switch {
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrProductRequired),
		errors.Is(err, ErrCustomerRequired),
		errors.Is(err, ErrPaymentMethodRequired),
		errors.As(err, &iq):
		return "invalid_request"
	case errors.As(err, &pnf):
		return "unknown_product"
	case errors.As(err, &is):
		return "insufficient_stock"
	case errors.As(err, &sc):
		return "stock_conflict"
	default:
		return "internal"
	}
}
