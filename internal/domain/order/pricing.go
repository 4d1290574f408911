package order

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/nusa-pos/internal/domain/loyalty"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
)

// Aggregate validates cart lines and merges duplicates by product id,
// keeping the order in which products first appear.
func Aggregate(items []CartLine) ([]CartLine, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	index := make(map[string]int, len(items))
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, ErrProductRequired
		}
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: id, Quantity: item.Quantity}
		}
		if i, ok := index[id]; ok {
			if lines[i].Quantity > math.MaxInt64-item.Quantity {
				return nil, &InvalidQuantityError{ProductID: id, Quantity: item.Quantity}
			}
			lines[i].Quantity += item.Quantity
			continue
		}
		index[id] = len(lines)
		lines = append(lines, CartLine{ProductID: id, Quantity: item.Quantity})
	}
	return lines, nil
}

// DistributeDiscount splits discount across lines in proportion to their
// gross amounts. Every line but the last gets the truncated share; the last
// line absorbs the remainder, so the shares always sum to discount.
func DistributeDiscount(grosses []int64, discount int64) []int64 {
	shares := make([]int64, len(grosses))
	if len(grosses) == 0 || discount <= 0 {
		return shares
	}

	var subtotal int64
	for _, g := range grosses {
		subtotal += g
	}
	if subtotal <= 0 {
		return shares
	}

	// gross*discount can exceed int64 on large carts.
	total := decimal.NewFromInt(subtotal)
	amount := decimal.NewFromInt(discount)
	last := len(grosses) - 1

	var allocated int64
	for i, g := range grosses[:last] {
		q, _ := decimal.NewFromInt(g).Mul(amount).QuoRem(total, 0)
		shares[i] = q.IntPart()
		allocated += shares[i]
	}
	shares[last] = discount - allocated
	return shares
}

// Quote is a fully priced cart, ready to be committed.
type Quote struct {
	Items        []LineItem
	Subtotal     int64
	Discount     int64
	Total        int64
	PointsEarned int64
	// VoucherCode is set only when a voucher was applied.
	VoucherCode string
}

// NewQuote prices aggregated lines against the catalog snapshot. Prices
// always come from the catalog. A nil voucher means no discount.
func NewQuote(
	lines []CartLine,
	catalog map[string]product.Product,
	v *voucher.Voucher,
	policy loyalty.Policy,
) (*Quote, error) {
	q := &Quote{Items: make([]LineItem, 0, len(lines))}
	grosses := make([]int64, 0, len(lines))

	for _, line := range lines {
		p, ok := catalog[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if line.Quantity > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
		if p.Price > 0 && line.Quantity > math.MaxInt64/p.Price {
			return nil, &AmountOverflowError{ProductID: p.ID}
		}

		gross := p.Price * line.Quantity
		if q.Subtotal > math.MaxInt64-gross {
			return nil, &AmountOverflowError{ProductID: p.ID}
		}
		grosses = append(grosses, gross)
		q.Subtotal += gross
		q.Items = append(q.Items, LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    line.Quantity,
			Gross:       gross,
		})
	}

	if v != nil {
		q.Discount = v.Apply(q.Subtotal)
		q.VoucherCode = v.Code
	}

	for i, share := range DistributeDiscount(grosses, q.Discount) {
		q.Items[i].Discount = share
		q.Items[i].Total = q.Items[i].Gross - share
	}

	q.Total = q.Subtotal - q.Discount
	q.PointsEarned = policy.Earned(q.Total)
	return q, nil
}
