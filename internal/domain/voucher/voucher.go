package voucher

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrInvalidVoucher is returned when a code does not match an active voucher.
var ErrInvalidVoucher = errors.New("invalid voucher code")

// Voucher is a named fixed-amount discount that can be switched on and off.
type Voucher struct {
	Code           string
	DiscountAmount int64
	Active         bool
}

// Apply returns the discount this voucher grants on the given subtotal,
// clamped to [0, subtotal].
func (v Voucher) Apply(subtotal int64) int64 {
	if subtotal <= 0 || v.DiscountAmount <= 0 {
		return 0
	}
	return min(v.DiscountAmount, subtotal)
}

// NormalizeCode trims and upper-cases a voucher code. Codes are stored
// upper-case, so lookups compare case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup of active vouchers.
type Repository interface {
	// FindActive returns the active voucher with the given normalized code,
	// or ErrInvalidVoucher.
	FindActive(ctx context.Context, code string) (*Voucher, error)
}
