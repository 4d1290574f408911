// Package loyalty holds the deployment-wide point accrual and redemption
// rates.
package loyalty

import "github.com/go-faster/errors"

// Defaults used by the back office before rates were made configurable.
const (
	DefaultEarnRate   int64 = 10000
	DefaultPointValue int64 = 5000
)

// Policy converts between currency and loyalty points.
type Policy struct {
	// EarnRate is the amount of currency spent per point earned.
	EarnRate int64
	// PointValue is the currency value of one redeemed point.
	PointValue int64
}

// NewPolicy validates the rates and returns a Policy.
func NewPolicy(earnRate, pointValue int64) (Policy, error) {
	if earnRate <= 0 {
		return Policy{}, errors.Errorf("earn rate must be positive, got %d", earnRate)
	}
	if pointValue < 0 {
		return Policy{}, errors.Errorf("point value must not be negative, got %d", pointValue)
	}
	return Policy{EarnRate: earnRate, PointValue: pointValue}, nil
}

// Earned returns floor(total / EarnRate). Non-positive totals earn nothing.
func (p Policy) Earned(total int64) int64 {
	if total <= 0 || p.EarnRate <= 0 {
		return 0
	}
	return total / p.EarnRate
}

// Value returns the currency value of the given number of points.
func (p Policy) Value(points int64) int64 {
	return points * p.PointValue
}
