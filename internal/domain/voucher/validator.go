package voucher

import (
	"context"

	"github.com/go-faster/errors"
)

// Validator resolves a raw voucher code entered at the till.
type Validator interface {
	Validate(ctx context.Context, code string) (*Voucher, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo}
}

// Validate normalizes the code and looks it up. Unknown, inactive and blank
// codes all yield ErrInvalidVoucher; any other error is a store failure.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Voucher, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidVoucher
	}

	found, err := v.repo.FindActive(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidVoucher) {
			return nil, ErrInvalidVoucher
		}
		return nil, errors.Wrap(err, "lookup voucher")
	}
	if !found.Active {
		return nil, ErrInvalidVoucher
	}
	return found, nil
}
