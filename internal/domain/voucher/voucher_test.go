package voucher

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoucher_Apply(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		subtotal int64
		want     int64
	}{
		{name: "amount below subtotal", amount: 5000, subtotal: 35000, want: 5000},
		{name: "amount equals subtotal", amount: 3000, subtotal: 3000, want: 3000},
		{name: "oversized voucher clamps to subtotal", amount: 10000, subtotal: 3000, want: 3000},
		{name: "zero subtotal", amount: 10000, subtotal: 0, want: 0},
		{name: "zero amount", amount: 0, subtotal: 5000, want: 0},
		{name: "negative amount treated as zero", amount: -10, subtotal: 5000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Voucher{Code: "X", DiscountAmount: tt.amount, Active: true}.Apply(tt.subtotal)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, int64(0))
			assert.LessOrEqual(t, got, max(tt.subtotal, 0))
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "HEMAT10", NormalizeCode("  hemat10 "))
	assert.Equal(t, "", NormalizeCode("   "))
}

type mockVoucherRepo struct {
	voucher  *Voucher
	err      error
	lastCode string
}

func (m *mockVoucherRepo) FindActive(_ context.Context, code string) (*Voucher, error) {
	m.lastCode = code
	return m.voucher, m.err
}

func TestRepoValidator_Validate(t *testing.T) {
	tests := []struct {
		name     string
		repo     *mockVoucherRepo
		code     string
		wantCode string
		wantErr  error
	}{
		{
			name:     "valid code is normalized before lookup",
			repo:     &mockVoucherRepo{voucher: &Voucher{Code: "HEMAT", DiscountAmount: 5000, Active: true}},
			code:     " hemat ",
			wantCode: "HEMAT",
		},
		{
			name:    "unknown code",
			repo:    &mockVoucherRepo{err: ErrInvalidVoucher},
			code:    "NOPE",
			wantErr: ErrInvalidVoucher,
		},
		{
			name:    "inactive voucher",
			repo:    &mockVoucherRepo{voucher: &Voucher{Code: "OLD", DiscountAmount: 1000}},
			code:    "old",
			wantErr: ErrInvalidVoucher,
		},
		{
			name:    "blank code never hits the store",
			repo:    &mockVoucherRepo{err: errors.New("must not be called")},
			code:    "  ",
			wantErr: ErrInvalidVoucher,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewRepoValidator(tt.repo).Validate(context.Background(), tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, v.Code)
			assert.Equal(t, tt.wantCode, tt.repo.lastCode)
		})
	}
}

func TestRepoValidator_StoreFailure(t *testing.T) {
	repo := &mockVoucherRepo{err: errors.New("connection reset")}

	_, err := NewRepoValidator(repo).Validate(context.Background(), "HEMAT")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidVoucher)
	assert.Contains(t, err.Error(), "lookup voucher")
}
