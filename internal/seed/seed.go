// Package seed loads the initial catalog, vouchers and loyalty members from
// a JSON file, optionally gzip-compressed, and writes them into a store.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
)

// Sink receives seeded records. Every method must be an upsert so that
// seeding can be repeated.
type Sink interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertVoucher(ctx context.Context, v voucher.Voucher) error
	UpsertCustomer(ctx context.Context, c customer.Customer) error
}

// Data is the content of a seed file.
type Data struct {
	Products  []Product  `json:"products"`
	Vouchers  []Voucher  `json:"vouchers"`
	Customers []Customer `json:"customers"`
}

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
	Stock    int64  `json:"stock"`
}

type Voucher struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	Active         *bool  `json:"active"`
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Points  int64  `json:"points"`
}

// ReadFile reads a seed file. Files ending in ".gz" are decompressed.
func ReadFile(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return data, nil
}

// Decode parses and validates seed data.
func Decode(r io.Reader) (*Data, error) {
	var d Data
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Data) validate() error {
	for i, p := range d.Products {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return errors.Errorf("product #%d: id required", i)
		case p.Price < 0:
			return errors.Errorf("product %s: negative price", p.ID)
		case p.Stock < 0:
			return errors.Errorf("product %s: negative stock", p.ID)
		}
	}
	for i, v := range d.Vouchers {
		switch {
		case voucher.NormalizeCode(v.Code) == "":
			return errors.Errorf("voucher #%d: code required", i)
		case v.DiscountAmount < 0:
			return errors.Errorf("voucher %s: negative discount", v.Code)
		}
	}
	for i, c := range d.Customers {
		switch {
		case strings.TrimSpace(c.Phone) == "":
			return errors.Errorf("customer #%d: phone required", i)
		case c.Points < 0:
			return errors.Errorf("customer %s: negative points", c.Phone)
		}
	}
	return nil
}

// Apply upserts every record of d into sink.
func Apply(ctx context.Context, sink Sink, d *Data) error {
	lg := zctx.From(ctx)

	for _, p := range d.Products {
		if err := sink.UpsertProduct(ctx, product.Product{
			ID:       strings.TrimSpace(p.ID),
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Stock:    p.Stock,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	for _, v := range d.Vouchers {
		active := v.Active == nil || *v.Active
		if err := sink.UpsertVoucher(ctx, voucher.Voucher{
			Code:           voucher.NormalizeCode(v.Code),
			DiscountAmount: v.DiscountAmount,
			Active:         active,
		}); err != nil {
			return errors.Wrapf(err, "upsert voucher %s", v.Code)
		}
	}
	for _, c := range d.Customers {
		if err := sink.UpsertCustomer(ctx, customer.Customer{
			Name:    c.Name,
			Phone:   strings.TrimSpace(c.Phone),
			Address: c.Address,
			Points:  c.Points,
		}); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.Phone)
		}
	}

	lg.Info("Seed applied",
		zap.Int("products", len(d.Products)),
		zap.Int("vouchers", len(d.Vouchers)),
		zap.Int("customers", len(d.Customers)),
	)
	return nil
}

// LoadFile reads path and applies it to sink.
func LoadFile(ctx context.Context, sink Sink, path string) error {
	d, err := ReadFile(path)
	if err != nil {
		return err
	}
	return Apply(ctx, sink, d)
}
