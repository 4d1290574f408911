package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/order"
	"github.com/xenking/nusa-pos/internal/domain/product"
)

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func intField(e *jx.Encoder, name string, v int64) {
	e.Field(name, func(e *jx.Encoder) { e.Int64(v) })
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	strField(e, name, t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "name", p.Name)
		strField(e, "category", p.Category)
		intField(e, "price", p.Price)
		intField(e, "stock", p.Stock)
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		e.Field("queue_number", func(e *jx.Encoder) { e.Int(o.QueueNumber) })
		strField(e, "business_day", o.BusinessDay)
		e.Field("customer", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				strField(e, "id", o.CustomerID)
				strField(e, "name", o.CustomerName)
				strField(e, "phone", o.CustomerPhone)
				strField(e, "address", o.CustomerAddress)
			})
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "product_id", item.ProductID)
						strField(e, "product_name", item.ProductName)
						intField(e, "unit_price", item.UnitPrice)
						intField(e, "quantity", item.Quantity)
						intField(e, "gross", item.Gross)
						intField(e, "discount", item.Discount)
						intField(e, "total", item.Total)
					})
				}
			})
		})
		intField(e, "subtotal", o.Subtotal)
		intField(e, "discount", o.Discount)
		intField(e, "total", o.Total)
		if o.VoucherCode != "" {
			strField(e, "voucher_code", o.VoucherCode)
		}
		intField(e, "points_earned", o.PointsEarned)
		strField(e, "payment_method", o.PaymentMethod)
		if o.TableRef != "" {
			strField(e, "table_ref", o.TableRef)
		}
		timeField(e, "created_at", o.CreatedAt)
	})
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer, pointsValue int64) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", c.ID)
		strField(e, "name", c.Name)
		strField(e, "phone", c.Phone)
		strField(e, "address", c.Address)
		intField(e, "points", c.Points)
		intField(e, "points_value", pointsValue)
	})
}

func encodeRedemption(e *jx.Encoder, r *customer.Redemption) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", r.ID)
		strField(e, "customer_id", r.CustomerID)
		intField(e, "points", r.Points)
		strField(e, "description", r.Description)
		timeField(e, "created_at", r.CreatedAt)
	})
}

// checkoutBody is the POST /api/checkout payload.
type checkoutBody struct {
	Customer      order.Customer
	Items         []order.CartLine
	VoucherCode   string
	PaymentMethod string
	TableRef      string
}

func (b *checkoutBody) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customer":
			return b.decodeCustomer(d)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				b.Items = append(b.Items, line)
				return nil
			})
		case "voucher_code":
			b.VoucherCode, err = optStr(d)
		case "payment_method":
			b.PaymentMethod, err = d.Str()
		case "table_ref":
			b.TableRef, err = optStr(d)
		default:
			return d.Skip()
		}
		return err
	})
}

func (b *checkoutBody) decodeCustomer(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			b.Customer.Name, err = optStr(d)
		case "phone":
			b.Customer.Phone, err = d.Str()
		case "address":
			b.Customer.Address, err = optStr(d)
		default:
			return d.Skip()
		}
		return err
	})
}

func decodeCartLine(d *jx.Decoder) (order.CartLine, error) {
	var line order.CartLine
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			line.ProductID, err = d.Str()
		case "quantity":
			line.Quantity, err = d.Int64()
		default:
			return d.Skip()
		}
		return err
	})
	return line, err
}

// redeemBody is the POST /api/redemptions payload.
type redeemBody struct {
	CustomerID  string
	Phone       string
	Points      int64
	Description string
}

func (b *redeemBody) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customer_id":
			b.CustomerID, err = optStr(d)
		case "phone":
			b.Phone, err = optStr(d)
		case "points":
			b.Points, err = d.Int64()
		case "description":
			b.Description, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return "", errors.Wrap(err, "string")
	}
	return s, nil
}
