package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/nusa-pos/internal/domain/order"
	"github.com/xenking/nusa-pos/internal/idempotency"
)

// Checkout places an order. A repeated Idempotency-Key returns the original
// order with 200 instead of 201.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutBody
	if err := readBody(w, r, body.Decode); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		Customer:       body.Customer,
		Items:          body.Items,
		VoucherCode:    body.VoucherCode,
		PaymentMethod:  body.PaymentMethod,
		TableRef:       body.TableRef,
		IdempotencyKey: idempotency.Key(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
			intField(e, "points_balance", res.PointsBalance)
			e.Field("replayed", func(e *jx.Encoder) { e.Bool(res.Replayed) })
			e.Field("warnings", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, warn := range res.Warnings {
						e.Str(warn)
					}
				})
			})
		})
	})
}
