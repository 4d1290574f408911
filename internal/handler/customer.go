package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/nusa-pos/internal/domain/customer"
)

// GetCustomer returns a loyalty member and the value of their balance.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Resolve(r.Context(), "", chi.URLParam(r, "phone"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCustomer(e, c, h.policy.Value(c.Points))
	})
}

// ListCustomerOrders returns a member's order history.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.customers.Resolve(r.Context(), "", chi.URLParam(r, "phone"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.History(r.Context(), c.Phone, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// ListRedemptions returns a member's redemption history.
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, redemptions, err := h.customers.Redemptions(r.Context(), "", chi.URLParam(r, "phone"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("customer", func(e *jx.Encoder) { encodeCustomer(e, c, h.policy.Value(c.Points)) })
			e.Field("redemptions", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range redemptions {
						encodeRedemption(e, &redemptions[i])
					}
				})
			})
		})
	})
}

// Redeem spends loyalty points.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var body redeemBody
	if err := readBody(w, r, body.Decode); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.customers.Redeem(r.Context(), customer.RedeemRequest{
		CustomerID:  body.CustomerID,
		Phone:       body.Phone,
		Points:      body.Points,
		Description: body.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("redemption", func(e *jx.Encoder) { encodeRedemption(e, res.Redemption) })
			intField(e, "balance", res.Balance)
			intField(e, "value", res.Value)
		})
	})
}
