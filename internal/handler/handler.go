// Package handler exposes the checkout, catalog and loyalty operations as a
// JSON HTTP API.
package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/loyalty"
	"github.com/xenking/nusa-pos/internal/domain/order"
	"github.com/xenking/nusa-pos/internal/domain/product"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// Handler serves the /api routes.
type Handler struct {
	products  product.Repository
	orders    *order.Service
	customers *customer.Service
	policy    loyalty.Policy
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	orders *order.Service,
	customers *customer.Service,
	policy loyalty.Policy,
) *Handler {
	return &Handler{
		products:  products,
		orders:    orders,
		customers: customers,
		policy:    policy,
	}
}

// Routes registers the API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.Post("/checkout", h.Checkout)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{id}", h.GetOrder)
	r.Get("/customers/{phone}", h.GetCustomer)
	r.Get("/customers/{phone}/orders", h.ListCustomerOrders)
	r.Get("/customers/{phone}/redemptions", h.ListRedemptions)
	r.Post("/redemptions", h.Redeem)
}

// Router returns a chi router with the API mounted under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Route("/api", h.Routes)
	return r
}

// ListProducts returns the catalog with current stock.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				encodeProduct(e, &products[i])
			}
		})
	})
}

// GetProduct returns one product with its current stock.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// ListOrders returns the most recent orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// GetOrder returns one order. Clients that timed out on checkout poll here.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// fail maps err to a status and writes the error body. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeError(w, status, msg)
}

func statusOf(err error) int {
	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
		isErr  *order.InsufficientStockError
		aoErr  *order.AmountOverflowError
		scErr  *order.StockConflictError
		ipErr  *customer.InsufficientPointsError
		reqErr *requestError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrProductRequired),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, order.ErrPaymentMethodRequired),
		errors.As(err, &iqErr),
		errors.Is(err, customer.ErrInvalidPoints),
		errors.Is(err, customer.ErrDescriptionRequired),
		errors.Is(err, customer.ErrReferenceRequired):
		return http.StatusBadRequest
	case errors.As(err, &pnfErr),
		errors.As(err, &isErr),
		errors.As(err, &aoErr),
		errors.As(err, &ipErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &scErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// requestError is a malformed request body or parameter.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, badRequest("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

// readBody decodes the JSON request body with fn.
func readBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read request body: %v", err)
	}
	if err := fn(jx.DecodeBytes(body)); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
