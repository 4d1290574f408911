package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/nusa-pos/internal/domain/customer"
	"github.com/xenking/nusa-pos/internal/domain/loyalty"
	"github.com/xenking/nusa-pos/internal/domain/order"
	"github.com/xenking/nusa-pos/internal/domain/product"
	"github.com/xenking/nusa-pos/internal/domain/voucher"
	"github.com/xenking/nusa-pos/internal/idempotency"
	"github.com/xenking/nusa-pos/internal/storage/memory"
)

type testAPI struct {
	store  *memory.Store
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	require.NoError(t, store.UpsertProduct(ctx, product.Product{ID: "A", Name: "Nasi Goreng", Category: "food", Price: 10000, Stock: 10}))
	require.NoError(t, store.UpsertProduct(ctx, product.Product{ID: "B", Name: "Es Teh", Category: "drink", Price: 15000, Stock: 1}))
	require.NoError(t, store.UpsertVoucher(ctx, voucher.Voucher{Code: "HEMAT", DiscountAmount: 5000, Active: true}))
	require.NoError(t, store.UpsertCustomer(ctx, customer.Customer{ID: "c-1", Name: "Sri", Phone: "0855", Points: 10}))

	policy, err := loyalty.NewPolicy(5000, loyalty.DefaultPointValue)
	require.NoError(t, err)
	orders, err := order.NewService(store.Products(), voucher.NewRepoValidator(store.Vouchers()), store.Orders(), policy,
		order.WithKeyFilter(idempotency.NewFilter(1000, 0.01)))
	require.NoError(t, err)
	customers := customer.NewService(store.Customers(), policy)

	return &testAPI{
		store:  store,
		router: New(store.Products(), orders, customers, policy).Router(),
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type orderBody struct {
	ID          string `json:"id"`
	QueueNumber int    `json:"queue_number"`
	Customer    struct {
		ID    string `json:"id"`
		Phone string `json:"phone"`
	} `json:"customer"`
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int64  `json:"quantity"`
		Total     int64  `json:"total"`
	} `json:"items"`
	Subtotal     int64  `json:"subtotal"`
	Discount     int64  `json:"discount"`
	Total        int64  `json:"total"`
	VoucherCode  string `json:"voucher_code"`
	PointsEarned int64  `json:"points_earned"`
	TableRef     string `json:"table_ref"`
}

type checkoutResponse struct {
	Order         orderBody `json:"order"`
	PointsBalance int64     `json:"points_balance"`
	Replayed      bool      `json:"replayed"`
	Warnings      []string  `json:"warnings"`
}

const exampleCheckout = `{
	"customer": {"name": "Budi", "phone": "0811", "address": null},
	"items": [{"product_id": "A", "quantity": 2}, {"product_id": "B", "quantity": 1}],
	"voucher_code": "hemat",
	"payment_method": "cash",
	"table_ref": "T4",
	"client": "mobile-v2"
}`

func TestListProducts(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/products", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	products := decode[[]map[string]any](t, w)
	require.Len(t, products, 2)
	assert.Equal(t, "A", products[0]["id"])
	assert.Equal(t, float64(10), products[0]["stock"])
	assert.Equal(t, float64(10000), products[0]["price"])
}

func TestGetProduct(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/products/B", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[map[string]any](t, w)
	assert.Equal(t, "B", p["id"])
	assert.Equal(t, "Es Teh", p["name"])
	assert.Equal(t, float64(1), p["stock"])

	w = api.do(t, http.MethodGet, "/api/products/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "product not found", decode[errorBody](t, w).Message)
}

func TestCheckout(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/checkout", exampleCheckout)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[checkoutResponse](t, w)
	assert.False(t, res.Replayed)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, int64(35000), res.Order.Subtotal)
	assert.Equal(t, int64(5000), res.Order.Discount)
	assert.Equal(t, int64(30000), res.Order.Total)
	assert.Equal(t, int64(6), res.Order.PointsEarned)
	assert.Equal(t, "HEMAT", res.Order.VoucherCode)
	assert.Equal(t, "T4", res.Order.TableRef)
	assert.Equal(t, 1, res.Order.QueueNumber)
	assert.Equal(t, int64(6), res.PointsBalance)
	require.Len(t, res.Order.Items, 2)
	assert.Equal(t, int64(17143), res.Order.Items[0].Total)
	assert.Equal(t, int64(12857), res.Order.Items[1].Total)

	got := api.do(t, http.MethodGet, "/api/orders/"+res.Order.ID, "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, res.Order.ID, decode[orderBody](t, got).ID)

	list := api.do(t, http.MethodGet, "/api/orders?limit=5", "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]orderBody](t, list), 1)
}

func TestCheckout_InvalidVoucherWarning(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/checkout",
		`{"customer":{"phone":"0811"},"items":[{"product_id":"A","quantity":1}],"voucher_code":"zonk","payment_method":"qris"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[checkoutResponse](t, w)
	assert.Equal(t, []string{"voucher ZONK is not valid"}, res.Warnings)
	assert.Equal(t, int64(0), res.Order.Discount)
	assert.Empty(t, res.Order.VoucherCode)
}

func TestCheckout_IdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	body := `{"customer":{"phone":"0811"},"items":[{"product_id":"A","quantity":1}],"payment_method":"cash"}`

	first := api.do(t, http.MethodPost, "/api/checkout", body, idempotency.Header, "till-1-42")
	require.Equal(t, http.StatusCreated, first.Code)
	second := api.do(t, http.MethodPost, "/api/checkout", body, idempotency.Header, "till-1-42")
	require.Equal(t, http.StatusOK, second.Code)

	r1 := decode[checkoutResponse](t, first)
	r2 := decode[checkoutResponse](t, second)
	assert.True(t, r2.Replayed)
	assert.Equal(t, r1.Order.ID, r2.Order.ID)

	p, err := api.store.Products().GetByID(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.Stock)
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "malformed json",
			body:       `{"items": [`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "wrong type",
			body:       `{"items": [{"product_id": "A", "quantity": "two"}]}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "empty cart",
			body:       `{"customer":{"phone":"0811"},"items":[],"payment_method":"cash"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "cart is empty",
		},
		{
			name:       "zero quantity",
			body:       `{"customer":{"phone":"0811"},"items":[{"product_id":"A","quantity":0}],"payment_method":"cash"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "quantity must be greater than 0",
		},
		{
			name:       "missing phone",
			body:       `{"items":[{"product_id":"A","quantity":1}],"payment_method":"cash"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "customer phone required",
		},
		{
			name:       "unknown product",
			body:       `{"customer":{"phone":"0811"},"items":[{"product_id":"Z","quantity":1}],"payment_method":"cash"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "product Z not found",
		},
		{
			name:       "insufficient stock",
			body:       `{"customer":{"phone":"0811"},"items":[{"product_id":"B","quantity":3}],"payment_method":"cash"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "short by 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)

			w := api.do(t, http.MethodPost, "/api/checkout", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decode[errorBody](t, w)
			assert.Equal(t, tt.wantStatus, body.Code)
			assert.Contains(t, body.Message, tt.wantMsg)
		})
	}
}

func TestCheckout_StoreFailureIsHidden(t *testing.T) {
	api := newTestAPI(t)
	api.store.SetCommitHook(func(*order.Order) error {
		return errors.New("connection reset by peer")
	})

	w := api.do(t, http.MethodPost, "/api/checkout",
		`{"customer":{"phone":"0811"},"items":[{"product_id":"A","quantity":1}],"payment_method":"cash"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "internal server error", body.Message)
}

func TestCheckout_AmountTooLarge(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.store.UpsertProduct(context.Background(),
		product.Product{ID: "G", Name: "Emas", Price: 4e18, Stock: 5}))

	w := api.do(t, http.MethodPost, "/api/checkout",
		`{"customer":{"phone":"0811"},"items":[{"product_id":"G","quantity":3}],"payment_method":"cash"}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Contains(t, decode[errorBody](t, w).Message, "too large")

	p, err := api.store.Products().GetByID(context.Background(), "G")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Stock)
}

func TestGetOrder_NotFound(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/orders/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order not found", decode[errorBody](t, w).Message)
}

func TestListOrders_BadLimit(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/orders?limit=-3", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomerEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/customers/0855", "")
	require.Equal(t, http.StatusOK, w.Code)
	c := decode[map[string]any](t, w)
	assert.Equal(t, "c-1", c["id"])
	assert.Equal(t, float64(10), c["points"])
	assert.Equal(t, float64(50000), c["points_value"])

	checkout := api.do(t, http.MethodPost, "/api/checkout",
		`{"customer":{"phone":"0855"},"items":[{"product_id":"A","quantity":1}],"payment_method":"cash"}`)
	require.Equal(t, http.StatusCreated, checkout.Code)
	assert.Equal(t, int64(12), decode[checkoutResponse](t, checkout).PointsBalance)

	history := api.do(t, http.MethodGet, "/api/customers/0855/orders", "")
	require.Equal(t, http.StatusOK, history.Code)
	assert.Len(t, decode[[]orderBody](t, history), 1)

	missing := api.do(t, http.MethodGet, "/api/customers/0000", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestRedeem(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/redemptions",
		`{"phone":"0855","points":4,"description":"Free Es Teh"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Redemption struct {
			ID         string `json:"id"`
			CustomerID string `json:"customer_id"`
			Points     int64  `json:"points"`
		} `json:"redemption"`
		Balance int64 `json:"balance"`
		Value   int64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "c-1", res.Redemption.CustomerID)
	assert.Equal(t, int64(6), res.Balance)
	assert.Equal(t, int64(20000), res.Value)

	over := api.do(t, http.MethodPost, "/api/redemptions",
		`{"customer_id":"c-1","points":7,"description":"Free meal"}`)
	require.Equal(t, http.StatusUnprocessableEntity, over.Code)
	assert.Contains(t, decode[errorBody](t, over).Message, "available 6")

	invalid := api.do(t, http.MethodPost, "/api/redemptions", `{"phone":"0855","points":0,"description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	unknown := api.do(t, http.MethodPost, "/api/redemptions", `{"phone":"0999","points":1,"description":"x"}`)
	assert.Equal(t, http.StatusNotFound, unknown.Code)

	list := api.do(t, http.MethodGet, "/api/customers/0855/redemptions", "")
	require.Equal(t, http.StatusOK, list.Code)
	var history struct {
		Customer struct {
			Points int64 `json:"points"`
		} `json:"customer"`
		Redemptions []struct {
			ID string `json:"id"`
		} `json:"redemptions"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &history))
	assert.Equal(t, int64(6), history.Customer.Points)
	require.Len(t, history.Redemptions, 1)
	assert.Equal(t, res.Redemption.ID, history.Redemptions[0].ID)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, decode[errorBody](t, w).Code)

	w = api.do(t, http.MethodDelete, "/api/products", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
