package public

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiEnvelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

type storeHarness struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
}

func newStoreHarness(t *testing.T) *storeHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.MigrateTables(db))
	previous := models.DB
	models.DB = db
	t.Cleanup(func() { models.DB = previous })

	cfg := &config.Config{}
	h := New(provider.NewContainer(cfg))

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/products/:id", h.GetProduct)
	api.POST("/cart/items", h.AddCartItem)
	api.GET("/cart", h.GetCart)
	api.POST("/checkout", h.StartCheckout)
	api.PUT("/checkout/:id/shipping", h.SubmitCheckoutShipping)
	api.PUT("/checkout/:id/payment", h.SelectCheckoutPayment)
	api.POST("/checkout/:id/place", h.PlaceCheckout)
	api.GET("/orders/:order_no", h.GetOrder)
	api.POST("/payments/webhook/stripe", h.StripeWebhook)
	return &storeHarness{t: t, engine: r, db: db}
}

func (s *storeHarness) do(method, path, cartToken string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	s.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if cartToken != "" {
		req.Header.Set(CartTokenHeader, cartToken)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env apiEnvelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *storeHarness) createBook(slug string, stock int) *models.Product {
	s.t.Helper()
	price, err := models.NewMoneyFromString("499.00")
	require.NoError(s.t, err)
	product := &models.Product{Slug: slug, Title: "Book " + slug, PriceAmount: price, Stock: stock, IsActive: true}
	require.NoError(s.t, s.db.Create(product).Error)
	return product
}

func TestGuestCheckoutOverHTTP(t *testing.T) {
	s := newStoreHarness(t)
	book := s.createBook("dune", 5)

	w, env := s.do(http.MethodPost, "/api/v1/cart/items", "", gin.H{"product_id": book.ID, "quantity": 2})
	require.Equal(t, 0, env.StatusCode, env.Msg)
	token := w.Header().Get(CartTokenHeader)
	require.NotEmpty(t, token, "a guest cart token should be issued")

	_, env = s.do(http.MethodPost, "/api/v1/checkout", token, nil)
	require.Equal(t, 0, env.StatusCode, env.Msg)
	var session struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.Equal(t, "shipping", session.State)

	address := gin.H{
		"name": "Asha Rao", "email": "asha@example.com", "phone": "+91 98765 43210",
		"line1": "12 MG Road", "city": "Bengaluru", "state": "KA", "postal_code": "560001", "country": "IN",
	}
	_, env = s.do(http.MethodPut, "/api/v1/checkout/"+session.ID+"/shipping", token, gin.H{
		"shipping": address, "billing_same_as_shipping": true,
	})
	require.Equal(t, 0, env.StatusCode, env.Msg)

	_, env = s.do(http.MethodPut, "/api/v1/checkout/"+session.ID+"/payment", token, gin.H{"method": "cod"})
	require.Equal(t, 0, env.StatusCode, env.Msg)

	_, env = s.do(http.MethodPost, "/api/v1/checkout/"+session.ID+"/place", token, nil)
	require.Equal(t, 0, env.StatusCode, env.Msg)
	var placed struct {
		State   string `json:"state"`
		OrderNo string `json:"order_no"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &placed))
	require.Equal(t, "completed", placed.State)
	require.NotEmpty(t, placed.OrderNo)

	_, env = s.do(http.MethodGet, "/api/v1/cart", token, nil)
	var cart struct {
		ItemCount int `json:"item_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	require.Zero(t, cart.ItemCount, "cart should be cleared after placing")

	_, env = s.do(http.MethodGet, "/api/v1/orders/"+placed.OrderNo, token, nil)
	require.Equal(t, 400, env.StatusCode, "guest lookup without email must be rejected")

	_, env = s.do(http.MethodGet, "/api/v1/orders/"+placed.OrderNo+"?email=ASHA@example.com", token, nil)
	require.Equal(t, 0, env.StatusCode, env.Msg)
}

func TestShippingValidationReturnsFieldErrors(t *testing.T) {
	s := newStoreHarness(t)
	book := s.createBook("emma", 3)

	w, _ := s.do(http.MethodPost, "/api/v1/cart/items", "", gin.H{"product_id": book.ID, "quantity": 1})
	token := w.Header().Get(CartTokenHeader)
	_, env := s.do(http.MethodPost, "/api/v1/checkout", token, nil)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))

	_, env = s.do(http.MethodPut, "/api/v1/checkout/"+session.ID+"/shipping", token, gin.H{
		"shipping": gin.H{"name": "No Email", "email": "not-an-email"},
	})
	require.Equal(t, 422, env.StatusCode)
	var data struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Contains(t, data.Fields, "email")
}

func TestStartCheckoutWithoutTokenIsRejected(t *testing.T) {
	s := newStoreHarness(t)

	_, env := s.do(http.MethodPost, "/api/v1/checkout", "", nil)
	require.Equal(t, 401, env.StatusCode)
}

func TestStripeWebhookWithoutGatewayIsUnavailable(t *testing.T) {
	s := newStoreHarness(t)

	w, _ := s.do(http.MethodPost, "/api/v1/payments/webhook/stripe", "", gin.H{"type": "checkout.session.completed"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetProductBySlugReportsStockStatus(t *testing.T) {
	s := newStoreHarness(t)
	s.createBook("last-copy", 0)

	_, env := s.do(http.MethodGet, "/api/v1/products/last-copy", "", nil)
	require.Equal(t, 0, env.StatusCode, env.Msg)
	var view struct {
		StockStatus string `json:"stock_status"`
		IsSoldOut   bool   `json:"is_sold_out"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, "out_of_stock", view.StockStatus)
	require.True(t, view.IsSoldOut)
}
