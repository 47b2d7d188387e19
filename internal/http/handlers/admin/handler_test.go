package admin

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
	"github.com/dujiao-next/bookshop/internal/service"

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

func newAdminHarness(t *testing.T) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:admin_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.MigrateTables(db))
	previous := models.DB
	models.DB = db
	t.Cleanup(func() { models.DB = previous })

	cfg := &config.Config{
		JWT:   config.JWTConfig{SecretKey: "admin-test-secret", ExpireHours: 1},
		Admin: config.AdminConfig{DefaultUsername: "owner", DefaultPassword: "Sup3rSecret!"},
	}
	container := provider.NewContainer(cfg)
	h := New(container)

	r := gin.New()
	r.POST("/admin/login", h.AdminLogin)
	authed := r.Group("/admin", func(c *gin.Context) {
		c.Set("admin_id", uint(1))
		c.Set("admin_is_super", true)
		c.Next()
	})
	authed.POST("/products/:id/stock", h.AdjustProductStock)
	authed.GET("/products/:id/stock/history", h.GetProductStockHistory)
	return r, container
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) apiEnvelope {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestAdminLoginWithSeededAccount(t *testing.T) {
	r, _ := newAdminHarness(t)

	env := doJSON(t, r, http.MethodPost, "/admin/login", map[string]string{
		"username": "owner",
		"password": "Sup3rSecret!",
	})
	require.Equal(t, 0, env.StatusCode, env.Msg)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	env = doJSON(t, r, http.MethodPost, "/admin/login", map[string]string{
		"username": "owner",
		"password": "wrong-password",
	})
	require.Equal(t, 401, env.StatusCode)
}

func TestAdjustProductStockClampsAndRecordsHistory(t *testing.T) {
	r, container := newAdminHarness(t)

	product, err := container.ProductService.Create(t.Context(), service.CreateProductInput{
		Slug:         "field-notes",
		Title:        "Field Notes",
		Price:        models.MoneyFromMinorUnits(45000),
		InitialStock: 3,
	})
	require.NoError(t, err)

	path := fmt.Sprintf("/admin/products/%d/stock", product.ID)
	env := doJSON(t, r, http.MethodPost, path, map[string]interface{}{
		"delta":       5,
		"change_type": "subtract",
		"reason":      "damaged in transit",
	})
	require.Equal(t, 0, env.StatusCode, env.Msg)
	var change service.StockChange
	require.NoError(t, json.Unmarshal(env.Data, &change))
	require.Equal(t, 3, change.PreviousStock)
	require.Equal(t, 0, change.NewStock)
	require.True(t, change.Clamped)

	env = doJSON(t, r, http.MethodPost, path, map[string]interface{}{
		"delta":       0,
		"change_type": "add",
	})
	require.Equal(t, 400, env.StatusCode)

	env = doJSON(t, r, http.MethodGet, fmt.Sprintf("/admin/products/%d/stock/history", product.ID), nil)
	require.Equal(t, 0, env.StatusCode, env.Msg)
}
