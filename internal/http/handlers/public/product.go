package public

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/cache"
	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

const stockStreamHeartbeat = 25 * time.Second

// 库存状态
const (
	stockStatusInStock    = "in_stock"
	stockStatusLowStock   = "low_stock"
	stockStatusOutOfStock = "out_of_stock"
)

// PublicProductView 公共商品响应结构
type PublicProductView struct {
	models.Product
	StockStatus string `json:"stock_status"`
	IsSoldOut   bool   `json:"is_sold_out"`
}

func (h *Handler) toPublicProductView(product models.Product) PublicProductView {
	threshold := product.LowStockThreshold
	if threshold <= 0 && h.Config != nil {
		threshold = h.Config.Stock.LowStockThreshold
	}
	status := stockStatusInStock
	switch {
	case product.Stock <= 0:
		status = stockStatusOutOfStock
	case product.Stock <= threshold:
		status = stockStatusLowStock
	}
	return PublicProductView{
		Product:     product,
		StockStatus: status,
		IsSoldOut:   product.Stock <= 0,
	}
}

// ListProducts 上架商品列表
func (h *Handler) ListProducts(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	search := strings.TrimSpace(c.Query("q"))

	products, total, err := h.ProductService.ListPublic(c.Request.Context(), search, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "failed to load products")
		return
	}
	views := make([]PublicProductView, 0, len(products))
	for _, product := range products {
		views = append(views, h.toPublicProductView(product))
	}
	response.SuccessWithPage(c, views, handlershared.BuildPagination(page, pageSize, total))
}

// GetProduct 商品详情，支持数字 ID 或 slug
func (h *Handler) GetProduct(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("id"))
	var (
		product *models.Product
		err     error
	)
	if id, parseErr := strconv.ParseUint(ref, 10, 64); parseErr == nil && id > 0 {
		product, err = h.ProductService.GetPublicByID(c.Request.Context(), uint(id))
	} else {
		product, err = h.ProductService.GetPublicBySlug(c.Request.Context(), ref)
	}
	if err != nil {
		respondServiceError(c, err, "failed to load product")
		return
	}
	response.Success(c, h.toPublicProductView(*product))
}

// StreamProductStock 通过 SSE 推送商品低库存提醒
func (h *Handler) StreamProductStock(c *gin.Context) {
	productID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	product, err := h.ProductService.GetPublicByID(ctx, productID)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			respondError(c, response.CodeNotFound, "product not found", nil)
			return
		}
		respondServiceError(c, err, "failed to load product")
		return
	}

	warnings, cancel := cache.SubscribeStockWarnings(ctx, productID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	view := h.toPublicProductView(*product)
	c.SSEvent("stock", gin.H{
		"product_id":   product.ID,
		"stock":        product.Stock,
		"stock_status": view.StockStatus,
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(stockStreamHeartbeat)
	defer heartbeat.Stop()
	requestLog(c).Debugw("stock_stream_opened", "product_id", productID)
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case warning, ok := <-warnings:
			if !ok {
				return false
			}
			c.SSEvent("low_stock", warning)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			return true
		}
	})
	requestLog(c).Debugw("stock_stream_closed", "product_id", productID)
}
