package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/repository"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

// AdjustStockRequest 库存调整请求
type AdjustStockRequest struct {
	Delta      int    `json:"delta"`
	ChangeType string `json:"change_type"`
	Reason     string `json:"reason"`
	Reference  string `json:"reference"`
}

// GetAdminProducts 获取商品列表 (Admin)
func (h *Handler) GetAdminProducts(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	products, total, err := h.ProductService.ListAdmin(repository.ProductListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
		LowStock: c.Query("low_stock") == "true",
	})
	if err != nil {
		respondServiceError(c, err, "failed to load products")
		return
	}
	response.SuccessWithPage(c, products, handlershared.BuildPagination(page, pageSize, total))
}

// GetAdminProduct 获取商品详情 (Admin)
func (h *Handler) GetAdminProduct(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	product, err := h.ProductService.GetAdminByID(id)
	if err != nil {
		respondServiceError(c, err, "failed to load product")
		return
	}
	response.Success(c, product)
}

// CreateProduct 创建商品，初始库存写入库存流水
func (h *Handler) CreateProduct(c *gin.Context) {
	var req service.CreateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	product, err := h.ProductService.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "failed to create product")
		return
	}
	response.Success(c, product)
}

// UpdateProduct 更新商品资料，库存只能通过调整接口修改
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req service.CreateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	product, err := h.ProductService.Update(id, req)
	if err != nil {
		respondServiceError(c, err, "failed to update product")
		return
	}
	response.Success(c, product)
}

// DeleteProduct 删除商品
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.ProductService.Delete(id); err != nil {
		respondServiceError(c, err, "failed to delete product")
		return
	}
	response.Success(c, nil)
}

// AdjustProductStock 手工调整库存
func (h *Handler) AdjustProductStock(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	change, err := h.ProductService.AdjustStock(c.Request.Context(), service.AdjustStockInput{
		ProductID:  id,
		Delta:      req.Delta,
		ChangeType: req.ChangeType,
		Reason:     req.Reason,
		Reference:  req.Reference,
	})
	if err != nil {
		respondServiceError(c, err, "failed to adjust stock")
		return
	}
	requestLog(c).Infow("admin_stock_adjusted",
		"admin_id", adminID,
		"product_id", id,
		"delta", req.Delta,
		"stock_after", change.NewStock,
		"clamped", change.Clamped,
	)
	response.Success(c, change)
}

// GetProductStockHistory 库存流水
func (h *Handler) GetProductStockHistory(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.ProductService.StockHistory(id, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "failed to load stock history")
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}
