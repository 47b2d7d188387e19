package public

import (
	"strings"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListMyOrders 登录用户订单列表
func (h *Handler) ListMyOrders(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		respondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	orders, total, err := h.OrderService.ListByUser(c.Request.Context(), repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondServiceError(c, err, "failed to load orders")
		return
	}
	response.SuccessWithPage(c, orders, handlershared.BuildPagination(page, pageSize, total))
}

// GetOrder 订单详情：登录用户按归属查询，游客需提供下单邮箱
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	userID := getUserID(c)
	email := ""
	if userID == "" {
		email = strings.ToLower(strings.TrimSpace(c.Query("email")))
		if email == "" {
			respondError(c, response.CodeBadRequest, "email is required for guest order lookup", nil)
			return
		}
	}
	order, err := h.OrderService.GetByOrderNo(c.Request.Context(), orderNo, userID, email)
	if err != nil {
		respondServiceError(c, err, "failed to load order")
		return
	}
	response.Success(c, order)
}
