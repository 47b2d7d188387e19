package admin

import (
	"strings"
	"time"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/gin-gonic/gin"
)

// UpdateOrderStatusRequest 修改订单状态请求
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func parseTimeNullable(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AdminListOrders 管理端订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	createdFrom, err := parseTimeNullable(c.Query("created_from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "created_from is invalid", nil)
		return
	}
	createdTo, err := parseTimeNullable(c.Query("created_to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "created_to is invalid", nil)
		return
	}

	orders, total, err := h.OrderService.List(repository.OrderListFilter{
		Page:          page,
		PageSize:      pageSize,
		UserID:        strings.TrimSpace(c.Query("user_id")),
		Status:        strings.TrimSpace(c.Query("status")),
		PaymentStatus: strings.TrimSpace(c.Query("payment_status")),
		PaymentMethod: strings.TrimSpace(c.Query("payment_method")),
		OrderNo:       strings.TrimSpace(c.Query("order_no")),
		ContactEmail:  strings.ToLower(strings.TrimSpace(c.Query("email"))),
		CreatedFrom:   createdFrom,
		CreatedTo:     createdTo,
	})
	if err != nil {
		respondServiceError(c, err, "failed to load orders")
		return
	}
	response.SuccessWithPage(c, orders, handlershared.BuildPagination(page, pageSize, total))
}

// AdminGetOrder 管理端订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "failed to load order")
		return
	}
	payments, err := h.PaymentRepo.ListByOrderID(order.ID)
	if err != nil {
		requestLog(c).Warnw("admin_order_payments_load_failed", "order_id", order.ID, "error", err)
	}
	response.Success(c, gin.H{
		"order":    order,
		"payments": payments,
	})
}

// AdminUpdateOrderStatus 修改订单状态（发货、完成、取消、退款）
func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	order, err := h.OrderService.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondServiceError(c, err, "failed to update order status")
		return
	}
	requestLog(c).Infow("admin_order_status_updated", "admin_id", adminID, "order_id", order.ID, "status", order.Status)
	response.Success(c, order)
}
