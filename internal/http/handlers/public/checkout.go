package public

import (
	"strings"

	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckoutPaymentRequest 选择支付方式请求
type CheckoutPaymentRequest struct {
	Method string `json:"method" binding:"required"`
}

// CheckoutPromoRequest 结算使用优惠码请求
type CheckoutPromoRequest struct {
	Code string `json:"code" binding:"required"`
}

func checkoutID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}

// StartCheckout 以当前购物车开启结算
func (h *Handler) StartCheckout(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.Start(c.Request.Context(), owner)
	if err != nil {
		respondServiceError(c, err, "failed to start checkout")
		return
	}
	response.Success(c, session)
}

// GetCheckout 查看结算会话
func (h *Handler) GetCheckout(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.Get(c.Request.Context(), owner, checkoutID(c))
	if err != nil {
		respondServiceError(c, err, "failed to load checkout")
		return
	}
	response.Success(c, session)
}

// SubmitCheckoutShipping 提交收货地址
func (h *Handler) SubmitCheckoutShipping(c *gin.Context) {
	var req service.ShippingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.SubmitShipping(c.Request.Context(), owner, checkoutID(c), req)
	if err != nil {
		respondServiceError(c, err, "failed to save shipping details")
		return
	}
	response.Success(c, session)
}

// SelectCheckoutPayment 选择支付方式
func (h *Handler) SelectCheckoutPayment(c *gin.Context) {
	var req CheckoutPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.SelectPayment(c.Request.Context(), owner, checkoutID(c), req.Method)
	if err != nil {
		respondServiceError(c, err, "failed to select payment method")
		return
	}
	response.Success(c, session)
}

// ApplyCheckoutPromo 结算使用优惠码
func (h *Handler) ApplyCheckoutPromo(c *gin.Context) {
	var req CheckoutPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.ApplyPromo(c.Request.Context(), owner, checkoutID(c), req.Code)
	if err != nil {
		respondServiceError(c, err, "failed to apply promo code")
		return
	}
	response.Success(c, session)
}

// RemoveCheckoutPromo 移除优惠码
func (h *Handler) RemoveCheckoutPromo(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.RemovePromo(c.Request.Context(), owner, checkoutID(c))
	if err != nil {
		respondServiceError(c, err, "failed to remove promo code")
		return
	}
	response.Success(c, session)
}

// QuoteCheckout 计算当前金额
func (h *Handler) QuoteCheckout(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	quote, err := h.CheckoutService.Quote(c.Request.Context(), owner, checkoutID(c))
	if err != nil {
		respondServiceError(c, err, "failed to quote checkout")
		return
	}
	response.Success(c, quote)
}

// PlaceCheckout 下单；重复提交已完成的会话返回同一订单
func (h *Handler) PlaceCheckout(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.Place(c.Request.Context(), owner, checkoutID(c))
	if err != nil {
		respondServiceError(c, err, "order could not be placed, please try again")
		return
	}
	requestLog(c).Infow("checkout_place_succeeded",
		"checkout_id", session.ID,
		"order_no", session.OrderNo,
		"idempotency_key", strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	)
	response.Success(c, session)
}

// RetryCheckout 失败后回到确认步骤
func (h *Handler) RetryCheckout(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	session, err := h.CheckoutService.Retry(c.Request.Context(), owner, checkoutID(c))
	if err != nil {
		respondServiceError(c, err, "failed to retry checkout")
		return
	}
	response.Success(c, session)
}

// AbandonCheckout 放弃结算
func (h *Handler) AbandonCheckout(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	if err := h.CheckoutService.Abandon(c.Request.Context(), owner, checkoutID(c)); err != nil {
		respondServiceError(c, err, "failed to abandon checkout")
		return
	}
	response.Success(c, gin.H{"abandoned": true})
}
