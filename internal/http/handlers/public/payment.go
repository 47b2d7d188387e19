package public

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	callbackLogValueLimit = 512
	maxWebhookBodyBytes   = 1 << 20
)

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

func flattenHeaders(header http.Header) map[string]string {
	headers := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	return headers
}

// StripeWebhook 银行卡网关 webhook 回调
func (h *Handler) StripeWebhook(c *gin.Context) {
	h.handlePaymentWebhook(c, constants.PaymentProviderStripe, "Stripe-Signature")
}

// RazorpayWebhook UPI 网关 webhook 回调
func (h *Handler) RazorpayWebhook(c *gin.Context) {
	h.handlePaymentWebhook(c, constants.PaymentProviderRazorpay, "X-Razorpay-Signature")
}

// handlePaymentWebhook 验签失败返回 400 不再重试；内部错误返回 500 让网关重投
func (h *Handler) handlePaymentWebhook(c *gin.Context, provider, signatureHeader string) {
	log := requestLog(c).With("provider", provider)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warnw("payment_webhook_body_read_failed", "error", err)
		response.WebhookReject(c, http.StatusBadRequest, "invalid body")
		return
	}
	log.Infow("payment_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"signature", truncateCallbackLogValue(c.GetHeader(signatureHeader)),
	)

	result, err := h.PaymentService.HandleWebhook(c.Request.Context(), provider, flattenHeaders(c.Request.Header), body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentSignatureInvalid),
			errors.Is(err, service.ErrPaymentCallbackInvalid):
			response.WebhookReject(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPaymentGatewayUnavailable):
			response.WebhookReject(c, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, service.ErrOrderNotFound),
			errors.Is(err, service.ErrPaymentAmountMismatch):
			// 重投也无法成功，记录后确认收到
			log.Errorw("payment_webhook_unmatched", "error", err)
			response.WebhookAck(c)
		default:
			log.Errorw("payment_webhook_handle_failed", "error", err)
			response.WebhookReject(c, http.StatusInternalServerError, "temporary failure")
		}
		return
	}

	fields := []interface{}{"applied", result.Applied, "duplicate", result.Duplicate, "ignored", result.Ignored}
	if result.Order != nil {
		fields = append(fields, "order_no", result.Order.OrderNo, "status", result.Order.Status)
	}
	log.Infow("payment_webhook_processed", fields...)
	response.WebhookAck(c)
}

// ConfirmUpiPayment 客户端完成 UPI 支付后回传签名确认
func (h *Handler) ConfirmUpiPayment(c *gin.Context) {
	var req service.ConfirmUpiPaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	result, err := h.PaymentService.ConfirmUpiPayment(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "payment confirmation failed, please try again")
		return
	}
	data := gin.H{
		"applied":   result.Applied,
		"duplicate": result.Duplicate,
	}
	if result.Order != nil {
		data["order_no"] = result.Order.OrderNo
		data["status"] = result.Order.Status
		data["payment_status"] = result.Order.PaymentStatus
	}
	response.Success(c, data)
}
