package shared

import (
	"errors"

	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// MappedError 业务错误到接口错误码的映射。
// Message 为空时使用错误自身的文案。
type MappedError struct {
	Target  error
	Code    int
	Message string
}

// ServiceErrorRules 服务层哨兵错误的默认映射
var ServiceErrorRules = []MappedError{
	// 400
	{Target: service.ErrInvalidCartOwner, Code: response.CodeBadRequest},
	{Target: service.ErrInvalidQuantity, Code: response.CodeBadRequest},
	{Target: service.ErrCartMutationInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrInvalidOrderAmount, Code: response.CodeBadRequest},
	{Target: service.ErrInvalidStockAdjustment, Code: response.CodeBadRequest},
	{Target: service.ErrProductInvalidInput, Code: response.CodeBadRequest},
	{Target: service.ErrPromoInvalidInput, Code: response.CodeBadRequest},
	{Target: service.ErrUnsupportedPaymentMethod, Code: response.CodeBadRequest},
	{Target: service.ErrPaymentCallbackInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrPaymentSignatureInvalid, Code: response.CodeBadRequest},
	{Target: service.ErrInvalidEmail, Code: response.CodeBadRequest},
	{Target: service.ErrPasswordPolicy, Code: response.CodeBadRequest},
	{Target: service.ErrCaptchaRequired, Code: response.CodeBadRequest},
	{Target: service.ErrCaptchaInvalid, Code: response.CodeBadRequest},
	// 401
	{Target: service.ErrInvalidCredentials, Code: response.CodeUnauthorized},
	{Target: service.ErrTokenInvalid, Code: response.CodeUnauthorized},
	// 402
	{Target: service.ErrPaymentCreateFailed, Code: response.CodePaymentFailed, Message: "payment could not be started, please try again"},
	// 404
	{Target: service.ErrCartItemNotFound, Code: response.CodeNotFound},
	{Target: service.ErrPromoCodeNotFound, Code: response.CodeNotFound},
	{Target: service.ErrCheckoutNotFound, Code: response.CodeNotFound},
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound},
	{Target: service.ErrProductNotFound, Code: response.CodeNotFound},
	{Target: service.ErrPendingEmailNotFound, Code: response.CodeNotFound},
	{Target: service.ErrAdminNotFound, Code: response.CodeNotFound},
	// 409
	{Target: service.ErrCheckoutInvalidTransition, Code: response.CodeConflict},
	{Target: service.ErrCheckoutLocked, Code: response.CodeConflict},
	{Target: service.ErrCheckoutBusy, Code: response.CodeConflict},
	{Target: service.ErrCartBusy, Code: response.CodeConflict},
	{Target: service.ErrStockConflict, Code: response.CodeConflict},
	{Target: service.ErrProductSlugExists, Code: response.CodeConflict},
	{Target: service.ErrPromoCodeExists, Code: response.CodeConflict},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeConflict},
	{Target: service.ErrInsufficientStock, Code: response.CodeConflict},
	// 422
	{Target: service.ErrEmptyCart, Code: response.CodeUnprocessable},
	{Target: service.ErrProductNotAvailable, Code: response.CodeUnprocessable},
	{Target: service.ErrPromoExpired, Code: response.CodeUnprocessable},
	{Target: service.ErrPromoUsageLimitReached, Code: response.CodeUnprocessable},
	{Target: service.ErrPromoMinimumNotMet, Code: response.CodeUnprocessable},
	{Target: service.ErrPaymentAmountMismatch, Code: response.CodeUnprocessable},
	// 503
	{Target: service.ErrPaymentGatewayUnavailable, Code: response.CodeServiceUnavailable},
	{Target: service.ErrEmailServiceDisabled, Code: response.CodeServiceUnavailable},
	{Target: service.ErrEmailServiceNotConfigured, Code: response.CodeServiceUnavailable},
}

// RespondServiceError 按映射表返回业务错误；未命中时记录原始错误并返回通用提示。
func RespondServiceError(c *gin.Context, err error, fallbackMsg string) {
	RespondMappedError(c, err, ServiceErrorRules, response.CodeInternal, fallbackMsg)
}

// RespondMappedError 按给定映射表返回错误响应。
func RespondMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackMsg string) {
	var addrErr *service.AddressValidationError
	if errors.As(err, &addrErr) {
		response.ErrorWithData(c, response.CodeUnprocessable, "address is invalid", gin.H{"fields": addrErr.Fields})
		return
	}
	var stockErr *service.OutOfStockError
	if errors.As(err, &stockErr) {
		response.ErrorWithData(c, response.CodeConflict, stockErr.Error(), gin.H{"items": stockErr.Items})
		return
	}
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			msg := rule.Message
			if msg == "" {
				msg = rule.Target.Error()
			}
			response.Error(c, rule.Code, msg)
			return
		}
	}
	if fallbackMsg == "" {
		fallbackMsg = "request failed, please try again"
	}
	RespondError(c, response.CodeOf(err, fallbackCode), fallbackMsg, err)
}

// ConcatMappedErrors 合并多组映射，靠前的优先。
func ConcatMappedErrors(groups ...[]MappedError) []MappedError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]MappedError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}
