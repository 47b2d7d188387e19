package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// 购物车
var (
	ErrInvalidCartOwner    = errors.New("cart owner is required")
	ErrInvalidQuantity     = errors.New("quantity must be a positive integer")
	ErrProductNotAvailable = errors.New("product is not available")
	ErrCartItemNotFound    = errors.New("cart item not found")
	ErrCartMutationInvalid = errors.New("cart mutation is invalid")
)

// 优惠码
var (
	ErrPromoCodeNotFound      = errors.New("promo code not found")
	ErrPromoExpired           = errors.New("promo code has expired")
	ErrPromoUsageLimitReached = errors.New("promo code usage limit reached")
	ErrPromoMinimumNotMet     = errors.New("order does not meet the promo minimum")
	ErrPromoCodeExists        = errors.New("promo code already exists")
	ErrPromoInvalidInput      = errors.New("promo code input is invalid")
)

// 结算
var (
	ErrCheckoutNotFound          = errors.New("checkout session not found")
	ErrCheckoutInvalidTransition = errors.New("checkout step is not allowed in the current state")
	ErrCheckoutLocked            = errors.New("checkout is already placing the order")
	ErrCheckoutBusy              = errors.New("checkout session is being updated")
	ErrUnsupportedPaymentMethod  = errors.New("payment method is not supported")
)

// 订单
var (
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrInvalidOrderAmount        = errors.New("order amount is invalid")
	ErrOutOfStock                = errors.New("item is out of stock")
	ErrOrderNotFound             = errors.New("order not found")
	ErrOrderStatusInvalid        = errors.New("order status transition is not allowed")
	ErrPaymentCreateFailed       = errors.New("payment could not be started")
	ErrPaymentGatewayUnavailable = errors.New("payment gateway is not configured")
)

// 支付回调
var (
	ErrPaymentSignatureInvalid = errors.New("payment signature is invalid")
	ErrPaymentAmountMismatch   = errors.New("payment amount does not match the order")
	ErrPaymentCallbackInvalid  = errors.New("payment callback payload is invalid")
)

// 库存
var (
	ErrProductNotFound        = errors.New("product not found")
	ErrStockConflict          = errors.New("stock was changed concurrently, retry later")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidStockAdjustment = errors.New("stock adjustment is invalid")
	ErrProductSlugExists      = errors.New("product slug already exists")
	ErrProductInvalidInput    = errors.New("product input is invalid")
)

// 邮件
var (
	ErrEmailServiceDisabled      = errors.New("email service is disabled")
	ErrEmailServiceNotConfigured = errors.New("email service is not configured")
	ErrInvalidEmail              = errors.New("email address is invalid")
	ErrEmailRecipientRejected    = errors.New("email recipient was rejected")
	ErrPendingEmailNotFound      = errors.New("pending email not found")
)

// 管理员认证
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrCaptchaRequired    = errors.New("captcha is required")
	ErrCaptchaInvalid     = errors.New("captcha is invalid")
	ErrAdminNotFound      = errors.New("admin not found")
)

// AddressValidationError 地址校验失败（字段 -> 提示）
type AddressValidationError struct {
	Fields map[string]string
}

func (e *AddressValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "address is invalid: " + strings.Join(parts, "; ")
}

// StockShortage 单个商品的缺货明细
type StockShortage struct {
	ProductID uint   `json:"product_id"`
	Title     string `json:"title"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// OutOfStockError 下单时库存不足
type OutOfStockError struct {
	Items []StockShortage
}

func (e *OutOfStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", item.Title, item.Requested, item.Available))
	}
	return "out of stock: " + strings.Join(parts, ", ")
}

// Is 让 errors.Is(err, ErrOutOfStock) 成立
func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// ErrCartBusy 购物车正在被其他请求修改
var ErrCartBusy = errors.New("cart is being updated, retry shortly")
