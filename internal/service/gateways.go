package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/payment/razorpay"
	"github.com/dujiao-next/bookshop/internal/payment/stripe"
)

// IntentInput 创建远端支付意图的输入，金额为最小货币单位
type IntentInput struct {
	AmountMinor int64
	Currency    string
	OrderNo     string
	Description string
	Email       string
}

// IntentResult 远端支付意图
type IntentResult struct {
	Provider    string
	ProviderRef string
	RedirectURL string
	KeyID       string
	AmountMinor int64
	Currency    string
	Raw         models.JSON
}

// CallbackInput 网关回调原文
type CallbackInput struct {
	Headers map[string]string
	Body    []byte
	Now     time.Time
}

// CallbackOutcome 验签后的回调结果
type CallbackOutcome struct {
	Provider          string
	EventType         string
	Outcome           string
	ProviderRef       string
	ProviderPaymentID string
	OrderNo           string
	AmountMinor       int64
	Currency          string
	PaidAt            *time.Time
	Payload           models.JSON
}

// Ignored 不需要处理的事件
func (o *CallbackOutcome) Ignored() bool {
	return o == nil || o.Outcome == ""
}

// PaymentGateway 支付网关适配器
type PaymentGateway interface {
	Provider() string
	CreateIntent(ctx context.Context, input IntentInput) (*IntentResult, error)
	ConfirmFromCallback(ctx context.Context, input CallbackInput) (*CallbackOutcome, error)
}

// NewPaymentGateways 按配置构建启用的网关，key 为 provider
func NewPaymentGateways(cfg config.PaymentConfig) map[string]PaymentGateway {
	gateways := make(map[string]PaymentGateway, 2)
	if cfg.Stripe.Enabled {
		gw := NewStripeGateway(stripe.FromSettings(cfg.Stripe))
		if err := stripe.ValidateConfig(gw.cfg); err != nil {
			logger.Warnw("payment_gateway_config_invalid", "provider", constants.PaymentProviderStripe, "error", err)
		} else {
			gateways[gw.Provider()] = gw
		}
	}
	if cfg.Razorpay.Enabled {
		gw := NewRazorpayGateway(razorpay.FromSettings(cfg.Razorpay))
		if err := razorpay.ValidateConfig(gw.cfg); err != nil {
			logger.Warnw("payment_gateway_config_invalid", "provider", constants.PaymentProviderRazorpay, "error", err)
		} else {
			gateways[gw.Provider()] = gw
		}
	}
	return gateways
}

// StripeGateway 银行卡网关（Checkout Session）
type StripeGateway struct {
	cfg *stripe.Config
}

// NewStripeGateway 创建银行卡网关
func NewStripeGateway(cfg *stripe.Config) *StripeGateway {
	return &StripeGateway{cfg: cfg}
}

// Provider 网关标识
func (g *StripeGateway) Provider() string {
	return constants.PaymentProviderStripe
}

// CreateIntent 创建 Checkout Session
func (g *StripeGateway) CreateIntent(ctx context.Context, input IntentInput) (*IntentResult, error) {
	result, err := stripe.CreatePayment(ctx, g.cfg, stripe.CreateInput{
		OrderNo:       input.OrderNo,
		AmountMinor:   input.AmountMinor,
		Currency:      input.Currency,
		Description:   input.Description,
		CustomerEmail: input.Email,
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return &IntentResult{
		Provider:    g.Provider(),
		ProviderRef: result.SessionID,
		RedirectURL: result.URL,
		AmountMinor: input.AmountMinor,
		Currency:    strings.ToUpper(input.Currency),
		Raw:         models.JSON(result.Raw),
	}, nil
}

// ConfirmFromCallback 验签并解析 webhook
func (g *StripeGateway) ConfirmFromCallback(_ context.Context, input CallbackInput) (*CallbackOutcome, error) {
	result, err := stripe.VerifyAndParseWebhook(g.cfg, input.Headers, input.Body, input.Now)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return &CallbackOutcome{
		Provider:          g.Provider(),
		EventType:         result.EventType,
		Outcome:           result.Outcome,
		ProviderRef:       result.SessionID,
		ProviderPaymentID: result.PaymentIntentID,
		OrderNo:           result.OrderNo,
		AmountMinor:       result.AmountMinor,
		Currency:          result.Currency,
		PaidAt:            result.PaidAt,
		Payload:           models.JSON(result.Raw),
	}, nil
}

// LookupSession 主动查询 Checkout Session，用于超时关单前对账
func (g *StripeGateway) LookupSession(ctx context.Context, sessionID string) (*CallbackOutcome, error) {
	result, err := stripe.GetSession(ctx, g.cfg, sessionID)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return &CallbackOutcome{
		Provider:          g.Provider(),
		EventType:         "checkout.session.lookup",
		Outcome:           result.Outcome,
		ProviderRef:       result.SessionID,
		ProviderPaymentID: result.PaymentIntentID,
		OrderNo:           result.OrderNo,
		AmountMinor:       result.AmountMinor,
		Currency:          result.Currency,
		Payload:           models.JSON(result.Raw),
	}, nil
}

// RazorpayGateway UPI 网关（Razorpay Order）
type RazorpayGateway struct {
	cfg *razorpay.Config
}

// NewRazorpayGateway 创建 UPI 网关
func NewRazorpayGateway(cfg *razorpay.Config) *RazorpayGateway {
	return &RazorpayGateway{cfg: cfg}
}

// Provider 网关标识
func (g *RazorpayGateway) Provider() string {
	return constants.PaymentProviderRazorpay
}

// CreateIntent 创建 Razorpay 订单
func (g *RazorpayGateway) CreateIntent(ctx context.Context, input IntentInput) (*IntentResult, error) {
	notes := map[string]string{"order_no": input.OrderNo}
	if input.Email != "" {
		notes["email"] = input.Email
	}
	result, err := razorpay.CreateOrder(ctx, g.cfg, razorpay.CreateInput{
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Receipt:     input.OrderNo,
		Notes:       notes,
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}
	return &IntentResult{
		Provider:    g.Provider(),
		ProviderRef: result.OrderID,
		KeyID:       result.KeyID,
		AmountMinor: input.AmountMinor,
		Currency:    strings.ToUpper(input.Currency),
		Raw:         models.JSON(result.Raw),
	}, nil
}

// ConfirmFromCallback 验签并解析 webhook
func (g *RazorpayGateway) ConfirmFromCallback(_ context.Context, input CallbackInput) (*CallbackOutcome, error) {
	result, err := razorpay.VerifyWebhook(g.cfg, input.Headers, input.Body)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	outcome := &CallbackOutcome{
		Provider:          g.Provider(),
		EventType:         result.Event,
		Outcome:           result.Outcome,
		ProviderRef:       result.OrderID,
		ProviderPaymentID: result.PaymentID,
		OrderNo:           result.Receipt,
		AmountMinor:       result.AmountMinor,
		Currency:          result.Currency,
		Payload:           models.JSON(result.Raw),
	}
	if outcome.Outcome == constants.PaymentOutcomePaid {
		paidAt := input.Now
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		outcome.PaidAt = &paidAt
	}
	return outcome, nil
}

// ConfirmClientPayment 校验客户端支付完成后回传的签名
func (g *RazorpayGateway) ConfirmClientPayment(orderID, paymentID, signature string) (*CallbackOutcome, error) {
	if err := razorpay.VerifyPaymentSignature(g.cfg, orderID, paymentID, signature); err != nil {
		return nil, mapGatewayError(err)
	}
	now := time.Now()
	return &CallbackOutcome{
		Provider:          g.Provider(),
		EventType:         "client.payment_signature",
		Outcome:           constants.PaymentOutcomePaid,
		ProviderRef:       strings.TrimSpace(orderID),
		ProviderPaymentID: strings.TrimSpace(paymentID),
		PaidAt:            &now,
		Payload: models.JSON{
			"razorpay_order_id":   strings.TrimSpace(orderID),
			"razorpay_payment_id": strings.TrimSpace(paymentID),
		},
	}, nil
}

func mapGatewayError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stripe.ErrSignatureInvalid), errors.Is(err, razorpay.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrPaymentSignatureInvalid, err)
	case errors.Is(err, stripe.ErrConfigInvalid), errors.Is(err, razorpay.ErrConfigInvalid):
		return fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	case errors.Is(err, stripe.ErrResponseInvalid), errors.Is(err, razorpay.ErrResponseInvalid):
		return fmt.Errorf("%w: %v", ErrPaymentCallbackInvalid, err)
	default:
		return err
	}
}
