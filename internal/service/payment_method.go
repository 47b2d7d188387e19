package service

import (
	"strings"

	"github.com/dujiao-next/bookshop/internal/constants"
)

// PaymentMethod 支付方式（封闭的和类型：CashOnDelivery | CardGateway | UpiGateway）
type PaymentMethod interface {
	Code() string
	isPaymentMethod()
}

// CashOnDelivery 货到付款
type CashOnDelivery struct{}

// CardGateway 银行卡网关（Stripe Checkout）
type CardGateway struct{}

// UpiGateway UPI 网关（Razorpay）
type UpiGateway struct{}

// Code 返回持久化编码
func (CashOnDelivery) Code() string { return constants.PaymentMethodCashOnDelivery }

// Code 返回持久化编码
func (CardGateway) Code() string { return constants.PaymentMethodCardGateway }

// Code 返回持久化编码
func (UpiGateway) Code() string { return constants.PaymentMethodUpiGateway }

func (CashOnDelivery) isPaymentMethod() {}
func (CardGateway) isPaymentMethod()    {}
func (UpiGateway) isPaymentMethod()     {}

// ParsePaymentMethod 解析支付方式，未知值返回 ErrUnsupportedPaymentMethod
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case constants.PaymentMethodCashOnDelivery, "cod":
		return CashOnDelivery{}, nil
	case constants.PaymentMethodCardGateway, "card":
		return CardGateway{}, nil
	case constants.PaymentMethodUpiGateway, "upi":
		return UpiGateway{}, nil
	default:
		return nil, ErrUnsupportedPaymentMethod
	}
}

// paymentProviderFor 网关支付方式对应的支付网关，货到付款返回空
func paymentProviderFor(method PaymentMethod) (string, error) {
	switch method.(type) {
	case CashOnDelivery:
		return "", nil
	case CardGateway:
		return constants.PaymentProviderStripe, nil
	case UpiGateway:
		return constants.PaymentProviderRazorpay, nil
	default:
		return "", ErrUnsupportedPaymentMethod
	}
}
