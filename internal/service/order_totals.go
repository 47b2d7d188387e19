package service

import (
	"strings"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"

	"github.com/shopspring/decimal"
)

// PricingOptions 运费与税费参数
type PricingOptions struct {
	Currency              string
	ShippingFlatFee       models.Money
	FreeShippingThreshold models.Money
	TaxRatePercent        decimal.Decimal
}

// PricingOptionsFromConfig 从结算配置构建计价参数
func PricingOptionsFromConfig(cfg config.CheckoutConfig) PricingOptions {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = constants.CurrencyDefault
	}
	return PricingOptions{
		Currency:              currency,
		ShippingFlatFee:       models.NewMoneyFromDecimal(decimal.NewFromFloat(cfg.ShippingFlatFee)),
		FreeShippingThreshold: models.NewMoneyFromDecimal(decimal.NewFromFloat(cfg.FreeShippingThreshold)),
		TaxRatePercent:        decimal.NewFromFloat(cfg.TaxRatePercent),
	}
}

// OrderTotals 订单金额拆分
type OrderTotals struct {
	Subtotal       models.Money `json:"subtotal"`
	ShippingAmount models.Money `json:"shipping_amount"`
	TaxAmount      models.Money `json:"tax_amount"`
	DiscountAmount models.Money `json:"discount_amount"`
	TotalAmount    models.Money `json:"total_amount"`
	ItemCount      int          `json:"item_count"`
	Currency       string       `json:"currency"`
}

// Quote 计算运费、税费与应付金额；满额包邮，税费按折后小计计算
func (p PricingOptions) Quote(subtotal, discount models.Money, itemCount int) OrderTotals {
	shipping := models.Money{}
	if itemCount > 0 {
		shipping = p.ShippingFlatFee
		if p.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingThreshold.Decimal) {
			shipping = models.Money{}
		}
	}
	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = models.Money{}
	}
	tax := models.NewMoneyFromDecimal(taxable.Decimal.Mul(p.TaxRatePercent).Div(decimal.NewFromInt(100)))
	return OrderTotals{
		Subtotal:       subtotal,
		ShippingAmount: shipping,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    computeOrderTotal(subtotal, shipping, tax, discount),
		ItemCount:      itemCount,
		Currency:       p.Currency,
	}
}

// computeOrderTotal total = subtotal + shipping + tax - discount
func computeOrderTotal(subtotal, shipping, tax, discount models.Money) models.Money {
	return subtotal.Add(shipping).Add(tax).Sub(discount)
}
