package service

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromoQuote 优惠码校验结果
type PromoQuote struct {
	Accepted       bool         `json:"accepted"`
	Code           string       `json:"code"`
	PromoCodeID    uint         `json:"promo_code_id"`
	DiscountType   string       `json:"discount_type"`
	DiscountAmount models.Money `json:"discount_amount"`
}

// PromoService 优惠码校验与核销
type PromoService struct {
	repo repository.PromoCodeRepository
	now  func() time.Time
}

// NewPromoService 创建优惠码服务
func NewPromoService(repo repository.PromoCodeRepository) *PromoService {
	return &PromoService{repo: repo, now: time.Now}
}

// Validate 按顺序校验优惠码并计算折扣，只读
func (s *PromoService) Validate(ctx context.Context, code string, subtotal models.Money) (*PromoQuote, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrPromoCodeNotFound
	}
	promo, err := retryRead(ctx, "promo_lookup", func() (*models.PromoCode, error) {
		return s.repo.GetByCode(code)
	})
	if err != nil {
		return nil, err
	}
	if promo == nil || !promo.IsActive {
		return nil, ErrPromoCodeNotFound
	}

	now := s.now()
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return nil, ErrPromoExpired
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return nil, ErrPromoExpired
	}
	if promo.MaxUses > 0 && promo.CurrentUses >= promo.MaxUses {
		return nil, ErrPromoUsageLimitReached
	}
	if promo.MinOrderValue.Decimal.GreaterThan(decimal.Zero) && subtotal.Decimal.LessThan(promo.MinOrderValue.Decimal) {
		return nil, ErrPromoMinimumNotMet
	}

	return &PromoQuote{
		Accepted:       true,
		Code:           promo.Code,
		PromoCodeID:    promo.ID,
		DiscountType:   promo.DiscountType,
		DiscountAmount: computePromoDiscount(promo, subtotal),
	}, nil
}

// Redeem 在调用方事务内核销：每个订单最多累加一次使用次数
func (s *PromoService) Redeem(tx *gorm.DB, promoID, orderID uint) (bool, error) {
	if promoID == 0 {
		return false, nil
	}
	return s.repo.WithTx(tx).Redeem(promoID, orderID)
}

func computePromoDiscount(promo *models.PromoCode, subtotal models.Money) models.Money {
	var discount decimal.Decimal
	switch promo.DiscountType {
	case constants.PromoTypePercentage:
		discount = subtotal.Decimal.Mul(promo.DiscountValue.Decimal).Div(decimal.NewFromInt(100))
	case constants.PromoTypeFixed:
		discount = decimal.Min(promo.DiscountValue.Decimal, subtotal.Decimal)
	default:
		discount = decimal.Zero
	}
	if discount.LessThan(decimal.Zero) {
		discount = decimal.Zero
	}
	return models.NewMoneyFromDecimal(discount)
}
