package service

import (
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/shopspring/decimal"
)

// PromoAdminService 优惠码管理服务
type PromoAdminService struct {
	repo repository.PromoCodeRepository
}

// NewPromoAdminService 创建优惠码管理服务
func NewPromoAdminService(repo repository.PromoCodeRepository) *PromoAdminService {
	return &PromoAdminService{repo: repo}
}

// PromoCodeInput 创建/更新优惠码输入
type PromoCodeInput struct {
	Code          string       `json:"code"`
	DiscountType  string       `json:"discount_type"`
	DiscountValue models.Money `json:"discount_value"`
	MinOrderValue models.Money `json:"min_order_value"`
	MaxUses       int          `json:"max_uses"`
	ValidFrom     *time.Time   `json:"valid_from"`
	ValidUntil    *time.Time   `json:"valid_until"`
	IsActive      *bool        `json:"is_active"`
}

func (in PromoCodeInput) normalize() (PromoCodeInput, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.DiscountType = strings.ToLower(strings.TrimSpace(in.DiscountType))
	if in.Code == "" || len(in.Code) > 64 {
		return in, ErrPromoInvalidInput
	}
	if in.DiscountType != constants.PromoTypePercentage && in.DiscountType != constants.PromoTypeFixed {
		return in, ErrPromoInvalidInput
	}
	if in.DiscountValue.Decimal.LessThanOrEqual(decimal.Zero) {
		return in, ErrPromoInvalidInput
	}
	if in.DiscountType == constants.PromoTypePercentage && in.DiscountValue.Decimal.GreaterThan(decimal.NewFromInt(100)) {
		return in, ErrPromoInvalidInput
	}
	if in.MinOrderValue.Decimal.LessThan(decimal.Zero) || in.MaxUses < 0 {
		return in, ErrPromoInvalidInput
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		return in, ErrPromoInvalidInput
	}
	return in, nil
}

// Create 创建优惠码
func (s *PromoAdminService) Create(input PromoCodeInput) (*models.PromoCode, error) {
	in, err := input.normalize()
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountByCode(in.Code, 0)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrPromoCodeExists
	}

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}
	promo := &models.PromoCode{
		Code:          in.Code,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MinOrderValue: in.MinOrderValue,
		MaxUses:       in.MaxUses,
		ValidFrom:     in.ValidFrom,
		ValidUntil:    in.ValidUntil,
		IsActive:      isActive,
	}
	if err := s.repo.Create(promo); err != nil {
		return nil, err
	}
	return promo, nil
}

// Update 更新优惠码（已使用次数不可修改）
func (s *PromoAdminService) Update(id uint, input PromoCodeInput) (*models.PromoCode, error) {
	if id == 0 {
		return nil, ErrPromoInvalidInput
	}
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPromoCodeNotFound
	}
	in, err := input.normalize()
	if err != nil {
		return nil, err
	}
	if in.Code != existing.Code {
		count, err := s.repo.CountByCode(in.Code, id)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrPromoCodeExists
		}
	}

	existing.Code = in.Code
	existing.DiscountType = in.DiscountType
	existing.DiscountValue = in.DiscountValue
	existing.MinOrderValue = in.MinOrderValue
	existing.MaxUses = in.MaxUses
	existing.ValidFrom = in.ValidFrom
	existing.ValidUntil = in.ValidUntil
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}
	if err := s.repo.Update(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete 删除优惠码
func (s *PromoAdminService) Delete(id uint) error {
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrPromoCodeNotFound
	}
	return s.repo.Delete(id)
}

// List 优惠码列表
func (s *PromoAdminService) List(filter repository.PromoCodeListFilter) ([]models.PromoCode, int64, error) {
	return s.repo.List(filter)
}
