package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/bookshop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PromoCodeRepository 优惠码数据访问接口
type PromoCodeRepository interface {
	GetByCode(code string) (*models.PromoCode, error)
	GetByID(id uint) (*models.PromoCode, error)
	Create(promo *models.PromoCode) error
	Update(promo *models.PromoCode) error
	Delete(id uint) error
	List(filter PromoCodeListFilter) ([]models.PromoCode, int64, error)
	CountByCode(code string, excludeID uint) (int64, error)
	Redeem(promoID, orderID uint) (bool, error)
	WithTx(tx *gorm.DB) *GormPromoCodeRepository
}

// GormPromoCodeRepository GORM 实现
type GormPromoCodeRepository struct {
	db *gorm.DB
}

// NewPromoCodeRepository 创建优惠码仓库
func NewPromoCodeRepository(db *gorm.DB) *GormPromoCodeRepository {
	return &GormPromoCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPromoCodeRepository) WithTx(tx *gorm.DB) *GormPromoCodeRepository {
	if tx == nil {
		return r
	}
	return &GormPromoCodeRepository{db: tx}
}

// GetByCode 按优惠码查询（不区分大小写）
func (r *GormPromoCodeRepository) GetByCode(code string) (*models.PromoCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	var promo models.PromoCode
	if err := r.db.Where("code = ?", normalized).First(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

// GetByID 根据 ID 获取优惠码
func (r *GormPromoCodeRepository) GetByID(id uint) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.First(&promo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

// Create 创建优惠码
func (r *GormPromoCodeRepository) Create(promo *models.PromoCode) error {
	active := promo.IsActive
	if err := r.db.Create(promo).Error; err != nil {
		return err
	}
	if active {
		return nil
	}
	promo.IsActive = false
	return r.db.Model(&models.PromoCode{}).Where("id = ?", promo.ID).Update("is_active", false).Error
}

// Update 更新优惠码
func (r *GormPromoCodeRepository) Update(promo *models.PromoCode) error {
	return r.db.Save(promo).Error
}

// Delete 删除优惠码
func (r *GormPromoCodeRepository) Delete(id uint) error {
	return r.db.Delete(&models.PromoCode{}, id).Error
}

// List 优惠码列表
func (r *GormPromoCodeRepository) List(filter PromoCodeListFilter) ([]models.PromoCode, int64, error) {
	query := r.db.Model(&models.PromoCode{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"code"})
		query = query.Where(condition, repeatLikeArgs("%"+search+"%", argCount)...)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var promos []models.PromoCode
	if err := query.Order("id desc").Find(&promos).Error; err != nil {
		return nil, 0, err
	}
	return promos, total, nil
}

// CountByCode 统计优惠码数量
func (r *GormPromoCodeRepository) CountByCode(code string, excludeID uint) (int64, error) {
	var count int64
	query := r.db.Model(&models.PromoCode{}).Where("code = ?", strings.ToUpper(strings.TrimSpace(code)))
	if excludeID != 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Redeem 记录订单核销并累加使用次数，同一订单重复调用返回 false
func (r *GormPromoCodeRepository) Redeem(promoID, orderID uint) (bool, error) {
	if promoID == 0 || orderID == 0 {
		return false, errors.New("invalid promo redeem params")
	}
	redemption := models.PromoRedemption{PromoCodeID: promoID, OrderID: orderID}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(&redemption)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if err := r.db.Model(&models.PromoCode{}).
		Where("id = ?", promoID).
		UpdateColumn("current_uses", gorm.Expr("current_uses + ?", 1)).Error; err != nil {
		return false, err
	}
	return true, nil
}
