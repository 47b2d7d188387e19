package repository

import (
	"github.com/dujiao-next/bookshop/internal/models"

	"gorm.io/gorm"
)

// CartRepository 购物车镜像数据访问接口
type CartRepository interface {
	ListByUser(userID string) ([]models.CartItem, error)
	ReplaceForUser(userID string, items []models.CartItem) error
	ClearByUser(userID string) error
	WithTx(tx *gorm.DB) *GormCartRepository
}

// GormCartRepository GORM 实现
type GormCartRepository struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓库
func NewCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCartRepository) WithTx(tx *gorm.DB) *GormCartRepository {
	if tx == nil {
		return r
	}
	return &GormCartRepository{db: tx}
}

// ListByUser 获取用户购物车镜像行
func (r *GormCartRepository) ListByUser(userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.db.Where("user_id = ?", userID).Order("position asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceForUser 以整份快照覆盖用户的镜像行（重复调用结果一致）
func (r *GormCartRepository) ReplaceForUser(userID string, items []models.CartItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([]models.CartItem, len(items))
		for i := range items {
			rows[i] = items[i]
			rows[i].ID = 0
			rows[i].UserID = userID
			rows[i].Position = i
		}
		return tx.Create(&rows).Error
	})
}

// ClearByUser 清空购物车镜像
func (r *GormCartRepository) ClearByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}
