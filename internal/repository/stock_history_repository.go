package repository

import (
	"github.com/dujiao-next/bookshop/internal/models"

	"gorm.io/gorm"
)

// StockHistoryRepository 库存流水数据访问接口（只追加）
type StockHistoryRepository interface {
	Append(entry *models.StockHistory) error
	ListByProduct(productID uint, page, pageSize int) ([]models.StockHistory, int64, error)
	ListByReference(reference string) ([]models.StockHistory, error)
	WithTx(tx *gorm.DB) *GormStockHistoryRepository
}

// GormStockHistoryRepository GORM 实现
type GormStockHistoryRepository struct {
	db *gorm.DB
}

// NewStockHistoryRepository 创建库存流水仓库
func NewStockHistoryRepository(db *gorm.DB) *GormStockHistoryRepository {
	return &GormStockHistoryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormStockHistoryRepository) WithTx(tx *gorm.DB) *GormStockHistoryRepository {
	if tx == nil {
		return r
	}
	return &GormStockHistoryRepository{db: tx}
}

// Append 追加流水
func (r *GormStockHistoryRepository) Append(entry *models.StockHistory) error {
	return r.db.Create(entry).Error
}

// ListByProduct 按商品分页查询流水（最新在前）
func (r *GormStockHistoryRepository) ListByProduct(productID uint, page, pageSize int) ([]models.StockHistory, int64, error) {
	query := r.db.Model(&models.StockHistory{}).Where("product_id = ?", productID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.StockHistory
	if err := applyPagination(query, page, pageSize).Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByReference 按关联单据查询流水
func (r *GormStockHistoryRepository) ListByReference(reference string) ([]models.StockHistory, error) {
	var entries []models.StockHistory
	if err := r.db.Where("reference = ?", reference).Order("id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
