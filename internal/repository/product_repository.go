package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/bookshop/internal/models"

	"gorm.io/gorm"
)

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	List(filter ProductListFilter) ([]models.Product, int64, error)
	GetBySlug(slug string, onlyActive bool) (*models.Product, error)
	GetByID(id uint) (*models.Product, error)
	ListByIDs(ids []uint) ([]models.Product, error)
	GetVariant(productID, variantID uint) (*models.ProductVariant, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	SaveVariant(variant *models.ProductVariant) error
	Delete(id uint) error
	CountBySlug(slug string, excludeID uint) (int64, error)
	UpdateStockIfVersion(productID uint, expectedVersion int64, newStock int) (int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) ProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// Transaction 执行事务
func (r *GormProductRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

func preloadVariants(query *gorm.DB, onlyActive bool) *gorm.DB {
	return query.Preload("Variants", func(db *gorm.DB) *gorm.DB {
		if onlyActive {
			db = db.Where("is_active = ?", true)
		}
		return db.Order("id ASC")
	})
}

// List 商品列表
func (r *GormProductRepository) List(filter ProductListFilter) ([]models.Product, int64, error) {
	var products []models.Product

	query := r.db.Model(&models.Product{})
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}
	query = preloadVariants(query, filter.OnlyActive)
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		condition, argCount := buildLikeCondition(r.db, []string{"title", "author", "isbn", "slug"})
		query = query.Where(condition, repeatLikeArgs(like, argCount)...)
	}
	if filter.LowStock {
		query = query.Where("stock <= low_stock_threshold")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("created_at DESC, id DESC").Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetBySlug 根据 slug 获取商品
func (r *GormProductRepository) GetBySlug(slug string, onlyActive bool) (*models.Product, error) {
	query := r.db.Where("slug = ?", slug)
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}
	query = preloadVariants(query, onlyActive)

	var product models.Product
	if err := query.First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetByID 根据 ID 获取商品
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := preloadVariants(r.db, false).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// ListByIDs 批量获取商品
func (r *GormProductRepository) ListByIDs(ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := preloadVariants(r.db, false).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// GetVariant 获取商品版本
func (r *GormProductRepository) GetVariant(productID, variantID uint) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.Where("id = ? AND product_id = ?", variantID, productID).First(&variant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &variant, nil
}

// Create 创建商品
func (r *GormProductRepository) Create(product *models.Product) error {
	// is_active 带默认值，零值 false 会被忽略，创建后补写
	active := product.IsActive
	variantActive := make([]bool, len(product.Variants))
	for i := range product.Variants {
		variantActive[i] = product.Variants[i].IsActive
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			return err
		}
		if !active {
			product.IsActive = false
			if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		for i := range product.Variants {
			if variantActive[i] {
				continue
			}
			product.Variants[i].IsActive = false
			if err := tx.Model(&models.ProductVariant{}).Where("id = ?", product.Variants[i].ID).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Update 更新商品基础信息（库存与版本号只能走库存流水）
func (r *GormProductRepository) Update(product *models.Product) error {
	return r.db.Model(product).
		Select("slug", "title", "author", "isbn", "description", "price_amount", "image_url", "low_stock_threshold", "is_active", "updated_at").
		Updates(product).Error
}

// SaveVariant 新增或更新商品版本
func (r *GormProductRepository) SaveVariant(variant *models.ProductVariant) error {
	if variant.ID == 0 {
		active := variant.IsActive
		if err := r.db.Create(variant).Error; err != nil {
			return err
		}
		if active {
			return nil
		}
		variant.IsActive = false
		return r.db.Model(&models.ProductVariant{}).Where("id = ?", variant.ID).Update("is_active", false).Error
	}
	return r.db.Model(variant).
		Select("label", "sku", "price_override", "is_active", "updated_at").
		Updates(variant).Error
}

// Delete 软删除商品
func (r *GormProductRepository) Delete(id uint) error {
	return r.db.Delete(&models.Product{}, id).Error
}

// CountBySlug 统计 slug 数量
func (r *GormProductRepository) CountBySlug(slug string, excludeID uint) (int64, error) {
	var count int64
	query := r.db.Model(&models.Product{}).Where("slug = ?", slug)
	if excludeID != 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateStockIfVersion 乐观锁写库存：版本号匹配才更新，返回影响行数
func (r *GormProductRepository) UpdateStockIfVersion(productID uint, expectedVersion int64, newStock int) (int64, error) {
	if productID == 0 || newStock < 0 {
		return 0, errors.New("invalid stock update params")
	}
	result := r.db.Model(&models.Product{}).
		Where("id = ? AND version = ?", productID, expectedVersion).
		Updates(map[string]interface{}{
			"stock":   newStock,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
