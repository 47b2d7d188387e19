package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 图书商品表
type Product struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                     // 主键
	Slug              string         `gorm:"uniqueIndex;not null" json:"slug"`                         // 唯一标识
	Title             string         `gorm:"type:varchar(300);not null" json:"title"`                  // 书名
	Author            string         `gorm:"type:varchar(200)" json:"author"`                          // 作者
	ISBN              string         `gorm:"type:varchar(32);index" json:"isbn"`                       // ISBN
	Description       string         `gorm:"type:text" json:"description"`                             // 简介
	PriceAmount       Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price"`       // 售价
	ImageURL          string         `gorm:"type:varchar(500)" json:"image_url"`                       // 封面图
	Stock             int            `gorm:"not null;default:0" json:"stock"`                          // 可售库存
	LowStockThreshold int            `gorm:"not null;default:0" json:"low_stock_threshold"`            // 低库存预警阈值（0 使用全局配置）
	Version           int64          `gorm:"not null;default:0" json:"-"`                              // 乐观锁版本号
	IsActive          bool           `gorm:"default:true;index" json:"is_active"`                      // 是否上架
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt         time.Time      `json:"updated_at"`                                               // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                           // 软删除时间

	Variants []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"` // 版本（精装/平装等）
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// ProductVariant 商品版本表
type ProductVariant struct {
	ID            uint           `gorm:"primarykey" json:"id"`                              // 主键
	ProductID     uint           `gorm:"index;not null" json:"product_id"`                  // 商品ID
	Label         string         `gorm:"type:varchar(120);not null" json:"label"`           // 版本名称
	SKU           string         `gorm:"type:varchar(64);index" json:"sku"`                 // SKU 编码
	PriceOverride *Money         `gorm:"type:decimal(20,2)" json:"price_override,omitempty"` // 覆盖价格（为空使用商品价格）
	IsActive      bool           `gorm:"default:true" json:"is_active"`                     // 是否可售
	CreatedAt     time.Time      `json:"created_at"`                                        // 创建时间
	UpdatedAt     time.Time      `json:"updated_at"`                                        // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (ProductVariant) TableName() string {
	return "product_variants"
}

// EffectivePrice 返回版本价格（未覆盖时使用商品价格）
func (p *Product) EffectivePrice(variant *ProductVariant) Money {
	if variant != nil && variant.PriceOverride != nil {
		return *variant.PriceOverride
	}
	return p.PriceAmount
}
