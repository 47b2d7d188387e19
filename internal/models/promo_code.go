package models

import (
	"time"

	"gorm.io/gorm"
)

// PromoCode 优惠码表
type PromoCode struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                         // 主键
	Code          string         `gorm:"uniqueIndex;not null" json:"code"`                             // 优惠码（统一大写存储）
	DiscountType  string         `gorm:"type:varchar(20);not null" json:"discount_type"`               // 类型（percentage/fixed）
	DiscountValue Money          `gorm:"type:decimal(20,2);not null" json:"discount_value"`            // 折扣值
	MinOrderValue Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_order_value"` // 最低订单金额（0 表示不限）
	MaxUses       int            `gorm:"not null;default:0" json:"max_uses"`                           // 最大使用次数（0 表示不限）
	CurrentUses   int            `gorm:"not null;default:0" json:"current_uses"`                       // 已使用次数
	ValidFrom     *time.Time     `gorm:"index" json:"valid_from"`                                      // 生效时间
	ValidUntil    *time.Time     `gorm:"index" json:"valid_until"`                                     // 失效时间
	IsActive      bool           `gorm:"not null;default:true" json:"is_active"`                       // 是否启用
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt     time.Time      `json:"updated_at"`                                                   // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (PromoCode) TableName() string {
	return "promo_codes"
}

// PromoRedemption 优惠码核销记录（每个订单至多一条）
type PromoRedemption struct {
	ID          uint      `gorm:"primarykey" json:"id"`               // 主键
	PromoCodeID uint      `gorm:"index;not null" json:"promo_code_id"` // 优惠码ID
	OrderID     uint      `gorm:"uniqueIndex;not null" json:"order_id"` // 订单ID
	CreatedAt   time.Time `json:"created_at"`                         // 核销时间
}

// TableName 指定表名
func (PromoRedemption) TableName() string {
	return "promo_redemptions"
}
