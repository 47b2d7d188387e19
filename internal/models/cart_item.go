package models

import (
	"time"
)

// CartItem 已登录顾客的购物车镜像行
type CartItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                                     // 主键
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_cart_user_line" json:"user_id"`  // 用户ID（认证平台 subject）
	LineID    string    `gorm:"type:varchar(64);not null" json:"line_id"`                                 // 购物车行ID
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_user_line" json:"product_id"`                // 商品ID
	VariantID uint      `gorm:"not null;default:0;uniqueIndex:idx_cart_user_line" json:"variant_id"`      // 版本ID（0 表示无版本）
	Quantity  int       `gorm:"not null" json:"quantity"`                                                 // 数量
	UnitPrice Money     `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`                  // 加购时单价
	Name      string    `gorm:"type:varchar(300)" json:"name"`                                            // 商品名称
	ImageURL  string    `gorm:"type:varchar(500)" json:"image_url"`                                       // 图片
	Position  int       `gorm:"not null;default:0" json:"position"`                                       // 行顺序
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                                  // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                                                  // 更新时间
}

// TableName 指定表名
func (CartItem) TableName() string {
	return "cart_items"
}
