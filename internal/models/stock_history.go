package models

import "time"

// StockHistory 库存流水（只追加）
type StockHistory struct {
	ID             uint      `gorm:"primarykey" json:"id"`                              // 主键
	ProductID      uint      `gorm:"index;not null" json:"product_id"`                  // 商品ID
	PreviousStock  int       `gorm:"not null" json:"previous_stock"`                    // 变动前库存
	NewStock       int       `gorm:"not null" json:"new_stock"`                         // 变动后库存
	QuantityChange int       `gorm:"not null" json:"quantity_change"`                   // 请求的变动量（带符号）
	ChangeType     string    `gorm:"type:varchar(16);not null" json:"change_type"`      // 变动类型（add/subtract/set）
	Reason         string    `gorm:"type:varchar(300)" json:"reason"`                   // 原因
	Reference      string    `gorm:"type:varchar(128);index" json:"reference,omitempty"` // 关联单据（如 order:BK...）
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                           // 创建时间
}

// TableName 指定表名
func (StockHistory) TableName() string {
	return "stock_history"
}
