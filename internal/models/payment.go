package models

import (
	"time"
)

// Payment 网关支付记录
type Payment struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                      // 主键
	OrderID           uint       `gorm:"index;not null" json:"order_id"`                            // 订单ID
	Provider          string     `gorm:"type:varchar(20);not null" json:"provider"`                 // 网关（stripe/razorpay）
	Amount            Money      `gorm:"type:decimal(20,2);not null" json:"amount"`                 // 支付金额
	Currency          string     `gorm:"type:varchar(8);not null" json:"currency"`                  // 币种
	Status            string     `gorm:"type:varchar(20);index;not null" json:"status"`             // 支付状态
	ProviderRef       string     `gorm:"type:varchar(128);index" json:"provider_ref"`               // 网关支付单号（session/order id）
	ProviderPaymentID string     `gorm:"type:varchar(128)" json:"provider_payment_id,omitempty"`    // 网关交易号
	ProviderPayload   JSON       `gorm:"type:json" json:"provider_payload,omitempty"`               // 最近一次回调原文
	PayURL            string     `gorm:"type:text" json:"pay_url,omitempty"`                        // 跳转链接
	KeyID             string     `gorm:"type:varchar(64)" json:"key_id,omitempty"`                  // 客户端拉起支付用的公钥标识
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`                                   // 更新时间
	PaidAt            *time.Time `gorm:"index" json:"paid_at"`                                      // 支付时间
	CallbackAt        *time.Time `gorm:"index" json:"callback_at"`                                  // 回调时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
