package models

import (
	"time"
)

// Order 订单表
type Order struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                            // 主键
	OrderNo         string     `gorm:"uniqueIndex;not null" json:"order_no"`                            // 订单编号
	UserID          string     `gorm:"type:varchar(64);index" json:"user_id,omitempty"`                 // 用户ID（游客为空）
	ContactEmail    string     `gorm:"type:varchar(200);index" json:"contact_email"`                    // 联系邮箱
	Status          string     `gorm:"type:varchar(20);index;not null" json:"status"`                   // 订单状态
	PaymentStatus   string     `gorm:"type:varchar(20);index;not null" json:"payment_status"`           // 支付状态
	PaymentMethod   string     `gorm:"type:varchar(32);not null" json:"payment_method"`                 // 支付方式
	Currency        string     `gorm:"type:varchar(8);not null" json:"currency"`                        // 币种
	Subtotal        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`           // 商品小计
	ShippingAmount  Money      `gorm:"type:decimal(20,2);not null;default:0" json:"shipping_amount"`    // 运费
	TaxAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"tax_amount"`         // 税费
	DiscountAmount  Money      `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"`    // 优惠金额
	TotalAmount     Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`       // 应付金额
	PromoCode       string     `gorm:"type:varchar(64)" json:"promo_code,omitempty"`                    // 使用的优惠码
	PromoCodeID     *uint      `gorm:"index" json:"promo_code_id,omitempty"`                            // 优惠码ID
	ProviderOrderID string     `gorm:"type:varchar(128);index" json:"provider_order_id,omitempty"`      // 网关侧支付单号
	CheckoutID      string     `gorm:"type:varchar(64);index" json:"-"`                                 // 来源结算会话
	StockCommitted  bool       `gorm:"not null;default:false" json:"stock_committed"`                   // 库存是否已扣减
	ShippingAddress Address    `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`       // 收货地址
	BillingAddress  Address    `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`         // 账单地址
	PaidAt          *time.Time `gorm:"index" json:"paid_at"`                                            // 支付时间
	CancelledAt     *time.Time `gorm:"index" json:"cancelled_at"`                                       // 取消时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                                         // 创建时间
	UpdatedAt       time.Time  `gorm:"index" json:"updated_at"`                                         // 更新时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单项（下单时刻的商品快照）
type OrderItem struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                     // 主键
	OrderID      uint      `gorm:"index;not null" json:"order_id"`                           // 订单ID
	ProductID    uint      `gorm:"index;not null" json:"product_id"`                         // 商品ID
	VariantID    uint      `gorm:"not null;default:0" json:"variant_id,omitempty"`           // 版本ID
	ProductName  string    `gorm:"type:varchar(300);not null" json:"product_name"`           // 商品名称快照
	VariantLabel string    `gorm:"type:varchar(120)" json:"variant_label,omitempty"`         // 版本名称快照
	UnitPrice    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`  // 单价快照
	Quantity     int       `gorm:"not null" json:"quantity"`                                 // 数量
	TotalPrice   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"` // 小计
	CreatedAt    time.Time `json:"created_at"`                                               // 创建时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
