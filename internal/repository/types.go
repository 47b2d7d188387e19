package repository

import "time"

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page       int
	PageSize   int
	Search     string
	OnlyActive bool
	LowStock   bool
}

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page          int
	PageSize      int
	UserID        string
	Status        string
	PaymentStatus string
	PaymentMethod string
	OrderNo       string
	ContactEmail  string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// PromoCodeListFilter 查询优惠码列表的过滤条件
type PromoCodeListFilter struct {
	Page     int
	PageSize int
	Search   string
	IsActive *bool
}

// PendingEmailListFilter 查询待发邮件列表的过滤条件
type PendingEmailListFilter struct {
	Page     int
	PageSize int
	Status   string
	To       string
}
