package admin

import "github.com/dujiao-next/bookshop/internal/provider"

// Handler 后台接口处理器：商品库存、订单、优惠码、待发邮件与权限管理
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
