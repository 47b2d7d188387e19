package public

import "github.com/dujiao-next/bookshop/internal/provider"

// Handler 店面接口处理器：目录、购物车、结算、订单查询与支付回调
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
