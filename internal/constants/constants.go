package constants

// 订单状态常量
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// 订单支付状态常量
const (
	OrderPaymentUnpaid     = "unpaid"
	OrderPaymentAuthorized = "authorized"
	OrderPaymentPaid       = "paid"
	OrderPaymentFailed     = "failed"
)

// 支付方式常量
const (
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentMethodCardGateway    = "card_gateway"
	PaymentMethodUpiGateway     = "upi_gateway"
)

// 支付记录状态常量
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// 支付网关常量
const (
	PaymentProviderStripe   = "stripe"
	PaymentProviderRazorpay = "razorpay"
)

// 支付回调结果常量
const (
	PaymentOutcomePaid   = "paid"
	PaymentOutcomeFailed = "failed"
)

// 库存变动类型常量
const (
	StockChangeAdd      = "add"
	StockChangeSubtract = "subtract"
	StockChangeSet      = "set"
)

// 优惠码类型常量
const (
	PromoTypePercentage = "percentage"
	PromoTypeFixed      = "fixed"
)

// 结算步骤常量
const (
	CheckoutStateShipping  = "shipping"
	CheckoutStatePayment   = "payment"
	CheckoutStateReview    = "review"
	CheckoutStatePlacing   = "placing"
	CheckoutStateCompleted = "completed"
	CheckoutStateFailed    = "failed"
)

// 购物车离线变更操作常量
const (
	CartMutationAdd    = "add"
	CartMutationSet    = "set"
	CartMutationRemove = "remove"
	CartMutationClear  = "clear"
)

// 待发邮件状态常量
const (
	PendingEmailStatusPending = "pending"
	PendingEmailStatusSent    = "sent"
	PendingEmailStatusFailed  = "failed"
)

// 队列常量
const (
	QueueDefault             = "default"
	QueueCritical            = "critical"
	TaskOrderStatusEmail     = "order:status_email"
	TaskOrderTimeoutCancel   = "order:timeout_cancel"
	TaskCartSync             = "cart:sync"
	TaskPendingEmailRetry    = "email:pending_retry"
	TaskStockLowNotification = "stock:low_notification"
)

// 事件类型常量
const (
	EventStockChanged       = "stock.changed"
	EventStockLow           = "stock.low"
	EventOrderPlaced        = "order.placed"
	EventOrderPaid          = "order.paid"
	EventOrderPaymentFailed = "order.payment_failed"
	EventOrderStatusChanged = "order.status_changed"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "bk"
)

// 币种常量
const (
	CurrencyDefault = "INR"
)
