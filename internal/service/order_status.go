package service

import (
	"strings"

	"github.com/dujiao-next/bookshop/internal/constants"
)

// orderTransitions 管理端允许的订单状态流转
var orderTransitions = map[string][]string{
	constants.OrderStatusPending:    {constants.OrderStatusProcessing, constants.OrderStatusCancelled},
	constants.OrderStatusProcessing: {constants.OrderStatusShipped, constants.OrderStatusCancelled, constants.OrderStatusRefunded},
	constants.OrderStatusShipped:    {constants.OrderStatusDelivered},
	constants.OrderStatusDelivered:  {constants.OrderStatusRefunded},
}

// isTransitionAllowed 判断订单状态是否可从 from 流转到 to
func isTransitionAllowed(from, to string) bool {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// isOrderStatusKnown 是否为合法订单状态
func isOrderStatusKnown(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case constants.OrderStatusPending,
		constants.OrderStatusProcessing,
		constants.OrderStatusShipped,
		constants.OrderStatusDelivered,
		constants.OrderStatusCancelled,
		constants.OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// needsStockCommit 已支付但库存尚未扣减的订单进入处理中之前需要补扣
func needsStockCommit(paymentStatus string, stockCommitted bool, target string) bool {
	return !stockCommitted &&
		paymentStatus == constants.OrderPaymentPaid &&
		target == constants.OrderStatusProcessing
}

// releasesStock 取消或退款时尝试回补库存；是否已扣减以库中标记为准
func releasesStock(target string) bool {
	return target == constants.OrderStatusCancelled || target == constants.OrderStatusRefunded
}
