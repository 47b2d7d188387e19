package queue

import (
	"encoding/json"

	"github.com/dujiao-next/bookshop/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderStatusEmail 订单状态邮件通知任务
	TaskOrderStatusEmail = constants.TaskOrderStatusEmail
	// TaskOrderTimeoutCancel 超时取消任务
	TaskOrderTimeoutCancel = constants.TaskOrderTimeoutCancel
	// TaskCartSync 购物车镜像补偿同步任务
	TaskCartSync = constants.TaskCartSync
	// TaskPendingEmailRetry 待发邮件重试任务
	TaskPendingEmailRetry = constants.TaskPendingEmailRetry
	// TaskStockLowNotification 低库存运营提醒任务
	TaskStockLowNotification = constants.TaskStockLowNotification
)

// OrderStatusEmailPayload 订单状态邮件任务载荷
type OrderStatusEmailPayload struct {
	OrderID uint   `json:"order_id"`
	Status  string `json:"status"`
}

// OrderTimeoutCancelPayload 超时取消任务载荷
type OrderTimeoutCancelPayload struct {
	OrderID uint `json:"order_id"`
}

// CartSyncPayload 购物车同步任务载荷
type CartSyncPayload struct {
	OwnerKey string `json:"owner_key"`
}

// PendingEmailRetryPayload 待发邮件重试任务载荷
type PendingEmailRetryPayload struct {
	Limit int `json:"limit"`
}

// StockLowNotificationPayload 低库存提醒任务载荷
type StockLowNotificationPayload struct {
	ProductID uint   `json:"product_id"`
	Title     string `json:"title"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}

// NewOrderStatusEmailTask 创建订单状态邮件任务
func NewOrderStatusEmailTask(payload OrderStatusEmailPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderStatusEmail, payload)
}

// NewOrderTimeoutCancelTask 创建超时取消任务
func NewOrderTimeoutCancelTask(payload OrderTimeoutCancelPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderTimeoutCancel, payload)
}

// NewCartSyncTask 创建购物车同步任务
func NewCartSyncTask(payload CartSyncPayload) (*asynq.Task, error) {
	return newJSONTask(TaskCartSync, payload)
}

// NewPendingEmailRetryTask 创建待发邮件重试任务
func NewPendingEmailRetryTask(payload PendingEmailRetryPayload) (*asynq.Task, error) {
	return newJSONTask(TaskPendingEmailRetry, payload)
}

// NewStockLowNotificationTask 创建低库存提醒任务
func NewStockLowNotificationTask(payload StockLowNotificationPayload) (*asynq.Task, error) {
	return newJSONTask(TaskStockLowNotification, payload)
}
