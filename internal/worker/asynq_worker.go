package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/provider"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderStatusEmail, c.handleOrderStatusEmail)
	mux.HandleFunc(queue.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel)
	mux.HandleFunc(queue.TaskCartSync, c.handleCartSync)
	mux.HandleFunc(queue.TaskPendingEmailRetry, c.handlePendingEmailRetry)
	mux.HandleFunc(queue.TaskStockLowNotification, c.handleStockLowNotification)
}

func decodePayload(task *asynq.Task, out interface{}) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if err := json.Unmarshal(task.Payload(), out); err != nil {
		// 载荷损坏时重试无意义
		return errors.Join(err, asynq.SkipRetry)
	}
	return nil
}

func (c *Consumer) handleOrderStatusEmail(ctx context.Context, task *asynq.Task) error {
	var payload queue.OrderStatusEmailPayload
	if err := decodePayload(task, &payload); err != nil {
		logger.Warnw("worker_order_status_email_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_status_email_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_order_status_email_skip_notifier_nil", "order_id", payload.OrderID)
		return nil
	}
	status := strings.TrimSpace(payload.Status)
	err := c.NotificationService.SendOrderStatus(ctx, payload.OrderID, status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrOrderNotFound):
		logger.Debugw("worker_order_status_email_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	case errors.Is(err, service.ErrInvalidEmail):
		logger.Warnw("worker_order_status_email_skip_invalid_receiver", "order_id", payload.OrderID)
		return nil
	default:
		logger.Warnw("worker_order_status_email_send_failed",
			"order_id", payload.OrderID,
			"status", status,
			"error", err,
		)
		return err
	}
}

func (c *Consumer) handleOrderTimeoutCancel(ctx context.Context, task *asynq.Task) error {
	var payload queue.OrderTimeoutCancelPayload
	if err := decodePayload(task, &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_order_service_nil", "order_id", payload.OrderID)
		return nil
	}
	cancelled, err := c.OrderService.CancelUnpaid(ctx, payload.OrderID, c.reconcile())
	if err != nil {
		logger.Warnw("worker_order_timeout_cancel_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	logger.Debugw("worker_order_timeout_cancel_done", "order_id", payload.OrderID, "cancelled", cancelled)
	return nil
}

func (c *Consumer) handleCartSync(ctx context.Context, task *asynq.Task) error {
	var payload queue.CartSyncPayload
	if err := decodePayload(task, &payload); err != nil {
		logger.Warnw("worker_cart_sync_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.OwnerKey) == "" || c.CartService == nil {
		return nil
	}
	if err := c.CartService.SyncMirror(ctx, payload.OwnerKey); err != nil {
		logger.Warnw("worker_cart_sync_failed", "owner_key", payload.OwnerKey, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handlePendingEmailRetry(ctx context.Context, task *asynq.Task) error {
	var payload queue.PendingEmailRetryPayload
	if err := decodePayload(task, &payload); err != nil {
		logger.Warnw("worker_pending_email_retry_unmarshal_failed", "error", err)
		return err
	}
	if c.NotificationService == nil {
		return nil
	}
	result, err := c.NotificationService.RetryPending(ctx, payload.Limit)
	if err != nil {
		logger.Warnw("worker_pending_email_retry_failed", "error", err)
		return err
	}
	logger.Infow("worker_pending_email_retry_done",
		"attempted", result.Attempted,
		"sent", result.Sent,
		"failed", result.Failed,
		"gave_up", result.GaveUp,
	)
	return nil
}

func (c *Consumer) handleStockLowNotification(ctx context.Context, task *asynq.Task) error {
	var payload queue.StockLowNotificationPayload
	if err := decodePayload(task, &payload); err != nil {
		logger.Warnw("worker_stock_low_unmarshal_failed", "error", err)
		return err
	}
	if payload.ProductID == 0 || c.NotificationService == nil {
		return nil
	}
	if err := c.NotificationService.NotifyLowStock(ctx, payload); err != nil {
		logger.Warnw("worker_stock_low_notify_failed", "product_id", payload.ProductID, "error", err)
		return err
	}
	return nil
}

// reconcile 取消前向网关核实支付状态，支付服务缺失时直接取消
func (c *Consumer) reconcile() func(ctx context.Context, order *models.Order) (bool, error) {
	if c.PaymentService == nil {
		return nil
	}
	return c.PaymentService.ReconcileBeforeCancel
}
