package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/bookshop/internal/logger"
)

const defaultMaintenanceInterval = time.Minute

// MaintenanceService 周期性兜底任务：重发待发邮件、关闭超时未支付订单
type MaintenanceService struct {
	consumer *Consumer
	interval time.Duration
}

// NewMaintenanceService 创建兜底任务服务
func NewMaintenanceService(consumer *Consumer) *MaintenanceService {
	interval := defaultMaintenanceInterval
	if consumer != nil && consumer.Container != nil && consumer.Config != nil {
		if seconds := consumer.Config.Notification.RetryIntervalSeconds; seconds > 0 {
			interval = time.Duration(seconds) * time.Second
		}
	}
	return &MaintenanceService{consumer: consumer, interval: interval}
}

// Name 服务名称
func (s *MaintenanceService) Name() string {
	return "maintenance"
}

// Start 启动循环，直到 ctx 结束
func (s *MaintenanceService) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil || s.consumer.Container == nil {
		return errors.New("maintenance not initialized")
	}
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop 停止服务，循环随 Start 的 ctx 退出
func (s *MaintenanceService) Stop(context.Context) error {
	return nil
}

// RunOnce 执行一轮兜底任务
func (s *MaintenanceService) RunOnce(ctx context.Context) {
	c := s.consumer
	if c.NotificationService != nil {
		result, err := c.NotificationService.RetryPending(ctx, 0)
		if err != nil {
			logger.Warnw("maintenance_pending_email_retry_failed", "error", err)
		} else if result.Attempted > 0 {
			logger.Infow("maintenance_pending_email_retry_done",
				"attempted", result.Attempted,
				"sent", result.Sent,
				"gave_up", result.GaveUp,
			)
		}
	}
	if c.OrderService != nil {
		cancelled, err := c.OrderService.SweepExpiredUnpaid(ctx, 0, c.reconcile())
		if err != nil {
			logger.Warnw("maintenance_order_sweep_failed", "error", err)
		} else if cancelled > 0 {
			logger.Infow("maintenance_order_sweep_done", "cancelled", cancelled)
		}
	}
}
