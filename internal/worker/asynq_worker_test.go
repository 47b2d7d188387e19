package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/provider"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []service.EmailMessage
}

func (s *recordingSender) Send(msg service.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func openWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateTables(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func newNotificationConsumer(t *testing.T) (*Consumer, *recordingSender, repository.PendingEmailRepository) {
	t.Helper()
	db := openWorkerTestDB(t)
	sender := &recordingSender{}
	pendingRepo := repository.NewPendingEmailRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	notifier := service.NewNotificationService(sender, pendingRepo, orderRepo, nil, config.NotificationConfig{MaxAttempts: 3})
	return NewConsumer(&provider.Container{
		Config:              &config.Config{},
		OrderRepo:           orderRepo,
		PendingEmailRepo:    pendingRepo,
		NotificationService: notifier,
	}), sender, pendingRepo
}

func TestRegisterRoutesAllTasks(t *testing.T) {
	mux := asynq.NewServeMux()
	NewConsumer(&provider.Container{}).Register(mux)
	for _, taskType := range []string{
		queue.TaskOrderStatusEmail,
		queue.TaskOrderTimeoutCancel,
		queue.TaskCartSync,
		queue.TaskPendingEmailRetry,
		queue.TaskStockLowNotification,
	} {
		if _, pattern := mux.Handler(asynq.NewTask(taskType, nil)); pattern != taskType {
			t.Fatalf("task %s not registered, matched %q", taskType, pattern)
		}
	}
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	err := consumer.handleOrderTimeoutCancel(context.Background(), asynq.NewTask(queue.TaskOrderTimeoutCancel, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandlersIgnoreEmptyPayloads(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	ctx := context.Background()
	if err := consumer.handleOrderStatusEmail(ctx, asynq.NewTask(queue.TaskOrderStatusEmail, []byte(`{"order_id":0}`))); err != nil {
		t.Fatalf("zero order id should be ignored, got %v", err)
	}
	if err := consumer.handleCartSync(ctx, asynq.NewTask(queue.TaskCartSync, []byte(`{"owner_key":""}`))); err != nil {
		t.Fatalf("empty owner should be ignored, got %v", err)
	}
	if err := consumer.handleStockLowNotification(ctx, asynq.NewTask(queue.TaskStockLowNotification, []byte(`{"product_id":0}`))); err != nil {
		t.Fatalf("zero product should be ignored, got %v", err)
	}
}

func TestOrderStatusEmailMissingOrderIsDropped(t *testing.T) {
	consumer, sender, _ := newNotificationConsumer(t)
	task, err := queue.NewOrderStatusEmailTask(queue.OrderStatusEmailPayload{OrderID: 404, Status: constants.OrderStatusProcessing})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleOrderStatusEmail(context.Background(), task); err != nil {
		t.Fatalf("missing order should not be retried, got %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("no email expected")
	}
}

func TestPendingEmailRetryTaskResends(t *testing.T) {
	consumer, sender, pendingRepo := newNotificationConsumer(t)
	row := &models.PendingEmail{To: "reader@example.com", Subject: "Order update", HTML: "<p>hi</p>", Status: constants.PendingEmailStatusPending}
	if err := pendingRepo.Create(row); err != nil {
		t.Fatalf("create pending email failed: %v", err)
	}
	task, err := queue.NewPendingEmailRetryTask(queue.PendingEmailRetryPayload{Limit: 10})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePendingEmailRetry(context.Background(), task); err != nil {
		t.Fatalf("retry task failed: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected one resend, got %d", sender.count())
	}
	stored, err := pendingRepo.GetByID(row.ID)
	if err != nil || stored.Status != constants.PendingEmailStatusSent {
		t.Fatalf("pending email should be sent, got %+v err=%v", stored, err)
	}
}

func TestMaintenanceRunOnceDrainsPendingEmails(t *testing.T) {
	consumer, sender, pendingRepo := newNotificationConsumer(t)
	consumer.Config.Notification.RetryIntervalSeconds = 5
	if err := pendingRepo.Create(&models.PendingEmail{To: "ops@example.com", Subject: "Low stock", Status: constants.PendingEmailStatusPending}); err != nil {
		t.Fatalf("create pending email failed: %v", err)
	}
	maintenance := NewMaintenanceService(consumer)
	if maintenance.interval != 5*time.Second {
		t.Fatalf("interval should follow config, got %v", maintenance.interval)
	}
	maintenance.RunOnce(context.Background())
	if sender.count() != 1 {
		t.Fatalf("expected pending email resent, got %d", sender.count())
	}
}

func TestNewServiceRequiresQueue(t *testing.T) {
	if _, err := NewService(&config.QueueConfig{Enabled: false}, NewConsumer(&provider.Container{})); err == nil {
		t.Fatalf("disabled queue should fail")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("nil consumer should fail")
	}
}
