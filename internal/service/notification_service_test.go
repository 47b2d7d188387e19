package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"
)

func listPendingEmails(t *testing.T, env *testEnv, status string) []models.PendingEmail {
	t.Helper()
	rows, _, err := env.pendingRepo.List(repository.PendingEmailListFilter{Page: 1, PageSize: 50, Status: status})
	if err != nil {
		t.Fatalf("list pending emails failed: %v", err)
	}
	return rows
}

func TestDispatchSendsDirectly(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)

	err := env.notifier.Dispatch(context.Background(), EmailMessage{To: " Reader@Example.com ", Subject: "Hello", Text: "hi"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	sent := env.sender.messages()
	if len(sent) != 1 || sent[0].To != "reader@example.com" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
	if rows := listPendingEmails(t, env, ""); len(rows) != 0 {
		t.Fatalf("successful send must not store a pending email")
	}
	if err := env.notifier.Dispatch(context.Background(), EmailMessage{To: "nobody", Subject: "x"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestDispatchStoresFailedSendForRetry(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	env.sender.setErr(errSMTPDown)

	if err := env.notifier.Dispatch(context.Background(), EmailMessage{To: "reader@example.com", Subject: "Order update", HTML: "<p>x</p>"}); err != nil {
		t.Fatalf("dispatch should swallow send errors, got %v", err)
	}
	rows := listPendingEmails(t, env, constants.PendingEmailStatusPending)
	if len(rows) != 1 {
		t.Fatalf("expected one pending email, got %d", len(rows))
	}
	if rows[0].Attempts != 1 || !strings.Contains(rows[0].ErrorMessage, "connection refused") || rows[0].LastAttemptAt == nil {
		t.Fatalf("unexpected pending row %+v", rows[0])
	}

	env.sender.setErr(fmt.Errorf("550 mailbox unavailable: %w", ErrEmailRecipientRejected))
	if err := env.notifier.Dispatch(context.Background(), EmailMessage{To: "gone@example.com", Subject: "Order update"}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if failed := listPendingEmails(t, env, constants.PendingEmailStatusFailed); len(failed) != 1 || failed[0].To != "gone@example.com" {
		t.Fatalf("rejected recipient should be stored as failed, got %+v", failed)
	}
}

func TestRetryPendingGivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	ctx := context.Background()
	env.sender.setErr(errSMTPDown)
	if err := env.notifier.Dispatch(ctx, EmailMessage{To: "reader@example.com", Subject: "Order update"}); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	result, err := env.notifier.RetryPending(ctx, 0)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Attempted != 1 || result.Failed != 1 || result.GaveUp != 0 {
		t.Fatalf("unexpected first retry %+v", result)
	}
	result, err = env.notifier.RetryPending(ctx, 0)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.GaveUp != 1 {
		t.Fatalf("third attempt should give up, got %+v", result)
	}
	failed := listPendingEmails(t, env, constants.PendingEmailStatusFailed)
	if len(failed) != 1 || failed[0].Attempts != 3 {
		t.Fatalf("unexpected failed rows %+v", failed)
	}

	result, err = env.notifier.RetryPending(ctx, 0)
	if err != nil || result.Attempted != 0 {
		t.Fatalf("given-up emails must not be retried automatically, got %+v %v", result, err)
	}

	env.sender.setErr(nil)
	row, err := env.notifier.RetryOne(ctx, failed[0].ID)
	if err != nil {
		t.Fatalf("manual retry failed: %v", err)
	}
	if row.Status != constants.PendingEmailStatusSent || row.SentAt == nil {
		t.Fatalf("manual retry should send, got %+v", row)
	}
	if _, err := env.notifier.RetryOne(ctx, row.ID); !errors.Is(err, ErrPendingEmailNotFound) {
		t.Fatalf("sent email cannot be retried, got %v", err)
	}
}

func TestRetryPendingSendsRecoveredEmails(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	ctx := context.Background()
	env.sender.setErr(errSMTPDown)
	for i := 0; i < 3; i++ {
		if err := env.notifier.Dispatch(ctx, EmailMessage{To: fmt.Sprintf("reader%d@example.com", i), Subject: "Order update"}); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
	}
	env.sender.setErr(nil)

	result, err := env.notifier.RetryPending(ctx, 2)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Attempted != 2 || result.Sent != 2 {
		t.Fatalf("batch limit not honored: %+v", result)
	}
	if rows := listPendingEmails(t, env, constants.PendingEmailStatusPending); len(rows) != 1 || rows[0].To != "reader2@example.com" {
		t.Fatalf("oldest emails should be retried first, remaining %+v", rows)
	}
}

func TestSendOrderStatusRendersOrder(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "email-book", "450.00", 5)
	order := env.placeCOD(t, book, 2)

	if err := env.notifier.SendOrderStatus(context.Background(), order.ID, constants.OrderStatusShipped); err != nil {
		t.Fatalf("send order status failed: %v", err)
	}
	var shipped *EmailMessage
	for _, msg := range env.sender.messages() {
		if strings.Contains(msg.Text, "on its way") {
			m := msg
			shipped = &m
		}
	}
	if shipped == nil {
		t.Fatalf("shipped email not sent")
	}
	if shipped.To != "reader@example.com" || !strings.Contains(shipped.Text, order.OrderNo) || !strings.Contains(shipped.HTML, book.Title) {
		t.Fatalf("unexpected shipped email %+v", shipped)
	}
	if err := env.notifier.SendOrderStatus(context.Background(), 424242, constants.OrderStatusShipped); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestNotifyLowStockGoesToOps(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)

	err := env.notifier.NotifyLowStock(context.Background(), queue.StockLowNotificationPayload{
		ProductID: 7,
		Title:     "The Left Hand of Darkness",
		Stock:     1,
		Threshold: 3,
	})
	if err != nil {
		t.Fatalf("notify low stock failed: %v", err)
	}
	sent := env.sender.messages()
	if len(sent) != 1 || sent[0].To != "ops@bookshop.test" || !strings.Contains(sent[0].Subject, "Low stock: The Left Hand of Darkness") {
		t.Fatalf("unexpected low stock email %+v", sent)
	}

	var nilNotifier *NotificationService
	if err := nilNotifier.NotifyLowStock(context.Background(), queue.StockLowNotificationPayload{}); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}

// gatedEmailSender 在 release 关闭前阻塞发送
type gatedEmailSender struct {
	release chan struct{}
	inner   *fakeEmailSender
}

func (g *gatedEmailSender) Send(msg EmailMessage) error {
	<-g.release
	return g.inner.Send(msg)
}

func TestNotifyOrderStatusWaitCoversDirectSends(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "drain-book", "450.00", 5)
	order := env.placeCOD(t, book, 1)

	gated := &gatedEmailSender{release: make(chan struct{}), inner: &fakeEmailSender{}}
	notifier := NewNotificationService(gated, env.pendingRepo, env.orderRepo, nil, config.NotificationConfig{MaxAttempts: 3})
	notifier.NotifyOrderStatus(order, constants.OrderStatusShipped)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := notifier.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Wait to time out while the send is blocked, got %v", err)
	}

	close(gated.release)
	if err := notifier.Wait(context.Background()); err != nil {
		t.Fatalf("wait after release failed: %v", err)
	}
	sent := gated.inner.messages()
	if len(sent) != 1 || sent[0].To != "reader@example.com" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
}
