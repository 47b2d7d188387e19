package repository

import (
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
)

func TestPendingEmailAttemptLifecycle(t *testing.T) {
	db := openRepositoryTestDB(t, "pending_email_repo")
	repo := NewPendingEmailRepository(db)
	email := &models.PendingEmail{To: "reader@example.com", Subject: "Order BK1", HTML: "<p>hi</p>"}
	if err := repo.Create(email); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if email.Status != constants.PendingEmailStatusPending {
		t.Fatalf("default status want pending got %s", email.Status)
	}

	now := time.Now()
	if err := repo.MarkAttemptFailed(email.ID, "dial tcp: timeout", now, false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	due, _ := repo.ListDue(2, 10)
	if len(due) != 1 || due[0].Attempts != 1 {
		t.Fatalf("expected one due row with 1 attempt, got %+v", due)
	}

	if err := repo.MarkAttemptFailed(email.ID, "dial tcp: timeout", now, true); err != nil {
		t.Fatalf("mark give up failed: %v", err)
	}
	due, _ = repo.ListDue(2, 10)
	if len(due) != 0 {
		t.Fatalf("failed row should not be due")
	}

	affected, err := repo.ResetForRetry(email.ID)
	if err != nil || affected != 1 {
		t.Fatalf("reset want 1 got %d err=%v", affected, err)
	}
	if err := repo.MarkSent(email.ID, now); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	reloaded, _ := repo.GetByID(email.ID)
	if reloaded.Status != constants.PendingEmailStatusSent || reloaded.SentAt == nil {
		t.Fatalf("expected sent row, got %+v", reloaded)
	}
}
