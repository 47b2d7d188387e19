package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
)

func paidOutcome(provider, ref string, amountMinor int64) *CallbackOutcome {
	return &CallbackOutcome{
		Provider:          provider,
		EventType:         "payment.succeeded",
		Outcome:           constants.PaymentOutcomePaid,
		ProviderRef:       ref,
		ProviderPaymentID: "pay_" + ref,
		AmountMinor:       amountMinor,
		Currency:          "INR",
		Payload:           models.JSON{"id": ref},
	}
}

func failedOutcome(provider, ref string) *CallbackOutcome {
	return &CallbackOutcome{
		Provider:    provider,
		EventType:   "payment.failed",
		Outcome:     constants.PaymentOutcomeFailed,
		ProviderRef: ref,
	}
}

func TestStripeWebhookPaidCommitsStockOnce(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "paid-book", "450.00", 5)
	result := env.placeGateway(t, CardGateway{}, book, 1)
	ref := result.Handoff.ProviderOrderID
	env.card.outcome = paidOutcome(constants.PaymentProviderStripe, ref, 45000)
	ctx := context.Background()

	first, err := env.payments.HandleStripeWebhook(ctx, nil, []byte(`{}`))
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if !first.Applied || first.Duplicate {
		t.Fatalf("first delivery should apply, got %+v", first)
	}
	second, err := env.payments.HandleStripeWebhook(ctx, nil, []byte(`{}`))
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if !second.Duplicate || second.Applied {
		t.Fatalf("redelivery should be a duplicate, got %+v", second)
	}

	stored := reloadOrder(t, env.db, result.Order.ID)
	if stored.Status != constants.OrderStatusProcessing || stored.PaymentStatus != constants.OrderPaymentPaid {
		t.Fatalf("unexpected order state %s/%s", stored.Status, stored.PaymentStatus)
	}
	if !stored.StockCommitted || stored.PaidAt == nil {
		t.Fatalf("paid order should have stock committed and paid_at set")
	}
	if got := reloadProduct(t, env.db, book.ID).Stock; got != 4 {
		t.Fatalf("expected stock 4 after a single commit, got %d", got)
	}
	if rows := env.stockHistory(t, book.ID); len(rows) != 1 || rows[0].Reason != "order_paid" {
		t.Fatalf("expected one order_paid history row, got %+v", rows)
	}
	payment, err := env.paymentRepo.GetLatestByProviderRef(constants.PaymentProviderStripe, ref)
	if err != nil || payment == nil {
		t.Fatalf("payment row missing: %v", err)
	}
	if payment.Status != constants.PaymentStatusSuccess || payment.ProviderPaymentID != "pay_"+ref || payment.CallbackAt == nil {
		t.Fatalf("unexpected payment row %+v", payment)
	}
}

func TestRazorpayWebhookFailureCancelsUnpaidOrder(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "failed-book", "450.00", 5)
	result := env.placeGateway(t, UpiGateway{}, book, 1)
	ref := result.Handoff.ProviderOrderID
	env.upi.outcome = failedOutcome(constants.PaymentProviderRazorpay, ref)

	outcome, err := env.payments.HandleRazorpayWebhook(context.Background(), nil, []byte(`{}`))
	if err != nil || !outcome.Applied {
		t.Fatalf("failure should apply, got %+v err=%v", outcome, err)
	}
	stored := reloadOrder(t, env.db, result.Order.ID)
	if stored.Status != constants.OrderStatusCancelled || stored.PaymentStatus != constants.OrderPaymentFailed || stored.CancelledAt == nil {
		t.Fatalf("unexpected order state %s/%s", stored.Status, stored.PaymentStatus)
	}
	payment, _ := env.paymentRepo.GetLatestByProviderRef(constants.PaymentProviderRazorpay, ref)
	if payment == nil || payment.Status != constants.PaymentStatusFailed {
		t.Fatalf("payment row should be failed, got %+v", payment)
	}
	if got := reloadProduct(t, env.db, book.ID).Stock; got != 5 {
		t.Fatalf("failed payment must not touch stock, got %d", got)
	}
}

func TestFailureAfterPaidIsIgnored(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "late-failure-book", "450.00", 5)
	result := env.placeGateway(t, UpiGateway{}, book, 1)
	ref := result.Handoff.ProviderOrderID
	ctx := context.Background()

	if _, err := env.payments.ApplyOutcome(ctx, paidOutcome(constants.PaymentProviderRazorpay, ref, 45000)); err != nil {
		t.Fatalf("paid outcome failed: %v", err)
	}
	outcome, err := env.payments.ApplyOutcome(ctx, failedOutcome(constants.PaymentProviderRazorpay, ref))
	if err != nil {
		t.Fatalf("failed outcome errored: %v", err)
	}
	if !outcome.Duplicate || outcome.Applied {
		t.Fatalf("failure after payment should be ignored, got %+v", outcome)
	}
	stored := reloadOrder(t, env.db, result.Order.ID)
	if stored.PaymentStatus != constants.OrderPaymentPaid || stored.Status != constants.OrderStatusProcessing {
		t.Fatalf("paid order regressed to %s/%s", stored.Status, stored.PaymentStatus)
	}
}

func TestPaidAfterTimeoutCancelRevivesOrder(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "revive-book", "450.00", 5)
	result := env.placeGateway(t, UpiGateway{}, book, 1)
	ctx := context.Background()

	if cancelled, err := env.orders.CancelUnpaid(ctx, result.Order.ID, nil); err != nil || !cancelled {
		t.Fatalf("timeout cancel failed: %v %v", cancelled, err)
	}
	outcome, err := env.payments.ApplyOutcome(ctx, paidOutcome(constants.PaymentProviderRazorpay, result.Handoff.ProviderOrderID, 45000))
	if err != nil || !outcome.Applied {
		t.Fatalf("late payment should apply, got %+v err=%v", outcome, err)
	}
	stored := reloadOrder(t, env.db, result.Order.ID)
	if stored.Status != constants.OrderStatusProcessing || stored.CancelledAt != nil {
		t.Fatalf("late payment should revive the order, got %s cancelled_at=%v", stored.Status, stored.CancelledAt)
	}
	if got := reloadProduct(t, env.db, book.ID).Stock; got != 4 {
		t.Fatalf("expected stock 4, got %d", got)
	}
}

func TestApplyOutcomeRejectsAmountMismatch(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "mismatch-book", "450.00", 5)
	result := env.placeGateway(t, CardGateway{}, book, 1)
	ctx := context.Background()

	_, err := env.payments.ApplyOutcome(ctx, paidOutcome(constants.PaymentProviderStripe, result.Handoff.ProviderOrderID, 100))
	if !errors.Is(err, ErrPaymentAmountMismatch) {
		t.Fatalf("expected ErrPaymentAmountMismatch, got %v", err)
	}
	wrongCurrency := paidOutcome(constants.PaymentProviderStripe, result.Handoff.ProviderOrderID, 45000)
	wrongCurrency.Currency = "USD"
	if _, err := env.payments.ApplyOutcome(ctx, wrongCurrency); !errors.Is(err, ErrPaymentAmountMismatch) {
		t.Fatalf("expected ErrPaymentAmountMismatch for currency, got %v", err)
	}
	if stored := reloadOrder(t, env.db, result.Order.ID); stored.PaymentStatus != constants.OrderPaymentUnpaid {
		t.Fatalf("mismatched callback changed payment status to %s", stored.PaymentStatus)
	}
}

func TestApplyOutcomeFindsOrderByNumberAndRejectsUnknown(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "by-number-book", "450.00", 5)
	result := env.placeGateway(t, CardGateway{}, book, 1)
	ctx := context.Background()

	if _, err := env.payments.ApplyOutcome(ctx, paidOutcome(constants.PaymentProviderStripe, "cs_unknown", 45000)); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	byNumber := paidOutcome(constants.PaymentProviderStripe, "", 45000)
	byNumber.OrderNo = result.Order.OrderNo
	outcome, err := env.payments.ApplyOutcome(ctx, byNumber)
	if err != nil || !outcome.Applied {
		t.Fatalf("lookup by order number failed: %+v %v", outcome, err)
	}
}

func TestWebhookSignatureAndIgnoredEvents(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	ctx := context.Background()

	env.card.verifyErr = ErrPaymentSignatureInvalid
	if _, err := env.payments.HandleStripeWebhook(ctx, nil, []byte(`{}`)); !errors.Is(err, ErrPaymentSignatureInvalid) {
		t.Fatalf("expected ErrPaymentSignatureInvalid, got %v", err)
	}

	env.card.verifyErr = nil
	env.card.outcome = &CallbackOutcome{Provider: constants.PaymentProviderStripe, EventType: "charge.updated"}
	outcome, err := env.payments.HandleStripeWebhook(ctx, nil, []byte(`{}`))
	if err != nil || !outcome.Ignored {
		t.Fatalf("unhandled event should be ignored, got %+v %v", outcome, err)
	}

	if _, err := env.payments.HandleWebhook(ctx, "paypal", nil, nil); !errors.Is(err, ErrPaymentGatewayUnavailable) {
		t.Fatalf("expected ErrPaymentGatewayUnavailable, got %v", err)
	}
	if _, err := env.payments.ConfirmUpiPayment(ctx, ConfirmUpiPaymentInput{ProviderOrderID: "order_x"}); !errors.Is(err, ErrPaymentGatewayUnavailable) {
		t.Fatalf("fake gateway cannot confirm client payments, got %v", err)
	}
}

func TestPaidOrderWithShortfallStaysPendingUnderRejectPolicy(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyReject)
	book := createBook(t, env.db, "shortfall-book", "450.00", 1)
	result := env.placeGateway(t, UpiGateway{}, book, 1)
	ctx := context.Background()

	// 支付完成前另一笔订单买走了最后一本
	if _, err := env.ledger.Adjust(ctx, AdjustStockInput{ProductID: book.ID, Delta: 0, ChangeType: constants.StockChangeSet, Reason: "recount"}); err != nil {
		t.Fatalf("set stock failed: %v", err)
	}
	outcome, err := env.payments.ApplyOutcome(ctx, paidOutcome(constants.PaymentProviderRazorpay, result.Handoff.ProviderOrderID, 45000))
	if err != nil {
		t.Fatalf("paid outcome failed: %v", err)
	}
	if !outcome.Applied || !outcome.StockShortage {
		t.Fatalf("expected applied payment with shortage, got %+v", outcome)
	}
	stored := reloadOrder(t, env.db, result.Order.ID)
	if stored.PaymentStatus != constants.OrderPaymentPaid || stored.Status != constants.OrderStatusPending || stored.StockCommitted {
		t.Fatalf("unexpected order state %s/%s committed=%v", stored.Status, stored.PaymentStatus, stored.StockCommitted)
	}
	opsAlerted := false
	for _, msg := range env.sender.messages() {
		if msg.To == "ops@bookshop.test" && strings.Contains(msg.Subject, result.Order.OrderNo) {
			opsAlerted = true
		}
	}
	if !opsAlerted {
		t.Fatalf("ops should be alerted about the shortfall")
	}

	if _, err := env.orders.UpdateStatus(ctx, stored.ID, constants.OrderStatusProcessing); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("processing without stock should fail, got %v", err)
	}
	if _, err := env.ledger.Adjust(ctx, AdjustStockInput{ProductID: book.ID, Delta: 2, ChangeType: constants.StockChangeAdd, Reason: "restock"}); err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	updated, err := env.orders.UpdateStatus(ctx, stored.ID, constants.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("processing after restock failed: %v", err)
	}
	if !updated.StockCommitted {
		t.Fatalf("stock should be committed when the order moves to processing")
	}
	if got := reloadProduct(t, env.db, book.ID).Stock; got != 1 {
		t.Fatalf("expected stock 1, got %d", got)
	}
}
