package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/events"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/repository"

	"gorm.io/gorm"
)

// PaymentService 处理网关回调并推进订单支付状态
type PaymentService struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	productRepo repository.ProductRepository
	promo       *PromoService
	ledger      *StockLedger
	gateways    map[string]PaymentGateway
	notifier    *NotificationService
	publisher   events.Publisher
	now         func() time.Time
}

// PaymentServiceDeps 支付服务依赖
type PaymentServiceDeps struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	PaymentRepo repository.PaymentRepository
	ProductRepo repository.ProductRepository
	Promo       *PromoService
	Ledger      *StockLedger
	Gateways    map[string]PaymentGateway
	Notifier    *NotificationService
	Publisher   events.Publisher
}

// NewPaymentService 创建支付服务
func NewPaymentService(deps PaymentServiceDeps) *PaymentService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	gateways := deps.Gateways
	if gateways == nil {
		gateways = map[string]PaymentGateway{}
	}
	return &PaymentService{
		db:          deps.DB,
		orderRepo:   deps.OrderRepo,
		paymentRepo: deps.PaymentRepo,
		productRepo: deps.ProductRepo,
		promo:       deps.Promo,
		ledger:      deps.Ledger,
		gateways:    gateways,
		notifier:    deps.Notifier,
		publisher:   publisher,
		now:         time.Now,
	}
}

// PaymentOutcomeResult 回调处理结果
type PaymentOutcomeResult struct {
	Order         *models.Order `json:"order,omitempty"`
	Applied       bool          `json:"applied"`
	Duplicate     bool          `json:"duplicate"`
	Ignored       bool          `json:"ignored"`
	StockShortage bool          `json:"stock_shortage"`
}

// HandleWebhook 验签并应用网关 webhook
func (s *PaymentService) HandleWebhook(ctx context.Context, provider string, headers map[string]string, body []byte) (*PaymentOutcomeResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	gateway := s.gateways[provider]
	if gateway == nil {
		return nil, ErrPaymentGatewayUnavailable
	}
	outcome, err := gateway.ConfirmFromCallback(ctx, CallbackInput{Headers: headers, Body: body, Now: s.now()})
	if err != nil {
		if errors.Is(err, ErrPaymentSignatureInvalid) {
			logger.Warnw("payment_webhook_signature_invalid", "provider", provider, "error", err)
		} else {
			logger.Warnw("payment_webhook_rejected", "provider", provider, "error", err)
		}
		return nil, err
	}
	if outcome.Ignored() {
		logger.Debugw("payment_webhook_ignored", "provider", provider, "event", outcome.EventType)
		return &PaymentOutcomeResult{Ignored: true}, nil
	}
	return s.ApplyOutcome(ctx, outcome)
}

// HandleStripeWebhook 银行卡网关 webhook
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, headers map[string]string, body []byte) (*PaymentOutcomeResult, error) {
	return s.HandleWebhook(ctx, constants.PaymentProviderStripe, headers, body)
}

// HandleRazorpayWebhook UPI 网关 webhook
func (s *PaymentService) HandleRazorpayWebhook(ctx context.Context, headers map[string]string, body []byte) (*PaymentOutcomeResult, error) {
	return s.HandleWebhook(ctx, constants.PaymentProviderRazorpay, headers, body)
}

// ConfirmUpiPaymentInput 客户端完成 UPI 支付后回传的参数
type ConfirmUpiPaymentInput struct {
	ProviderOrderID string `json:"razorpay_order_id" binding:"required"`
	PaymentID       string `json:"razorpay_payment_id" binding:"required"`
	Signature       string `json:"razorpay_signature" binding:"required"`
}

// ConfirmUpiPayment 校验客户端回传签名后确认支付，与 webhook 幂等共存
func (s *PaymentService) ConfirmUpiPayment(ctx context.Context, input ConfirmUpiPaymentInput) (*PaymentOutcomeResult, error) {
	gateway, ok := s.gateways[constants.PaymentProviderRazorpay].(*RazorpayGateway)
	if !ok || gateway == nil {
		return nil, ErrPaymentGatewayUnavailable
	}
	outcome, err := gateway.ConfirmClientPayment(input.ProviderOrderID, input.PaymentID, input.Signature)
	if err != nil {
		logger.Warnw("upi_client_signature_invalid", "provider_order_id", input.ProviderOrderID, "error", err)
		return nil, err
	}
	return s.ApplyOutcome(ctx, outcome)
}

// ReconcileBeforeCancel 超时关单前查询银行卡网关；已支付则按回调处理并返回 true
func (s *PaymentService) ReconcileBeforeCancel(ctx context.Context, order *models.Order) (bool, error) {
	if order == nil || order.PaymentMethod != constants.PaymentMethodCardGateway || order.ProviderOrderID == "" {
		return false, nil
	}
	gateway, ok := s.gateways[constants.PaymentProviderStripe].(*StripeGateway)
	if !ok || gateway == nil {
		return false, nil
	}
	outcome, err := gateway.LookupSession(ctx, order.ProviderOrderID)
	if err != nil {
		return false, err
	}
	if outcome.Outcome != constants.PaymentOutcomePaid {
		return false, nil
	}
	if outcome.OrderNo == "" {
		outcome.OrderNo = order.OrderNo
	}
	if _, err := s.ApplyOutcome(ctx, outcome); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyOutcome 把验签后的结果应用到订单，重复回调只生效一次
func (s *PaymentService) ApplyOutcome(ctx context.Context, outcome *CallbackOutcome) (*PaymentOutcomeResult, error) {
	if outcome.Ignored() {
		return &PaymentOutcomeResult{Ignored: true}, nil
	}
	order, err := s.findOrder(ctx, outcome)
	if err != nil {
		return nil, err
	}
	log := logger.SW(
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"provider", outcome.Provider,
		"event", outcome.EventType,
		"outcome", outcome.Outcome,
	)
	if outcome.AmountMinor > 0 && outcome.AmountMinor != order.TotalAmount.MinorUnits() {
		log.Errorw("payment_amount_mismatch", "expected", order.TotalAmount.MinorUnits(), "received", outcome.AmountMinor)
		return nil, ErrPaymentAmountMismatch
	}
	if outcome.Currency != "" && !strings.EqualFold(outcome.Currency, order.Currency) {
		log.Errorw("payment_currency_mismatch", "expected", order.Currency, "received", outcome.Currency)
		return nil, ErrPaymentAmountMismatch
	}

	switch outcome.Outcome {
	case constants.PaymentOutcomePaid:
		return s.applyPaid(ctx, order, outcome)
	case constants.PaymentOutcomeFailed:
		return s.applyFailed(ctx, order, outcome)
	default:
		return &PaymentOutcomeResult{Order: order, Ignored: true}, nil
	}
}

func (s *PaymentService) findOrder(ctx context.Context, outcome *CallbackOutcome) (*models.Order, error) {
	order, err := retryRead(ctx, "payment_order_load", func() (*models.Order, error) {
		if ref := strings.TrimSpace(outcome.ProviderRef); ref != "" {
			found, err := s.orderRepo.GetByProviderOrderID(ref)
			if err != nil || found != nil {
				return found, err
			}
		}
		if orderNo := strings.TrimSpace(outcome.OrderNo); orderNo != "" {
			return s.orderRepo.GetByOrderNo(orderNo)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *PaymentService) applyPaid(ctx context.Context, order *models.Order, outcome *CallbackOutcome) (*PaymentOutcomeResult, error) {
	log := logger.SW("order_id", order.ID, "order_no", order.OrderNo, "provider", outcome.Provider)
	now := s.now()
	paidAt := now
	if outcome.PaidAt != nil && !outcome.PaidAt.IsZero() {
		paidAt = *outcome.PaidAt
	}

	result := &PaymentOutcomeResult{Order: order}
	var stockChanges []StockChange
	var shortages []StockShortage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		current, err := orderRepo.GetByID(order.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrOrderNotFound
		}
		*order = *current

		commitStock := !order.StockCommitted
		if commitStock && s.ledger.Policy() == config.OversellPolicyReject {
			shortages, err = stockShortagesTx(s.productRepo.WithTx(tx), order.Items)
			if err != nil {
				return err
			}
			commitStock = len(shortages) == 0
		}

		updates := map[string]interface{}{
			"payment_status": constants.OrderPaymentPaid,
			"paid_at":        paidAt,
		}
		updates["cancelled_at"] = nil
		if commitStock || order.StockCommitted {
			updates["status"] = constants.OrderStatusProcessing
		} else {
			updates["status"] = constants.OrderStatusPending
		}
		affected, err := orderRepo.TransitionPayment(order.ID, []string{
			constants.OrderPaymentUnpaid,
			constants.OrderPaymentAuthorized,
			constants.OrderPaymentFailed,
		}, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			result.Duplicate = true
			return nil
		}
		result.Applied = true
		order.PaymentStatus = constants.OrderPaymentPaid
		order.Status = updates["status"].(string)
		order.PaidAt = &paidAt
		order.CancelledAt = nil

		if commitStock {
			marked, err := orderRepo.MarkStockCommitted(order.ID)
			if err != nil {
				return err
			}
			if marked > 0 {
				changes, err := adjustOrderStockTx(s.ledger, tx, order, constants.StockChangeSubtract, "order_paid")
				if err != nil {
					return err
				}
				stockChanges = changes
				order.StockCommitted = true
			}
		}
		if order.PromoCodeID != nil {
			if _, err := s.promo.Redeem(tx, *order.PromoCodeID, order.ID); err != nil {
				return err
			}
		}
		return s.recordPayment(tx, order, outcome, constants.PaymentStatusSuccess, &paidAt, now)
	})
	if err != nil {
		log.Errorw("payment_apply_failed", "error", err)
		return nil, err
	}
	if result.Duplicate {
		log.Infow("payment_callback_duplicate", "payment_status", order.PaymentStatus)
		return result, nil
	}
	log.Infow("payment_confirmed", "status", order.Status, "stock_committed", order.StockCommitted)

	s.ledger.PublishChanges(ctx, stockChanges)
	publishOrderEvent(ctx, s.publisher, constants.EventOrderPaid, order)
	s.notifier.NotifyOrderStatus(order, order.Status)

	if len(shortages) > 0 {
		result.StockShortage = true
		log.Errorw("order_stock_shortfall", "items", len(shortages))
		if err := s.notifier.NotifyOps(ctx, "Paid order needs stock: "+order.OrderNo, shortageReport(order, shortages)); err != nil {
			log.Warnw("order_stock_shortfall_notify_failed", "error", err)
		}
	}
	return result, nil
}

func (s *PaymentService) applyFailed(ctx context.Context, order *models.Order, outcome *CallbackOutcome) (*PaymentOutcomeResult, error) {
	log := logger.SW("order_id", order.ID, "order_no", order.OrderNo, "provider", outcome.Provider)
	now := s.now()
	result := &PaymentOutcomeResult{Order: order}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 已支付的订单不会被失败回调回退
		affected, err := s.orderRepo.WithTx(tx).TransitionPayment(order.ID, []string{
			constants.OrderPaymentUnpaid,
			constants.OrderPaymentAuthorized,
		}, map[string]interface{}{
			"payment_status": constants.OrderPaymentFailed,
			"status":         constants.OrderStatusCancelled,
			"cancelled_at":   now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			result.Duplicate = true
			return nil
		}
		result.Applied = true
		order.PaymentStatus = constants.OrderPaymentFailed
		order.Status = constants.OrderStatusCancelled
		order.CancelledAt = &now
		return s.recordPayment(tx, order, outcome, constants.PaymentStatusFailed, nil, now)
	})
	if err != nil {
		log.Errorw("payment_apply_failed", "error", err)
		return nil, err
	}
	if result.Duplicate {
		log.Infow("payment_failure_ignored", "payment_status", order.PaymentStatus)
		return result, nil
	}
	log.Infow("payment_failed")
	publishOrderEvent(ctx, s.publisher, constants.EventOrderPaymentFailed, order)
	s.notifier.NotifyOrderStatus(order, order.Status)
	return result, nil
}

// recordPayment 更新网关支付记录；找不到时补建一条
func (s *PaymentService) recordPayment(tx *gorm.DB, order *models.Order, outcome *CallbackOutcome, status string, paidAt *time.Time, now time.Time) error {
	paymentRepo := s.paymentRepo.WithTx(tx)
	var payment *models.Payment
	if ref := strings.TrimSpace(outcome.ProviderRef); ref != "" {
		found, err := paymentRepo.GetLatestByProviderRef(outcome.Provider, ref)
		if err != nil {
			return err
		}
		payment = found
	}
	if payment == nil {
		payments, err := paymentRepo.ListByOrderID(order.ID)
		if err != nil {
			return err
		}
		for i := range payments {
			if payments[i].Provider == outcome.Provider {
				payment = &payments[i]
				break
			}
		}
	}
	if payment == nil {
		payment = &models.Payment{
			OrderID:     order.ID,
			Provider:    outcome.Provider,
			Amount:      order.TotalAmount,
			Currency:    order.Currency,
			ProviderRef: outcome.ProviderRef,
		}
		payment.Status = status
		payment.ProviderPaymentID = outcome.ProviderPaymentID
		payment.ProviderPayload = outcome.Payload
		payment.PaidAt = paidAt
		payment.CallbackAt = &now
		return paymentRepo.Create(payment)
	}
	payment.Status = status
	if outcome.ProviderPaymentID != "" {
		payment.ProviderPaymentID = outcome.ProviderPaymentID
	}
	if len(outcome.Payload) > 0 {
		payment.ProviderPayload = outcome.Payload
	}
	if paidAt != nil {
		payment.PaidAt = paidAt
	}
	payment.CallbackAt = &now
	return paymentRepo.Update(payment)
}

func shortageReport(order *models.Order, shortages []StockShortage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s was paid but stock is short. It stays pending until restocked.\n\n", order.OrderNo)
	for _, item := range shortages {
		fmt.Fprintf(&b, "- %s (#%d): requested %d, available %d\n", item.Title, item.ProductID, item.Requested, item.Available)
	}
	return b.String()
}
