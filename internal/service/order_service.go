package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/events"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"

	"gorm.io/gorm"
)

const defaultPaymentExpireMinutes = 30

// OrderService 订单服务
type OrderService struct {
	db            *gorm.DB
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	paymentRepo   repository.PaymentRepository
	promo         *PromoService
	ledger        *StockLedger
	gateways      map[string]PaymentGateway
	notifier      *NotificationService
	queueClient   *queue.Client
	publisher     events.Publisher
	pricing       PricingOptions
	expireMinutes int
	now           func() time.Time
}

// OrderServiceDeps 订单服务依赖
type OrderServiceDeps struct {
	DB            *gorm.DB
	OrderRepo     repository.OrderRepository
	ProductRepo   repository.ProductRepository
	PaymentRepo   repository.PaymentRepository
	Promo         *PromoService
	Ledger        *StockLedger
	Gateways      map[string]PaymentGateway
	Notifier      *NotificationService
	QueueClient   *queue.Client
	Publisher     events.Publisher
	Pricing       PricingOptions
	ExpireMinutes int
}

// NewOrderService 创建订单服务
func NewOrderService(deps OrderServiceDeps) *OrderService {
	expire := deps.ExpireMinutes
	if expire <= 0 {
		expire = defaultPaymentExpireMinutes
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	gateways := deps.Gateways
	if gateways == nil {
		gateways = map[string]PaymentGateway{}
	}
	return &OrderService{
		db:            deps.DB,
		orderRepo:     deps.OrderRepo,
		productRepo:   deps.ProductRepo,
		paymentRepo:   deps.PaymentRepo,
		promo:         deps.Promo,
		ledger:        deps.Ledger,
		gateways:      gateways,
		notifier:      deps.Notifier,
		queueClient:   deps.QueueClient,
		publisher:     publisher,
		pricing:       deps.Pricing,
		expireMinutes: expire,
		now:           time.Now,
	}
}

// CreateOrderLine 下单行
type CreateOrderLine struct {
	ProductID uint
	VariantID uint
	Quantity  int
}

// CreateOrderInput 创建订单输入。
// QuoteCharges 为 true 时忽略传入的运费、税费与折扣，按目录重新定价后的小计校验优惠码并计算；
// 否则使用调用方给出的金额。
type CreateOrderInput struct {
	UserID          string
	ContactEmail    string
	Items           []CreateOrderLine
	ShippingAddress models.Address
	BillingAddress  models.Address
	PaymentMethod   PaymentMethod
	ShippingAmount  models.Money
	TaxAmount       models.Money
	DiscountAmount  models.Money
	PromoCode       string
	PromoCodeID     uint
	QuoteCharges    bool
	CheckoutID      string
}

// ChargeQuote 按目录价计算的订单金额与生效的优惠码
type ChargeQuote struct {
	OrderTotals
	PromoCode   string `json:"promo_code,omitempty"`
	PromoCodeID uint   `json:"-"`
}

// PaymentHandoff 客户端拉起支付所需信息
type PaymentHandoff struct {
	Provider        string `json:"provider"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	KeyID           string `json:"key_id,omitempty"`
	ProviderOrderID string `json:"provider_order_id"`
	AmountMinor     int64  `json:"amount_minor"`
	Currency        string `json:"currency"`
}

// CreateOrderResult 创建订单结果
type CreateOrderResult struct {
	Order   *models.Order   `json:"order"`
	Handoff *PaymentHandoff `json:"payment,omitempty"`
}

type pricedLine struct {
	product *models.Product
	variant *models.ProductVariant
	line    CreateOrderLine
}

// CreateOrder 创建订单：货到付款在同一事务内扣库存并核销优惠码，网关支付在提交后创建远端支付意图
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if input.PaymentMethod == nil {
		return nil, ErrUnsupportedPaymentMethod
	}
	provider, err := paymentProviderFor(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	var gateway PaymentGateway
	if provider != "" {
		gateway = s.gateways[provider]
		if gateway == nil {
			return nil, ErrPaymentGatewayUnavailable
		}
	}
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	if input.ShippingAmount.IsNegative() || input.TaxAmount.IsNegative() || input.DiscountAmount.IsNegative() {
		return nil, ErrInvalidOrderAmount
	}

	priced, err := s.priceLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}
	items, subtotal, itemCount := buildOrderItems(priced)
	if input.QuoteCharges {
		charges, err := s.quoteCharges(ctx, subtotal, itemCount, input.PromoCode)
		if err != nil {
			return nil, err
		}
		input.ShippingAmount = charges.ShippingAmount
		input.TaxAmount = charges.TaxAmount
		input.DiscountAmount = charges.DiscountAmount
		input.PromoCode = charges.PromoCode
		input.PromoCodeID = charges.PromoCodeID
	}
	total := computeOrderTotal(subtotal, input.ShippingAmount, input.TaxAmount, input.DiscountAmount)
	if total.IsNegative() {
		return nil, ErrInvalidOrderAmount
	}
	if provider != "" && !total.IsPositive() {
		return nil, ErrInvalidOrderAmount
	}

	contactEmail := strings.ToLower(strings.TrimSpace(input.ContactEmail))
	if contactEmail == "" {
		contactEmail = strings.ToLower(strings.TrimSpace(input.ShippingAddress.Email))
	}
	cod := provider == ""
	order := &models.Order{
		OrderNo:         generateOrderNo(s.now()),
		UserID:          strings.TrimSpace(input.UserID),
		ContactEmail:    contactEmail,
		Status:          constants.OrderStatusPending,
		PaymentStatus:   constants.OrderPaymentUnpaid,
		PaymentMethod:   input.PaymentMethod.Code(),
		Currency:        s.pricing.Currency,
		Subtotal:        subtotal,
		ShippingAmount:  input.ShippingAmount,
		TaxAmount:       input.TaxAmount,
		DiscountAmount:  input.DiscountAmount,
		TotalAmount:     total,
		PromoCode:       strings.ToUpper(strings.TrimSpace(input.PromoCode)),
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		StockCommitted:  cod,
		CheckoutID:      strings.TrimSpace(input.CheckoutID),
	}
	if input.PromoCodeID != 0 {
		promoID := input.PromoCodeID
		order.PromoCodeID = &promoID
	}
	log := logger.SW("order_no", order.OrderNo, "payment_method", order.PaymentMethod)

	var stockChanges []StockChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkStock(tx, items); err != nil {
			return err
		}
		if err := s.orderRepo.WithTx(tx).Create(order, items); err != nil {
			return err
		}
		if !cod {
			return nil
		}
		changes, err := s.commitStockTx(tx, order, "order_placed")
		if err != nil {
			return err
		}
		stockChanges = changes
		if order.PromoCodeID != nil {
			if _, err := s.promo.Redeem(tx, *order.PromoCodeID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var oos *OutOfStockError
		if !errors.As(err, &oos) {
			log.Errorw("order_create_failed", "error", err)
		}
		return nil, err
	}
	log.Infow("order_created", "order_id", order.ID, "total", order.TotalAmount.String(), "currency", order.Currency)

	s.ledger.PublishChanges(ctx, stockChanges)
	s.publishOrderEvent(ctx, constants.EventOrderPlaced, order)

	if cod {
		s.notifier.NotifyOrderStatus(order, constants.OrderStatusPending)
		return &CreateOrderResult{Order: order}, nil
	}

	handoff, err := s.startGatewayPayment(ctx, gateway, order)
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: order, Handoff: handoff}, nil
}

// FindPlacement 按结算会话查找已落库的下单结果；网关订单尚无支付记录时视为未完成
func (s *OrderService) FindPlacement(ctx context.Context, checkoutID string) (*CreateOrderResult, error) {
	order, err := retryRead(ctx, "order_load_by_checkout", func() (*models.Order, error) {
		return s.orderRepo.GetByCheckoutID(checkoutID)
	})
	if err != nil || order == nil {
		return nil, err
	}
	if order.PaymentMethod == constants.PaymentMethodCashOnDelivery {
		return &CreateOrderResult{Order: order}, nil
	}
	if order.Status == constants.OrderStatusCancelled {
		return nil, nil
	}
	payments, err := s.paymentRepo.ListByOrderID(order.ID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	latest := payments[0]
	return &CreateOrderResult{
		Order: order,
		Handoff: &PaymentHandoff{
			Provider:        latest.Provider,
			RedirectURL:     latest.PayURL,
			KeyID:           latest.KeyID,
			ProviderOrderID: latest.ProviderRef,
			AmountMinor:     latest.Amount.MinorUnits(),
			Currency:        latest.Currency,
		},
	}, nil
}

func (s *OrderService) startGatewayPayment(ctx context.Context, gateway PaymentGateway, order *models.Order) (*PaymentHandoff, error) {
	log := logger.SW("order_no", order.OrderNo, "provider", gateway.Provider())
	intent, err := gateway.CreateIntent(ctx, IntentInput{
		AmountMinor: order.TotalAmount.MinorUnits(),
		Currency:    order.Currency,
		OrderNo:     order.OrderNo,
		Description: "Order " + order.OrderNo,
		Email:       order.ContactEmail,
	})
	if err != nil {
		log.Errorw("payment_intent_create_failed", "order_id", order.ID, "error", err)
		now := s.now()
		if updateErr := s.orderRepo.UpdateStatus(order.ID, constants.OrderStatusCancelled, map[string]interface{}{
			"payment_status": constants.OrderPaymentFailed,
			"cancelled_at":   now,
		}); updateErr != nil {
			log.Errorw("order_mark_failed_failed", "order_id", order.ID, "error", updateErr)
		}
		order.Status = constants.OrderStatusCancelled
		order.PaymentStatus = constants.OrderPaymentFailed
		order.CancelledAt = &now
		return nil, ErrPaymentCreateFailed
	}

	payment := &models.Payment{
		OrderID:         order.ID,
		Provider:        intent.Provider,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Status:          constants.PaymentStatusPending,
		ProviderRef:     intent.ProviderRef,
		ProviderPayload: intent.Raw,
		PayURL:          intent.RedirectURL,
		KeyID:           intent.KeyID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.WithTx(tx).Create(payment); err != nil {
			return err
		}
		return s.orderRepo.WithTx(tx).UpdateStatus(order.ID, order.Status, map[string]interface{}{
			"provider_order_id": intent.ProviderRef,
		})
	})
	if err != nil {
		log.Errorw("payment_record_create_failed", "order_id", order.ID, "provider_ref", intent.ProviderRef, "error", err)
		return nil, ErrPaymentCreateFailed
	}
	order.ProviderOrderID = intent.ProviderRef

	if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{OrderID: order.ID}, time.Duration(s.expireMinutes)*time.Minute); err != nil {
		log.Warnw("order_timeout_cancel_enqueue_failed", "order_id", order.ID, "error", err)
	}
	log.Infow("payment_intent_created", "order_id", order.ID, "provider_ref", intent.ProviderRef)

	return &PaymentHandoff{
		Provider:        intent.Provider,
		RedirectURL:     intent.RedirectURL,
		KeyID:           intent.KeyID,
		ProviderOrderID: intent.ProviderRef,
		AmountMinor:     intent.AmountMinor,
		Currency:        intent.Currency,
	}, nil
}

// QuoteLines 按当前目录价为下单行试算金额；优惠码为空时不计折扣
func (s *OrderService) QuoteLines(ctx context.Context, lines []CreateOrderLine, promoCode string) (*ChargeQuote, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	priced, err := s.priceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	_, subtotal, itemCount := buildOrderItems(priced)
	return s.quoteCharges(ctx, subtotal, itemCount, promoCode)
}

// quoteCharges 以重新定价后的小计校验优惠码，再计算运费与折后税费
func (s *OrderService) quoteCharges(ctx context.Context, subtotal models.Money, itemCount int, promoCode string) (*ChargeQuote, error) {
	result := &ChargeQuote{}
	discount := models.Money{}
	if strings.TrimSpace(promoCode) != "" {
		quote, err := s.promo.Validate(ctx, promoCode, subtotal)
		if err != nil {
			return nil, err
		}
		discount = quote.DiscountAmount
		result.PromoCode = quote.Code
		result.PromoCodeID = quote.PromoCodeID
	}
	result.OrderTotals = s.pricing.Quote(subtotal, discount, itemCount)
	return result, nil
}

// buildOrderItems 按目录价生成订单行并汇总小计与件数
func buildOrderItems(priced []pricedLine) ([]models.OrderItem, models.Money, int) {
	items := make([]models.OrderItem, 0, len(priced))
	subtotal := models.Money{}
	count := 0
	for _, p := range priced {
		unit := p.product.EffectivePrice(p.variant)
		item := models.OrderItem{
			ProductID:   p.product.ID,
			VariantID:   p.line.VariantID,
			ProductName: p.product.Title,
			UnitPrice:   unit,
			Quantity:    p.line.Quantity,
			TotalPrice:  unit.MulInt(p.line.Quantity),
		}
		if p.variant != nil {
			item.VariantLabel = p.variant.Label
		}
		subtotal = subtotal.Add(item.TotalPrice)
		count += p.line.Quantity
		items = append(items, item)
	}
	return items, subtotal, count
}

// priceLines 读取当前商品价格，商品下架或版本不可售时拒绝
func (s *OrderService) priceLines(ctx context.Context, lines []CreateOrderLine) ([]pricedLine, error) {
	ids := make([]uint, 0, len(lines))
	seen := make(map[uint]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	products, err := retryRead(ctx, "order_products_load", func() ([]models.Product, error) {
		return s.productRepo.ListByIDs(ids)
	})
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		product := byID[line.ProductID]
		if product == nil || !product.IsActive {
			return nil, ErrProductNotAvailable
		}
		var variant *models.ProductVariant
		if line.VariantID != 0 {
			for i := range product.Variants {
				if product.Variants[i].ID == line.VariantID {
					variant = &product.Variants[i]
					break
				}
			}
			if variant == nil || !variant.IsActive {
				return nil, ErrProductNotAvailable
			}
		}
		priced = append(priced, pricedLine{product: product, variant: variant, line: line})
	}
	return priced, nil
}

// checkStock 在事务内按商品汇总数量校验库存
func (s *OrderService) checkStock(tx *gorm.DB, items []models.OrderItem) error {
	shortages, err := stockShortagesTx(s.productRepo.WithTx(tx), items)
	if err != nil {
		return err
	}
	if len(shortages) > 0 {
		return &OutOfStockError{Items: shortages}
	}
	return nil
}

// stockShortagesTx 返回按当前库存无法满足的商品
func stockShortagesTx(productRepo repository.ProductRepository, items []models.OrderItem) ([]StockShortage, error) {
	requested := make(map[uint]int, len(items))
	titles := make(map[uint]string, len(items))
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		if _, ok := requested[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
		titles[item.ProductID] = item.ProductName
	}
	products, err := productRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	available := make(map[uint]int, len(products))
	for _, product := range products {
		available[product.ID] = product.Stock
	}
	var shortages []StockShortage
	for _, id := range ids {
		if available[id] < requested[id] {
			shortages = append(shortages, StockShortage{
				ProductID: id,
				Title:     titles[id],
				Requested: requested[id],
				Available: available[id],
			})
		}
	}
	return shortages, nil
}

// commitStockTx 在事务内按订单扣减库存
func (s *OrderService) commitStockTx(tx *gorm.DB, order *models.Order, reason string) ([]StockChange, error) {
	return adjustOrderStockTx(s.ledger, tx, order, constants.StockChangeSubtract, reason)
}

// adjustOrderStockTx 按订单项汇总后逐商品调整库存，reference 为 order:<order_no>
func adjustOrderStockTx(ledger *StockLedger, tx *gorm.DB, order *models.Order, changeType, reason string) ([]StockChange, error) {
	quantities := make(map[uint]int, len(order.Items))
	for _, item := range order.Items {
		quantities[item.ProductID] += item.Quantity
	}
	ids := make([]uint, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	// 固定加锁顺序
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	changes := make([]StockChange, 0, len(ids))
	for _, id := range ids {
		change, err := ledger.AdjustTx(tx, AdjustStockInput{
			ProductID:  id,
			Delta:      quantities[id],
			ChangeType: changeType,
			Reason:     reason,
			Reference:  "order:" + order.OrderNo,
		})
		if err != nil {
			return nil, err
		}
		changes = append(changes, *change)
	}
	return changes, nil
}

// GetByOrderNo 查询订单：登录用户按 user_id，游客按联系邮箱
func (s *OrderService) GetByOrderNo(ctx context.Context, orderNo, userID, email string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrOrderNotFound
	}
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)
	if userID == "" && email == "" {
		return nil, ErrOrderNotFound
	}
	order, err := retryRead(ctx, "order_load", func() (*models.Order, error) {
		if userID != "" {
			return s.orderRepo.GetByOrderNoAndUser(orderNo, userID)
		}
		return s.orderRepo.GetByOrderNoAndEmail(orderNo, email)
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetByID 管理端查询订单
func (s *OrderService) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	order, err := retryRead(ctx, "order_load", func() (*models.Order, error) {
		return s.orderRepo.GetByID(id)
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListByUser 用户订单列表
func (s *OrderService) ListByUser(ctx context.Context, filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return nil, 0, ErrOrderNotFound
	}
	type page struct {
		orders []models.Order
		total  int64
	}
	result, err := retryRead(ctx, "order_list_user", func() (page, error) {
		orders, total, err := s.orderRepo.ListByUser(filter)
		return page{orders: orders, total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return result.orders, result.total, nil
}

// List 管理端订单列表
func (s *OrderService) List(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	return s.orderRepo.ListAdmin(filter)
}

// UpdateStatus 管理端修改订单状态
func (s *OrderService) UpdateStatus(ctx context.Context, id uint, status string) (*models.Order, error) {
	target := strings.ToLower(strings.TrimSpace(status))
	if !isOrderStatusKnown(target) {
		return nil, ErrOrderStatusInvalid
	}
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isTransitionAllowed(order.Status, target) {
		return nil, ErrOrderStatusInvalid
	}
	log := logger.SW("order_id", order.ID, "order_no", order.OrderNo, "from", order.Status, "to", target)

	now := s.now()
	from := order.Status
	var stockChanges []StockChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		updates := map[string]interface{}{}
		if target == constants.OrderStatusCancelled {
			updates["cancelled_at"] = now
		}
		moved, err := orderRepo.TransitionStatus(order.ID, from, target, updates)
		if err != nil {
			return err
		}
		if moved == 0 {
			return ErrOrderStatusInvalid
		}
		switch {
		case needsStockCommit(order.PaymentStatus, order.StockCommitted, target):
			affected, err := orderRepo.MarkStockCommitted(order.ID)
			if err != nil {
				return err
			}
			if affected > 0 {
				changes, err := s.commitStockTx(tx, order, "order_processing")
				if err != nil {
					return err
				}
				stockChanges = changes
			}
		case releasesStock(target):
			released, err := orderRepo.ReleaseStockCommitted(order.ID)
			if err != nil {
				return err
			}
			if released > 0 {
				changes, err := adjustOrderStockTx(s.ledger, tx, order, constants.StockChangeAdd, "order_"+target)
				if err != nil {
					return err
				}
				stockChanges = changes
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderStatusInvalid) {
			log.Warnw("order_status_update_conflict")
		} else {
			log.Errorw("order_status_update_failed", "error", err)
		}
		return nil, err
	}
	if reloaded, err := s.orderRepo.GetByID(order.ID); err == nil && reloaded != nil {
		order = reloaded
	} else {
		order.Status = target
		if target == constants.OrderStatusCancelled {
			order.CancelledAt = &now
		}
	}
	log.Infow("order_status_updated")

	s.ledger.PublishChanges(ctx, stockChanges)
	s.publishOrderEvent(ctx, constants.EventOrderStatusChanged, order)
	s.notifier.NotifyOrderStatus(order, target)
	return order, nil
}

// CancelUnpaid 超时关闭未支付的网关订单；关闭前向银行卡网关核对一次支付结果
func (s *OrderService) CancelUnpaid(ctx context.Context, orderID uint, reconcile func(ctx context.Context, order *models.Order) (bool, error)) (bool, error) {
	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	if order.PaymentMethod == constants.PaymentMethodCashOnDelivery ||
		order.Status != constants.OrderStatusPending ||
		order.PaymentStatus != constants.OrderPaymentUnpaid {
		return false, nil
	}
	log := logger.SW("order_id", order.ID, "order_no", order.OrderNo)
	if reconcile != nil {
		paid, err := reconcile(ctx, order)
		if err != nil {
			log.Warnw("order_timeout_reconcile_failed", "error", err)
		}
		if paid {
			log.Infow("order_timeout_cancel_skipped", "reason", "paid_on_reconcile")
			return false, nil
		}
	}

	now := s.now()
	affected, err := s.orderRepo.TransitionPayment(order.ID, []string{constants.OrderPaymentUnpaid}, map[string]interface{}{
		"status":       constants.OrderStatusCancelled,
		"cancelled_at": now,
	})
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	order.Status = constants.OrderStatusCancelled
	order.CancelledAt = &now
	log.Infow("order_timeout_cancelled")
	s.publishOrderEvent(ctx, constants.EventOrderStatusChanged, order)
	s.notifier.NotifyOrderStatus(order, constants.OrderStatusCancelled)
	return true, nil
}

// SweepExpiredUnpaid 兜底扫描超时未支付的网关订单（延时任务丢失或队列未启用时）
func (s *OrderService) SweepExpiredUnpaid(ctx context.Context, limit int, reconcile func(ctx context.Context, order *models.Order) (bool, error)) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	deadline := s.now().Add(-time.Duration(s.expireMinutes) * time.Minute)
	cancelled := 0
	for _, method := range []string{constants.PaymentMethodCardGateway, constants.PaymentMethodUpiGateway} {
		orders, _, err := s.orderRepo.ListAdmin(repository.OrderListFilter{
			Page:          1,
			PageSize:      limit,
			Status:        constants.OrderStatusPending,
			PaymentStatus: constants.OrderPaymentUnpaid,
			PaymentMethod: method,
			CreatedTo:     &deadline,
		})
		if err != nil {
			return cancelled, err
		}
		for i := range orders {
			if ctx.Err() != nil {
				return cancelled, ctx.Err()
			}
			ok, err := s.CancelUnpaid(ctx, orders[i].ID, reconcile)
			if err != nil {
				logger.Warnw("order_sweep_cancel_failed", "order_id", orders[i].ID, "error", err)
				continue
			}
			if ok {
				cancelled++
			}
		}
	}
	return cancelled, nil
}

func (s *OrderService) publishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	publishOrderEvent(ctx, s.publisher, eventType, order)
}

// orderEventData 订单事件载荷
type orderEventData struct {
	OrderID       uint   `json:"order_id"`
	OrderNo       string `json:"order_no"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	TotalAmount   string `json:"total_amount"`
	Currency      string `json:"currency"`
}

func publishOrderEvent(ctx context.Context, publisher events.Publisher, eventType string, order *models.Order) {
	if publisher == nil || order == nil {
		return
	}
	data := orderEventData{
		OrderID:       order.ID,
		OrderNo:       order.OrderNo,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount.String(),
		Currency:      order.Currency,
	}
	if err := publisher.Publish(ctx, events.StreamOrder, order.OrderNo, events.NewEvent(eventType, data)); err != nil {
		logger.Warnw("order_event_publish_failed", "order_no", order.OrderNo, "event", eventType, "error", err)
	}
}

func generateOrderNo(now time.Time) string {
	return fmt.Sprintf("BK%s%s", now.Format("20060102150405"), randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(n.String())
	}
	return b.String()
}
