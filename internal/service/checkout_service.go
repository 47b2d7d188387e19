package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"

	"github.com/google/uuid"
)

const (
	defaultCheckoutTTL = 60 * time.Minute
	checkoutLockTTL    = 45 * time.Second
)

// CheckoutSession 结算会话
type CheckoutSession struct {
	ID                    string          `json:"id"`
	OwnerKey              string          `json:"-"`
	State                 string          `json:"state"`
	Shipping              *models.Address `json:"shipping,omitempty"`
	Billing               *models.Address `json:"billing,omitempty"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
	PaymentMethod         string          `json:"payment_method,omitempty"`
	PromoCode             string          `json:"promo_code,omitempty"`
	OrderNo               string          `json:"order_no,omitempty"`
	Payment               *PaymentHandoff `json:"payment,omitempty"`
	LastError             string          `json:"last_error,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// checkoutDocument 存储结构，OwnerKey 不对外输出但需要持久化
type checkoutDocument struct {
	Session  CheckoutSession `json:"session"`
	OwnerKey string          `json:"owner_key"`
}

// ShippingInput 收货信息
type ShippingInput struct {
	Shipping              models.Address  `json:"shipping"`
	Billing               *models.Address `json:"billing"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
}

// CheckoutQuote 结算报价
type CheckoutQuote struct {
	OrderTotals
	PromoCode  string `json:"promo_code,omitempty"`
	PromoError string `json:"promo_error,omitempty"`
}

// CheckoutService 结算流程编排
type CheckoutService struct {
	store   cache.DocumentStore
	locker  cache.Locker
	carts   *CartService
	orders  *OrderService
	pricing PricingOptions
	ttl     time.Duration
	now     func() time.Time
}

// NewCheckoutService 创建结算服务
func NewCheckoutService(
	store cache.DocumentStore,
	locker cache.Locker,
	carts *CartService,
	orders *OrderService,
	pricing PricingOptions,
	ttl time.Duration,
) *CheckoutService {
	if ttl <= 0 {
		ttl = defaultCheckoutTTL
	}
	return &CheckoutService{
		store:   store,
		locker:  locker,
		carts:   carts,
		orders:  orders,
		pricing: pricing,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Start 为购物车所有者开启新的结算会话
func (s *CheckoutService) Start(ctx context.Context, owner CartOwner) (*CheckoutSession, error) {
	if owner.Key() == "" {
		return nil, ErrInvalidCartOwner
	}
	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	now := s.now()
	session := &CheckoutSession{
		ID:        uuid.NewString(),
		OwnerKey:  owner.Key(),
		State:     constants.CheckoutStateShipping,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	logger.Infow("checkout_started", "checkout_id", session.ID, "owner", owner.Key())
	return session, nil
}

// Get 读取结算会话，不属于该所有者时视为不存在；中断在 placing 的会话会先被收敛
func (s *CheckoutService) Get(ctx context.Context, owner CartOwner, id string) (*CheckoutSession, error) {
	session, err := s.load(ctx, owner, id)
	if err != nil || session.State != constants.CheckoutStatePlacing {
		return session, err
	}
	var resolved *CheckoutSession
	err = s.withLock(ctx, id, func() error {
		current, err := s.load(ctx, owner, id)
		if err != nil {
			return err
		}
		if current.State == constants.CheckoutStatePlacing {
			if err := s.recoverPlacing(ctx, owner, current); err != nil {
				return err
			}
		}
		resolved = current
		return nil
	})
	if errors.Is(err, ErrCheckoutBusy) {
		// 下单仍在进行
		return session, nil
	}
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// SubmitShipping 提交收货与账单地址，仅覆盖地址快照
func (s *CheckoutService) SubmitShipping(ctx context.Context, owner CartOwner, id string, input ShippingInput) (*CheckoutSession, error) {
	return s.transition(ctx, owner, id, func(session *CheckoutSession) error {
		if !canEditCheckout(session.State) {
			return ErrCheckoutInvalidTransition
		}
		shipping, err := ValidateAddress(input.Shipping)
		if err != nil {
			return err
		}
		billing := shipping
		if !input.BillingSameAsShipping && input.Billing != nil {
			billing, err = ValidateAddress(*input.Billing)
			if err != nil {
				return prefixAddressFields(err, "billing.")
			}
		}
		session.Shipping = &shipping
		session.Billing = &billing
		session.BillingSameAsShipping = input.BillingSameAsShipping || input.Billing == nil
		session.State = constants.CheckoutStatePayment
		session.LastError = ""
		return nil
	})
}

// SelectPayment 选择支付方式，进入确认步骤
func (s *CheckoutService) SelectPayment(ctx context.Context, owner CartOwner, id, method string) (*CheckoutSession, error) {
	parsed, err := ParsePaymentMethod(method)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, owner, id, func(session *CheckoutSession) error {
		if !canEditCheckout(session.State) || session.Shipping == nil {
			return ErrCheckoutInvalidTransition
		}
		session.PaymentMethod = parsed.Code()
		session.State = constants.CheckoutStateReview
		session.LastError = ""
		return nil
	})
}

// ApplyPromo 按目录现价小计校验并记录优惠码
func (s *CheckoutService) ApplyPromo(ctx context.Context, owner CartOwner, id, code string) (*CheckoutSession, error) {
	return s.transition(ctx, owner, id, func(session *CheckoutSession) error {
		if !canEditCheckout(session.State) {
			return ErrCheckoutInvalidTransition
		}
		cart, err := s.carts.Get(ctx, owner)
		if err != nil {
			return err
		}
		lines := orderLinesFromSnapshot(cart)
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		charges, err := s.orders.QuoteLines(ctx, lines, code)
		if err != nil {
			return err
		}
		session.PromoCode = charges.PromoCode
		return nil
	})
}

// RemovePromo 移除优惠码
func (s *CheckoutService) RemovePromo(ctx context.Context, owner CartOwner, id string) (*CheckoutSession, error) {
	return s.transition(ctx, owner, id, func(session *CheckoutSession) error {
		if !canEditCheckout(session.State) {
			return ErrCheckoutInvalidTransition
		}
		session.PromoCode = ""
		return nil
	})
}

// Quote 按目录现价计算金额；已失效的优惠码不计折扣并返回原因
func (s *CheckoutService) Quote(ctx context.Context, owner CartOwner, id string) (*CheckoutQuote, error) {
	session, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	lines := orderLinesFromSnapshot(cart.Snapshot())
	if len(lines) == 0 {
		return &CheckoutQuote{OrderTotals: s.pricing.Quote(models.Money{}, models.Money{}, 0)}, nil
	}
	result := &CheckoutQuote{}
	charges, err := s.orders.QuoteLines(ctx, lines, session.PromoCode)
	if err != nil && session.PromoCode != "" && isPromoRejection(err) {
		result.PromoError = err.Error()
		charges, err = s.orders.QuoteLines(ctx, lines, "")
	}
	if err != nil {
		return nil, err
	}
	result.OrderTotals = charges.OrderTotals
	result.PromoCode = charges.PromoCode
	return result, nil
}

// Place 下单：只在 review 状态执行；成功后清空购物车一次，失败保留购物车并进入 failed
func (s *CheckoutService) Place(ctx context.Context, owner CartOwner, id string) (*CheckoutSession, error) {
	var session *CheckoutSession
	var placeErr error
	err := s.withLock(ctx, id, func() error {
		loaded, err := s.load(ctx, owner, id)
		if err != nil {
			return err
		}
		session = loaded
		switch session.State {
		case constants.CheckoutStateCompleted:
			return nil
		case constants.CheckoutStatePlacing:
			// 持有锁时仍处于 placing 说明上次下单中断
			if err := s.recoverPlacing(ctx, owner, session); err != nil {
				return err
			}
			if session.State == constants.CheckoutStateCompleted {
				return nil
			}
		case constants.CheckoutStateReview:
		default:
			return ErrCheckoutInvalidTransition
		}
		session.State = constants.CheckoutStatePlacing
		session.LastError = ""
		if err := s.save(ctx, session); err != nil {
			return err
		}

		result, err := s.placeOrder(ctx, owner, session)
		if err != nil {
			placeErr = err
			session.State = constants.CheckoutStateFailed
			session.LastError = checkoutErrorMessage(err)
			logger.Warnw("checkout_place_failed", "checkout_id", session.ID, "error", err)
			return s.save(ctx, session)
		}

		s.completePlacement(ctx, owner, session, result)
		logger.Infow("checkout_completed", "checkout_id", session.ID, "order_no", session.OrderNo)
		return s.save(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	if placeErr != nil {
		return session, placeErr
	}
	return session, nil
}

// completePlacement 订单已落库：清空购物车并记录订单号
func (s *CheckoutService) completePlacement(ctx context.Context, owner CartOwner, session *CheckoutSession, result *CreateOrderResult) {
	if _, err := s.carts.Clear(ctx, owner); err != nil {
		logger.Errorw("checkout_cart_clear_failed", "checkout_id", session.ID, "order_no", result.Order.OrderNo, "error", err)
	}
	session.State = constants.CheckoutStateCompleted
	session.OrderNo = result.Order.OrderNo
	session.Payment = result.Handoff
	session.LastError = ""
}

// recoverPlacing 收敛中断的下单，调用方需持有会话锁：订单已落库则补记 completed，否则进入 failed
func (s *CheckoutService) recoverPlacing(ctx context.Context, owner CartOwner, session *CheckoutSession) error {
	result, err := s.orders.FindPlacement(ctx, session.ID)
	if err != nil {
		return err
	}
	if result != nil {
		s.completePlacement(ctx, owner, session, result)
		logger.Warnw("checkout_placing_recovered", "checkout_id", session.ID, "order_no", session.OrderNo)
		return s.save(ctx, session)
	}
	session.State = constants.CheckoutStateFailed
	session.LastError = "order was not placed, please try again"
	logger.Warnw("checkout_placing_reset", "checkout_id", session.ID)
	return s.save(ctx, session)
}

func (s *CheckoutService) placeOrder(ctx context.Context, owner CartOwner, session *CheckoutSession) (*CreateOrderResult, error) {
	if session.Shipping == nil || session.Billing == nil {
		return nil, ErrCheckoutInvalidTransition
	}
	method, err := ParsePaymentMethod(session.PaymentMethod)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	lines := orderLinesFromSnapshot(cart.Snapshot())
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	userID := ""
	if owner.Authenticated() {
		userID = owner.UserID
	}
	return s.orders.CreateOrder(ctx, CreateOrderInput{
		UserID:          userID,
		ContactEmail:    session.Shipping.Email,
		Items:           lines,
		ShippingAddress: *session.Shipping,
		BillingAddress:  *session.Billing,
		PaymentMethod:   method,
		PromoCode:       session.PromoCode,
		QuoteCharges:    true,
		CheckoutID:      session.ID,
	})
}

func orderLinesFromSnapshot(snapshot *Cart) []CreateOrderLine {
	if snapshot == nil {
		return nil
	}
	lines := make([]CreateOrderLine, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		lines = append(lines, CreateOrderLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	return lines
}

// Retry 失败后回到确认步骤
func (s *CheckoutService) Retry(ctx context.Context, owner CartOwner, id string) (*CheckoutSession, error) {
	return s.transition(ctx, owner, id, func(session *CheckoutSession) error {
		if session.State != constants.CheckoutStateFailed {
			return ErrCheckoutInvalidTransition
		}
		session.State = constants.CheckoutStateReview
		return nil
	})
}

// Abandon 放弃结算；开始下单后不可放弃
func (s *CheckoutService) Abandon(ctx context.Context, owner CartOwner, id string) error {
	session, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if session.State == constants.CheckoutStatePlacing {
		return ErrCheckoutLocked
	}
	return s.withLock(ctx, id, func() error {
		current, err := s.load(ctx, owner, id)
		if err != nil {
			return err
		}
		if current.State == constants.CheckoutStatePlacing {
			return ErrCheckoutLocked
		}
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		logger.Infow("checkout_abandoned", "checkout_id", id, "state", current.State)
		return nil
	})
}

func (s *CheckoutService) transition(ctx context.Context, owner CartOwner, id string, fn func(session *CheckoutSession) error) (*CheckoutSession, error) {
	var result *CheckoutSession
	err := s.withLock(ctx, id, func() error {
		session, err := s.load(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		if err := s.save(ctx, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CheckoutService) withLock(ctx context.Context, id string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	release, err := s.locker.Acquire(ctx, "checkout:"+id, checkoutLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return ErrCheckoutBusy
		}
		return err
	}
	defer release()
	return fn()
}

func (s *CheckoutService) load(ctx context.Context, owner CartOwner, id string) (*CheckoutSession, error) {
	id = strings.TrimSpace(id)
	if id == "" || owner.Key() == "" {
		return nil, ErrCheckoutNotFound
	}
	var doc checkoutDocument
	found, err := s.store.Load(ctx, id, &doc)
	if err != nil {
		return nil, err
	}
	if !found || doc.OwnerKey != owner.Key() {
		return nil, ErrCheckoutNotFound
	}
	session := doc.Session
	session.OwnerKey = doc.OwnerKey
	return &session, nil
}

func (s *CheckoutService) save(ctx context.Context, session *CheckoutSession) error {
	session.UpdatedAt = s.now()
	return s.store.Save(ctx, session.ID, checkoutDocument{Session: *session, OwnerKey: session.OwnerKey}, s.ttl)
}

// canEditCheckout 下单开始前（以及失败后）可以修改地址、支付方式与优惠码
func canEditCheckout(state string) bool {
	switch state {
	case constants.CheckoutStateShipping,
		constants.CheckoutStatePayment,
		constants.CheckoutStateReview,
		constants.CheckoutStateFailed:
		return true
	default:
		return false
	}
}

func isPromoRejection(err error) bool {
	return errors.Is(err, ErrPromoCodeNotFound) ||
		errors.Is(err, ErrPromoExpired) ||
		errors.Is(err, ErrPromoUsageLimitReached) ||
		errors.Is(err, ErrPromoMinimumNotMet)
}

func prefixAddressFields(err error, prefix string) error {
	var addrErr *AddressValidationError
	if !errors.As(err, &addrErr) {
		return err
	}
	fields := make(map[string]string, len(addrErr.Fields))
	for key, msg := range addrErr.Fields {
		fields[prefix+key] = msg
	}
	return &AddressValidationError{Fields: fields}
}

// checkoutErrorMessage 面向用户的失败原因，不暴露内部错误
func checkoutErrorMessage(err error) string {
	var oos *OutOfStockError
	switch {
	case errors.As(err, &oos):
		return oos.Error()
	case isPromoRejection(err):
		return err.Error()
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrProductNotAvailable),
		errors.Is(err, ErrUnsupportedPaymentMethod),
		errors.Is(err, ErrPaymentGatewayUnavailable):
		return err.Error()
	case errors.Is(err, ErrPaymentCreateFailed):
		return "payment could not be started, please try again"
	default:
		return "order could not be placed, please try again"
	}
}
