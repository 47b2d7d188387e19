package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateTables(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}

func money(t *testing.T, raw string) models.Money {
	t.Helper()
	m, err := models.NewMoneyFromString(raw)
	if err != nil {
		t.Fatalf("parse money %q failed: %v", raw, err)
	}
	return m
}

func createBook(t *testing.T, db *gorm.DB, slug, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		Slug:              slug,
		Title:             "Book " + slug,
		Author:            "A. Writer",
		PriceAmount:       money(t, price),
		Stock:             stock,
		LowStockThreshold: 1,
		IsActive:          true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func createPromo(t *testing.T, db *gorm.DB, promo *models.PromoCode) *models.PromoCode {
	t.Helper()
	if promo.DiscountType == "" {
		promo.DiscountType = constants.PromoTypePercentage
	}
	promo.IsActive = true
	if err := db.Create(promo).Error; err != nil {
		t.Fatalf("create promo failed: %v", err)
	}
	return promo
}

func reloadProduct(t *testing.T, db *gorm.DB, id uint) *models.Product {
	t.Helper()
	var product models.Product
	if err := db.First(&product, id).Error; err != nil {
		t.Fatalf("reload product failed: %v", err)
	}
	return &product
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint) *models.Order {
	t.Helper()
	var order models.Order
	if err := db.Preload("Items").First(&order, id).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	return &order
}

func validAddress() models.Address {
	return models.Address{
		Name:       "Asha Rao",
		Email:      "Asha@Example.com",
		Phone:      "+91 98765 43210",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
	}
}

// fakeEmailSender 记录发送内容，err 非空时模拟发送失败
type fakeEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (f *fakeEmailSender) Send(msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEmailSender) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeEmailSender) messages() []EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EmailMessage(nil), f.sent...)
}

// fakeGateway 可编排的支付网关
type fakeGateway struct {
	provider  string
	createErr error
	intents   []IntentInput
	outcome   *CallbackOutcome
	verifyErr error
}

func (g *fakeGateway) Provider() string { return g.provider }

func (g *fakeGateway) CreateIntent(_ context.Context, input IntentInput) (*IntentResult, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.intents = append(g.intents, input)
	ref := fmt.Sprintf("%s_ref_%d", g.provider, len(g.intents))
	return &IntentResult{
		Provider:    g.provider,
		ProviderRef: ref,
		RedirectURL: "https://pay.example.test/" + ref,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Raw:         models.JSON{"id": ref},
	}, nil
}

func (g *fakeGateway) ConfirmFromCallback(_ context.Context, _ CallbackInput) (*CallbackOutcome, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.outcome, nil
}

type testEnv struct {
	db          *gorm.DB
	productRepo *repository.GormProductRepository
	orderRepo   *repository.GormOrderRepository
	paymentRepo *repository.GormPaymentRepository
	pendingRepo *repository.GormPendingEmailRepository
	historyRepo *repository.GormStockHistoryRepository
	ledger      *StockLedger
	promo       *PromoService
	sender      *fakeEmailSender
	notifier    *NotificationService
	carts       *CartService
	orders      *OrderService
	payments    *PaymentService
	checkout    *CheckoutService
	card        *fakeGateway
	upi         *fakeGateway
}

func newTestEnv(t *testing.T, oversellPolicy string) *testEnv {
	t.Helper()
	db := openServiceTestDB(t)
	env := &testEnv{
		db:          db,
		productRepo: repository.NewProductRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		pendingRepo: repository.NewPendingEmailRepository(db),
		historyRepo: repository.NewStockHistoryRepository(db),
		sender:      &fakeEmailSender{},
		card:        &fakeGateway{provider: constants.PaymentProviderStripe},
		upi:         &fakeGateway{provider: constants.PaymentProviderRazorpay},
	}
	env.ledger = NewStockLedger(db, env.productRepo, env.historyRepo, nil, nil, config.StockConfig{
		OversellPolicy:    oversellPolicy,
		LowStockThreshold: 1,
	})
	env.promo = NewPromoService(repository.NewPromoCodeRepository(db))
	env.notifier = NewNotificationService(env.sender, env.pendingRepo, env.orderRepo, nil, config.NotificationConfig{
		MaxAttempts: 3,
		OpsEmail:    "ops@bookshop.test",
	})
	pricing := PricingOptions{
		Currency:              "INR",
		ShippingFlatFee:       models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		FreeShippingThreshold: models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		TaxRatePercent:        decimal.NewFromInt(5),
	}
	gateways := map[string]PaymentGateway{
		constants.PaymentProviderStripe:   env.card,
		constants.PaymentProviderRazorpay: env.upi,
	}
	env.carts = NewCartService(
		cache.NewMemoryDocumentStore("cart"),
		cache.NewMemoryLocker(),
		repository.NewCartRepository(db),
		env.productRepo,
		nil,
		CartOptions{TTL: time.Hour, MaxLineQuantity: 20, MutationLogMaxSize: 50, Currency: "INR"},
	)
	env.orders = NewOrderService(OrderServiceDeps{
		DB:          db,
		OrderRepo:   env.orderRepo,
		ProductRepo: env.productRepo,
		PaymentRepo: env.paymentRepo,
		Promo:       env.promo,
		Ledger:      env.ledger,
		Gateways:    gateways,
		Notifier:    env.notifier,
		Pricing:     pricing,
	})
	env.payments = NewPaymentService(PaymentServiceDeps{
		DB:          db,
		OrderRepo:   env.orderRepo,
		PaymentRepo: env.paymentRepo,
		ProductRepo: env.productRepo,
		Promo:       env.promo,
		Ledger:      env.ledger,
		Gateways:    gateways,
		Notifier:    env.notifier,
	})
	env.checkout = NewCheckoutService(
		cache.NewMemoryDocumentStore("checkout"),
		cache.NewMemoryLocker(),
		env.carts,
		env.orders,
		pricing,
		time.Hour,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.notifier.Wait(ctx)
	})
	return env
}

func (env *testEnv) placeCOD(t *testing.T, product *models.Product, quantity int) *models.Order {
	t.Helper()
	result, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ContactEmail:    "reader@example.com",
		Items:           []CreateOrderLine{{ProductID: product.ID, Quantity: quantity}},
		ShippingAddress: validAddress().Normalize(),
		BillingAddress:  validAddress().Normalize(),
		PaymentMethod:   CashOnDelivery{},
	})
	if err != nil {
		t.Fatalf("create cod order failed: %v", err)
	}
	return result.Order
}

func (env *testEnv) placeGateway(t *testing.T, method PaymentMethod, product *models.Product, quantity int) *CreateOrderResult {
	t.Helper()
	result, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ContactEmail:    "reader@example.com",
		Items:           []CreateOrderLine{{ProductID: product.ID, Quantity: quantity}},
		ShippingAddress: validAddress().Normalize(),
		BillingAddress:  validAddress().Normalize(),
		PaymentMethod:   method,
	})
	if err != nil {
		t.Fatalf("create gateway order failed: %v", err)
	}
	return result
}

func (env *testEnv) stockHistory(t *testing.T, productID uint) []models.StockHistory {
	t.Helper()
	rows, _, err := env.historyRepo.ListByProduct(productID, 1, 100)
	if err != nil {
		t.Fatalf("list stock history failed: %v", err)
	}
	return rows
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errSMTPDown = errors.New("smtp: connection refused")
