package provider

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/bookshop/internal/authz"
	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/events"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"
	"github.com/dujiao-next/bookshop/internal/service"
)

const notificationDrainTimeout = 10 * time.Second

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Publisher   events.Publisher

	// Repositories
	AdminRepo        repository.AdminRepository
	ProductRepo      repository.ProductRepository
	CartRepo         repository.CartRepository
	PromoCodeRepo    repository.PromoCodeRepository
	OrderRepo        repository.OrderRepository
	PaymentRepo      repository.PaymentRepository
	StockHistoryRepo repository.StockHistoryRepository
	PendingEmailRepo repository.PendingEmailRepository

	// Services
	AuthzService        *authz.Service
	AuthService         *service.AuthService
	UserAuthService     *service.UserAuthService
	CaptchaService      *service.CaptchaService
	EmailService        *service.EmailService
	NotificationService *service.NotificationService
	StockLedger         *service.StockLedger
	ProductService      *service.ProductService
	PromoService        *service.PromoService
	PromoAdminService   *service.PromoAdminService
	CartService         *service.CartService
	OrderService        *service.OrderService
	PaymentService      *service.PaymentService
	CheckoutService     *service.CheckoutService
	Gateways            map[string]service.PaymentGateway
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存；Redis 不可用时购物车与结算会话退化为进程内存储
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Publisher:   events.NewPublisher(cfg.Kafka),
	}

	c.initRepositories()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.CartRepo = repository.NewCartRepository(db)
	c.PromoCodeRepo = repository.NewPromoCodeRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.StockHistoryRepo = repository.NewStockHistoryRepository(db)
	c.PendingEmailRepo = repository.NewPendingEmailRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.CaptchaService = service.NewCaptchaService(cfg.Captcha)
	c.AuthService = service.NewAuthService(cfg.JWT, c.AdminRepo, c.CaptchaService)
	if err := c.AuthService.EnsureDefaultAdmin(cfg.Admin); err != nil {
		logger.Warnw("provider_ensure_default_admin_failed", "error", err)
	}
	c.UserAuthService = service.NewUserAuthService(cfg.UserAuth)

	c.EmailService = service.NewEmailService(&cfg.Email)
	c.NotificationService = service.NewNotificationService(c.EmailService, c.PendingEmailRepo, c.OrderRepo, c.QueueClient, cfg.Notification)

	c.StockLedger = service.NewStockLedger(models.DB, c.ProductRepo, c.StockHistoryRepo, c.Publisher, c.QueueClient, cfg.Stock)
	c.ProductService = service.NewProductService(c.ProductRepo, c.StockLedger)
	c.PromoService = service.NewPromoService(c.PromoCodeRepo)
	c.PromoAdminService = service.NewPromoAdminService(c.PromoCodeRepo)

	c.CartService = service.NewCartService(
		cache.NewDocumentStore("cart"),
		cache.NewLocker("cart"),
		c.CartRepo,
		c.ProductRepo,
		c.QueueClient,
		service.CartOptionsFromConfig(cfg.Cart, cfg.Checkout),
	)

	pricing := service.PricingOptionsFromConfig(cfg.Checkout)
	c.Gateways = service.NewPaymentGateways(cfg.Payment)
	c.OrderService = service.NewOrderService(service.OrderServiceDeps{
		DB:            models.DB,
		OrderRepo:     c.OrderRepo,
		ProductRepo:   c.ProductRepo,
		PaymentRepo:   c.PaymentRepo,
		Promo:         c.PromoService,
		Ledger:        c.StockLedger,
		Gateways:      c.Gateways,
		Notifier:      c.NotificationService,
		QueueClient:   c.QueueClient,
		Publisher:     c.Publisher,
		Pricing:       pricing,
		ExpireMinutes: cfg.Order.PaymentExpireMinutes,
	})
	c.PaymentService = service.NewPaymentService(service.PaymentServiceDeps{
		DB:          models.DB,
		OrderRepo:   c.OrderRepo,
		PaymentRepo: c.PaymentRepo,
		ProductRepo: c.ProductRepo,
		Promo:       c.PromoService,
		Ledger:      c.StockLedger,
		Gateways:    c.Gateways,
		Notifier:    c.NotificationService,
		Publisher:   c.Publisher,
	})
	c.CheckoutService = service.NewCheckoutService(
		cache.NewDocumentStore("checkout"),
		cache.NewLocker("checkout"),
		c.CartService,
		c.OrderService,
		pricing,
		time.Duration(cfg.Checkout.SessionTTLMinutes)*time.Minute,
	)
}

// Close 释放队列、事件流与缓存连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.NotificationService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notificationDrainTimeout)
		if err := c.NotificationService.Wait(ctx); err != nil {
			logger.Warnw("notification_drain_timeout", "timeout", notificationDrainTimeout.String(), "error", err)
			errs = append(errs, err)
		}
		cancel()
	}
	if err := c.QueueClient.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := cache.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
