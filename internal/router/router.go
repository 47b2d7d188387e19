package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dujiao-next/bookshop/internal/authz"
	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	adminhandlers "github.com/dujiao-next/bookshop/internal/http/handlers/admin"
	publichandlers "github.com/dujiao-next/bookshop/internal/http/handlers/public"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	redisClient := cache.Client()
	promoRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:promo", redisPrefix),
		WindowSeconds: cfg.Security.PromoRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PromoRateLimit.MaxRequests,
		Message:       "too many promo code attempts, retry in %d seconds",
	}
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxRequests,
		Message:       "too many login attempts, retry in %d seconds",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", healthHandler)

		// 支付回调（网关签名鉴权）
		apiV1.POST("/payments/webhook/stripe", publicHandler.StripeWebhook)
		apiV1.POST("/payments/webhook/razorpay", publicHandler.RazorpayWebhook)

		// 店面接口：顾客令牌可选，游客使用 X-Cart-Token
		store := apiV1.Group("")
		store.Use(CustomerAuthMiddleware(c.UserAuthService, false))
		{
			store.GET("/products", publicHandler.ListProducts)
			store.GET("/products/:id", publicHandler.GetProduct)
			store.GET("/products/:id/stock/stream", publicHandler.StreamProductStock)

			store.GET("/cart", publicHandler.GetCart)
			store.POST("/cart/items", publicHandler.AddCartItem)
			store.PATCH("/cart/items/:id", publicHandler.UpdateCartItem)
			store.DELETE("/cart/items/:id", publicHandler.RemoveCartItem)
			store.DELETE("/cart", publicHandler.ClearCart)
			store.POST("/cart/sync", publicHandler.SyncCart)
			store.POST("/cart/merge", publicHandler.MergeCart)

			store.POST("/promo/validate", RateLimitMiddleware(redisClient, promoRule, KeyByIP), publicHandler.ValidatePromo)

			store.POST("/checkout", publicHandler.StartCheckout)
			store.GET("/checkout/:id", publicHandler.GetCheckout)
			store.PUT("/checkout/:id/shipping", publicHandler.SubmitCheckoutShipping)
			store.PUT("/checkout/:id/payment", publicHandler.SelectCheckoutPayment)
			store.PUT("/checkout/:id/promo", RateLimitMiddleware(redisClient, promoRule, KeyByIP), publicHandler.ApplyCheckoutPromo)
			store.DELETE("/checkout/:id/promo", publicHandler.RemoveCheckoutPromo)
			store.GET("/checkout/:id/quote", publicHandler.QuoteCheckout)
			store.POST("/checkout/:id/place", publicHandler.PlaceCheckout)
			store.POST("/checkout/:id/retry", publicHandler.RetryCheckout)
			store.DELETE("/checkout/:id", publicHandler.AbandonCheckout)

			store.GET("/orders/:order_no", publicHandler.GetOrder)
			store.POST("/payments/upi/confirm", publicHandler.ConfirmUpiPayment)
		}

		// 顾客接口（需鉴权）
		user := apiV1.Group("")
		user.Use(CustomerAuthMiddleware(c.UserAuthService, true))
		{
			user.GET("/orders", publicHandler.ListMyOrders)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 无需鉴权
			admin.GET("/captcha", adminHandler.GetCaptcha)
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			// 仅需登录
			self := admin.Group("")
			self.Use(AdminAuthMiddleware(c.AuthService))
			{
				self.GET("/me", adminHandler.GetCurrentAdmin)
				self.PUT("/password", adminHandler.UpdateAdminPassword)
			}

			// 需要鉴权的接口
			authorized := admin.Group("")
			authorized.Use(AdminAuthMiddleware(c.AuthService), AdminRBACMiddleware(c.AuthzService))
			{
				// 商品与库存
				authorized.GET("/products", adminHandler.GetAdminProducts)
				authorized.GET("/products/:id", adminHandler.GetAdminProduct)
				authorized.POST("/products", adminHandler.CreateProduct)
				authorized.PUT("/products/:id", adminHandler.UpdateProduct)
				authorized.DELETE("/products/:id", adminHandler.DeleteProduct)
				authorized.POST("/products/:id/stock", adminHandler.AdjustProductStock)
				authorized.GET("/products/:id/stock/history", adminHandler.GetProductStockHistory)

				// 订单管理
				authorized.GET("/orders", adminHandler.AdminListOrders)
				authorized.GET("/orders/:id", adminHandler.AdminGetOrder)
				authorized.PATCH("/orders/:id/status", adminHandler.AdminUpdateOrderStatus)

				// 优惠码
				authorized.GET("/promo-codes", adminHandler.ListPromoCodes)
				authorized.POST("/promo-codes", adminHandler.CreatePromoCode)
				authorized.PUT("/promo-codes/:id", adminHandler.UpdatePromoCode)
				authorized.DELETE("/promo-codes/:id", adminHandler.DeletePromoCode)

				// 待发邮件
				authorized.GET("/pending-emails", adminHandler.ListPendingEmails)
				authorized.POST("/pending-emails/retry", adminHandler.RetryPendingEmails)
				authorized.POST("/pending-emails/:id/retry", adminHandler.RetryPendingEmail)

				// 权限管理
				authorized.GET("/roles", adminHandler.ListRoles)
				authorized.GET("/admins/:id/roles", adminHandler.GetAdminRoles)
				authorized.PUT("/admins/:id/roles", adminHandler.SetAdminRoles)
				authorized.GET("/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
			}
		}
	}

	// 健康检查
	r.GET("/health", healthHandler)

	return r
}

func healthHandler(c *gin.Context) {
	redisStatus := "disabled"
	if cache.Enabled() {
		redisStatus = "ok"
		if err := cache.Ping(c.Request.Context()); err != nil {
			redisStatus = "unavailable"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": redisStatus})
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		switch item.Path {
		case "/api/v1/admin/login", "/api/v1/admin/captcha", "/api/v1/admin/me", "/api/v1/admin/password":
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	switch segments[1] {
	case "roles", "admins", "permissions":
		return "authz"
	}
	return segments[1]
}
