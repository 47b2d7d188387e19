package config

import (
	"fmt"
	"strings"

	"github.com/dujiao-next/bookshop/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	UserAuth     UserAuthConfig     `mapstructure:"user_auth"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Security     SecurityConfig     `mapstructure:"security"`
	Email        EmailConfig        `mapstructure:"email"`
	Notification NotificationConfig `mapstructure:"notification"`
	Order        OrderConfig        `mapstructure:"order"`
	Checkout     CheckoutConfig     `mapstructure:"checkout"`
	Cart         CartConfig         `mapstructure:"cart"`
	Stock        StockConfig        `mapstructure:"stock"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Captcha      CaptchaConfig      `mapstructure:"captcha"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理端 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// UserAuthConfig 顾客身份令牌配置（由认证平台签发）
type UserAuthConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// KafkaConfig 事件流配置
type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	StockTopic string   `mapstructure:"stock_topic"`
	OrderTopic string   `mapstructure:"order_topic"`
}

// OrderConfig 订单配置
type OrderConfig struct {
	PaymentExpireMinutes int `mapstructure:"payment_expire_minutes"`
}

// CheckoutConfig 结算配置
type CheckoutConfig struct {
	Currency              string  `mapstructure:"currency"`
	ShippingFlatFee       float64 `mapstructure:"shipping_flat_fee"`
	FreeShippingThreshold float64 `mapstructure:"free_shipping_threshold"`
	TaxRatePercent        float64 `mapstructure:"tax_rate_percent"`
	SessionTTLMinutes     int     `mapstructure:"session_ttl_minutes"`
}

// CartConfig 购物车配置
type CartConfig struct {
	TTLHours           int `mapstructure:"ttl_hours"`
	MaxLineQuantity    int `mapstructure:"max_line_quantity"`
	MutationLogMaxSize int `mapstructure:"mutation_log_max_size"`
}

// 超卖策略
const (
	OversellPolicyClamp  = "clamp"
	OversellPolicyReject = "reject"
)

// StockConfig 库存配置
type StockConfig struct {
	OversellPolicy    string `mapstructure:"oversell_policy"` // clamp / reject
	LowStockThreshold int    `mapstructure:"low_stock_threshold"`
	MaxRetries        int    `mapstructure:"max_retries"`
}

// PaymentConfig 支付网关配置
type PaymentConfig struct {
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
}

// StripeConfig 银行卡网关配置
type StripeConfig struct {
	Enabled                 bool     `mapstructure:"enabled"`
	SecretKey               string   `mapstructure:"secret_key"`
	PublishableKey          string   `mapstructure:"publishable_key"`
	WebhookSecret           string   `mapstructure:"webhook_secret"`
	SuccessURL              string   `mapstructure:"success_url"`
	CancelURL               string   `mapstructure:"cancel_url"`
	APIBaseURL              string   `mapstructure:"api_base_url"`
	WebhookToleranceSeconds int      `mapstructure:"webhook_tolerance_seconds"`
	PaymentMethodTypes      []string `mapstructure:"payment_method_types"`
}

// RazorpayConfig UPI 网关配置
type RazorpayConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	KeyID         string `mapstructure:"key_id"`
	KeySecret     string `mapstructure:"key_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIBaseURL    string `mapstructure:"api_base_url"`
}

// EmailConfig 邮件服务配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	UseTLS   bool   `mapstructure:"use_tls"`
	UseSSL   bool   `mapstructure:"use_ssl"`
}

// NotificationConfig 通知重试配置
type NotificationConfig struct {
	RetryIntervalSeconds int    `mapstructure:"retry_interval_seconds"`
	MaxAttempts          int    `mapstructure:"max_attempts"`
	BatchSize            int    `mapstructure:"batch_size"`
	OpsEmail             string `mapstructure:"ops_email"`
	StoreName            string `mapstructure:"store_name"`
	StoreURL             string `mapstructure:"store_url"`
}

// CaptchaConfig 管理端登录验证码配置
type CaptchaConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Length        int  `mapstructure:"length"`
	Width         int  `mapstructure:"width"`
	Height        int  `mapstructure:"height"`
	ExpireSeconds int  `mapstructure:"expire_seconds"`
	MaxStore      int  `mapstructure:"max_store"`
}

// AdminConfig 默认管理员配置
type AdminConfig struct {
	DefaultUsername string `mapstructure:"default_username"`
	DefaultPassword string `mapstructure:"default_password"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit RateLimitConfig `mapstructure:"login_rate_limit"`
	PromoRateLimit RateLimitConfig `mapstructure:"promo_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// NormalizedOversellPolicy 返回有效的超卖策略
func (c StockConfig) NormalizedOversellPolicy() string {
	policy := strings.ToLower(strings.TrimSpace(c.OversellPolicy))
	if policy == OversellPolicyReject {
		return OversellPolicyReject
	}
	return OversellPolicyClamp
}

// Load 从 config.yml 加载配置
func Load() *Config {
	// .env 仅作为本地开发的环境变量来源
	if err := godotenv.Load(); err == nil {
		logger.Infow("dotenv_loaded", "file", ".env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	setDefaults(viper.GetViper())

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // server.port -> SERVER_PORT

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/bookshop.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("user_auth.secret", "user-change-me-in-production")
	v.SetDefault("user_auth.issuer", "")
	v.SetDefault("user_auth.audience", "authenticated")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "bk")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.stock_topic", "bookshop.stock")
	v.SetDefault("kafka.order_topic", "bookshop.orders")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Cart-Token",
		"Idempotency-Key",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.login_rate_limit.window_seconds", 300)
	v.SetDefault("security.login_rate_limit.max_requests", 10)
	v.SetDefault("security.promo_rate_limit.window_seconds", 60)
	v.SetDefault("security.promo_rate_limit.max_requests", 20)
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.use_ssl", false)
	v.SetDefault("notification.retry_interval_seconds", 120)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.batch_size", 50)
	v.SetDefault("notification.ops_email", "")
	v.SetDefault("notification.store_name", "Bookshop")
	v.SetDefault("notification.store_url", "")
	v.SetDefault("order.payment_expire_minutes", 30)
	v.SetDefault("checkout.currency", "INR")
	v.SetDefault("checkout.shipping_flat_fee", 50)
	v.SetDefault("checkout.free_shipping_threshold", 999)
	v.SetDefault("checkout.tax_rate_percent", 2)
	v.SetDefault("checkout.session_ttl_minutes", 60)
	v.SetDefault("cart.ttl_hours", 720)
	v.SetDefault("cart.max_line_quantity", 99)
	v.SetDefault("cart.mutation_log_max_size", 200)
	v.SetDefault("stock.oversell_policy", OversellPolicyClamp)
	v.SetDefault("stock.low_stock_threshold", 5)
	v.SetDefault("stock.max_retries", 5)
	v.SetDefault("payment.stripe.enabled", false)
	v.SetDefault("payment.stripe.api_base_url", "https://api.stripe.com")
	v.SetDefault("payment.stripe.webhook_tolerance_seconds", 300)
	v.SetDefault("payment.stripe.payment_method_types", []string{"card"})
	v.SetDefault("payment.razorpay.enabled", false)
	v.SetDefault("payment.razorpay.api_base_url", "https://api.razorpay.com")
	v.SetDefault("captcha.enabled", false)
	v.SetDefault("captcha.length", 5)
	v.SetDefault("captcha.width", 240)
	v.SetDefault("captcha.height", 80)
	v.SetDefault("captcha.expire_seconds", 300)
	v.SetDefault("captcha.max_store", 10240)
	v.SetDefault("admin.default_username", "admin")
	v.SetDefault("admin.default_password", "")
}
