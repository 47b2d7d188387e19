package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
)

var (
	ErrConfigInvalid    = errors.New("razorpay config invalid")
	ErrRequestFailed    = errors.New("razorpay request failed")
	ErrResponseInvalid  = errors.New("razorpay response invalid")
	ErrSignatureInvalid = errors.New("razorpay signature invalid")
)

const (
	defaultAPIBaseURL = "https://api.razorpay.com"
	defaultTimeout    = 12 * time.Second
	signatureHeader   = "X-Razorpay-Signature"
)

// 回调结果
const (
	OutcomePaid    = "paid"
	OutcomeFailed  = "failed"
	OutcomeIgnored = ""
)

// Config Razorpay 渠道配置。
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBaseURL    string
}

// CreateInput 创建 Razorpay 订单输入，金额单位为 paise。
type CreateInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// CreateResult 创建 Razorpay 订单返回。
type CreateResult struct {
	OrderID     string
	KeyID       string
	AmountMinor int64
	Currency    string
	Status      string
	Raw         map[string]interface{}
}

// WebhookResult Razorpay Webhook 解析结果。
type WebhookResult struct {
	Event       string
	Outcome     string
	OrderID     string
	PaymentID   string
	Receipt     string
	AmountMinor int64
	Currency    string
	Raw         map[string]interface{}
}

// Ignored 是否为无需处理的事件类型
func (r *WebhookResult) Ignored() bool {
	return r == nil || r.Outcome == OutcomeIgnored
}

// FromSettings 由应用配置构建渠道配置。
func FromSettings(settings config.RazorpayConfig) *Config {
	cfg := &Config{
		KeyID:         strings.TrimSpace(settings.KeyID),
		KeySecret:     strings.TrimSpace(settings.KeySecret),
		WebhookSecret: strings.TrimSpace(settings.WebhookSecret),
		APIBaseURL:    strings.TrimRight(strings.TrimSpace(settings.APIBaseURL), "/"),
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return cfg
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return fmt.Errorf("%w: key_id and key_secret are required", ErrConfigInvalid)
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// CreateOrder 创建 Razorpay 订单，客户端凭 key_id 与订单号拉起 UPI 支付。
func CreateOrder(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	receipt := strings.TrimSpace(input.Receipt)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if receipt == "" || currency == "" || input.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: order input is invalid", ErrConfigInvalid)
	}

	payload := map[string]interface{}{
		"amount":   input.AmountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(input.Notes) > 0 {
		payload["notes"] = input.Notes
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
	}

	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodPost, "/v1/orders", body)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create order status %d", ErrResponseInvalid, statusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	result := &CreateResult{
		OrderID:     readString(raw, "id"),
		KeyID:       cfg.KeyID,
		AmountMinor: readInt64(raw, "amount"),
		Currency:    strings.ToUpper(readString(raw, "currency")),
		Status:      readString(raw, "status"),
		Raw:         raw,
	}
	if result.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrResponseInvalid)
	}
	return result, nil
}

// VerifyPaymentSignature 校验客户端回传的支付签名。
func VerifyPaymentSignature(cfg *Config, orderID, paymentID, signature string) error {
	if cfg == nil || cfg.KeySecret == "" {
		return fmt.Errorf("%w: key_secret is required", ErrConfigInvalid)
	}
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.ToLower(strings.TrimSpace(signature))
	if orderID == "" || paymentID == "" || signature == "" {
		return fmt.Errorf("%w: order id, payment id and signature are required", ErrSignatureInvalid)
	}
	expected := computeSignature(cfg.KeySecret, []byte(orderID+"|"+paymentID))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("%w: payment signature mismatch", ErrSignatureInvalid)
	}
	return nil
}

// VerifyWebhook 校验并解析 Razorpay webhook。
func VerifyWebhook(cfg *Config, headers map[string]string, body []byte) (*WebhookResult, error) {
	if cfg == nil || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	signature := strings.ToLower(getHeaderValue(headers, signatureHeader))
	if signature == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrSignatureInvalid, signatureHeader)
	}
	if !hmac.Equal([]byte(signature), []byte(computeSignature(cfg.WebhookSecret, body))) {
		return nil, fmt.Errorf("%w: webhook signature mismatch", ErrSignatureInvalid)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode webhook failed", ErrResponseInvalid)
	}
	event := readString(raw, "event")
	if event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrResponseInvalid)
	}
	payment := readMap(raw, "payload", "payment", "entity")
	order := readMap(raw, "payload", "order", "entity")

	result := &WebhookResult{
		Event:     event,
		Outcome:   mapEventOutcome(event),
		PaymentID: readString(payment, "id"),
		OrderID:   readString(payment, "order_id"),
		Raw:       raw,
	}
	if result.OrderID == "" {
		result.OrderID = readString(order, "id")
	}
	result.Receipt = readString(order, "receipt")
	result.AmountMinor = readInt64(payment, "amount")
	result.Currency = strings.ToUpper(readString(payment, "currency"))
	if result.AmountMinor <= 0 {
		result.AmountMinor = readInt64(order, "amount_paid")
		result.Currency = strings.ToUpper(readString(order, "currency"))
	}
	if !result.Ignored() && result.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrResponseInvalid)
	}
	return result, nil
}

// SignBody 计算 body 的十六进制 HMAC-SHA256 签名。
func SignBody(secret string, body []byte) string {
	return computeSignature(secret, body)
}

func mapEventOutcome(event string) string {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "payment.captured", "order.paid":
		return OutcomePaid
	case "payment.failed":
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}

func computeSignature(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func doJSONRequest(ctx context.Context, cfg *Config, method, endpoint string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.APIBaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(cfg.KeyID, cfg.KeySecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed", ErrRequestFailed)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

func getHeaderValue(headers map[string]string, key string) string {
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readMap(raw map[string]interface{}, path ...string) map[string]interface{} {
	current := raw
	for _, seg := range path {
		if current == nil {
			return nil
		}
		next, ok := current[seg].(map[string]interface{})
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	switch typed := raw[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	switch typed := raw[key].(type) {
	case float64:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
