package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
)

// 回调结果
const (
	OutcomePaid    = "paid"
	OutcomeFailed  = "failed"
	OutcomeIgnored = ""
)

// Config Stripe 渠道配置。
type Config struct {
	SecretKey               string
	PublishableKey          string
	WebhookSecret           string
	SuccessURL              string
	CancelURL               string
	APIBaseURL              string
	WebhookToleranceSeconds int
	PaymentMethodTypes      []string
}

// CreateInput 创建 Checkout Session 输入，金额为最小货币单位。
type CreateInput struct {
	OrderNo       string
	AmountMinor   int64
	Currency      string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CreateResult 创建 Checkout Session 返回。
type CreateResult struct {
	SessionID       string
	PaymentIntentID string
	URL             string
	Status          string
	Raw             map[string]interface{}
}

// SessionResult 查询 Checkout Session 返回。
type SessionResult struct {
	SessionID       string
	PaymentIntentID string
	OrderNo         string
	Outcome         string
	AmountMinor     int64
	Currency        string
	Raw             map[string]interface{}
}

// WebhookResult Stripe Webhook 解析结果。
type WebhookResult struct {
	EventID         string
	EventType       string
	Outcome         string
	OrderNo         string
	SessionID       string
	PaymentIntentID string
	AmountMinor     int64
	Currency        string
	PaidAt          *time.Time
	Raw             map[string]interface{}
}

// Ignored 是否为无需处理的事件类型
func (r *WebhookResult) Ignored() bool {
	return r == nil || r.Outcome == OutcomeIgnored
}

// FromSettings 由应用配置构建渠道配置。
func FromSettings(settings config.StripeConfig) *Config {
	cfg := &Config{
		SecretKey:               settings.SecretKey,
		PublishableKey:          settings.PublishableKey,
		WebhookSecret:           settings.WebhookSecret,
		SuccessURL:              settings.SuccessURL,
		CancelURL:               settings.CancelURL,
		APIBaseURL:              settings.APIBaseURL,
		WebhookToleranceSeconds: settings.WebhookToleranceSeconds,
		PaymentMethodTypes:      append([]string(nil), settings.PaymentMethodTypes...),
	}
	cfg.normalize()
	return cfg
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" {
		return fmt.Errorf("%w: success_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.CancelURL) == "" {
		return fmt.Errorf("%w: cancel_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(sanitizeURLForValidation(cfg.SuccessURL)); err != nil {
		return fmt.Errorf("%w: success_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(sanitizeURLForValidation(cfg.CancelURL)); err != nil {
		return fmt.Errorf("%w: cancel_url is invalid", ErrConfigInvalid)
	}
	if len(cfg.PaymentMethodTypes) == 0 {
		return fmt.Errorf("%w: payment_method_types is empty", ErrConfigInvalid)
	}
	return nil
}

// CreatePayment 创建 Stripe Checkout Session。
func CreatePayment(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	orderNo := strings.TrimSpace(input.OrderNo)
	if orderNo == "" {
		return nil, fmt.Errorf("%w: order_no is required", ErrConfigInvalid)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	if input.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}

	successURL := strings.TrimSpace(input.SuccessURL)
	if successURL == "" {
		successURL = cfg.SuccessURL
	}
	cancelURL := strings.TrimSpace(input.CancelURL)
	if cancelURL == "" {
		cancelURL = cfg.CancelURL
	}
	subject := strings.TrimSpace(input.Description)
	if subject == "" {
		subject = orderNo
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", orderNo)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(input.AmountMinor, 10))
	form.Set("line_items[0][price_data][product_data][name]", subject)
	form.Set("metadata[order_no]", orderNo)
	form.Set("payment_intent_data[metadata][order_no]", orderNo)
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		form.Set("customer_email", email)
	}
	for _, pmType := range cfg.PaymentMethodTypes {
		form.Add("payment_method_types[]", pmType)
	}

	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create checkout session status %d", ErrResponseInvalid, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &CreateResult{Raw: raw}
	result.SessionID = readString(raw, "id")
	result.URL = readString(raw, "url")
	result.Status = readString(raw, "status")
	result.PaymentIntentID = readPaymentIntentID(raw)
	if result.SessionID == "" || result.URL == "" {
		return nil, fmt.Errorf("%w: missing session id or url", ErrResponseInvalid)
	}
	return result, nil
}

// GetSession 查询 Checkout Session 当前支付结果，超时关单前用于对账。
func GetSession(ctx context.Context, cfg *Config, sessionID string) (*SessionResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrConfigInvalid)
	}
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: query checkout session status %d", ErrResponseInvalid, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &SessionResult{
		SessionID:       readString(raw, "id"),
		PaymentIntentID: readPaymentIntentID(raw),
		OrderNo:         readString(readMap(raw, "metadata"), "order_no"),
		AmountMinor:     readInt64(raw, "amount_total"),
		Currency:        strings.ToUpper(readString(raw, "currency")),
		Raw:             raw,
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("%w: missing checkout session id", ErrResponseInvalid)
	}
	if strings.EqualFold(readString(raw, "payment_status"), "paid") {
		result.Outcome = OutcomePaid
	}
	return result, nil
}

// VerifyAndParseWebhook 校验并解析 Stripe webhook。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*WebhookResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, "Stripe-Signature")
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}

	expected := computeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	eventRaw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	eventType := readString(eventRaw, "type")
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	objectRaw := readMap(readMap(eventRaw, "data"), "object")
	if objectRaw == nil {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	result := &WebhookResult{
		EventID:   readString(eventRaw, "id"),
		EventType: eventType,
		Outcome:   mapEventOutcome(eventType),
		OrderNo:   readString(readMap(objectRaw, "metadata"), "order_no"),
		Currency:  strings.ToUpper(readString(objectRaw, "currency")),
		Raw:       eventRaw,
	}

	switch readString(objectRaw, "object") {
	case "checkout.session":
		result.SessionID = readString(objectRaw, "id")
		result.PaymentIntentID = readPaymentIntentID(objectRaw)
		result.AmountMinor = readInt64(objectRaw, "amount_total")
		if result.OrderNo == "" {
			result.OrderNo = readString(objectRaw, "client_reference_id")
		}
	case "payment_intent":
		result.PaymentIntentID = readString(objectRaw, "id")
		result.AmountMinor = readInt64(objectRaw, "amount_received")
		if result.AmountMinor <= 0 {
			result.AmountMinor = readInt64(objectRaw, "amount")
		}
	}
	if created := readInt64(objectRaw, "created"); created > 0 && result.Outcome == OutcomePaid {
		paidAt := time.Unix(created, 0)
		result.PaidAt = &paidAt
	}
	return result, nil
}

// SignPayload 生成 Stripe-Signature 头，供本地联调与测试使用。
func SignPayload(secret string, timestamp int64, body []byte) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + computeSignature(secret, timestamp, body)
}

func mapEventOutcome(eventType string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.completed":
		return OutcomePaid
	case "payment_intent.payment_failed":
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}

func sanitizeURLForValidation(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return trimmed
	}
	return strings.ReplaceAll(trimmed, "{CHECKOUT_SESSION_ID}", "cs_test_placeholder")
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.PublishableKey = strings.TrimSpace(c.PublishableKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.SuccessURL = strings.TrimSpace(c.SuccessURL)
	c.CancelURL = strings.TrimSpace(c.CancelURL)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
	normalized := make([]string, 0, len(c.PaymentMethodTypes))
	for _, item := range c.PaymentMethodTypes {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		normalized = []string{"card"}
	}
	sort.Strings(normalized)
	c.PaymentMethodTypes = normalized
}

func doRequest(ctx context.Context, cfg *Config, method, path string, form url.Values) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readPaymentIntentID(raw map[string]interface{}) string {
	switch typed := raw["payment_intent"].(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]interface{}:
		return readString(typed, "id")
	default:
		return ""
	}
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func getHeaderValue(headers map[string]string, key string) string {
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	switch typed := raw[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	mapped, _ := raw[key].(map[string]interface{})
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	switch typed := raw[key].(type) {
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
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
