package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
)

func testConfig(baseURL string) *Config {
	return FromSettings(config.StripeConfig{
		SecretKey:     " sk_test_123 ",
		WebhookSecret: " whsec_test_abc ",
		SuccessURL:    "https://books.example.com/checkout/success?session={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://books.example.com/checkout/cancel",
		APIBaseURL:    baseURL,
	})
}

func TestFromSettingsNormalizes(t *testing.T) {
	cfg := testConfig("")
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if len(cfg.PaymentMethodTypes) != 1 || cfg.PaymentMethodTypes[0] != "card" {
		t.Fatalf("unexpected payment method types: %v", cfg.PaymentMethodTypes)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestValidateConfigRequiresSecret(t *testing.T) {
	cfg := FromSettings(config.StripeConfig{})
	if err := ValidateConfig(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}

func TestCreatePaymentPostsCheckoutSessionForm(t *testing.T) {
	var captured url.Values
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		captured, _ = url.ParseQuery(string(body))
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.test/cs_test_1","status":"open","payment_intent":"pi_1"}`))
	}))
	defer server.Close()

	result, err := CreatePayment(context.Background(), testConfig(server.URL), CreateInput{
		OrderNo:     "BK20261018120000123456",
		AmountMinor: 45050,
		Currency:    "INR",
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if result.SessionID != "cs_test_1" || result.URL == "" || result.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if authHeader != "Bearer sk_test_123" {
		t.Fatalf("unexpected auth header: %s", authHeader)
	}
	if captured.Get("line_items[0][price_data][unit_amount]") != "45050" {
		t.Fatalf("unexpected amount: %s", captured.Get("line_items[0][price_data][unit_amount]"))
	}
	if captured.Get("line_items[0][price_data][currency]") != "inr" {
		t.Fatalf("unexpected currency: %s", captured.Get("line_items[0][price_data][currency]"))
	}
	if captured.Get("metadata[order_no]") != "BK20261018120000123456" {
		t.Fatalf("missing order metadata")
	}
	if captured.Get("payment_intent_data[metadata][order_no]") != "BK20261018120000123456" {
		t.Fatalf("missing payment intent metadata")
	}
}

func TestCreatePaymentRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer server.Close()

	_, err := CreatePayment(context.Background(), testConfig(server.URL), CreateInput{
		OrderNo:     "BK1",
		AmountMinor: 100,
		Currency:    "INR",
	})
	if !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("expected response invalid, got %v", err)
	}
}

func TestGetSessionReportsPaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions/cs_test_9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"cs_test_9","payment_status":"paid","amount_total":1000,"currency":"inr","metadata":{"order_no":"BK9"}}`))
	}))
	defer server.Close()

	result, err := GetSession(context.Background(), testConfig(server.URL), "cs_test_9")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if result.Outcome != OutcomePaid || result.OrderNo != "BK9" || result.AmountMinor != 1000 || result.Currency != "INR" {
		t.Fatalf("unexpected session result: %+v", result)
	}
}

func signedWebhook(t *testing.T, secret string, now time.Time, payload map[string]interface{}) ([]byte, map[string]string) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return body, map[string]string{"stripe-signature": SignPayload(secret, now.Unix(), body)}
}

func TestVerifyAndParseWebhookCheckoutCompleted(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := testConfig("")
	body, headers := signedWebhook(t, cfg.WebhookSecret, now, map[string]interface{}{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "checkout.session",
				"id":             "cs_test_123",
				"payment_status": "paid",
				"currency":       "inr",
				"amount_total":   1288,
				"created":        now.Unix(),
				"payment_intent": "pi_123",
				"metadata": map[string]interface{}{
					"order_no": "BK1001",
				},
			},
		},
	})

	result, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if result.Outcome != OutcomePaid {
		t.Fatalf("unexpected outcome: %q", result.Outcome)
	}
	if result.SessionID != "cs_test_123" || result.PaymentIntentID != "pi_123" {
		t.Fatalf("unexpected refs: %+v", result)
	}
	if result.OrderNo != "BK1001" {
		t.Fatalf("unexpected order no: %s", result.OrderNo)
	}
	if result.AmountMinor != 1288 || result.Currency != "INR" {
		t.Fatalf("unexpected amount: %d %s", result.AmountMinor, result.Currency)
	}
	if result.PaidAt == nil {
		t.Fatalf("expected paid_at")
	}
}

func TestVerifyAndParseWebhookPaymentFailed(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := testConfig("")
	body, headers := signedWebhook(t, cfg.WebhookSecret, now, map[string]interface{}{
		"id":   "evt_test_2",
		"type": "payment_intent.payment_failed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":   "payment_intent",
				"id":       "pi_456",
				"amount":   500,
				"currency": "inr",
				"metadata": map[string]interface{}{"order_no": "BK2002"},
			},
		},
	})

	result, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if result.Outcome != OutcomeFailed || result.PaymentIntentID != "pi_456" || result.OrderNo != "BK2002" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyAndParseWebhookIgnoresOtherEvents(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := testConfig("")
	body, headers := signedWebhook(t, cfg.WebhookSecret, now, map[string]interface{}{
		"id":   "evt_test_3",
		"type": "charge.refunded",
		"data": map[string]interface{}{
			"object": map[string]interface{}{"object": "charge", "id": "ch_1"},
		},
	})

	result, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if !result.Ignored() {
		t.Fatalf("expected ignored event, got %q", result.Outcome)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := testConfig("")
	body := []byte(`{"id":"evt_test_1","type":"checkout.session.completed","data":{"object":{"object":"checkout.session","id":"cs_test_123"}}}`)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=invalid-signature",
	}

	_, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyAndParseWebhookOutsideTolerance(t *testing.T) {
	signedAt := time.Unix(1760000000, 0)
	cfg := testConfig("")
	body, headers := signedWebhook(t, cfg.WebhookSecret, signedAt, map[string]interface{}{
		"id":   "evt_test_4",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{"object": map[string]interface{}{"object": "checkout.session", "id": "cs_1"}},
	})

	_, err := VerifyAndParseWebhook(cfg, headers, body, signedAt.Add(10*time.Minute))
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected tolerance error, got %v", err)
	}
}
