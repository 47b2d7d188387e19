package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/dujiao-next/bookshop/internal/config"
)

func TestBuildEmailMessageMultipart(t *testing.T) {
	raw, err := buildEmailMessage("shop@example.com", EmailMessage{
		To:      "reader@example.com",
		Subject: "Order BK1 shipped",
		HTML:    "<p>Your order shipped</p>",
		Text:    "Your order shipped",
	})
	if err != nil {
		t.Fatalf("build message failed: %v", err)
	}
	msg := string(raw)
	for _, expected := range []string{"multipart/alternative", "text/plain; charset=UTF-8", "text/html; charset=UTF-8", "<p>Your order shipped</p>"} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("message missing %q: %s", expected, msg)
		}
	}
}

func TestBuildEmailMessageSinglePart(t *testing.T) {
	raw, err := buildEmailMessage("shop@example.com", EmailMessage{To: "reader@example.com", Subject: "hi", Text: "plain only"})
	if err != nil {
		t.Fatalf("build message failed: %v", err)
	}
	if strings.Contains(string(raw), "multipart") {
		t.Fatalf("text-only message should not be multipart")
	}
}

func TestEmailServiceSendRejectsDisabledConfig(t *testing.T) {
	svc := NewEmailService(&config.EmailConfig{Enabled: false})
	if err := svc.Send(EmailMessage{To: "reader@example.com"}); !errors.Is(err, ErrEmailServiceDisabled) {
		t.Fatalf("want ErrEmailServiceDisabled got %v", err)
	}
	svc = NewEmailService(&config.EmailConfig{Enabled: true})
	if err := svc.Send(EmailMessage{To: "reader@example.com"}); !errors.Is(err, ErrEmailServiceNotConfigured) {
		t.Fatalf("want ErrEmailServiceNotConfigured got %v", err)
	}
	svc = NewEmailService(&config.EmailConfig{Enabled: true, Host: "smtp.example.com", Port: 25, From: "shop@example.com"})
	if err := svc.Send(EmailMessage{To: "not-an-email"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("want ErrInvalidEmail got %v", err)
	}
}

func TestIsEmailRecipientRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "smtp_550_no_such_recipient",
			err:  errors.New("550 No such recipient here"),
			want: true,
		},
		{
			name: "smtp_user_unknown",
			err:  errors.New("SMTP 5.1.1 user unknown"),
			want: true,
		},
		{
			name: "smtp_550_mailbox_unavailable",
			err:  errors.New("550 mailbox unavailable"),
			want: true,
		},
		{
			name: "network_timeout",
			err:  errors.New("dial tcp timeout"),
			want: false,
		},
		{
			name: "nil_error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmailRecipientRejected(tt.err); got != tt.want {
				t.Fatalf("isEmailRecipientRejected() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeEmailSendError(t *testing.T) {
	rejected := errors.New("550 No such recipient here")
	if got := normalizeEmailSendError(rejected); !errors.Is(got, ErrEmailRecipientRejected) {
		t.Fatalf("normalizeEmailSendError() expected ErrEmailRecipientRejected, got %v", got)
	}

	networkErr := errors.New("dial tcp timeout")
	if got := normalizeEmailSendError(networkErr); !errors.Is(got, networkErr) {
		t.Fatalf("normalizeEmailSendError() should keep original error, got %v", got)
	}

	if got := normalizeEmailSendError(nil); got != nil {
		t.Fatalf("normalizeEmailSendError(nil) should be nil, got %v", got)
	}
}
