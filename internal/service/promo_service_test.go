package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
)

func TestPromoValidateComputesDiscount(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	createPromo(t, env.db, &models.PromoCode{Code: "READ10", DiscountType: constants.PromoTypePercentage, DiscountValue: money(t, "10")})
	createPromo(t, env.db, &models.PromoCode{Code: "FLAT500", DiscountType: constants.PromoTypeFixed, DiscountValue: money(t, "500")})
	ctx := context.Background()

	quote, err := env.promo.Validate(ctx, " read10 ", money(t, "450.00"))
	if err != nil {
		t.Fatalf("validate percentage failed: %v", err)
	}
	if !quote.Accepted || quote.Code != "READ10" || quote.DiscountAmount.String() != "45.00" {
		t.Fatalf("unexpected percentage quote: %+v", quote)
	}

	// 固定金额不超过小计
	quote, err = env.promo.Validate(ctx, "FLAT500", money(t, "300.00"))
	if err != nil {
		t.Fatalf("validate fixed failed: %v", err)
	}
	if quote.DiscountAmount.String() != "300.00" {
		t.Fatalf("fixed discount should cap at subtotal, got %s", quote.DiscountAmount.String())
	}
}

func TestPromoValidateRejections(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	past := time.Now().Add(-48 * time.Hour)
	yesterday := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	createPromo(t, env.db, &models.PromoCode{Code: "OLD", DiscountValue: money(t, "5"), ValidFrom: &past, ValidUntil: &yesterday})
	createPromo(t, env.db, &models.PromoCode{Code: "SOON", DiscountValue: money(t, "5"), ValidFrom: &future})
	createPromo(t, env.db, &models.PromoCode{Code: "USEDUP", DiscountValue: money(t, "5"), MaxUses: 2, CurrentUses: 2})
	createPromo(t, env.db, &models.PromoCode{Code: "BIGCART", DiscountValue: money(t, "5"), MinOrderValue: money(t, "1000")})
	off := createPromo(t, env.db, &models.PromoCode{Code: "PAUSED", DiscountValue: money(t, "5")})
	if err := env.db.Model(off).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate promo failed: %v", err)
	}

	cases := []struct {
		code string
		want error
	}{
		{"", ErrPromoCodeNotFound},
		{"NOPE", ErrPromoCodeNotFound},
		{"PAUSED", ErrPromoCodeNotFound},
		{"OLD", ErrPromoExpired},
		{"SOON", ErrPromoExpired},
		{"USEDUP", ErrPromoUsageLimitReached},
		{"BIGCART", ErrPromoMinimumNotMet},
	}
	for _, tc := range cases {
		_, err := env.promo.Validate(context.Background(), tc.code, money(t, "450.00"))
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %q: expected %v, got %v", tc.code, tc.want, err)
		}
	}
}

func TestPromoRedeemCountsOncePerOrder(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	promo := createPromo(t, env.db, &models.PromoCode{Code: "ONCE", DiscountValue: money(t, "5"), MaxUses: 10})

	first, err := env.promo.Redeem(env.db, promo.ID, 77)
	if err != nil || !first {
		t.Fatalf("first redeem: applied=%v err=%v", first, err)
	}
	second, err := env.promo.Redeem(env.db, promo.ID, 77)
	if err != nil || second {
		t.Fatalf("second redeem should be a no-op: applied=%v err=%v", second, err)
	}

	var stored models.PromoCode
	if err := env.db.First(&stored, promo.ID).Error; err != nil {
		t.Fatalf("reload promo failed: %v", err)
	}
	if stored.CurrentUses != 1 {
		t.Fatalf("expected current_uses 1, got %d", stored.CurrentUses)
	}
}
