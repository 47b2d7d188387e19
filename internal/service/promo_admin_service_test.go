package service

import (
	"errors"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/repository"
)

func TestPromoAdminCreateNormalizesAndValidates(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	svc := NewPromoAdminService(repository.NewPromoCodeRepository(env.db))

	promo, err := svc.Create(PromoCodeInput{Code: " summer10 ", DiscountType: "Percentage", DiscountValue: money(t, "10")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if promo.Code != "SUMMER10" || promo.DiscountType != constants.PromoTypePercentage || !promo.IsActive {
		t.Fatalf("unexpected promo %+v", promo)
	}
	if _, err := svc.Create(PromoCodeInput{Code: "SUMMER10", DiscountType: "fixed", DiscountValue: money(t, "5")}); !errors.Is(err, ErrPromoCodeExists) {
		t.Fatalf("expected ErrPromoCodeExists, got %v", err)
	}

	now := time.Now()
	earlier := now.Add(-time.Hour)
	invalid := []PromoCodeInput{
		{Code: "", DiscountType: "fixed", DiscountValue: money(t, "5")},
		{Code: "BOGUS", DiscountType: "bogo", DiscountValue: money(t, "5")},
		{Code: "ZERO", DiscountType: "fixed", DiscountValue: money(t, "0")},
		{Code: "TOOMUCH", DiscountType: "percentage", DiscountValue: money(t, "101")},
		{Code: "NEGMIN", DiscountType: "fixed", DiscountValue: money(t, "5"), MinOrderValue: money(t, "-1")},
		{Code: "NEGUSES", DiscountType: "fixed", DiscountValue: money(t, "5"), MaxUses: -1},
		{Code: "BACKWARDS", DiscountType: "fixed", DiscountValue: money(t, "5"), ValidFrom: &now, ValidUntil: &earlier},
	}
	for _, in := range invalid {
		if _, err := svc.Create(in); !errors.Is(err, ErrPromoInvalidInput) {
			t.Fatalf("%q: expected ErrPromoInvalidInput, got %v", in.Code, err)
		}
	}
}

func TestPromoAdminUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	repo := repository.NewPromoCodeRepository(env.db)
	svc := NewPromoAdminService(repo)
	inactive := false

	first, err := svc.Create(PromoCodeInput{Code: "FIRST", DiscountType: "fixed", DiscountValue: money(t, "20")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Create(PromoCodeInput{Code: "SECOND", DiscountType: "fixed", DiscountValue: money(t, "20"), IsActive: &inactive}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Update(first.ID, PromoCodeInput{Code: "second", DiscountType: "fixed", DiscountValue: money(t, "20")}); !errors.Is(err, ErrPromoCodeExists) {
		t.Fatalf("renaming onto an existing code should fail, got %v", err)
	}
	updated, err := svc.Update(first.ID, PromoCodeInput{Code: "FIRST", DiscountType: "percentage", DiscountValue: money(t, "15"), MaxUses: 3, IsActive: &inactive})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DiscountType != constants.PromoTypePercentage || updated.MaxUses != 3 || updated.IsActive {
		t.Fatalf("unexpected updated promo %+v", updated)
	}
	if _, err := svc.Update(4242, PromoCodeInput{Code: "X", DiscountType: "fixed", DiscountValue: money(t, "1")}); !errors.Is(err, ErrPromoCodeNotFound) {
		t.Fatalf("expected ErrPromoCodeNotFound, got %v", err)
	}

	active := false
	rows, total, err := svc.List(repository.PromoCodeListFilter{Page: 1, PageSize: 10, IsActive: &active})
	if err != nil || total != 2 || len(rows) != 2 {
		t.Fatalf("both promos should be inactive, got %d err=%v", total, err)
	}

	if err := svc.Delete(first.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.Delete(first.ID); !errors.Is(err, ErrPromoCodeNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}
