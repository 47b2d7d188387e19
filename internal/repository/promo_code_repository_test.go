package repository

import (
	"testing"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
)

func TestPromoRedeemIsOncePerOrder(t *testing.T) {
	db := openRepositoryTestDB(t, "promo_repo_redeem")
	repo := NewPromoCodeRepository(db)
	promo := &models.PromoCode{
		Code:          "READMORE",
		DiscountType:  constants.PromoTypePercentage,
		DiscountValue: models.NewMoneyFromInt(10),
		IsActive:      true,
	}
	if err := repo.Create(promo); err != nil {
		t.Fatalf("create promo failed: %v", err)
	}

	redeemed, err := repo.Redeem(promo.ID, 42)
	if err != nil || !redeemed {
		t.Fatalf("first redeem want true got %v err=%v", redeemed, err)
	}
	redeemed, err = repo.Redeem(promo.ID, 42)
	if err != nil {
		t.Fatalf("second redeem failed: %v", err)
	}
	if redeemed {
		t.Fatalf("second redeem for same order should be a no-op")
	}

	reloaded, _ := repo.GetByCode("readmore")
	if reloaded == nil {
		t.Fatalf("case-insensitive lookup failed")
	}
	if reloaded.CurrentUses != 1 {
		t.Fatalf("current_uses want 1 got %d", reloaded.CurrentUses)
	}
}
