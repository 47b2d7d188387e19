package repository

import (
	"testing"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"
)

func TestGetLatestByProviderRefScopesProvider(t *testing.T) {
	db := openRepositoryTestDB(t, "payment_repo")
	repo := NewPaymentRepository(db)
	rows := []models.Payment{
		{OrderID: 1, Provider: constants.PaymentProviderStripe, Amount: models.NewMoneyFromInt(10), Currency: "INR", Status: constants.PaymentStatusPending, ProviderRef: "ref_1"},
		{OrderID: 2, Provider: constants.PaymentProviderRazorpay, Amount: models.NewMoneyFromInt(20), Currency: "INR", Status: constants.PaymentStatusPending, ProviderRef: "ref_1"},
	}
	for i := range rows {
		if err := repo.Create(&rows[i]); err != nil {
			t.Fatalf("create payment failed: %v", err)
		}
	}

	got, err := repo.GetLatestByProviderRef(constants.PaymentProviderStripe, "ref_1")
	if err != nil || got == nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.OrderID != 1 {
		t.Fatalf("want stripe row for order 1, got order %d", got.OrderID)
	}
	missing, _ := repo.GetLatestByProviderRef(constants.PaymentProviderStripe, "  ")
	if missing != nil {
		t.Fatalf("blank ref should return nil")
	}
}
