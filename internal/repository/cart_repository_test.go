package repository

import (
	"testing"

	"github.com/dujiao-next/bookshop/internal/models"
)

func TestReplaceForUserIsIdempotent(t *testing.T) {
	db := openRepositoryTestDB(t, "cart_repo_replace")
	repo := NewCartRepository(db)
	userID := "2b1d6b3e-0000-4000-8000-000000000001"
	snapshot := []models.CartItem{
		{LineID: "l1", ProductID: 1, Quantity: 2, UnitPrice: models.NewMoneyFromInt(300)},
		{LineID: "l2", ProductID: 2, VariantID: 5, Quantity: 1, UnitPrice: models.NewMoneyFromInt(120)},
	}

	for i := 0; i < 2; i++ {
		if err := repo.ReplaceForUser(userID, snapshot); err != nil {
			t.Fatalf("replace #%d failed: %v", i, err)
		}
	}
	items, err := repo.ListByUser(userID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 mirror rows got %d", len(items))
	}
	if items[0].LineID != "l1" || items[1].LineID != "l2" {
		t.Fatalf("line order not kept: %s, %s", items[0].LineID, items[1].LineID)
	}

	if err := repo.ReplaceForUser(userID, nil); err != nil {
		t.Fatalf("replace with empty failed: %v", err)
	}
	items, _ = repo.ListByUser(userID)
	if len(items) != 0 {
		t.Fatalf("empty snapshot should clear mirror, got %d", len(items))
	}
}
