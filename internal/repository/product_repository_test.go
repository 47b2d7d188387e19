package repository

import (
	"testing"

	"github.com/dujiao-next/bookshop/internal/models"

	"github.com/shopspring/decimal"
)

func TestUpdateStockIfVersionRejectsStaleVersion(t *testing.T) {
	db := openRepositoryTestDB(t, "product_repo_version")
	repo := NewProductRepository(db)
	product := createTestBook(t, db, "gopl", 10)

	affected, err := repo.UpdateStockIfVersion(product.ID, product.Version, 7)
	if err != nil {
		t.Fatalf("update stock failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("first update affected want 1 got %d", affected)
	}

	affected, err = repo.UpdateStockIfVersion(product.ID, product.Version, 3)
	if err != nil {
		t.Fatalf("stale update failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("stale update affected want 0 got %d", affected)
	}

	reloaded, err := repo.GetByID(product.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload product failed: %v", err)
	}
	if reloaded.Stock != 7 {
		t.Fatalf("stock want 7 got %d", reloaded.Stock)
	}
	if reloaded.Version != product.Version+1 {
		t.Fatalf("version want %d got %d", product.Version+1, reloaded.Version)
	}
}

func TestUpdateStockIfVersionRejectsNegativeStock(t *testing.T) {
	db := openRepositoryTestDB(t, "product_repo_negative")
	repo := NewProductRepository(db)
	product := createTestBook(t, db, "negative", 1)

	if _, err := repo.UpdateStockIfVersion(product.ID, product.Version, -1); err == nil {
		t.Fatalf("expected error for negative stock")
	}
}

func TestProductUpdateDoesNotTouchStock(t *testing.T) {
	db := openRepositoryTestDB(t, "product_repo_update")
	repo := NewProductRepository(db)
	product := createTestBook(t, db, "update-keeps-stock", 9)

	stale := *product
	stale.Stock = 0
	stale.Title = "The Go Programming Language (2nd)"
	if err := repo.Update(&stale); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	reloaded, _ := repo.GetByID(product.ID)
	if reloaded.Title != stale.Title {
		t.Fatalf("title not updated: %s", reloaded.Title)
	}
	if reloaded.Stock != 9 {
		t.Fatalf("stock should stay 9, got %d", reloaded.Stock)
	}
}

func TestProductListSearchAndLowStock(t *testing.T) {
	db := openRepositoryTestDB(t, "product_repo_list")
	repo := NewProductRepository(db)
	createTestBook(t, db, "gopl", 10)
	low := createTestBook(t, db, "low", 1)
	low.Title = "Concurrency in Go"
	if err := repo.Update(low); err != nil {
		t.Fatalf("update title failed: %v", err)
	}
	variant := models.ProductVariant{
		ProductID:     low.ID,
		Label:         "Hardcover",
		PriceOverride: &models.Money{Decimal: decimal.NewFromInt(600)},
		IsActive:      true,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("create variant failed: %v", err)
	}

	products, total, err := repo.List(ProductListFilter{Search: "concurrency", OnlyActive: true, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(products) != 1 || products[0].ID != low.ID {
		t.Fatalf("unexpected search result: total=%d len=%d", total, len(products))
	}
	if len(products[0].Variants) != 1 {
		t.Fatalf("variants not preloaded")
	}

	_, lowTotal, err := repo.List(ProductListFilter{LowStock: true})
	if err != nil {
		t.Fatalf("list low stock failed: %v", err)
	}
	if lowTotal != 1 {
		t.Fatalf("low stock total want 1 got %d", lowTotal)
	}
}
