package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/bookshop/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openRepositoryTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateTables(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createTestBook(t *testing.T, db *gorm.DB, slug string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		Slug:              slug,
		Title:             "The Go Programming Language",
		Author:            "Donovan & Kernighan",
		ISBN:              "9780134190440",
		PriceAmount:       models.NewMoneyFromDecimal(decimal.NewFromInt(450)),
		Stock:             stock,
		LowStockThreshold: 2,
		IsActive:          true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}
