package main

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/provider"
	"github.com/dujiao-next/bookshop/internal/service"
)

func mustMoney(amount string) models.Money {
	m, err := models.NewMoneyFromString(amount)
	if err != nil {
		panic(err)
	}
	return m
}

func moneyPtr(amount string) *models.Money {
	m := mustMoney(amount)
	return &m
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	container := provider.NewContainer(cfg)
	defer container.Close()
	ctx := context.Background()

	// 图书（经由商品服务创建，初始库存写入库存流水）
	books := []service.CreateProductInput{
		{
			Slug:              "the-pragmatic-programmer",
			Title:             "The Pragmatic Programmer",
			Author:            "David Thomas, Andrew Hunt",
			ISBN:              "9780135957059",
			Description:       "20th anniversary edition.",
			Price:             mustMoney("899.00"),
			InitialStock:      25,
			LowStockThreshold: 5,
			Variants: []service.ProductVariantInput{
				{Label: "Paperback", SKU: "PRAG-PB"},
				{Label: "Hardcover", SKU: "PRAG-HC", PriceOverride: moneyPtr("1299.00")},
			},
		},
		{
			Slug:         "designing-data-intensive-applications",
			Title:        "Designing Data-Intensive Applications",
			Author:       "Martin Kleppmann",
			ISBN:         "9781449373320",
			Price:        mustMoney("1450.00"),
			InitialStock: 12,
		},
		{
			Slug:              "the-go-programming-language",
			Title:             "The Go Programming Language",
			Author:            "Alan A. A. Donovan, Brian W. Kernighan",
			ISBN:              "9780134190440",
			Price:             mustMoney("749.50"),
			InitialStock:      3,
			LowStockThreshold: 4,
		},
		{
			Slug:         "structure-and-interpretation-of-computer-programs",
			Title:        "Structure and Interpretation of Computer Programs",
			Author:       "Harold Abelson, Gerald Jay Sussman",
			ISBN:         "9780262510875",
			Price:        mustMoney("1100.00"),
			InitialStock: 0,
		},
	}
	for _, book := range books {
		product, err := container.ProductService.Create(ctx, book)
		if errors.Is(err, service.ErrProductSlugExists) {
			stdLog.Printf("skip existing product %s", book.Slug)
			continue
		}
		if err != nil {
			stdLog.Fatalf("Failed to create product %s: %v", book.Slug, err)
		}
		stdLog.Printf("created product #%d %s (stock %d)", product.ID, product.Title, product.Stock)
	}

	// 优惠码
	until := time.Now().AddDate(0, 3, 0)
	promos := []service.PromoCodeInput{
		{Code: "WELCOME10", DiscountType: constants.PromoTypePercentage, DiscountValue: mustMoney("10")},
		{Code: "FLAT200", DiscountType: constants.PromoTypeFixed, DiscountValue: mustMoney("200"), MinOrderValue: mustMoney("1000"), ValidUntil: &until},
		{Code: "FIRST50", DiscountType: constants.PromoTypeFixed, DiscountValue: mustMoney("50"), MaxUses: 100},
	}
	for _, promo := range promos {
		created, err := container.PromoAdminService.Create(promo)
		if errors.Is(err, service.ErrPromoCodeExists) {
			stdLog.Printf("skip existing promo code %s", promo.Code)
			continue
		}
		if err != nil {
			stdLog.Fatalf("Failed to create promo code %s: %v", promo.Code, err)
		}
		stdLog.Printf("created promo code %s", created.Code)
	}

	stdLog.Printf("seed completed")
}
