package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/repository"

	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ProductService 商品业务服务
type ProductService struct {
	repo   repository.ProductRepository
	ledger *StockLedger
}

// NewProductService 创建商品服务
func NewProductService(repo repository.ProductRepository, ledger *StockLedger) *ProductService {
	return &ProductService{repo: repo, ledger: ledger}
}

// ProductVariantInput 版本输入
type ProductVariantInput struct {
	ID            uint          `json:"id"`
	Label         string        `json:"label" binding:"required"`
	SKU           string        `json:"sku"`
	PriceOverride *models.Money `json:"price_override"`
	IsActive      *bool         `json:"is_active"`
}

// CreateProductInput 创建/更新商品输入
type CreateProductInput struct {
	Slug              string                `json:"slug" binding:"required"`
	Title             string                `json:"title" binding:"required"`
	Author            string                `json:"author"`
	ISBN              string                `json:"isbn"`
	Description       string                `json:"description"`
	Price             models.Money          `json:"price"`
	ImageURL          string                `json:"image_url"`
	InitialStock      int                   `json:"initial_stock"`
	LowStockThreshold int                   `json:"low_stock_threshold"`
	IsActive          *bool                 `json:"is_active"`
	Variants          []ProductVariantInput `json:"variants"`
}

func (in CreateProductInput) normalize() (CreateProductInput, error) {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.ReplaceAll(strings.TrimSpace(in.ISBN), "-", "")
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if !slugPattern.MatchString(in.Slug) || in.Title == "" {
		return in, ErrProductInvalidInput
	}
	if !in.Price.IsPositive() || in.InitialStock < 0 || in.LowStockThreshold < 0 {
		return in, ErrProductInvalidInput
	}
	for i := range in.Variants {
		in.Variants[i].Label = strings.TrimSpace(in.Variants[i].Label)
		in.Variants[i].SKU = strings.TrimSpace(in.Variants[i].SKU)
		if in.Variants[i].Label == "" {
			return in, ErrProductInvalidInput
		}
		if in.Variants[i].PriceOverride != nil && !in.Variants[i].PriceOverride.IsPositive() {
			return in, ErrProductInvalidInput
		}
	}
	return in, nil
}

// ListPublic 获取上架商品列表
func (s *ProductService) ListPublic(ctx context.Context, search string, page, pageSize int) ([]models.Product, int64, error) {
	type result struct {
		products []models.Product
		total    int64
	}
	res, err := retryRead(ctx, "product_list_public", func() (result, error) {
		products, total, err := s.repo.List(repository.ProductListFilter{
			Page:       page,
			PageSize:   pageSize,
			Search:     search,
			OnlyActive: true,
		})
		return result{products: products, total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.products, res.total, nil
}

// GetPublicBySlug 获取上架商品详情
func (s *ProductService) GetPublicBySlug(ctx context.Context, slug string) (*models.Product, error) {
	product, err := retryRead(ctx, "product_get_public", func() (*models.Product, error) {
		return s.repo.GetBySlug(strings.ToLower(strings.TrimSpace(slug)), true)
	})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// GetPublicByID 获取上架商品（库存推送流使用）
func (s *ProductService) GetPublicByID(ctx context.Context, id uint) (*models.Product, error) {
	product, err := retryRead(ctx, "product_get_public", func() (*models.Product, error) {
		return s.repo.GetByID(id)
	})
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ListAdmin 管理端商品列表
func (s *ProductService) ListAdmin(filter repository.ProductListFilter) ([]models.Product, int64, error) {
	filter.OnlyActive = false
	return s.repo.List(filter)
}

// GetAdminByID 管理端商品详情
func (s *ProductService) GetAdminByID(id uint) (*models.Product, error) {
	product, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// Create 创建商品，初始库存通过库存流水写入
func (s *ProductService) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	in, err := input.normalize()
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountBySlug(in.Slug, 0)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrProductSlugExists
	}

	product := &models.Product{
		Slug:              in.Slug,
		Title:             in.Title,
		Author:            in.Author,
		ISBN:              in.ISBN,
		Description:       in.Description,
		PriceAmount:       in.Price,
		ImageURL:          in.ImageURL,
		LowStockThreshold: in.LowStockThreshold,
		IsActive:          in.IsActive == nil || *in.IsActive,
	}
	for _, v := range in.Variants {
		product.Variants = append(product.Variants, models.ProductVariant{
			Label:         v.Label,
			SKU:           v.SKU,
			PriceOverride: v.PriceOverride,
			IsActive:      v.IsActive == nil || *v.IsActive,
		})
	}
	if err := s.repo.Create(product); err != nil {
		return nil, err
	}
	if in.InitialStock > 0 {
		change, err := s.ledger.Adjust(ctx, AdjustStockInput{
			ProductID:  product.ID,
			Delta:      in.InitialStock,
			ChangeType: constants.StockChangeSet,
			Reason:     "initial_stock",
		})
		if err != nil {
			return nil, err
		}
		product.Stock = change.NewStock
	}
	logger.Infow("product_created", "product_id", product.ID, "slug", product.Slug, "stock", product.Stock)
	return product, nil
}

// Update 更新商品资料与版本；库存只能通过 AdjustStock 修改
func (s *ProductService) Update(id uint, input CreateProductInput) (*models.Product, error) {
	in, err := input.normalize()
	if err != nil {
		return nil, err
	}
	product, err := s.GetAdminByID(id)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountBySlug(in.Slug, id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrProductSlugExists
	}

	product.Slug = in.Slug
	product.Title = in.Title
	product.Author = in.Author
	product.ISBN = in.ISBN
	product.Description = in.Description
	product.PriceAmount = in.Price
	product.ImageURL = in.ImageURL
	product.LowStockThreshold = in.LowStockThreshold
	if in.IsActive != nil {
		product.IsActive = *in.IsActive
	}

	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(product); err != nil {
			return err
		}
		for _, v := range in.Variants {
			variant := models.ProductVariant{
				ID:            v.ID,
				ProductID:     product.ID,
				Label:         v.Label,
				SKU:           v.SKU,
				PriceOverride: v.PriceOverride,
				IsActive:      v.IsActive == nil || *v.IsActive,
			}
			if v.ID != 0 {
				existing, err := repo.GetVariant(product.ID, v.ID)
				if err != nil {
					return err
				}
				if existing == nil {
					return ErrProductInvalidInput
				}
			}
			if err := repo.SaveVariant(&variant); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAdminByID(id)
}

// AdjustStock 管理端调整库存
func (s *ProductService) AdjustStock(ctx context.Context, input AdjustStockInput) (*StockChange, error) {
	if _, err := s.GetAdminByID(input.ProductID); err != nil {
		return nil, err
	}
	return s.ledger.Adjust(ctx, input)
}

// StockHistory 库存流水
func (s *ProductService) StockHistory(productID uint, page, pageSize int) ([]models.StockHistory, int64, error) {
	return s.ledger.History(productID, page, pageSize)
}

// Delete 软删除商品
func (s *ProductService) Delete(id uint) error {
	if _, err := s.GetAdminByID(id); err != nil {
		return err
	}
	return s.repo.Delete(id)
}
