package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/events"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"

	"gorm.io/gorm"
)

const defaultStockMaxRetries = 5

// AdjustStockInput 库存调整输入
type AdjustStockInput struct {
	ProductID  uint   `json:"product_id"`
	Delta      int    `json:"delta"`
	ChangeType string `json:"change_type"`
	Reason     string `json:"reason"`
	Reference  string `json:"reference"`
}

// StockChange 一次已落库的库存变动
type StockChange struct {
	ProductID      uint   `json:"product_id"`
	Title          string `json:"title"`
	PreviousStock  int    `json:"previous_stock"`
	NewStock       int    `json:"new_stock"`
	QuantityChange int    `json:"quantity_change"`
	ChangeType     string `json:"change_type"`
	Reason         string `json:"reason"`
	Reference      string `json:"reference,omitempty"`
	Clamped        bool   `json:"clamped"`
	Threshold      int    `json:"threshold"`
	HistoryID      uint   `json:"history_id"`
}

// CrossedLowStock 本次变动是否使库存降至阈值及以下
func (c StockChange) CrossedLowStock() bool {
	return c.Threshold > 0 && c.NewStock <= c.Threshold && c.PreviousStock > c.Threshold
}

// StockLedger 库存流水：库存写入与流水追加在同一事务内
type StockLedger struct {
	db               *gorm.DB
	productRepo      repository.ProductRepository
	historyRepo      repository.StockHistoryRepository
	publisher        events.Publisher
	queueClient      *queue.Client
	policy           string
	defaultThreshold int
	maxRetries       int
}

// NewStockLedger 创建库存流水服务
func NewStockLedger(
	db *gorm.DB,
	productRepo repository.ProductRepository,
	historyRepo repository.StockHistoryRepository,
	publisher events.Publisher,
	queueClient *queue.Client,
	cfg config.StockConfig,
) *StockLedger {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultStockMaxRetries
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &StockLedger{
		db:               db,
		productRepo:      productRepo,
		historyRepo:      historyRepo,
		publisher:        publisher,
		queueClient:      queueClient,
		policy:           cfg.NormalizedOversellPolicy(),
		defaultThreshold: cfg.LowStockThreshold,
		maxRetries:       maxRetries,
	}
}

// Policy 当前超卖策略
func (s *StockLedger) Policy() string {
	return s.policy
}

// Adjust 在独立事务中调整库存，提交后发布事件
func (s *StockLedger) Adjust(ctx context.Context, input AdjustStockInput) (*StockChange, error) {
	var change *StockChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = s.AdjustTx(tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.PublishChanges(ctx, []StockChange{*change})
	return change, nil
}

// AdjustTx 在调用方事务内调整库存，事件由调用方在提交后通过 PublishChanges 发布
func (s *StockLedger) AdjustTx(tx *gorm.DB, input AdjustStockInput) (*StockChange, error) {
	changeType := strings.ToLower(strings.TrimSpace(input.ChangeType))
	if input.ProductID == 0 {
		return nil, ErrInvalidStockAdjustment
	}
	requested := input.Delta
	switch changeType {
	case constants.StockChangeSubtract:
		if requested == 0 {
			return nil, ErrInvalidStockAdjustment
		}
		if requested > 0 {
			requested = -requested
		}
	case constants.StockChangeAdd:
		if requested <= 0 {
			return nil, ErrInvalidStockAdjustment
		}
	case constants.StockChangeSet:
		if requested < 0 {
			return nil, ErrInvalidStockAdjustment
		}
	default:
		return nil, ErrInvalidStockAdjustment
	}

	productRepo := s.productRepo.WithTx(tx)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		product, err := productRepo.GetByID(input.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, ErrProductNotFound
		}

		previous := product.Stock
		target := previous
		quantityChange := requested
		clamped := false
		switch changeType {
		case constants.StockChangeSubtract:
			target = previous + requested
			if target < 0 {
				if s.policy == config.OversellPolicyReject {
					return nil, ErrInsufficientStock
				}
				clamped = true
				target = 0
			}
		case constants.StockChangeAdd:
			target = previous + requested
		case constants.StockChangeSet:
			target = requested
			quantityChange = target - previous
		}

		affected, err := productRepo.UpdateStockIfVersion(product.ID, product.Version, target)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			logger.Debugw("stock_version_conflict", "product_id", product.ID, "attempt", attempt)
			continue
		}

		if clamped {
			logger.Warnw("stock_oversell_clamped",
				"product_id", product.ID,
				"previous_stock", previous,
				"requested", requested,
				"reference", input.Reference,
			)
		}

		entry := &models.StockHistory{
			ProductID:      product.ID,
			PreviousStock:  previous,
			NewStock:       target,
			QuantityChange: quantityChange,
			ChangeType:     changeType,
			Reason:         strings.TrimSpace(input.Reason),
			Reference:      strings.TrimSpace(input.Reference),
		}
		if err := s.historyRepo.WithTx(tx).Append(entry); err != nil {
			return nil, err
		}

		return &StockChange{
			ProductID:      product.ID,
			Title:          product.Title,
			PreviousStock:  previous,
			NewStock:       target,
			QuantityChange: quantityChange,
			ChangeType:     changeType,
			Reason:         entry.Reason,
			Reference:      entry.Reference,
			Clamped:        clamped,
			Threshold:      s.thresholdFor(product),
			HistoryID:      entry.ID,
		}, nil
	}
	return nil, ErrStockConflict
}

// PublishChanges 事务提交后发布库存事件与低库存提醒
func (s *StockLedger) PublishChanges(ctx context.Context, changes []StockChange) {
	for _, change := range changes {
		key := strconv.FormatUint(uint64(change.ProductID), 10)
		if err := s.publisher.Publish(ctx, events.StreamStock, key, events.NewEvent(constants.EventStockChanged, change)); err != nil {
			logger.Warnw("stock_event_publish_failed", "product_id", change.ProductID, "error", err)
		}
		if change.Threshold <= 0 || change.NewStock > change.Threshold {
			continue
		}
		warning := cache.StockWarning{
			ProductID: change.ProductID,
			Stock:     change.NewStock,
			Threshold: change.Threshold,
			Message:   stockWarningMessage(change.NewStock),
		}
		if err := cache.PublishStockWarning(ctx, warning); err != nil {
			logger.Warnw("stock_warning_publish_failed", "product_id", change.ProductID, "error", err)
		}
		if !change.CrossedLowStock() {
			continue
		}
		if err := s.publisher.Publish(ctx, events.StreamStock, key, events.NewEvent(constants.EventStockLow, change)); err != nil {
			logger.Warnw("stock_low_event_publish_failed", "product_id", change.ProductID, "error", err)
		}
		if err := s.queueClient.EnqueueStockLowNotification(queue.StockLowNotificationPayload{
			ProductID: change.ProductID,
			Title:     change.Title,
			Stock:     change.NewStock,
			Threshold: change.Threshold,
		}); err != nil {
			logger.Warnw("stock_low_notification_enqueue_failed", "product_id", change.ProductID, "error", err)
		}
	}
}

// History 分页查询库存流水
func (s *StockLedger) History(productID uint, page, pageSize int) ([]models.StockHistory, int64, error) {
	if productID == 0 {
		return nil, 0, ErrProductNotFound
	}
	return s.historyRepo.ListByProduct(productID, page, pageSize)
}

func (s *StockLedger) thresholdFor(product *models.Product) int {
	if product.LowStockThreshold > 0 {
		return product.LowStockThreshold
	}
	return s.defaultThreshold
}

func stockWarningMessage(stock int) string {
	if stock <= 0 {
		return "Out of stock"
	}
	return fmt.Sprintf("Only %d left in stock", stock)
}
