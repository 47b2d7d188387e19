package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/cache"
	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/google/uuid"
)

const (
	cartLockTTL      = 5 * time.Second
	cartLockAttempts = 10
	cartLockWait     = 20 * time.Millisecond
)

// CartOptions 购物车参数
type CartOptions struct {
	TTL                time.Duration
	MaxLineQuantity    int
	MutationLogMaxSize int
	Currency           string
}

// CartOptionsFromConfig 从配置构建购物车参数
func CartOptionsFromConfig(cart config.CartConfig, checkout config.CheckoutConfig) CartOptions {
	opts := CartOptions{
		TTL:                time.Duration(cart.TTLHours) * time.Hour,
		MaxLineQuantity:    cart.MaxLineQuantity,
		MutationLogMaxSize: cart.MutationLogMaxSize,
		Currency:           strings.ToUpper(strings.TrimSpace(checkout.Currency)),
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.MutationLogMaxSize <= 0 {
		opts.MutationLogMaxSize = 200
	}
	if opts.Currency == "" {
		opts.Currency = constants.CurrencyDefault
	}
	return opts
}

// AddCartItemInput 加购输入
type AddCartItemInput struct {
	ProductID uint `json:"product_id"`
	VariantID uint `json:"variant_id"`
	Quantity  int  `json:"quantity"`
}

// CartMutation 离线客户端排队的购物车变更
type CartMutation struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	LineID    string `json:"line_id,omitempty"`
	ProductID uint   `json:"product_id,omitempty"`
	VariantID uint   `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

// 变更回放结果
const (
	MutationResultApplied   = "applied"
	MutationResultDuplicate = "duplicate"
	MutationResultRejected  = "rejected"
)

// CartMutationResult 单条变更的回放结果
type CartMutationResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CartService 购物车服务（主存储 + 已登录用户的数据库镜像）
type CartService struct {
	store       cache.DocumentStore
	locker      cache.Locker
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	queueClient *queue.Client
	opts        CartOptions
	now         func() time.Time
}

// NewCartService 创建购物车服务
func NewCartService(
	store cache.DocumentStore,
	locker cache.Locker,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	queueClient *queue.Client,
	opts CartOptions,
) *CartService {
	return &CartService{
		store:       store,
		locker:      locker,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		queueClient: queueClient,
		opts:        opts,
		now:         time.Now,
	}
}

// Get 获取购物车
func (s *CartService) Get(ctx context.Context, owner CartOwner) (*Cart, error) {
	if owner.Key() == "" {
		return nil, ErrInvalidCartOwner
	}
	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	cart.Recalculate()
	return cart, nil
}

// AddItem 加购，相同商品与版本合并数量
func (s *CartService) AddItem(ctx context.Context, owner CartOwner, input AddCartItemInput) (*Cart, error) {
	return s.mutate(ctx, owner, func(cart *Cart) error {
		return s.addLine(cart, input.ProductID, input.VariantID, input.Quantity)
	})
}

// UpdateQuantity 修改行数量，数量 <= 0 时删除该行
func (s *CartService) UpdateQuantity(ctx context.Context, owner CartOwner, lineID string, quantity int) (*Cart, error) {
	return s.mutate(ctx, owner, func(cart *Cart) error {
		return s.setLineQuantity(cart, lineID, quantity)
	})
}

// RemoveItem 删除行
func (s *CartService) RemoveItem(ctx context.Context, owner CartOwner, lineID string) (*Cart, error) {
	return s.mutate(ctx, owner, func(cart *Cart) error {
		index := cart.findLine(strings.TrimSpace(lineID))
		if index < 0 {
			return ErrCartItemNotFound
		}
		cart.removeAt(index)
		return nil
	})
}

// Clear 清空购物车
func (s *CartService) Clear(ctx context.Context, owner CartOwner) (*Cart, error) {
	return s.mutate(ctx, owner, func(cart *Cart) error {
		cart.Lines = []CartLine{}
		return nil
	})
}

// ApplyMutations 按顺序回放离线变更，已回放过的变更 ID 会被跳过
func (s *CartService) ApplyMutations(ctx context.Context, owner CartOwner, mutations []CartMutation) (*Cart, []CartMutationResult, error) {
	results := make([]CartMutationResult, 0, len(mutations))
	cart, err := s.mutate(ctx, owner, func(cart *Cart) error {
		for _, mutation := range mutations {
			id := strings.TrimSpace(mutation.ID)
			if id == "" {
				results = append(results, CartMutationResult{Status: MutationResultRejected, Error: ErrCartMutationInvalid.Error()})
				continue
			}
			if cart.hasApplied(id) {
				results = append(results, CartMutationResult{ID: id, Status: MutationResultDuplicate})
				continue
			}
			if applyErr := s.applyMutation(cart, mutation); applyErr != nil {
				results = append(results, CartMutationResult{ID: id, Status: MutationResultRejected, Error: applyErr.Error()})
				cart.recordApplied(id, s.opts.MutationLogMaxSize)
				continue
			}
			cart.recordApplied(id, s.opts.MutationLogMaxSize)
			results = append(results, CartMutationResult{ID: id, Status: MutationResultApplied})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return cart, results, nil
}

// MergeGuestCart 登录后将游客购物车并入用户购物车
func (s *CartService) MergeGuestCart(ctx context.Context, guestToken, userID string) (*Cart, error) {
	guestOwner := CartOwner{GuestToken: guestToken}
	userOwner := CartOwner{UserID: userID}
	if guestOwner.Key() == "" || userOwner.Key() == "" {
		return nil, ErrInvalidCartOwner
	}
	guestCart, err := s.load(ctx, guestOwner)
	if err != nil {
		return nil, err
	}
	if guestCart.IsEmpty() {
		return s.Get(ctx, userOwner)
	}

	merged, err := s.mutate(ctx, userOwner, func(cart *Cart) error {
		for _, line := range guestCart.Lines {
			index := cart.findProductLine(line.ProductID, line.VariantID)
			if index >= 0 {
				cart.Lines[index].Quantity = s.capQuantity(cart.Lines[index].Quantity + line.Quantity)
				continue
			}
			line.Quantity = s.capQuantity(line.Quantity)
			cart.Lines = append(cart.Lines, line)
		}
		for _, id := range guestCart.AppliedMutations {
			if !cart.hasApplied(id) {
				cart.recordApplied(id, s.opts.MutationLogMaxSize)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, guestOwner.Key()); err != nil {
		logger.Warnw("cart_guest_delete_failed", "owner", guestOwner.Key(), "error", err)
	}
	return merged, nil
}

// SyncMirror 将完整快照写入数据库镜像（幂等）
func (s *CartService) SyncMirror(ctx context.Context, ownerKey string) error {
	owner, ok := ParseCartOwnerKey(ownerKey)
	if !ok || !owner.Authenticated() {
		return nil
	}
	return s.withLock(ctx, owner.Key(), func() error {
		cart, err := s.load(ctx, owner)
		if err != nil {
			return err
		}
		if err := s.cartRepo.ReplaceForUser(owner.UserID, mirrorRows(cart)); err != nil {
			return err
		}
		if cart.MirrorPending {
			cart.MirrorPending = false
			return s.store.Save(ctx, owner.Key(), cart, s.opts.TTL)
		}
		return nil
	})
}

func (s *CartService) mutate(ctx context.Context, owner CartOwner, fn func(cart *Cart) error) (*Cart, error) {
	key := owner.Key()
	if key == "" {
		return nil, ErrInvalidCartOwner
	}
	var result *Cart
	err := s.withLock(ctx, key, func() error {
		cart, err := s.load(ctx, owner)
		if err != nil {
			return err
		}
		if err := fn(cart); err != nil {
			return err
		}
		if err := s.save(ctx, owner, cart); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CartService) withLock(ctx context.Context, key string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	for attempt := 0; attempt < cartLockAttempts; attempt++ {
		release, err := s.locker.Acquire(ctx, "cart:"+key, cartLockTTL)
		if err == nil {
			defer release()
			return fn()
		}
		if !errors.Is(err, cache.ErrLockHeld) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cartLockWait):
		}
	}
	return ErrCartBusy
}

func (s *CartService) load(ctx context.Context, owner CartOwner) (*Cart, error) {
	key := owner.Key()
	var cart Cart
	hit, err := s.store.Load(ctx, key, &cart)
	if err != nil {
		return nil, err
	}
	if hit {
		if cart.Lines == nil {
			cart.Lines = []CartLine{}
		}
		return &cart, nil
	}

	empty := &Cart{OwnerKey: key, Lines: []CartLine{}, Currency: s.opts.Currency}
	if !owner.Authenticated() || s.cartRepo == nil {
		return empty, nil
	}
	rows, err := retryRead(ctx, "cart_mirror_load", func() ([]models.CartItem, error) {
		return s.cartRepo.ListByUser(owner.UserID)
	})
	if err != nil {
		logger.Warnw("cart_mirror_load_failed", "owner", key, "error", err)
		return empty, nil
	}
	for _, row := range rows {
		lineID := strings.TrimSpace(row.LineID)
		if lineID == "" {
			lineID = uuid.NewString()
		}
		empty.Lines = append(empty.Lines, CartLine{
			LineID:    lineID,
			ProductID: row.ProductID,
			VariantID: row.VariantID,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
			Name:      row.Name,
			ImageURL:  row.ImageURL,
		})
	}
	return empty, nil
}

func (s *CartService) save(ctx context.Context, owner CartOwner, cart *Cart) error {
	cart.OwnerKey = owner.Key()
	if cart.Currency == "" {
		cart.Currency = s.opts.Currency
	}
	cart.Recalculate()
	cart.UpdatedAt = s.now()
	cart.MirrorPending = false
	if err := s.store.Save(ctx, cart.OwnerKey, cart, s.opts.TTL); err != nil {
		return err
	}
	if !owner.Authenticated() || s.cartRepo == nil {
		return nil
	}

	mirrorErr := s.cartRepo.ReplaceForUser(owner.UserID, mirrorRows(cart))
	if mirrorErr == nil {
		return nil
	}
	// 本地变更不回滚，标记待同步后交给队列补偿
	logger.Warnw("cart_mirror_failed", "owner", cart.OwnerKey, "error", mirrorErr)
	cart.MirrorPending = true
	if err := s.store.Save(ctx, cart.OwnerKey, cart, s.opts.TTL); err != nil {
		logger.Errorw("cart_mirror_flag_save_failed", "owner", cart.OwnerKey, "error", err)
	}
	if err := s.queueClient.EnqueueCartSync(queue.CartSyncPayload{OwnerKey: cart.OwnerKey}); err != nil {
		logger.Errorw("cart_sync_enqueue_failed", "owner", cart.OwnerKey, "error", err)
	}
	return nil
}

func (s *CartService) addLine(cart *Cart, productID, variantID uint, quantity int) error {
	if quantity <= 0 || (s.opts.MaxLineQuantity > 0 && quantity > s.opts.MaxLineQuantity) {
		return ErrInvalidQuantity
	}
	line, err := s.catalogLine(productID, variantID)
	if err != nil {
		return err
	}
	if index := cart.findProductLine(productID, variantID); index >= 0 {
		existing := &cart.Lines[index]
		existing.Quantity = s.capQuantity(existing.Quantity + quantity)
		existing.UnitPrice = line.UnitPrice
		existing.Name = line.Name
		existing.VariantLabel = line.VariantLabel
		existing.ImageURL = line.ImageURL
		return nil
	}
	line.LineID = uuid.NewString()
	line.Quantity = quantity
	cart.Lines = append(cart.Lines, line)
	return nil
}

func (s *CartService) setLineQuantity(cart *Cart, lineID string, quantity int) error {
	index := cart.findLine(strings.TrimSpace(lineID))
	if index < 0 {
		return ErrCartItemNotFound
	}
	if quantity <= 0 {
		cart.removeAt(index)
		return nil
	}
	if s.opts.MaxLineQuantity > 0 && quantity > s.opts.MaxLineQuantity {
		return ErrInvalidQuantity
	}
	cart.Lines[index].Quantity = quantity
	return nil
}

func (s *CartService) applyMutation(cart *Cart, mutation CartMutation) error {
	switch strings.ToLower(strings.TrimSpace(mutation.Op)) {
	case constants.CartMutationAdd:
		return s.addLine(cart, mutation.ProductID, mutation.VariantID, mutation.Quantity)
	case constants.CartMutationSet:
		lineID := strings.TrimSpace(mutation.LineID)
		if lineID == "" {
			index := cart.findProductLine(mutation.ProductID, mutation.VariantID)
			if index < 0 {
				if mutation.Quantity <= 0 {
					return nil
				}
				return s.addLine(cart, mutation.ProductID, mutation.VariantID, mutation.Quantity)
			}
			lineID = cart.Lines[index].LineID
		}
		return s.setLineQuantity(cart, lineID, mutation.Quantity)
	case constants.CartMutationRemove:
		index := cart.findLine(strings.TrimSpace(mutation.LineID))
		if index < 0 {
			index = cart.findProductLine(mutation.ProductID, mutation.VariantID)
		}
		if index >= 0 {
			cart.removeAt(index)
		}
		return nil
	case constants.CartMutationClear:
		cart.Lines = []CartLine{}
		return nil
	default:
		return ErrCartMutationInvalid
	}
}

func (s *CartService) catalogLine(productID, variantID uint) (CartLine, error) {
	if productID == 0 {
		return CartLine{}, ErrProductNotAvailable
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return CartLine{}, err
	}
	if product == nil || !product.IsActive {
		return CartLine{}, ErrProductNotAvailable
	}
	var variant *models.ProductVariant
	if variantID != 0 {
		for i := range product.Variants {
			if product.Variants[i].ID == variantID {
				variant = &product.Variants[i]
				break
			}
		}
		if variant == nil || !variant.IsActive {
			return CartLine{}, ErrProductNotAvailable
		}
	}
	line := CartLine{
		ProductID: product.ID,
		VariantID: variantID,
		UnitPrice: product.EffectivePrice(variant),
		Name:      product.Title,
		ImageURL:  product.ImageURL,
	}
	if variant != nil {
		line.VariantLabel = variant.Label
	}
	return line, nil
}

func (s *CartService) capQuantity(quantity int) int {
	if s.opts.MaxLineQuantity > 0 && quantity > s.opts.MaxLineQuantity {
		return s.opts.MaxLineQuantity
	}
	return quantity
}

func mirrorRows(cart *Cart) []models.CartItem {
	rows := make([]models.CartItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		rows = append(rows, models.CartItem{
			LineID:    line.LineID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Name:      line.Name,
			ImageURL:  line.ImageURL,
		})
	}
	return rows
}
