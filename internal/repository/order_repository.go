package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/bookshop/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order, items []models.OrderItem) error
	GetByID(id uint) (*models.Order, error)
	GetByOrderNo(orderNo string) (*models.Order, error)
	GetByOrderNoAndUser(orderNo string, userID string) (*models.Order, error)
	GetByOrderNoAndEmail(orderNo, email string) (*models.Order, error)
	GetByProviderOrderID(providerOrderID string) (*models.Order, error)
	GetByCheckoutID(checkoutID string) (*models.Order, error)
	ListByUser(filter OrderListFilter) ([]models.Order, int64, error)
	ListAdmin(filter OrderListFilter) ([]models.Order, int64, error)
	UpdateStatus(id uint, status string, updates map[string]interface{}) error
	TransitionPayment(id uint, fromPaymentStatuses []string, updates map[string]interface{}) (int64, error)
	TransitionStatus(id uint, fromStatus, toStatus string, updates map[string]interface{}) (int64, error)
	MarkStockCommitted(id uint) (int64, error)
	ReleaseStockCommitted(id uint) (int64, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单与订单项
func (r *GormOrderRepository) Create(order *models.Order, items []models.OrderItem) error {
	if err := r.db.Omit("Items").Create(order).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := r.db.Create(&items).Error; err != nil {
			return err
		}
	}
	order.Items = items
	return nil
}

func (r *GormOrderRepository) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := query.Preload("Items").First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("id = ?", id))
}

// GetByOrderNo 根据订单号获取订单
func (r *GormOrderRepository) GetByOrderNo(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	return r.first(r.db.Where("order_no = ?", orderNo))
}

// GetByOrderNoAndUser 获取用户订单详情
func (r *GormOrderRepository) GetByOrderNoAndUser(orderNo string, userID string) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	return r.first(r.db.Where("order_no = ? AND user_id = ?", orderNo, userID))
}

// GetByOrderNoAndEmail 游客按订单号与联系邮箱查询
func (r *GormOrderRepository) GetByOrderNoAndEmail(orderNo, email string) (*models.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return r.first(r.db.Where("order_no = ? AND contact_email = ?", orderNo, email))
}

// GetByCheckoutID 根据结算会话获取订单
func (r *GormOrderRepository) GetByCheckoutID(checkoutID string) (*models.Order, error) {
	checkoutID = strings.TrimSpace(checkoutID)
	if checkoutID == "" {
		return nil, nil
	}
	return r.first(r.db.Where("checkout_id = ?", checkoutID).Order("id desc"))
}

// GetByProviderOrderID 根据网关支付单号获取订单
func (r *GormOrderRepository) GetByProviderOrderID(providerOrderID string) (*models.Order, error) {
	providerOrderID = strings.TrimSpace(providerOrderID)
	if providerOrderID == "" {
		return nil, nil
	}
	return r.first(r.db.Where("provider_order_id = ?", providerOrderID))
}

// ListByUser 用户订单列表
func (r *GormOrderRepository) ListByUser(filter OrderListFilter) ([]models.Order, int64, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return []models.Order{}, 0, nil
	}
	return r.list(filter)
}

// ListAdmin 管理端订单列表
func (r *GormOrderRepository) ListAdmin(filter OrderListFilter) ([]models.Order, int64, error) {
	return r.list(filter)
}

func (r *GormOrderRepository) list(filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.OrderNo != "" {
		query = query.Where("order_no = ?", filter.OrderNo)
	}
	if filter.ContactEmail != "" {
		query = query.Where("contact_email = ?", strings.ToLower(strings.TrimSpace(filter.ContactEmail)))
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var orders []models.Order
	if err := query.Preload("Items").Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus 更新订单状态
func (r *GormOrderRepository) UpdateStatus(id uint, status string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = status
	return r.db.Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

// TransitionStatus 仅当订单仍处于 fromStatus 时更新状态，返回影响行数
func (r *GormOrderRepository) TransitionStatus(id uint, fromStatus, toStatus string, updates map[string]interface{}) (int64, error) {
	if id == 0 || fromStatus == "" || toStatus == "" {
		return 0, errors.New("invalid status transition params")
	}
	values := make(map[string]interface{}, len(updates)+1)
	for key, value := range updates {
		values[key] = value
	}
	values["status"] = toStatus
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(values)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// TransitionPayment 仅当支付状态处于 fromPaymentStatuses 之一时更新，返回影响行数
func (r *GormOrderRepository) TransitionPayment(id uint, fromPaymentStatuses []string, updates map[string]interface{}) (int64, error) {
	if id == 0 || len(fromPaymentStatuses) == 0 || len(updates) == 0 {
		return 0, errors.New("invalid payment transition params")
	}
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", id, fromPaymentStatuses).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkStockCommitted 标记库存已扣减，已标记时返回 0
func (r *GormOrderRepository) MarkStockCommitted(id uint) (int64, error) {
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND stock_committed = ?", id, false).
		Update("stock_committed", true)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReleaseStockCommitted 清除库存已扣减标记，未标记时返回 0
func (r *GormOrderRepository) ReleaseStockCommitted(id uint) (int64, error) {
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND stock_committed = ?", id, true).
		Update("stock_committed", false)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
