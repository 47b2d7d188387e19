package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/models"

	"gorm.io/gorm"
)

// PendingEmailRepository 待发邮件数据访问接口
type PendingEmailRepository interface {
	Create(email *models.PendingEmail) error
	GetByID(id uint) (*models.PendingEmail, error)
	ListDue(maxAttempts, limit int) ([]models.PendingEmail, error)
	List(filter PendingEmailListFilter) ([]models.PendingEmail, int64, error)
	MarkSent(id uint, sentAt time.Time) error
	MarkAttemptFailed(id uint, errMsg string, attemptedAt time.Time, giveUp bool) error
	ResetForRetry(id uint) (int64, error)
}

// GormPendingEmailRepository GORM 实现
type GormPendingEmailRepository struct {
	db *gorm.DB
}

// NewPendingEmailRepository 创建待发邮件仓库
func NewPendingEmailRepository(db *gorm.DB) *GormPendingEmailRepository {
	return &GormPendingEmailRepository{db: db}
}

// Create 写入待发邮件
func (r *GormPendingEmailRepository) Create(email *models.PendingEmail) error {
	if strings.TrimSpace(email.Status) == "" {
		email.Status = constants.PendingEmailStatusPending
	}
	return r.db.Create(email).Error
}

// GetByID 根据 ID 获取待发邮件
func (r *GormPendingEmailRepository) GetByID(id uint) (*models.PendingEmail, error) {
	var email models.PendingEmail
	if err := r.db.First(&email, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}

// ListDue 获取待重试邮件（按创建顺序）
func (r *GormPendingEmailRepository) ListDue(maxAttempts, limit int) ([]models.PendingEmail, error) {
	query := r.db.Where("status = ?", constants.PendingEmailStatusPending)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var emails []models.PendingEmail
	if err := query.Order("id asc").Find(&emails).Error; err != nil {
		return nil, err
	}
	return emails, nil
}

// List 管理端待发邮件列表
func (r *GormPendingEmailRepository) List(filter PendingEmailListFilter) ([]models.PendingEmail, int64, error) {
	query := r.db.Model(&models.PendingEmail{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if to := strings.TrimSpace(filter.To); to != "" {
		query = query.Where("to_address = ?", strings.ToLower(to))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var emails []models.PendingEmail
	if err := applyPagination(query, filter.Page, filter.PageSize).Order("id desc").Find(&emails).Error; err != nil {
		return nil, 0, err
	}
	return emails, total, nil
}

// MarkSent 标记发送成功
func (r *GormPendingEmailRepository) MarkSent(id uint, sentAt time.Time) error {
	return r.db.Model(&models.PendingEmail{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          constants.PendingEmailStatusSent,
		"attempts":        gorm.Expr("attempts + ?", 1),
		"last_attempt_at": sentAt,
		"sent_at":         sentAt,
		"error_message":   "",
	}).Error
}

// MarkAttemptFailed 记录一次失败尝试，giveUp 时转为 failed
func (r *GormPendingEmailRepository) MarkAttemptFailed(id uint, errMsg string, attemptedAt time.Time, giveUp bool) error {
	updates := map[string]interface{}{
		"attempts":        gorm.Expr("attempts + ?", 1),
		"last_attempt_at": attemptedAt,
		"error_message":   errMsg,
	}
	if giveUp {
		updates["status"] = constants.PendingEmailStatusFailed
	}
	return r.db.Model(&models.PendingEmail{}).Where("id = ?", id).Updates(updates).Error
}

// ResetForRetry 管理端手动重试：failed 重新置为 pending 并清零次数
func (r *GormPendingEmailRepository) ResetForRetry(id uint) (int64, error) {
	result := r.db.Model(&models.PendingEmail{}).
		Where("id = ? AND status <> ?", id, constants.PendingEmailStatusSent).
		Updates(map[string]interface{}{
			"status":   constants.PendingEmailStatusPending,
			"attempts": 0,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
