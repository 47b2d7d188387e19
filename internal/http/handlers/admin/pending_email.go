package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"

	"github.com/gin-gonic/gin"
)

// RetryPendingEmailsRequest 批量重发请求
type RetryPendingEmailsRequest struct {
	Limit int `json:"limit"`
}

// ListPendingEmails 待发邮件列表
func (h *Handler) ListPendingEmails(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.NotificationService.ListPending(repository.PendingEmailListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		To:       strings.ToLower(strings.TrimSpace(c.Query("to"))),
	})
	if err != nil {
		respondServiceError(c, err, "failed to load pending emails")
		return
	}
	response.SuccessWithPage(c, rows, handlershared.BuildPagination(page, pageSize, total))
}

// RetryPendingEmails 批量重发；队列可用时异步执行
func (h *Handler) RetryPendingEmails(c *gin.Context) {
	var req RetryPendingEmailsRequest
	_ = c.ShouldBindJSON(&req)

	if h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueuePendingEmailRetry(queue.PendingEmailRetryPayload{Limit: req.Limit})
		if err == nil {
			response.Success(c, gin.H{"queued": true})
			return
		}
		requestLog(c).Warnw("admin_pending_email_enqueue_failed", "error", err)
	}
	result, err := h.NotificationService.RetryPending(c.Request.Context(), req.Limit)
	if err != nil {
		respondServiceError(c, err, "failed to retry pending emails")
		return
	}
	response.Success(c, result)
}

// RetryPendingEmail 手动重发单封邮件（包括已放弃的）
func (h *Handler) RetryPendingEmail(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	row, err := h.NotificationService.RetryOne(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "failed to retry pending email")
		return
	}
	response.Success(c, row)
}
