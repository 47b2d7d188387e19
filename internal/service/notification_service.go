package service

import (
	"bytes"
	"context"
	"errors"
	htmltemplate "html/template"
	"net/mail"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/models"
	"github.com/dujiao-next/bookshop/internal/queue"
	"github.com/dujiao-next/bookshop/internal/repository"
)

const (
	defaultNotificationMaxAttempts = 5
	defaultNotificationBatchSize   = 50
	maxStoredErrorLength           = 500
)

// RetryPendingResult 一轮重发的统计
type RetryPendingResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gave_up"`
}

// NotificationService 邮件通知分发：发送失败写入待发表，由定时任务重发
type NotificationService struct {
	sender      EmailSender
	pendingRepo repository.PendingEmailRepository
	orderRepo   repository.OrderRepository
	queueClient *queue.Client
	cfg         config.NotificationConfig
	now         func() time.Time
	inflight    sync.WaitGroup
}

// NewNotificationService 创建通知服务
func NewNotificationService(
	sender EmailSender,
	pendingRepo repository.PendingEmailRepository,
	orderRepo repository.OrderRepository,
	queueClient *queue.Client,
	cfg config.NotificationConfig,
) *NotificationService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultNotificationMaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultNotificationBatchSize
	}
	if strings.TrimSpace(cfg.StoreName) == "" {
		cfg.StoreName = "Bookshop"
	}
	return &NotificationService{
		sender:      sender,
		pendingRepo: pendingRepo,
		orderRepo:   orderRepo,
		queueClient: queueClient,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Dispatch 发送邮件；发送失败时落库待重发并返回 nil
func (s *NotificationService) Dispatch(ctx context.Context, msg EmailMessage) error {
	msg.To = strings.ToLower(strings.TrimSpace(msg.To))
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return ErrInvalidEmail
	}
	log := logger.WithContext(ctx, "to", msg.To, "subject", msg.Subject)

	sendErr := s.sender.Send(msg)
	if sendErr == nil {
		log.Infow("email_sent")
		return nil
	}

	now := s.now()
	row := &models.PendingEmail{
		To:            msg.To,
		Subject:       msg.Subject,
		HTML:          msg.HTML,
		Text:          msg.Text,
		Status:        constants.PendingEmailStatusPending,
		Attempts:      1,
		ErrorMessage:  truncateError(sendErr),
		LastAttemptAt: &now,
	}
	if errors.Is(sendErr, ErrEmailRecipientRejected) {
		row.Status = constants.PendingEmailStatusFailed
	}
	if err := s.pendingRepo.Create(row); err != nil {
		log.Errorw("pending_email_store_failed", "send_error", sendErr, "error", err)
		return err
	}
	log.Warnw("email_send_failed_stored", "pending_email_id", row.ID, "status", row.Status, "error", sendErr)
	return nil
}

// SendOrderStatus 渲染并发送订单状态邮件
func (s *NotificationService) SendOrderStatus(ctx context.Context, orderID uint, status string) error {
	order, err := retryRead(ctx, "order_load", func() (*models.Order, error) {
		return s.orderRepo.GetByID(orderID)
	})
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if strings.TrimSpace(order.ContactEmail) == "" {
		logger.Infow("order_status_email_skipped", "order_id", order.ID, "reason", "no_contact_email")
		return nil
	}
	msg, err := renderOrderStatusEmail(order, status, s.cfg.StoreName, s.cfg.StoreURL)
	if err != nil {
		return err
	}
	return s.Dispatch(ctx, msg)
}

// NotifyOrderStatus 订单邮件异步投递：优先入队，队列不可用时由 goroutine 直接发送
func (s *NotificationService) NotifyOrderStatus(order *models.Order, status string) {
	if s == nil || order == nil || order.ID == 0 {
		return
	}
	if strings.TrimSpace(order.ContactEmail) == "" {
		return
	}
	status = strings.TrimSpace(status)
	if s.queueClient.Enabled() {
		err := s.queueClient.EnqueueOrderStatusEmail(queue.OrderStatusEmailPayload{
			OrderID: order.ID,
			Status:  status,
		})
		if err == nil {
			return
		}
		logger.Warnw("order_status_email_enqueue_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"status", status,
			"error", err,
		)
	}
	orderID := order.ID
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.SendOrderStatus(context.Background(), orderID, status); err != nil {
			logger.Warnw("order_status_email_send_failed", "order_id", orderID, "status", status, "error", err)
		}
	}()
}

// Wait 等待直接发送中的订单邮件结束；发送失败的邮件已由 Dispatch 写入待发表
func (s *NotificationService) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyLowStock 向运营邮箱发送低库存提醒
func (s *NotificationService) NotifyLowStock(ctx context.Context, payload queue.StockLowNotificationPayload) error {
	if s == nil {
		return nil
	}
	to := strings.TrimSpace(s.cfg.OpsEmail)
	if to == "" {
		logger.Debugw("stock_low_notification_skipped", "product_id", payload.ProductID, "reason", "no_ops_email")
		return nil
	}
	msg, err := renderLowStockEmail(payload, s.cfg.StoreName)
	if err != nil {
		return err
	}
	msg.To = to
	return s.Dispatch(ctx, msg)
}

// NotifyOps 向运营邮箱发送一条纯文本提醒
func (s *NotificationService) NotifyOps(ctx context.Context, subject, body string) error {
	if s == nil {
		return nil
	}
	to := strings.TrimSpace(s.cfg.OpsEmail)
	if to == "" {
		return nil
	}
	return s.Dispatch(ctx, EmailMessage{
		To:      to,
		Subject: "[" + s.cfg.StoreName + "] " + subject,
		HTML:    "<p>" + htmltemplate.HTMLEscapeString(body) + "</p>",
		Text:    body,
	})
}

// RetryPending 重发到期的待发邮件
func (s *NotificationService) RetryPending(ctx context.Context, limit int) (*RetryPendingResult, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	rows, err := s.pendingRepo.ListDue(s.cfg.MaxAttempts, limit)
	if err != nil {
		return nil, err
	}
	result := &RetryPendingResult{}
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		row := rows[i]
		result.Attempted++
		sent, gaveUp, err := s.resend(&row)
		if err != nil {
			return result, err
		}
		switch {
		case sent:
			result.Sent++
		case gaveUp:
			result.Failed++
			result.GaveUp++
		default:
			result.Failed++
		}
	}
	if result.Attempted > 0 {
		logger.Infow("pending_email_retry_finished",
			"attempted", result.Attempted,
			"sent", result.Sent,
			"failed", result.Failed,
			"gave_up", result.GaveUp,
		)
	}
	return result, nil
}

// RetryOne 管理端手动重发单封邮件
func (s *NotificationService) RetryOne(_ context.Context, id uint) (*models.PendingEmail, error) {
	affected, err := s.pendingRepo.ResetForRetry(id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrPendingEmailNotFound
	}
	row, err := s.pendingRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrPendingEmailNotFound
	}
	if _, _, err := s.resend(row); err != nil {
		return nil, err
	}
	return s.pendingRepo.GetByID(id)
}

// ListPending 管理端待发邮件列表
func (s *NotificationService) ListPending(filter repository.PendingEmailListFilter) ([]models.PendingEmail, int64, error) {
	return s.pendingRepo.List(filter)
}

func (s *NotificationService) resend(row *models.PendingEmail) (sent bool, gaveUp bool, err error) {
	now := s.now()
	sendErr := s.sender.Send(EmailMessage{
		To:      row.To,
		Subject: row.Subject,
		HTML:    row.HTML,
		Text:    row.Text,
	})
	if sendErr == nil {
		if err := s.pendingRepo.MarkSent(row.ID, now); err != nil {
			return false, false, err
		}
		return true, false, nil
	}
	gaveUp = row.Attempts+1 >= s.cfg.MaxAttempts || errors.Is(sendErr, ErrEmailRecipientRejected)
	if err := s.pendingRepo.MarkAttemptFailed(row.ID, truncateError(sendErr), now, gaveUp); err != nil {
		return false, false, err
	}
	if gaveUp {
		logger.Errorw("pending_email_gave_up", "pending_email_id", row.ID, "to", row.To, "attempts", row.Attempts+1, "error", sendErr)
	}
	return false, gaveUp, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxStoredErrorLength {
		return msg[:maxStoredErrorLength]
	}
	return msg
}

type orderEmailView struct {
	StoreName    string
	StoreURL     string
	OrderNo      string
	CustomerName string
	Status       string
	Headline     string
	Items        []orderEmailItem
	Subtotal     string
	Shipping     string
	Tax          string
	Discount     string
	Total        string
	Currency     string
	HasDiscount  bool
}

type orderEmailItem struct {
	Name     string
	Quantity int
	Total    string
}

var orderStatusHeadlines = map[string]string{
	constants.OrderStatusPending:    "We have received your order",
	constants.OrderStatusProcessing: "Your payment is confirmed and we are preparing your books",
	constants.OrderStatusShipped:    "Your order is on its way",
	constants.OrderStatusDelivered:  "Your order has been delivered",
	constants.OrderStatusCancelled:  "Your order has been cancelled",
	constants.OrderStatusRefunded:   "Your order has been refunded",
}

var orderEmailHTML = htmltemplate.Must(htmltemplate.New("order_html").Parse(`<!doctype html>
<html><body style="font-family:Georgia,serif;color:#222">
<h2>{{.StoreName}}</h2>
<p>Hi {{.CustomerName}},</p>
<p>{{.Headline}}.</p>
<p>Order <strong>{{.OrderNo}}</strong> · status <strong>{{.Status}}</strong></p>
<table cellpadding="4" style="border-collapse:collapse">
{{range .Items}}<tr><td>{{.Name}}</td><td>× {{.Quantity}}</td><td align="right">{{.Total}}</td></tr>
{{end}}<tr><td colspan="2">Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
<tr><td colspan="2">Shipping</td><td align="right">{{.Shipping}}</td></tr>
<tr><td colspan="2">Tax</td><td align="right">{{.Tax}}</td></tr>
{{if .HasDiscount}}<tr><td colspan="2">Discount</td><td align="right">-{{.Discount}}</td></tr>
{{end}}<tr><td colspan="2"><strong>Total</strong></td><td align="right"><strong>{{.Currency}} {{.Total}}</strong></td></tr>
</table>
{{if .StoreURL}}<p><a href="{{.StoreURL}}">{{.StoreURL}}</a></p>{{end}}
</body></html>`))

var orderEmailText = texttemplate.Must(texttemplate.New("order_text").Parse(`{{.StoreName}}

Hi {{.CustomerName}},

{{.Headline}}.

Order {{.OrderNo}} - status {{.Status}}
{{range .Items}}
  {{.Name}} x {{.Quantity}}  {{.Total}}{{end}}

Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Tax: {{.Tax}}
{{if .HasDiscount}}Discount: -{{.Discount}}
{{end}}Total: {{.Currency}} {{.Total}}
`))

func renderOrderStatusEmail(order *models.Order, status, storeName, storeURL string) (EmailMessage, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = order.Status
	}
	headline, ok := orderStatusHeadlines[status]
	if !ok {
		headline = "Your order has been updated"
	}
	name := strings.TrimSpace(order.ShippingAddress.Name)
	if name == "" {
		name = "reader"
	}
	view := orderEmailView{
		StoreName:    storeName,
		StoreURL:     strings.TrimSpace(storeURL),
		OrderNo:      order.OrderNo,
		CustomerName: name,
		Status:       status,
		Headline:     headline,
		Subtotal:     order.Subtotal.String(),
		Shipping:     order.ShippingAmount.String(),
		Tax:          order.TaxAmount.String(),
		Discount:     order.DiscountAmount.String(),
		Total:        order.TotalAmount.String(),
		Currency:     order.Currency,
		HasDiscount:  order.DiscountAmount.IsPositive(),
	}
	for _, item := range order.Items {
		label := item.ProductName
		if item.VariantLabel != "" {
			label += " (" + item.VariantLabel + ")"
		}
		view.Items = append(view.Items, orderEmailItem{Name: label, Quantity: item.Quantity, Total: item.TotalPrice.String()})
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := orderEmailHTML.Execute(&htmlBuf, view); err != nil {
		return EmailMessage{}, err
	}
	if err := orderEmailText.Execute(&textBuf, view); err != nil {
		return EmailMessage{}, err
	}
	return EmailMessage{
		To:      order.ContactEmail,
		Subject: "[" + storeName + "] Order " + order.OrderNo + " " + status,
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}

var lowStockEmailText = texttemplate.Must(texttemplate.New("low_stock_text").Parse(
	`"{{.Title}}" (product {{.ProductID}}) is down to {{.Stock}} copies; the alert threshold is {{.Threshold}}.
`))

func renderLowStockEmail(payload queue.StockLowNotificationPayload, storeName string) (EmailMessage, error) {
	var textBuf bytes.Buffer
	if err := lowStockEmailText.Execute(&textBuf, payload); err != nil {
		return EmailMessage{}, err
	}
	text := textBuf.String()
	return EmailMessage{
		Subject: "[" + storeName + "] Low stock: " + payload.Title,
		HTML:    "<p>" + htmltemplate.HTMLEscapeString(strings.TrimSpace(text)) + "</p>",
		Text:    text,
	}, nil
}
