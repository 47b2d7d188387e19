package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/repository"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

// ListPromoCodes 优惠码列表
func (h *Handler) ListPromoCodes(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.PromoCodeListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "is_active is invalid", nil)
			return
		}
		filter.IsActive = &active
	}
	promos, total, err := h.PromoAdminService.List(filter)
	if err != nil {
		respondServiceError(c, err, "failed to load promo codes")
		return
	}
	response.SuccessWithPage(c, promos, handlershared.BuildPagination(page, pageSize, total))
}

// CreatePromoCode 创建优惠码
func (h *Handler) CreatePromoCode(c *gin.Context) {
	var req service.PromoCodeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	promo, err := h.PromoAdminService.Create(req)
	if err != nil {
		respondServiceError(c, err, "failed to create promo code")
		return
	}
	response.Success(c, promo)
}

// UpdatePromoCode 更新优惠码
func (h *Handler) UpdatePromoCode(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req service.PromoCodeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	promo, err := h.PromoAdminService.Update(id, req)
	if err != nil {
		respondServiceError(c, err, "failed to update promo code")
		return
	}
	response.Success(c, promo)
}

// DeletePromoCode 删除优惠码
func (h *Handler) DeletePromoCode(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.PromoAdminService.Delete(id); err != nil {
		respondServiceError(c, err, "failed to delete promo code")
		return
	}
	response.Success(c, nil)
}
