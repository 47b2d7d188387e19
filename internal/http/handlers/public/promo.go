package public

import (
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/models"

	"github.com/gin-gonic/gin"
)

// PromoValidateRequest 优惠码试算请求
type PromoValidateRequest struct {
	Code     string       `json:"code" binding:"required"`
	Subtotal models.Money `json:"subtotal"`
}

// ValidatePromo 校验优惠码并返回折扣
func (h *Handler) ValidatePromo(c *gin.Context) {
	var req PromoValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	quote, err := h.PromoService.Validate(c.Request.Context(), req.Code, req.Subtotal)
	if err != nil {
		respondServiceError(c, err, "failed to validate promo code")
		return
	}
	response.Success(c, quote)
}
