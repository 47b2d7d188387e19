package public

import (
	"strings"

	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
)

const maxCartMutationsPerSync = 100

// CartItemRequest 加购请求
type CartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	VariantID uint `json:"variant_id"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// CartQuantityRequest 修改数量请求
type CartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// CartSyncRequest 离线变更回放请求
type CartSyncRequest struct {
	Mutations []service.CartMutation `json:"mutations" binding:"required"`
}

// GetCart 获取购物车
func (h *Handler) GetCart(c *gin.Context) {
	owner, ok := resolveCartOwner(c, true)
	if !ok {
		return
	}
	cart, err := h.CartService.Get(c.Request.Context(), owner)
	if err != nil {
		respondServiceError(c, err, "failed to load cart")
		return
	}
	response.Success(c, cart)
}

// AddCartItem 加入购物车，同一商品版本合并数量
func (h *Handler) AddCartItem(c *gin.Context) {
	var req CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	owner, ok := resolveCartOwner(c, true)
	if !ok {
		return
	}
	cart, err := h.CartService.AddItem(c.Request.Context(), owner, service.AddCartItemInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondServiceError(c, err, "failed to update cart")
		return
	}
	response.Success(c, cart)
}

// UpdateCartItem 修改购物车行数量，0 表示删除
func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req CartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	cart, err := h.CartService.UpdateQuantity(c.Request.Context(), owner, strings.TrimSpace(c.Param("id")), req.Quantity)
	if err != nil {
		respondServiceError(c, err, "failed to update cart")
		return
	}
	response.Success(c, cart)
}

// RemoveCartItem 删除购物车行
func (h *Handler) RemoveCartItem(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	cart, err := h.CartService.RemoveItem(c.Request.Context(), owner, strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondServiceError(c, err, "failed to update cart")
		return
	}
	response.Success(c, cart)
}

// ClearCart 清空购物车
func (h *Handler) ClearCart(c *gin.Context) {
	owner, ok := resolveCartOwner(c, false)
	if !ok {
		return
	}
	cart, err := h.CartService.Clear(c.Request.Context(), owner)
	if err != nil {
		respondServiceError(c, err, "failed to clear cart")
		return
	}
	response.Success(c, cart)
}

// SyncCart 回放离线客户端排队的变更
func (h *Handler) SyncCart(c *gin.Context) {
	var req CartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if len(req.Mutations) > maxCartMutationsPerSync {
		respondError(c, response.CodeBadRequest, "too many mutations in one sync", nil)
		return
	}
	owner, ok := resolveCartOwner(c, true)
	if !ok {
		return
	}
	cart, results, err := h.CartService.ApplyMutations(c.Request.Context(), owner, req.Mutations)
	if err != nil {
		respondServiceError(c, err, "failed to sync cart")
		return
	}
	response.Success(c, gin.H{
		"cart":    cart,
		"results": results,
	})
}

// MergeCart 登录用户并入游客购物车
func (h *Handler) MergeCart(c *gin.Context) {
	userID := getUserID(c)
	if userID == "" {
		respondError(c, response.CodeUnauthorized, "sign in to merge carts", nil)
		return
	}
	guestToken := strings.TrimSpace(c.GetHeader(CartTokenHeader))
	if guestToken == "" {
		respondError(c, response.CodeBadRequest, "cart token is required", nil)
		return
	}
	cart, err := h.CartService.MergeGuestCart(c.Request.Context(), guestToken, userID)
	if err != nil {
		respondServiceError(c, err, "failed to merge cart")
		return
	}
	requestLog(c).Infow("cart_guest_merged", "user_id", userID, "item_count", cart.ItemCount)
	response.Success(c, cart)
}
