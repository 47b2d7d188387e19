package public

import (
	"strings"

	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"
	"github.com/dujiao-next/bookshop/internal/http/response"
	"github.com/dujiao-next/bookshop/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CartTokenHeader 游客购物车令牌请求头
const CartTokenHeader = "X-Cart-Token"

const maxCartTokenLength = 64

func getUserID(c *gin.Context) string {
	return handlershared.GetContextString(c, "user_id")
}

func getUserEmail(c *gin.Context) string {
	return handlershared.GetContextString(c, "user_email")
}

// resolveCartOwner 已登录用户优先；游客读取令牌，create 为 true 时签发新令牌并回写响应头
func resolveCartOwner(c *gin.Context, create bool) (service.CartOwner, bool) {
	if userID := getUserID(c); userID != "" {
		return service.CartOwner{UserID: userID}, true
	}
	token := strings.TrimSpace(c.GetHeader(CartTokenHeader))
	if len(token) > maxCartTokenLength {
		respondError(c, response.CodeBadRequest, "cart token is invalid", nil)
		return service.CartOwner{}, false
	}
	if token == "" {
		if !create {
			respondError(c, response.CodeUnauthorized, "cart token is required", nil)
			return service.CartOwner{}, false
		}
		token = uuid.NewString()
	}
	c.Header(CartTokenHeader, token)
	return service.CartOwner{GuestToken: token}, true
}
