package admin

import (
	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, "admin_id")
}

func isSuperAdmin(c *gin.Context) bool {
	value, ok := c.Get("admin_is_super")
	if !ok {
		return false
	}
	super, _ := value.(bool)
	return super
}
