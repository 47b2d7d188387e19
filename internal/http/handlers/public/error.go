package public

import (
	handlershared "github.com/dujiao-next/bookshop/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondServiceError(c, err, fallbackMsg)
}
