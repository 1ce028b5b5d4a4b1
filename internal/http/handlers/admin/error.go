package admin

import (
	handlershared "github.com/zhiyin-next/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondServiceError(c *gin.Context, err error) {
	handlershared.RespondServiceError(c, err)
}

func respondBadRequest(c *gin.Context, err error) {
	handlershared.RespondBadRequest(c, err)
}
