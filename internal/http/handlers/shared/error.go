package shared

import (
	"errors"

	"github.com/zhiyin-next/internal/http/response"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if c.Request != nil {
		return logger.FromContext(c.Request.Context())
	}
	return logger.S()
}

// ErrorCode 将业务错误类别映射为响应码。
func ErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return response.CodeBadRequest, "参数错误"
	case errors.Is(err, service.ErrUnauthorized):
		return response.CodeUnauthorized, "未授权"
	case errors.Is(err, service.ErrNotFound):
		return response.CodeNotFound, "资源不存在"
	case errors.Is(err, service.ErrInvalidStateTransition):
		return response.CodeConflict, "状态不允许此操作"
	case errors.Is(err, service.ErrInsufficientBalance):
		return response.CodeUnprocessable, "余额不足"
	default:
		return response.CodeInternal, "系统错误"
	}
}

// RespondServiceError 按错误类别返回响应；系统错误记录日志且不回传细节。
func RespondServiceError(c *gin.Context, err error) {
	code, msg := ErrorCode(err)
	if code == response.CodeInternal {
		RequestLog(c).Errorw("handler_error", "code", code, "error", err)
		response.ErrorWithReason(c, code, msg, "internal error")
		return
	}
	RequestLog(c).Infow("handler_rejected", "code", code, "error", err)
	response.ErrorWithReason(c, code, msg, err.Error())
}

// RespondBadRequest 请求参数无法解析
func RespondBadRequest(c *gin.Context, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	RequestLog(c).Infow("handler_bad_request", "error", err)
	response.ErrorWithReason(c, response.CodeBadRequest, "参数错误", reason)
}
