package shared

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAdminID 鉴权中间件写入的管理员 ID
	ContextKeyAdminID = "admin_id"
	// ContextKeyAdminName 鉴权中间件写入的管理员账号（Token subject）
	ContextKeyAdminName = "admin_username"
)

// AdminIdentity 读取当前管理员账号，作为 confirmed_by / processed_by
func AdminIdentity(c *gin.Context) string {
	if value, ok := c.Get(ContextKeyAdminName); ok {
		if name, ok := value.(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// AdminID 读取当前管理员 ID
func AdminID(c *gin.Context) uint {
	if value, ok := c.Get(ContextKeyAdminID); ok {
		if id, ok := value.(uint); ok {
			return id
		}
	}
	return 0
}

// ParamUint 解析路径中的正整数 ID
func ParamUint(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
