package public

import "github.com/zhiyin-next/internal/provider"

// Handler 前台/公开接口处理器入口
// 说明：该处理器服务官网订房表单与大使自助查询，无需登录。
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
