package public

import (
	handlershared "github.com/zhiyin-next/internal/http/handlers/shared"
	"github.com/zhiyin-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetPartnerSummary 大使以推荐码查询自己的累计推荐与佣金
func (h *Handler) GetPartnerSummary(c *gin.Context) {
	summary, err := h.DashboardService.GetPartnerSummary(c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, summary)
}
