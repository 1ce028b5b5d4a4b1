package admin

import (
	"strconv"
	"strings"

	"github.com/zhiyin-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetDashboard 后台总览，refresh=true 时跳过缓存
func (h *Handler) GetDashboard(c *gin.Context) {
	forceRefresh, _ := strconv.ParseBool(strings.TrimSpace(c.DefaultQuery("refresh", "false")))
	data, err := h.DashboardService.GetDashboardData(c.Request.Context(), forceRefresh)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, data)
}

// GetPartnerSummary 单一大使的账务摘要
func (h *Handler) GetPartnerSummary(c *gin.Context) {
	summary, err := h.DashboardService.GetPartnerSummary(c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, summary)
}
