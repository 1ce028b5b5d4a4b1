package admin

import (
	"strings"

	handlershared "github.com/zhiyin-next/internal/http/handlers/shared"
	"github.com/zhiyin-next/internal/http/response"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"
	"github.com/zhiyin-next/internal/service"

	"github.com/gin-gonic/gin"
)

// DeductPointsRequest 扣除住宿点数请求
type DeductPointsRequest struct {
	PartnerCode      string       `json:"partner_code"`
	Amount           models.Money `json:"amount"`
	RelatedBookingID *uint        `json:"related_booking_id"`
	Notes            string       `json:"notes"`
}

// DeductPointsResponse 扣点结果
type DeductPointsResponse struct {
	Partner     *models.Partner           `json:"partner"`
	Transaction *models.PointsTransaction `json:"transaction"`
}

// DeductPartnerPoints 扣除大使住宿点数
func (h *Handler) DeductPartnerPoints(c *gin.Context) {
	var req DeductPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	partnerCode := strings.TrimSpace(c.Param("code"))
	if partnerCode == "" {
		partnerCode = req.PartnerCode
	}
	partner, txn, err := h.PointsService.DeductPoints(c.Request.Context(), service.DeductPointsInput{
		PartnerCode:      partnerCode,
		Amount:           req.Amount,
		RelatedBookingID: req.RelatedBookingID,
		Notes:            req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, DeductPointsResponse{Partner: partner, Transaction: txn})
}

// ListPointsTransactions 点数流水列表
func (h *Handler) ListPointsTransactions(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	partnerCode := strings.TrimSpace(c.Param("code"))
	if partnerCode == "" {
		partnerCode = strings.TrimSpace(c.Query("partner_code"))
	}
	rows, total, err := h.PointsService.ListTransactions(repository.PointsTransactionListFilter{
		Page:        page,
		PageSize:    pageSize,
		PartnerCode: partnerCode,
		TxnType:     strings.TrimSpace(c.Query("txn_type")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
