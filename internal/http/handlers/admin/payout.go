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

// SettleRequest 结算请求，现金与住宿金额至少一项大于零
type SettleRequest struct {
	PartnerCode         string       `json:"partner_code" binding:"required"`
	CashAmount          models.Money `json:"cash_amount"`
	AccommodationAmount models.Money `json:"accommodation_amount"`
	Notes               string       `json:"notes"`
	BookingIDs          []uint       `json:"booking_ids"`
}

// CancelPayoutRequest 取消结算请求
type CancelPayoutRequest struct {
	Reason string `json:"reason"`
}

// SettlePayout 发起结算
func (h *Handler) SettlePayout(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	payouts, err := h.PayoutService.Settle(c.Request.Context(), service.SettleInput{
		PartnerCode:         req.PartnerCode,
		CashAmount:          req.CashAmount,
		AccommodationAmount: req.AccommodationAmount,
		Notes:               req.Notes,
		BookingIDs:          req.BookingIDs,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payouts)
}

// ListPayouts 结算记录列表
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	rows, total, err := h.PayoutService.ListPayouts(repository.PayoutListFilter{
		Page:         page,
		PageSize:     pageSize,
		PartnerCode:  strings.TrimSpace(c.Query("partner_code")),
		PayoutType:   strings.TrimSpace(c.Query("payout_type")),
		PayoutStatus: strings.TrimSpace(c.Query("payout_status")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetPayout 结算详情
func (h *Handler) GetPayout(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrPayoutNotFound)
		return
	}
	payout, err := h.PayoutService.GetPayout(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// CompletePayout 标记结算已发放
func (h *Handler) CompletePayout(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrPayoutNotFound)
		return
	}
	payout, err := h.PayoutService.CompletePayout(c.Request.Context(), id, handlershared.AdminIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// CancelPayout 取消结算并回补待结佣金
func (h *Handler) CancelPayout(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrPayoutNotFound)
		return
	}
	var req CancelPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	payout, err := h.PayoutService.CancelPayout(c.Request.Context(), id, req.Reason, handlershared.AdminIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}
