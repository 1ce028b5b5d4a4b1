package admin

import (
	"strings"
	"time"

	handlershared "github.com/zhiyin-next/internal/http/handlers/shared"
	"github.com/zhiyin-next/internal/http/response"
	"github.com/zhiyin-next/internal/repository"
	"github.com/zhiyin-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePartnerRequest 新增大使请求
type CreatePartnerRequest struct {
	PartnerCode          string `json:"partner_code"`
	Name                 string `json:"name" binding:"required"`
	Phone                string `json:"phone"`
	Email                string `json:"email"`
	LineID               string `json:"line_id"`
	BankCode             string `json:"bank_code"`
	BankAccount          string `json:"bank_account"`
	Level                string `json:"level"`
	CommissionPreference string `json:"commission_preference" binding:"required"`
	Notes                string `json:"notes"`
}

// PartnerStatusRequest 大使状态更新请求
type PartnerStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PartnerPreferenceRequest 佣金偏好更新请求
type PartnerPreferenceRequest struct {
	CommissionPreference string `json:"commission_preference" binding:"required"`
}

// YearEndReviewRequest 手动年度考核请求
type YearEndReviewRequest struct {
	Year int `json:"year"`
}

// CreatePartner 新增大使
func (h *Handler) CreatePartner(c *gin.Context) {
	var req CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	partner, err := h.PartnerService.CreatePartner(c.Request.Context(), service.CreatePartnerInput{
		PartnerCode:          req.PartnerCode,
		Name:                 req.Name,
		Phone:                req.Phone,
		Email:                req.Email,
		LineID:               req.LineID,
		BankCode:             req.BankCode,
		BankAccount:          req.BankAccount,
		Level:                req.Level,
		CommissionPreference: req.CommissionPreference,
		Notes:                req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, partner)
}

// ListPartners 大使列表
func (h *Handler) ListPartners(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	rows, total, err := h.PartnerService.List(repository.PartnerListFilter{
		Page:     page,
		PageSize: pageSize,
		Level:    strings.TrimSpace(c.Query("level")),
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetPartner 大使详情
func (h *Handler) GetPartner(c *gin.Context) {
	partner, err := h.PartnerService.GetByCode(c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, partner)
}

// UpdatePartnerStatus 启用 / 停用大使
func (h *Handler) UpdatePartnerStatus(c *gin.Context) {
	var req PartnerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	partner, err := h.PartnerService.UpdateStatus(c.Request.Context(), c.Param("code"), req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, partner)
}

// UpdatePartnerPreference 变更佣金领取偏好
func (h *Handler) UpdatePartnerPreference(c *gin.Context) {
	var req PartnerPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	partner, err := h.PartnerService.UpdatePreference(c.Request.Context(), c.Param("code"), req.CommissionPreference)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, partner)
}

// ResetPartnerFirstBonus 重置首次推荐奖励资格
func (h *Handler) ResetPartnerFirstBonus(c *gin.Context) {
	partner, err := h.PartnerService.ResetFirstReferralBonus(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_partner_first_bonus_reset",
		"partner_code", partner.PartnerCode,
		"operator", handlershared.AdminIdentity(c),
	)
	response.Success(c, partner)
}

// ReviewPartnerYearEnd 手动执行年度等级考核，默认考核上一年度
func (h *Handler) ReviewPartnerYearEnd(c *gin.Context) {
	var req YearEndReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	if req.Year <= 0 {
		req.Year = time.Now().Year() - 1
	}
	result, err := h.PartnerService.ReviewYearEnd(c.Request.Context(), c.Param("code"), req.Year)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
