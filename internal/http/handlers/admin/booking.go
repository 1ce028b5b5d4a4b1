package admin

import (
	"strings"
	"time"

	handlershared "github.com/zhiyin-next/internal/http/handlers/shared"
	"github.com/zhiyin-next/internal/http/response"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"
	"github.com/zhiyin-next/internal/service"

	"github.com/gin-gonic/gin"
)

const bookingDateLayout = "2006-01-02"

// CreateBookingRequest 订房登记请求
type CreateBookingRequest struct {
	PartnerCode   string       `json:"partner_code"`
	GuestName     string       `json:"guest_name" binding:"required"`
	GuestPhone    string       `json:"guest_phone"`
	GuestEmail    string       `json:"guest_email"`
	CheckinDate   string       `json:"checkin_date" binding:"required"`
	CheckoutDate  string       `json:"checkout_date" binding:"required"`
	RoomType      string       `json:"room_type"`
	RoomPrice     models.Money `json:"room_price"`
	BookingSource string       `json:"booking_source"`
	PaymentStatus string       `json:"payment_status"`
	Notes         string       `json:"notes"`
}

// ToServiceInput 转换为 service 层输入
func (r CreateBookingRequest) ToServiceInput() (service.CreateBookingInput, error) {
	checkin, err := parseBookingDate(r.CheckinDate)
	if err != nil {
		return service.CreateBookingInput{}, err
	}
	checkout, err := parseBookingDate(r.CheckoutDate)
	if err != nil {
		return service.CreateBookingInput{}, err
	}
	return service.CreateBookingInput{
		PartnerCode:   r.PartnerCode,
		GuestName:     r.GuestName,
		GuestPhone:    r.GuestPhone,
		GuestEmail:    r.GuestEmail,
		CheckinDate:   checkin,
		CheckoutDate:  checkout,
		RoomType:      r.RoomType,
		RoomPrice:     r.RoomPrice,
		BookingSource: r.BookingSource,
		PaymentStatus: r.PaymentStatus,
		Notes:         r.Notes,
	}, nil
}

// CancelBookingRequest 取消 / 退款请求
type CancelBookingRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// CreateBooking 后台登记订房
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	input, err := req.ToServiceInput()
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	booking, err := h.BookingService.CreateBooking(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, booking)
}

// ListBookings 订房列表
func (h *Handler) ListBookings(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	filter := repository.BookingListFilter{
		Page:             page,
		PageSize:         pageSize,
		PartnerCode:      strings.TrimSpace(c.Query("partner_code")),
		StayStatus:       strings.TrimSpace(c.Query("stay_status")),
		PaymentStatus:    strings.TrimSpace(c.Query("payment_status")),
		CommissionStatus: strings.TrimSpace(c.Query("commission_status")),
		Keyword:          strings.TrimSpace(c.Query("keyword")),
	}
	if raw := strings.TrimSpace(c.Query("checkin_from")); raw != "" {
		from, err := parseBookingDate(raw)
		if err != nil {
			respondBadRequest(c, err)
			return
		}
		filter.CheckinFrom = &from
	}
	if raw := strings.TrimSpace(c.Query("checkin_to")); raw != "" {
		to, err := parseBookingDate(raw)
		if err != nil {
			respondBadRequest(c, err)
			return
		}
		filter.CheckinTo = &to
	}
	rows, total, err := h.BookingService.List(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetBooking 订房详情
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrBookingNotFound)
		return
	}
	booking, err := h.BookingService.GetByID(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, booking)
}

// ConfirmBooking 确认订房
func (h *Handler) ConfirmBooking(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrBookingNotFound)
		return
	}
	booking, err := h.BookingService.ConfirmBooking(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, booking)
}

// MarkBookingPaid 登记付款
func (h *Handler) MarkBookingPaid(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrBookingNotFound)
		return
	}
	outcome, err := h.BookingService.MarkPaid(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, outcome)
}

// CompleteBooking 确认入住完成并计算佣金
func (h *Handler) CompleteBooking(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrBookingNotFound)
		return
	}
	outcome, err := h.BookingService.ConfirmCompletion(c.Request.Context(), id, handlershared.AdminIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, outcome)
}

// RecalculateBookingCommission 大使重新启用后补算佣金
func (h *Handler) RecalculateBookingCommission(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrBookingNotFound)
		return
	}
	outcome, err := h.BookingService.RecalculateCommission(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, outcome)
}

// CancelBooking 取消或退款
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := handlershared.ParamUint(c, "id")
	if !ok {
		respondServiceError(c, service.ErrBookingNotFound)
		return
	}
	var req CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}
	booking, err := h.BookingService.CancelOrRefund(c.Request.Context(), id, req.Action, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, booking)
}

func parseBookingDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(bookingDateLayout, raw, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
