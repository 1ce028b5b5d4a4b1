package public

import (
	"strings"
	"time"

	handlershared "github.com/zhiyin-next/internal/http/handlers/shared"
	"github.com/zhiyin-next/internal/http/response"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/service"

	"github.com/gin-gonic/gin"
)

const intakeDateLayout = "2006-01-02"

// BookingIntakeRequest 官网订房表单
type BookingIntakeRequest struct {
	PartnerCode  string       `json:"partner_code"`
	GuestName    string       `json:"guest_name" binding:"required"`
	GuestPhone   string       `json:"guest_phone"`
	GuestEmail   string       `json:"guest_email"`
	CheckinDate  string       `json:"checkin_date" binding:"required"`
	CheckoutDate string       `json:"checkout_date" binding:"required"`
	RoomType     string       `json:"room_type"`
	RoomPrice    models.Money `json:"room_price"`
	Notes        string       `json:"notes"`
}

// BookingIntakeResponse 表单提交结果，不回传账务字段
type BookingIntakeResponse struct {
	BookingNo    string `json:"booking_no"`
	PartnerCode  string `json:"partner_code,omitempty"`
	StayStatus   string `json:"stay_status"`
	CheckinDate  string `json:"checkin_date"`
	CheckoutDate string `json:"checkout_date"`
}

// CreateBooking 官网订房登记，付款状态固定为待付款
func (h *Handler) CreateBooking(c *gin.Context) {
	var req BookingIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBadRequest(c, err)
		return
	}
	checkin, err := time.ParseInLocation(intakeDateLayout, strings.TrimSpace(req.CheckinDate), time.Local)
	if err != nil {
		handlershared.RespondBadRequest(c, err)
		return
	}
	checkout, err := time.ParseInLocation(intakeDateLayout, strings.TrimSpace(req.CheckoutDate), time.Local)
	if err != nil {
		handlershared.RespondBadRequest(c, err)
		return
	}
	booking, err := h.BookingService.CreateBooking(c.Request.Context(), service.CreateBookingInput{
		PartnerCode:  req.PartnerCode,
		GuestName:    req.GuestName,
		GuestPhone:   req.GuestPhone,
		GuestEmail:   req.GuestEmail,
		CheckinDate:  checkin,
		CheckoutDate: checkout,
		RoomType:     req.RoomType,
		RoomPrice:    req.RoomPrice,
		Notes:        req.Notes,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	resp := BookingIntakeResponse{
		BookingNo:    booking.BookingNo,
		StayStatus:   booking.StayStatus,
		CheckinDate:  booking.CheckinDate.Format(intakeDateLayout),
		CheckoutDate: booking.CheckoutDate.Format(intakeDateLayout),
	}
	if booking.PartnerCode != nil {
		resp.PartnerCode = *booking.PartnerCode
	}
	response.Success(c, resp)
}
