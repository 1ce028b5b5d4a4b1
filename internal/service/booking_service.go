package service

import (
	"context"
	"strings"
	"time"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"

	"gorm.io/gorm"
)

// BookingService 订房生命周期服务
type BookingService struct {
	bookingRepo repository.BookingRepository
	partnerRepo repository.PartnerRepository
	commission  *CommissionService
	ledger      ledgerExecutor
}

// NewBookingService 创建订房服务
func NewBookingService(
	bookingRepo repository.BookingRepository,
	partnerRepo repository.PartnerRepository,
	commission *CommissionService,
	locker LedgerLocker,
) *BookingService {
	return &BookingService{
		bookingRepo: bookingRepo,
		partnerRepo: partnerRepo,
		commission:  commission,
		ledger:      newLedgerExecutor(partnerRepo, locker),
	}
}

// CreateBookingInput 订房登记输入
type CreateBookingInput struct {
	PartnerCode   string
	GuestName     string       `validate:"required,max=100"`
	GuestPhone    string       `validate:"required_without=GuestEmail,max=32"`
	GuestEmail    string       `validate:"omitempty,email,max=255"`
	CheckinDate   time.Time    `validate:"required"`
	CheckoutDate  time.Time    `validate:"required,gtefield=CheckinDate"`
	RoomType      string       `validate:"max=64"`
	RoomPrice     models.Money `validate:"-"`
	BookingSource string       `validate:"max=32"`
	PaymentStatus string       `validate:"omitempty,oneof=PENDING PAID"`
	Notes         string
}

// BookingOutcome 生命周期操作结果
type BookingOutcome struct {
	Booking    *models.Booking   `json:"booking"`
	Commission *CommissionResult `json:"commission,omitempty"`
}

// CreateBooking 登记订房，初始为 PENDING / NOT_ELIGIBLE
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	input.GuestName = strings.TrimSpace(input.GuestName)
	input.GuestPhone = strings.TrimSpace(input.GuestPhone)
	input.GuestEmail = strings.TrimSpace(input.GuestEmail)
	input.PaymentStatus = strings.ToUpper(strings.TrimSpace(input.PaymentStatus))
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.RoomPrice.IsNegative() {
		return nil, validationError("room_price must not be negative")
	}

	var partnerCode *string
	source := strings.TrimSpace(input.BookingSource)
	if code := repository.NormalizePartnerCode(input.PartnerCode); code != "" {
		partner, err := s.partnerRepo.GetByCode(code)
		if err != nil {
			return nil, wrapSystemError(err)
		}
		if partner == nil {
			return nil, ErrPartnerNotFound
		}
		partnerCode = &partner.PartnerCode
		if source == "" {
			source = constants.BookingSourceReferral
		}
	}
	if source == "" {
		source = constants.BookingSourceDirect
	}
	paymentStatus := input.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = constants.PaymentStatusPending
	}

	booking := &models.Booking{
		BookingNo:        generateSerialNo("BK"),
		PartnerCode:      partnerCode,
		GuestName:        input.GuestName,
		GuestPhone:       input.GuestPhone,
		GuestEmail:       input.GuestEmail,
		CheckinDate:      input.CheckinDate,
		CheckoutDate:     input.CheckoutDate,
		RoomType:         strings.TrimSpace(input.RoomType),
		RoomPrice:        models.NewMoneyFromDecimal(input.RoomPrice.Decimal),
		BookingSource:    source,
		StayStatus:       constants.StayStatusPending,
		PaymentStatus:    paymentStatus,
		CommissionStatus: constants.CommissionStatusNotEligible,
		CommissionAmount: models.ZeroMoney(),
		Notes:            strings.TrimSpace(input.Notes),
	}
	if err := s.bookingRepo.Create(booking); err != nil {
		return nil, wrapSystemError(err)
	}
	logger.Infow("booking_created",
		"booking_id", booking.ID,
		"booking_no", booking.BookingNo,
		"partner_code", booking.ReferralCode(),
	)
	invalidateDashboard(ctx)
	return booking, nil
}

// GetByID 查询订房
func (s *BookingService) GetByID(id uint) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(id)
	if err != nil {
		return nil, wrapSystemError(err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// List 查询订房列表
func (s *BookingService) List(filter repository.BookingListFilter) ([]models.Booking, int64, error) {
	rows, total, err := s.bookingRepo.List(filter)
	if err != nil {
		return nil, 0, wrapSystemError(err)
	}
	return rows, total, nil
}

// ConfirmBooking PENDING → CONFIRMED
func (s *BookingService) ConfirmBooking(ctx context.Context, id uint) (*models.Booking, error) {
	outcome, err := s.mutate(ctx, id, func(tx *gorm.DB, booking *models.Booking, outcome *BookingOutcome) error {
		if booking.StayStatus != constants.StayStatusPending {
			return stateError("booking %s is %s, only PENDING can be confirmed", booking.BookingNo, booking.StayStatus)
		}
		booking.StayStatus = constants.StayStatusConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("booking_confirmed", "booking_id", id)
	return outcome.Booking, nil
}

// MarkPaid 登记付款；若已确认入住完成则立即计算佣金
func (s *BookingService) MarkPaid(ctx context.Context, id uint) (*BookingOutcome, error) {
	outcome, err := s.mutate(ctx, id, func(tx *gorm.DB, booking *models.Booking, outcome *BookingOutcome) error {
		if booking.PaymentStatus != constants.PaymentStatusPending {
			return stateError("booking %s payment is %s, only PENDING can be marked paid", booking.BookingNo, booking.PaymentStatus)
		}
		if booking.StayStatus == constants.StayStatusCancelled {
			return stateError("booking %s is cancelled", booking.BookingNo)
		}
		booking.PaymentStatus = constants.PaymentStatusPaid
		if booking.StayStatus != constants.StayStatusCompleted {
			return nil
		}
		if err := s.bookingRepo.WithTx(tx).Update(booking); err != nil {
			return err
		}
		result, err := s.commission.CalculateCommission(tx, booking)
		if err != nil {
			return err
		}
		outcome.Commission = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("booking_marked_paid", "booking_id", id)
	return outcome, nil
}

// ConfirmCompletion 管理员确认入住完成，并同步计算佣金
func (s *BookingService) ConfirmCompletion(ctx context.Context, id uint, confirmedBy string) (*BookingOutcome, error) {
	confirmedBy = strings.TrimSpace(confirmedBy)
	if confirmedBy == "" {
		return nil, validationError("confirmed_by is required")
	}
	outcome, err := s.mutate(ctx, id, func(tx *gorm.DB, booking *models.Booking, outcome *BookingOutcome) error {
		switch {
		case booking.StayStatus == constants.StayStatusCompleted:
			return stateError("booking %s is already completed", booking.BookingNo)
		case booking.StayStatus == constants.StayStatusCancelled:
			return stateError("booking %s is cancelled", booking.BookingNo)
		case booking.PaymentStatus == constants.PaymentStatusRefunded:
			return stateError("booking %s is refunded", booking.BookingNo)
		}
		now := time.Now()
		booking.StayStatus = constants.StayStatusCompleted
		booking.ConfirmedBy = confirmedBy
		booking.ConfirmedAt = &now
		if booking.PaymentStatus != constants.PaymentStatusPaid {
			return nil
		}
		if err := s.bookingRepo.WithTx(tx).Update(booking); err != nil {
			return err
		}
		result, err := s.commission.CalculateCommission(tx, booking)
		if err != nil {
			return err
		}
		outcome.Commission = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("booking_completion_confirmed", "booking_id", id, "confirmed_by", confirmedBy)
	return outcome, nil
}

// RecalculateCommission 重新评估不符资格的已完成订房，适用于大使停用期间完成、重新启用后的补算
func (s *BookingService) RecalculateCommission(ctx context.Context, id uint) (*BookingOutcome, error) {
	outcome, err := s.mutate(ctx, id, func(tx *gorm.DB, booking *models.Booking, outcome *BookingOutcome) error {
		if booking.CommissionStatus != constants.CommissionStatusNotEligible {
			return stateError("booking %s commission is %s", booking.BookingNo, booking.CommissionStatus)
		}
		if booking.ReferralCode() == "" {
			return stateError("booking %s has no referral code", booking.BookingNo)
		}
		result, err := s.commission.CalculateCommission(tx, booking)
		if err != nil {
			return err
		}
		if !result.Eligible {
			return ErrPartnerDisabled
		}
		outcome.Commission = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("booking_commission_recalculated", "booking_id", id, "amount", outcome.Commission.Amount.String())
	return outcome, nil
}

// CancelOrRefund 取消或退款，已计入的佣金同步冲回
func (s *BookingService) CancelOrRefund(ctx context.Context, id uint, action, reason string) (*models.Booking, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		action = constants.BookingCancelActionCancel
	}
	if action != constants.BookingCancelActionCancel && action != constants.BookingCancelActionRefund {
		return nil, ErrCancelActionInvalid
	}
	outcome, err := s.mutate(ctx, id, func(tx *gorm.DB, booking *models.Booking, outcome *BookingOutcome) error {
		if booking.StayStatus == constants.StayStatusCancelled || booking.PaymentStatus == constants.PaymentStatusRefunded {
			return stateError("booking %s is already terminated", booking.BookingNo)
		}
		if action == constants.BookingCancelActionRefund && booking.PaymentStatus != constants.PaymentStatusPaid {
			return stateError("booking %s is not paid, cannot refund", booking.BookingNo)
		}
		if _, err := s.commission.ReverseCommission(tx, booking); err != nil {
			return err
		}
		now := time.Now()
		booking.StayStatus = constants.StayStatusCancelled
		if action == constants.BookingCancelActionRefund {
			booking.PaymentStatus = constants.PaymentStatusRefunded
		}
		booking.CancelReason = strings.TrimSpace(reason)
		booking.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("booking_terminated", "booking_id", id, "action", action, "reason", reason)
	return outcome.Booking, nil
}

// mutate 锁定归属大使后，在事务中重新加锁读取订房再执行变更
func (s *BookingService) mutate(
	ctx context.Context,
	id uint,
	apply func(tx *gorm.DB, booking *models.Booking, outcome *BookingOutcome) error,
) (*BookingOutcome, error) {
	if id == 0 {
		return nil, ErrBookingNotFound
	}
	snapshot, err := s.bookingRepo.GetByID(id)
	if err != nil {
		return nil, wrapSystemError(err)
	}
	if snapshot == nil {
		return nil, ErrBookingNotFound
	}

	outcome := &BookingOutcome{}
	err = s.ledger.run(ctx, snapshot.ReferralCode(), func(tx *gorm.DB) error {
		repo := s.bookingRepo.WithTx(tx)
		booking, err := repo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}
		if err := apply(tx, booking, outcome); err != nil {
			return err
		}
		booking.UpdatedAt = time.Now()
		if err := repo.Update(booking); err != nil {
			return err
		}
		outcome.Booking = booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
