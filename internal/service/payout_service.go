package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutService 佣金结算服务
type PayoutService struct {
	partnerRepo repository.PartnerRepository
	bookingRepo repository.BookingRepository
	payoutRepo  repository.PayoutRepository
	pointsRepo  repository.PointsRepository
	ledger      ledgerExecutor
}

// NewPayoutService 创建结算服务
func NewPayoutService(
	partnerRepo repository.PartnerRepository,
	bookingRepo repository.BookingRepository,
	payoutRepo repository.PayoutRepository,
	pointsRepo repository.PointsRepository,
	locker LedgerLocker,
) *PayoutService {
	return &PayoutService{
		partnerRepo: partnerRepo,
		bookingRepo: bookingRepo,
		payoutRepo:  payoutRepo,
		pointsRepo:  pointsRepo,
		ledger:      newLedgerExecutor(partnerRepo, locker),
	}
}

// SettleInput 结算输入
type SettleInput struct {
	PartnerCode         string       `validate:"required"`
	CashAmount          models.Money `validate:"-"`
	AccommodationAmount models.Money `validate:"-"`
	Notes               string       `validate:"max=1000"`
	BookingIDs          []uint       `validate:"omitempty,dive,gt=0"`
}

// fundingSource 订房可结算余额
type fundingSource struct {
	booking   *models.Booking
	allocated decimal.Decimal
	remaining decimal.Decimal
}

// Settle 将大使待结算佣金拆分为现金/住宿两笔结算
func (s *PayoutService) Settle(ctx context.Context, input SettleInput) ([]models.Payout, error) {
	input.PartnerCode = repository.NormalizePartnerCode(input.PartnerCode)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	cash := input.CashAmount.Decimal.Round(2)
	accommodation := input.AccommodationAmount.Decimal.Round(2)
	if cash.IsNegative() || accommodation.IsNegative() {
		return nil, ErrAmountInvalid
	}
	total := cash.Add(accommodation)
	if !total.IsPositive() {
		return nil, ErrAmountInvalid
	}
	explicitIDs := normalizeBookingIDs(input.BookingIDs)

	var created []models.Payout
	err := s.ledger.run(ctx, input.PartnerCode, func(tx *gorm.DB) error {
		partnerRepo := s.partnerRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		partner, err := partnerRepo.GetByCodeForUpdate(input.PartnerCode)
		if err != nil {
			return err
		}
		if partner == nil {
			return ErrPartnerNotFound
		}
		if partner.PendingCommission.LessThan(total) {
			return ErrPendingCommissionShort
		}

		sources, err := s.loadFundingSources(bookingRepo, payoutRepo, partner.PartnerCode, explicitIDs)
		if err != nil {
			return err
		}
		available := decimal.Zero
		for _, src := range sources {
			available = available.Add(src.remaining)
		}
		if available.LessThan(total) {
			return ErrPendingCommissionShort
		}

		now := time.Now()
		touched := make(map[uint]*fundingSource)
		plan := []struct {
			payoutType string
			amount     decimal.Decimal
		}{
			{constants.PayoutTypeCash, cash},
			{constants.PayoutTypeAccommodation, accommodation},
		}
		cursor := 0
		for _, item := range plan {
			if !item.amount.IsPositive() {
				continue
			}
			payout := models.Payout{
				PayoutNo:     generateSerialNo("PO"),
				PartnerCode:  partner.PartnerCode,
				PayoutType:   item.payoutType,
				Amount:       models.NewMoneyFromDecimal(item.amount),
				PayoutStatus: constants.PayoutStatusPending,
				Notes:        strings.TrimSpace(input.Notes),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := payoutRepo.Create(&payout); err != nil {
				return err
			}

			need := item.amount
			allocations := make([]models.PayoutAllocation, 0)
			for need.IsPositive() && cursor < len(sources) {
				src := sources[cursor]
				if !src.remaining.IsPositive() {
					cursor++
					continue
				}
				take := decimal.Min(need, src.remaining)
				allocations = append(allocations, models.PayoutAllocation{
					PayoutID:  payout.ID,
					BookingID: src.booking.ID,
					Amount:    models.NewMoneyFromDecimal(take),
					CreatedAt: now,
				})
				src.remaining = src.remaining.Sub(take)
				src.allocated = src.allocated.Add(take)
				need = need.Sub(take)
				touched[src.booking.ID] = src
			}
			if need.IsPositive() {
				return ErrPendingCommissionShort
			}
			if err := payoutRepo.CreateAllocations(allocations); err != nil {
				return err
			}
			payout.Allocations = allocations
			payout.FillRelatedBookingIDs()

			if item.payoutType == constants.PayoutTypeAccommodation {
				partner.AvailablePoints = partner.AvailablePoints.Add(payout.Amount)
				partner.TotalPointsEarned = partner.TotalPointsEarned.Add(payout.Amount)
				payoutID := payout.ID
				if err := s.pointsRepo.WithTx(tx).CreateTransaction(&models.PointsTransaction{
					PartnerCode:  partner.PartnerCode,
					TxnType:      constants.PointsTxnTypeEarn,
					Amount:       payout.Amount,
					BalanceAfter: partner.AvailablePoints,
					PayoutID:     &payoutID,
					Notes:        "住宿点数结算入帐",
					CreatedAt:    now,
				}); err != nil {
					return err
				}
			}
			created = append(created, payout)
		}

		for _, src := range touched {
			booking := src.booking
			booking.CommissionAmount = booking.AccruedAmount
			booking.StayStatus = constants.StayStatusCompleted
			booking.CommissionStatus = constants.CommissionStatusCalculated
			if src.allocated.GreaterThanOrEqual(booking.AccruedAmount.Decimal) {
				booking.CommissionStatus = constants.CommissionStatusPaid
			}
			booking.UpdatedAt = now
			if err := bookingRepo.Update(booking); err != nil {
				return err
			}
		}

		partner.PendingCommission = partner.PendingCommission.Sub(models.NewMoneyFromDecimal(total))
		partner.UpdatedAt = now
		return partnerRepo.Update(partner)
	})
	if err != nil {
		return nil, err
	}
	for _, payout := range created {
		logger.Infow("payout_created",
			"payout_id", payout.ID,
			"payout_no", payout.PayoutNo,
			"partner_code", payout.PartnerCode,
			"payout_type", payout.PayoutType,
			"amount", payout.Amount.String(),
			"related_booking_ids", payout.RelatedBookingIDs,
		)
	}
	return created, nil
}

// CompletePayout 确认实际汇款/入帐完成
func (s *PayoutService) CompletePayout(ctx context.Context, id uint, processedBy string) (*models.Payout, error) {
	processedBy = strings.TrimSpace(processedBy)
	if processedBy == "" {
		return nil, validationError("processed_by is required")
	}
	payout, err := s.mutatePayout(ctx, id, func(tx *gorm.DB, payout *models.Payout) error {
		if payout.PayoutStatus != constants.PayoutStatusPending {
			return stateError("payout %s is %s, only PENDING can be completed", payout.PayoutNo, payout.PayoutStatus)
		}
		now := time.Now()
		payout.PayoutStatus = constants.PayoutStatusCompleted
		payout.ProcessedBy = processedBy
		payout.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_completed", "payout_id", id, "processed_by", processedBy)
	return payout, nil
}

// CancelPayout 取消结算：恢复待结算佣金，关联订房重新进入计算流程
func (s *PayoutService) CancelPayout(ctx context.Context, id uint, reason, operator string) (*models.Payout, error) {
	payout, err := s.mutatePayout(ctx, id, func(tx *gorm.DB, payout *models.Payout) error {
		if payout.PayoutStatus == constants.PayoutStatusCancelled {
			return stateError("payout %s is already cancelled", payout.PayoutNo)
		}
		partnerRepo := s.partnerRepo.WithTx(tx)
		bookingRepo := s.bookingRepo.WithTx(tx)
		partner, err := partnerRepo.GetByCodeForUpdate(payout.PartnerCode)
		if err != nil {
			return err
		}
		if partner == nil {
			return ErrPartnerNotFound
		}
		allocations, err := s.payoutRepo.WithTx(tx).ListAllocationsByPayout(payout.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		if payout.PayoutType == constants.PayoutTypeAccommodation {
			if partner.AvailablePoints.LessThan(payout.Amount.Decimal) {
				return ErrAvailablePointsShort
			}
			partner.AvailablePoints = partner.AvailablePoints.Sub(payout.Amount)
			partner.TotalPointsEarned = partner.TotalPointsEarned.Sub(payout.Amount)
			payoutID := payout.ID
			if err := s.pointsRepo.WithTx(tx).CreateTransaction(&models.PointsTransaction{
				PartnerCode:  partner.PartnerCode,
				TxnType:      constants.PointsTxnTypeReverse,
				Amount:       payout.Amount,
				BalanceAfter: partner.AvailablePoints,
				PayoutID:     &payoutID,
				Notes:        "结算取消冲回住宿点数",
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}
		partner.PendingCommission = partner.PendingCommission.Add(payout.Amount)
		partner.UpdatedAt = now
		if err := partnerRepo.Update(partner); err != nil {
			return err
		}

		bookingIDs := make([]uint, 0, len(allocations))
		for _, item := range allocations {
			bookingIDs = append(bookingIDs, item.BookingID)
		}
		bookings, err := bookingRepo.ListByIDsForUpdate(normalizeBookingIDs(bookingIDs))
		if err != nil {
			return err
		}
		for idx := range bookings {
			booking := &bookings[idx]
			booking.StayStatus = constants.StayStatusPending
			booking.CommissionStatus = constants.CommissionStatusPending
			booking.CommissionAmount = models.ZeroMoney()
			booking.UpdatedAt = now
			if err := bookingRepo.Update(booking); err != nil {
				return err
			}
		}

		payout.PayoutStatus = constants.PayoutStatusCancelled
		payout.CancelledAt = &now
		payout.CancelReason = strings.TrimSpace(reason)
		if operator = strings.TrimSpace(operator); operator != "" {
			payout.ProcessedBy = operator
		}
		payout.Allocations = allocations
		payout.FillRelatedBookingIDs()
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_cancelled",
		"payout_id", payout.ID,
		"partner_code", payout.PartnerCode,
		"payout_type", payout.PayoutType,
		"amount", payout.Amount.String(),
		"reason", payout.CancelReason,
	)
	return payout, nil
}

// GetPayout 查询结算详情
func (s *PayoutService) GetPayout(id uint) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, wrapSystemError(err)
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

// ListPayouts 查询结算列表
func (s *PayoutService) ListPayouts(filter repository.PayoutListFilter) ([]models.Payout, int64, error) {
	rows, total, err := s.payoutRepo.List(filter)
	if err != nil {
		return nil, 0, wrapSystemError(err)
	}
	return rows, total, nil
}

func (s *PayoutService) mutatePayout(ctx context.Context, id uint, apply func(tx *gorm.DB, payout *models.Payout) error) (*models.Payout, error) {
	if id == 0 {
		return nil, ErrPayoutNotFound
	}
	snapshot, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, wrapSystemError(err)
	}
	if snapshot == nil {
		return nil, ErrPayoutNotFound
	}

	var result *models.Payout
	err = s.ledger.run(ctx, snapshot.PartnerCode, func(tx *gorm.DB) error {
		repo := s.payoutRepo.WithTx(tx)
		payout, err := repo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if err := apply(tx, payout); err != nil {
			return err
		}
		payout.UpdatedAt = time.Now()
		if err := repo.Update(payout); err != nil {
			return err
		}
		result = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Allocations == nil {
		result.Allocations = snapshot.Allocations
		result.FillRelatedBookingIDs()
	}
	return result, nil
}

// loadFundingSources 加载可结算订房，按退房日期从早到晚
func (s *PayoutService) loadFundingSources(
	bookingRepo repository.BookingRepository,
	payoutRepo repository.PayoutRepository,
	partnerCode string,
	explicitIDs []uint,
) ([]*fundingSource, error) {
	var bookings []models.Booking
	if len(explicitIDs) > 0 {
		rows, err := bookingRepo.ListByIDsForUpdate(explicitIDs)
		if err != nil {
			return nil, err
		}
		if len(rows) != len(explicitIDs) {
			return nil, ErrBookingNotFound
		}
		for _, row := range rows {
			if row.ReferralCode() != partnerCode {
				return nil, validationError("booking %d does not belong to partner %s", row.ID, partnerCode)
			}
			if row.StayStatus == constants.StayStatusCancelled || !row.AccruedAmount.IsPositive() {
				return nil, validationError("booking %d has no settleable commission", row.ID)
			}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].CheckoutDate.Equal(rows[j].CheckoutDate) {
				return rows[i].ID < rows[j].ID
			}
			return rows[i].CheckoutDate.Before(rows[j].CheckoutDate)
		})
		bookings = rows
	} else {
		rows, err := bookingRepo.ListAccruedByPartnerForUpdate(partnerCode)
		if err != nil {
			return nil, err
		}
		bookings = rows
	}

	ids := make([]uint, 0, len(bookings))
	for _, row := range bookings {
		ids = append(ids, row.ID)
	}
	allocated, err := payoutRepo.SumActiveAllocationsByBookings(ids)
	if err != nil {
		return nil, err
	}

	sources := make([]*fundingSource, 0, len(bookings))
	for idx := range bookings {
		booking := &bookings[idx]
		used := allocated[booking.ID]
		remaining := booking.AccruedAmount.Decimal.Sub(used).Round(2)
		if !remaining.IsPositive() {
			continue
		}
		sources = append(sources, &fundingSource{
			booking:   booking,
			allocated: used,
			remaining: remaining,
		})
	}
	return sources, nil
}

func normalizeBookingIDs(ids []uint) []uint {
	result := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
