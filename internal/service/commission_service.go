package service

import (
	"time"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionService 佣金计算引擎
type CommissionService struct {
	partnerRepo repository.PartnerRepository
	bookingRepo repository.BookingRepository
	payoutRepo  repository.PayoutRepository
	policy      TierPolicy
}

// NewCommissionService 创建佣金计算引擎
func NewCommissionService(
	partnerRepo repository.PartnerRepository,
	bookingRepo repository.BookingRepository,
	payoutRepo repository.PayoutRepository,
	policy TierPolicy,
) *CommissionService {
	return &CommissionService{
		partnerRepo: partnerRepo,
		bookingRepo: bookingRepo,
		payoutRepo:  payoutRepo,
		policy:      policy,
	}
}

// CommissionResult 单笔订房的佣金计算结果
type CommissionResult struct {
	Eligible             bool            `json:"eligible"`
	Amount               decimal.Decimal `json:"amount"`
	Type                 string          `json:"type"`
	IsFirstReferralBonus bool            `json:"is_first_referral_bonus"`
	BonusAmount          decimal.Decimal `json:"bonus_amount"`
	Restored             bool            `json:"restored"`
}

// CalculateCommission 为已完成且已付款的订房计算佣金，需在事务内调用且 booking 已加锁
func (s *CommissionService) CalculateCommission(tx *gorm.DB, booking *models.Booking) (*CommissionResult, error) {
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	switch booking.CommissionStatus {
	case constants.CommissionStatusCalculated, constants.CommissionStatusPaid:
		return nil, ErrCommissionAlreadyCalculated
	}
	if booking.StayStatus != constants.StayStatusCompleted || booking.PaymentStatus != constants.PaymentStatusPaid {
		return nil, stateError("booking %s requires stay COMPLETED and payment PAID", booking.BookingNo)
	}

	bookingRepo := s.bookingRepo.WithTx(tx)
	partnerRepo := s.partnerRepo.WithTx(tx)
	now := time.Now()

	// 因结算取消而重置的订房：佣金已计入帐户，仅恢复金额
	if booking.AccruedAmount.IsPositive() {
		allocated, err := s.payoutRepo.WithTx(tx).SumActiveAllocationsByBookings([]uint{booking.ID})
		if err != nil {
			return nil, err
		}
		booking.CommissionAmount = booking.AccruedAmount
		booking.CommissionStatus = constants.CommissionStatusCalculated
		if allocated[booking.ID].GreaterThanOrEqual(booking.AccruedAmount.Decimal) {
			booking.CommissionStatus = constants.CommissionStatusPaid
		}
		booking.UpdatedAt = now
		if err := bookingRepo.Update(booking); err != nil {
			return nil, err
		}
		logger.Infow("commission_restored",
			"booking_id", booking.ID,
			"partner_code", booking.ReferralCode(),
			"amount", booking.CommissionAmount.String(),
			"commission_status", booking.CommissionStatus,
		)
		return &CommissionResult{
			Eligible: true,
			Amount:   booking.AccruedAmount.Decimal,
			Type:     booking.CommissionType,
			Restored: true,
		}, nil
	}

	var partner *models.Partner
	if code := booking.ReferralCode(); code != "" {
		found, err := partnerRepo.GetByCodeForUpdate(code)
		if err != nil {
			return nil, err
		}
		partner = found
	}
	if partner == nil || !partner.IsActive() {
		booking.CommissionStatus = constants.CommissionStatusNotEligible
		booking.CommissionAmount = models.ZeroMoney()
		booking.UpdatedAt = now
		if err := bookingRepo.Update(booking); err != nil {
			return nil, err
		}
		return &CommissionResult{Eligible: false, Amount: decimal.Zero}, nil
	}

	if from, caught := s.catchUpYearEnd(partner, now); caught {
		logger.Infow("partner_year_end_caught_up",
			"partner_code", partner.PartnerCode,
			"previous_level", from,
			"level", partner.Level,
			"reviewed_through", partner.LastTierReviewYear,
		)
	}

	reward, err := s.policy.RewardRate(partner.Level, partner.CommissionPreference)
	if err != nil {
		return nil, err
	}
	result := &CommissionResult{
		Eligible: true,
		Type:     partner.CommissionPreference,
	}
	amount := reward
	if !partner.FirstReferralBonusClaimed {
		bonus := s.policy.FirstReferralBonus(partner.CommissionPreference)
		amount = amount.Add(bonus)
		result.IsFirstReferralBonus = true
		result.BonusAmount = bonus
		partner.FirstReferralBonusClaimed = true
	}
	amount = amount.Round(2)
	result.Amount = amount

	money := models.NewMoneyFromDecimal(amount)
	booking.CommissionAmount = money
	booking.AccruedAmount = money
	booking.CommissionType = partner.CommissionPreference
	booking.CommissionStatus = constants.CommissionStatusCalculated
	booking.IsFirstReferralBonus = result.IsFirstReferralBonus
	booking.FirstReferralBonusAmount = models.NewMoneyFromDecimal(result.BonusAmount)
	booking.UpdatedAt = now

	previousLevel := partner.Level
	partner.TotalCommissionEarned = partner.TotalCommissionEarned.Add(money)
	partner.PendingCommission = partner.PendingCommission.Add(money)
	partner.SuccessfulReferrals++
	partner.YearlyReferrals++
	partner.Level = s.policy.EvaluateTier(partner.Level, partner.YearlyReferrals)
	partner.UpdatedAt = now

	if err := bookingRepo.Update(booking); err != nil {
		return nil, err
	}
	if err := partnerRepo.Update(partner); err != nil {
		return nil, err
	}

	logger.Infow("commission_accrued",
		"booking_id", booking.ID,
		"partner_code", partner.PartnerCode,
		"amount", money.String(),
		"commission_type", booking.CommissionType,
		"first_referral_bonus", result.IsFirstReferralBonus,
	)
	if previousLevel != partner.Level {
		logger.Infow("partner_level_promoted",
			"partner_code", partner.PartnerCode,
			"previous_level", previousLevel,
			"level", partner.Level,
			"yearly_referrals", partner.YearlyReferrals,
		)
	}
	return result, nil
}

// ReverseCommission 冲回订房已计入大使帐户的佣金，需在事务内调用且 booking 已加锁
func (s *CommissionService) ReverseCommission(tx *gorm.DB, booking *models.Booking) (decimal.Decimal, error) {
	if booking == nil {
		return decimal.Zero, ErrBookingNotFound
	}
	accrued := booking.AccruedAmount
	if !accrued.IsPositive() {
		booking.CommissionAmount = models.ZeroMoney()
		booking.CommissionStatus = constants.CommissionStatusNotEligible
		return decimal.Zero, nil
	}

	allocated, err := s.payoutRepo.WithTx(tx).SumActiveAllocationsByBookings([]uint{booking.ID})
	if err != nil {
		return decimal.Zero, err
	}
	if allocated[booking.ID].IsPositive() {
		return decimal.Zero, ErrBookingLockedByPayout
	}

	partnerRepo := s.partnerRepo.WithTx(tx)
	partner, err := partnerRepo.GetByCodeForUpdate(booking.ReferralCode())
	if err != nil {
		return decimal.Zero, err
	}
	if partner == nil {
		return decimal.Zero, ErrPartnerNotFound
	}
	if partner.PendingCommission.LessThan(accrued.Decimal) {
		return decimal.Zero, ErrPendingCommissionShort
	}

	now := time.Now()
	partner.PendingCommission = partner.PendingCommission.Sub(accrued)
	partner.TotalCommissionEarned = partner.TotalCommissionEarned.Sub(accrued)
	if partner.SuccessfulReferrals > 0 {
		partner.SuccessfulReferrals--
	}
	if partner.YearlyReferrals > 0 && creditedThisYear(booking, now) {
		partner.YearlyReferrals--
	}
	partner.UpdatedAt = now
	if err := partnerRepo.Update(partner); err != nil {
		return decimal.Zero, err
	}

	booking.CommissionAmount = models.ZeroMoney()
	booking.AccruedAmount = models.ZeroMoney()
	booking.CommissionStatus = constants.CommissionStatusNotEligible
	booking.UpdatedAt = now

	logger.Infow("commission_reversed",
		"booking_id", booking.ID,
		"partner_code", partner.PartnerCode,
		"amount", accrued.String(),
	)
	return accrued.Decimal, nil
}

// catchUpYearEnd 上次考核后已跨过年度边界时，先结算旧年度推荐数再计入本次推荐
func (s *CommissionService) catchUpYearEnd(partner *models.Partner, now time.Time) (string, bool) {
	reviewed := partner.LastTierReviewYear
	if reviewed == 0 {
		reviewed = partner.CreatedAt.Year() - 1
	}
	endedYear := now.Year() - 1
	if reviewed >= endedYear {
		return partner.Level, false
	}
	from := partner.Level
	partner.Level = s.policy.CatchUpYearEnd(partner.Level, partner.YearlyReferrals, endedYear-reviewed)
	partner.YearlyReferrals = 0
	partner.LastTierReviewYear = endedYear
	return from, true
}

func creditedThisYear(booking *models.Booking, now time.Time) bool {
	if booking.ConfirmedAt == nil {
		return true
	}
	return booking.ConfirmedAt.Year() == now.Year()
}
