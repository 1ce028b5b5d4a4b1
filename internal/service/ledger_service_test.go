package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ledgerTestKit struct {
	db         *gorm.DB
	partners   *PartnerService
	bookings   *BookingService
	commission *CommissionService
	payouts    *PayoutService
	points     *PointsService
	dashboard  *DashboardService
}

func setupLedgerServiceTest(t *testing.T) *ledgerTestKit {
	t.Helper()
	return newLedgerTestKit(t, fmt.Sprintf("file:ledger_service_%d?mode=memory&cache=shared", time.Now().UnixNano()))
}

// setupConcurrentLedgerTest 使用文件库与 busy_timeout，避免共享缓存的表锁干扰并发用例
func setupConcurrentLedgerTest(t *testing.T) *ledgerTestKit {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	return newLedgerTestKit(t, "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

func newLedgerTestKit(t *testing.T, dsn string) *ledgerTestKit {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	policy := DefaultTierPolicy()
	locker := NewLocalLedgerLocker(time.Second)
	partnerRepo := repository.NewPartnerRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	pointsRepo := repository.NewPointsRepository(db)
	commission := NewCommissionService(partnerRepo, bookingRepo, payoutRepo, policy)

	return &ledgerTestKit{
		db:         db,
		partners:   NewPartnerService(partnerRepo, policy, locker),
		bookings:   NewBookingService(bookingRepo, partnerRepo, commission, locker),
		commission: commission,
		payouts:    NewPayoutService(partnerRepo, bookingRepo, payoutRepo, pointsRepo, locker),
		points:     NewPointsService(partnerRepo, bookingRepo, pointsRepo, locker),
		dashboard:  NewDashboardService(repository.NewDashboardRepository(db), partnerRepo, policy, time.Second),
	}
}

func createLedgerTestPartner(t *testing.T, kit *ledgerTestKit, code, preference string) *models.Partner {
	t.Helper()
	partner, err := kit.partners.CreatePartner(context.Background(), CreatePartnerInput{
		PartnerCode:          code,
		Name:                 "大使 " + code,
		Phone:                "0912345678",
		CommissionPreference: preference,
	})
	if err != nil {
		t.Fatalf("create partner failed: %v", err)
	}
	return partner
}

func createLedgerTestBooking(t *testing.T, kit *ledgerTestKit, code string, checkout time.Time) *models.Booking {
	t.Helper()
	booking, err := kit.bookings.CreateBooking(context.Background(), CreateBookingInput{
		PartnerCode:   code,
		GuestName:     "房客",
		GuestPhone:    "0987654321",
		CheckinDate:   checkout.AddDate(0, 0, -2),
		CheckoutDate:  checkout,
		RoomType:      "double",
		RoomPrice:     models.NewMoneyFromInt(3000),
		PaymentStatus: constants.PaymentStatusPaid,
	})
	if err != nil {
		t.Fatalf("create booking failed: %v", err)
	}
	return booking
}

func completeLedgerTestBooking(t *testing.T, kit *ledgerTestKit, code string, checkout time.Time) *models.Booking {
	t.Helper()
	booking := createLedgerTestBooking(t, kit, code, checkout)
	outcome, err := kit.bookings.ConfirmCompletion(context.Background(), booking.ID, "admin")
	if err != nil {
		t.Fatalf("confirm completion failed: %v", err)
	}
	return outcome.Booking
}

func reloadPartner(t *testing.T, kit *ledgerTestKit, code string) *models.Partner {
	t.Helper()
	partner, err := kit.partners.GetByCode(code)
	if err != nil {
		t.Fatalf("reload partner failed: %v", err)
	}
	return partner
}

func reloadBooking(t *testing.T, kit *ledgerTestKit, id uint) *models.Booking {
	t.Helper()
	booking, err := kit.bookings.GetByID(id)
	if err != nil {
		t.Fatalf("reload booking failed: %v", err)
	}
	return booking
}

func assertMoney(t *testing.T, label string, got models.Money, want int64) {
	t.Helper()
	if !got.Decimal.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("%s want %d got %s", label, want, got.String())
	}
}

func assertPointsIdentity(t *testing.T, partner *models.Partner) {
	t.Helper()
	expected := partner.TotalPointsEarned.Decimal.Sub(partner.PointsUsed.Decimal)
	if !partner.AvailablePoints.Decimal.Equal(expected) {
		t.Fatalf("points identity broken: available=%s earned=%s used=%s",
			partner.AvailablePoints.String(), partner.TotalPointsEarned.String(), partner.PointsUsed.String())
	}
}

func TestConfirmCompletionAccruesFirstReferralBonus(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "ZHIYIN01", constants.CommissionPreferenceAccommodation)

	booking := completeLedgerTestBooking(t, kit, "ZHIYIN01", time.Now())
	if booking.StayStatus != constants.StayStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", booking.StayStatus)
	}
	if booking.CommissionStatus != constants.CommissionStatusCalculated {
		t.Fatalf("expected CALCULATED, got %s", booking.CommissionStatus)
	}
	assertMoney(t, "commission_amount", booking.CommissionAmount, 2500)
	assertMoney(t, "first_referral_bonus_amount", booking.FirstReferralBonusAmount, 1500)
	if !booking.IsFirstReferralBonus || booking.CommissionType != constants.CommissionPreferenceAccommodation {
		t.Fatalf("unexpected booking commission fields: %+v", booking)
	}
	if booking.ConfirmedBy != "admin" || booking.ConfirmedAt == nil {
		t.Fatalf("expected confirmation audit fields, got %+v", booking)
	}

	partner := reloadPartner(t, kit, "ZHIYIN01")
	assertMoney(t, "pending_commission", partner.PendingCommission, 2500)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2500)
	if !partner.FirstReferralBonusClaimed {
		t.Fatalf("expected first referral bonus claimed")
	}
	if partner.SuccessfulReferrals != 1 || partner.YearlyReferrals != 1 {
		t.Fatalf("expected referral counts 1/1, got %d/%d", partner.SuccessfulReferrals, partner.YearlyReferrals)
	}

	second := completeLedgerTestBooking(t, kit, "ZHIYIN01", time.Now())
	assertMoney(t, "second commission_amount", second.CommissionAmount, 1000)
	if second.IsFirstReferralBonus {
		t.Fatalf("first referral bonus must be granted once")
	}
}

func TestCommissionCalculatedOnlyOnce(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "ONCE0001", constants.CommissionPreferenceCash)
	booking := completeLedgerTestBooking(t, kit, "ONCE0001", time.Now())

	if _, err := kit.bookings.ConfirmCompletion(context.Background(), booking.ID, "admin"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition on second confirmation, got %v", err)
	}

	err := kit.db.Transaction(func(tx *gorm.DB) error {
		locked, err := repository.NewBookingRepository(tx).GetByIDForUpdate(booking.ID)
		if err != nil {
			return err
		}
		_, err = kit.commission.CalculateCommission(tx, locked)
		return err
	})
	if !errors.Is(err, ErrCommissionAlreadyCalculated) {
		t.Fatalf("expected commission already calculated, got %v", err)
	}

	partner := reloadPartner(t, kit, "ONCE0001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 2000)
	if partner.SuccessfulReferrals != 1 {
		t.Fatalf("expected exactly one accrual, got %d referrals", partner.SuccessfulReferrals)
	}
}

func TestConfirmCompletionWithoutPaymentDefersCommission(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "DEFER001", constants.CommissionPreferenceCash)
	booking, err := kit.bookings.CreateBooking(context.Background(), CreateBookingInput{
		PartnerCode:  "defer001",
		GuestName:    "房客",
		GuestEmail:   "guest@example.com",
		CheckinDate:  time.Now().AddDate(0, 0, -1),
		CheckoutDate: time.Now(),
		RoomPrice:    models.NewMoneyFromInt(2800),
	})
	if err != nil {
		t.Fatalf("create booking failed: %v", err)
	}
	if booking.ReferralCode() != "DEFER001" || booking.BookingSource != constants.BookingSourceReferral {
		t.Fatalf("expected normalized referral attribution, got %+v", booking)
	}

	if _, err := kit.bookings.ConfirmBooking(context.Background(), booking.ID); err != nil {
		t.Fatalf("confirm booking failed: %v", err)
	}
	outcome, err := kit.bookings.ConfirmCompletion(context.Background(), booking.ID, "admin")
	if err != nil {
		t.Fatalf("confirm completion failed: %v", err)
	}
	if outcome.Commission != nil || outcome.Booking.CommissionStatus != constants.CommissionStatusNotEligible {
		t.Fatalf("expected no commission before payment, got %+v", outcome)
	}

	paid, err := kit.bookings.MarkPaid(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Commission == nil || !paid.Commission.Eligible {
		t.Fatalf("expected commission after payment, got %+v", paid.Commission)
	}
	assertMoney(t, "commission_amount", paid.Booking.CommissionAmount, 2000)
}

func TestUnattributedBookingIsNotEligible(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	booking := completeLedgerTestBooking(t, kit, "", time.Now())
	if booking.CommissionStatus != constants.CommissionStatusNotEligible {
		t.Fatalf("expected NOT_ELIGIBLE, got %s", booking.CommissionStatus)
	}
	if booking.CommissionAmount.IsPositive() {
		t.Fatalf("expected zero commission, got %s", booking.CommissionAmount.String())
	}
	if booking.BookingSource != constants.BookingSourceDirect {
		t.Fatalf("expected direct booking source, got %s", booking.BookingSource)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	now := time.Now()

	_, err := kit.bookings.CreateBooking(context.Background(), CreateBookingInput{
		GuestName:    "房客",
		GuestPhone:   "0987654321",
		CheckinDate:  now,
		CheckoutDate: now.AddDate(0, 0, -1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for checkout before checkin, got %v", err)
	}

	_, err = kit.bookings.CreateBooking(context.Background(), CreateBookingInput{
		GuestName:    "房客",
		CheckinDate:  now,
		CheckoutDate: now,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing contact, got %v", err)
	}

	_, err = kit.bookings.CreateBooking(context.Background(), CreateBookingInput{
		GuestName:    "房客",
		GuestPhone:   "0987654321",
		CheckinDate:  now,
		CheckoutDate: now,
		RoomPrice:    models.NewMoneyFromInt(-1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative price, got %v", err)
	}

	_, err = kit.bookings.CreateBooking(context.Background(), CreateBookingInput{
		PartnerCode:  "NOPE0000",
		GuestName:    "房客",
		GuestPhone:   "0987654321",
		CheckinDate:  now,
		CheckoutDate: now,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown partner, got %v", err)
	}
}

func TestSettleSplitsIntoCashAndAccommodationPayouts(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "SPLIT001", constants.CommissionPreferenceAccommodation)
	booking := completeLedgerTestBooking(t, kit, "SPLIT001", time.Now())

	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "SPLIT001",
		CashAmount:          models.NewMoneyFromInt(1000),
		AccommodationAmount: models.NewMoneyFromInt(1500),
		Notes:               "2026 Q1",
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if len(payouts) != 2 {
		t.Fatalf("expected two payouts, got %d", len(payouts))
	}
	if payouts[0].PayoutType != constants.PayoutTypeCash || payouts[1].PayoutType != constants.PayoutTypeAccommodation {
		t.Fatalf("unexpected payout types: %s/%s", payouts[0].PayoutType, payouts[1].PayoutType)
	}
	for _, payout := range payouts {
		if payout.PayoutStatus != constants.PayoutStatusPending {
			t.Fatalf("expected PENDING payout, got %s", payout.PayoutStatus)
		}
		if len(payout.RelatedBookingIDs) != 1 || payout.RelatedBookingIDs[0] != booking.ID {
			t.Fatalf("expected payout linked to booking %d, got %v", booking.ID, payout.RelatedBookingIDs)
		}
	}

	partner := reloadPartner(t, kit, "SPLIT001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 0)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2500)
	assertMoney(t, "available_points", partner.AvailablePoints, 1500)
	assertPointsIdentity(t, partner)

	settled := reloadBooking(t, kit, booking.ID)
	if settled.CommissionStatus != constants.CommissionStatusPaid {
		t.Fatalf("expected booking commission PAID, got %s", settled.CommissionStatus)
	}

	txns, total, err := kit.points.ListTransactions(repository.PointsTransactionListFilter{PartnerCode: "SPLIT001"})
	if err != nil {
		t.Fatalf("list points transactions failed: %v", err)
	}
	if total != 1 || txns[0].TxnType != constants.PointsTxnTypeEarn {
		t.Fatalf("expected one earn transaction, got %d %+v", total, txns)
	}
}

func TestSettleRejectsAmountAbovePending(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "SHORT001", constants.CommissionPreferenceCash)
	completeLedgerTestBooking(t, kit, "SHORT001", time.Now())

	_, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "SHORT001",
		CashAmount:  models.NewMoneyFromInt(2001),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	_, err = kit.payouts.Settle(context.Background(), SettleInput{PartnerCode: "SHORT001"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero settle, got %v", err)
	}

	partner := reloadPartner(t, kit, "SHORT001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 2000)
	rows, total, err := kit.payouts.ListPayouts(repository.PayoutListFilter{PartnerCode: "SHORT001"})
	if err != nil {
		t.Fatalf("list payouts failed: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("expected no payouts after rejected settle, got %d", total)
	}
}

func TestSettleOldestCheckoutFirst(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "ORDER001", constants.CommissionPreferenceCash)
	now := time.Now()
	newer := completeLedgerTestBooking(t, kit, "ORDER001", now)
	older := completeLedgerTestBooking(t, kit, "ORDER001", now.AddDate(0, 0, -10))

	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "ORDER001",
		CashAmount:  models.NewMoneyFromInt(500),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if len(payouts[0].RelatedBookingIDs) != 1 || payouts[0].RelatedBookingIDs[0] != older.ID {
		t.Fatalf("expected oldest checkout booking %d funded first, got %v", older.ID, payouts[0].RelatedBookingIDs)
	}
	if got := reloadBooking(t, kit, older.ID); got.CommissionStatus != constants.CommissionStatusPaid {
		t.Fatalf("expected older booking PAID, got %s", got.CommissionStatus)
	}
	if got := reloadBooking(t, kit, newer.ID); got.CommissionStatus != constants.CommissionStatusCalculated {
		t.Fatalf("expected newer booking still CALCULATED, got %s", got.CommissionStatus)
	}
}

func TestSettleWithExplicitBookings(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "PICK0001", constants.CommissionPreferenceCash)
	now := time.Now()
	first := completeLedgerTestBooking(t, kit, "PICK0001", now.AddDate(0, 0, -5))
	second := completeLedgerTestBooking(t, kit, "PICK0001", now)

	_, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "PICK0001",
		CashAmount:  models.NewMoneyFromInt(1000),
		BookingIDs:  []uint{second.ID},
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance when selected bookings do not cover, got %v", err)
	}

	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "PICK0001",
		CashAmount:  models.NewMoneyFromInt(500),
		BookingIDs:  []uint{second.ID},
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if payouts[0].RelatedBookingIDs[0] != second.ID {
		t.Fatalf("expected explicit booking %d, got %v", second.ID, payouts[0].RelatedBookingIDs)
	}
	if got := reloadBooking(t, kit, first.ID); got.CommissionStatus != constants.CommissionStatusCalculated {
		t.Fatalf("expected unselected booking untouched, got %s", got.CommissionStatus)
	}
}

func TestCancelPayoutRestoresPendingAndResetsBookings(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "UNDO0001", constants.CommissionPreferenceAccommodation)
	booking := completeLedgerTestBooking(t, kit, "UNDO0001", time.Now())

	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "UNDO0001",
		CashAmount:          models.NewMoneyFromInt(1000),
		AccommodationAmount: models.NewMoneyFromInt(1500),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	cancelled, err := kit.payouts.CancelPayout(context.Background(), payouts[1].ID, "客人改期", "admin")
	if err != nil {
		t.Fatalf("cancel payout failed: %v", err)
	}
	if cancelled.PayoutStatus != constants.PayoutStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected CANCELLED payout, got %+v", cancelled)
	}

	partner := reloadPartner(t, kit, "UNDO0001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 1500)
	assertMoney(t, "available_points", partner.AvailablePoints, 0)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2500)
	assertPointsIdentity(t, partner)

	reset := reloadBooking(t, kit, booking.ID)
	if reset.StayStatus != constants.StayStatusPending || reset.CommissionStatus != constants.CommissionStatusPending {
		t.Fatalf("expected booking reset to PENDING/PENDING, got %s/%s", reset.StayStatus, reset.CommissionStatus)
	}
	assertMoney(t, "commission_amount", reset.CommissionAmount, 0)

	if _, err := kit.payouts.CancelPayout(context.Background(), payouts[1].ID, "again", "admin"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state on double cancel, got %v", err)
	}
}

func TestCancelThenResettleRoundTrip(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "ROUND001", constants.CommissionPreferenceAccommodation)
	booking := completeLedgerTestBooking(t, kit, "ROUND001", time.Now())

	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "ROUND001",
		AccommodationAmount: models.NewMoneyFromInt(2500),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if _, err := kit.payouts.CancelPayout(context.Background(), payouts[0].ID, "", "admin"); err != nil {
		t.Fatalf("cancel payout failed: %v", err)
	}

	resettled, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "ROUND001",
		AccommodationAmount: models.NewMoneyFromInt(2500),
		BookingIDs:          []uint{booking.ID},
	})
	if err != nil {
		t.Fatalf("re-settle failed: %v", err)
	}
	assertMoney(t, "re-settled payout", resettled[0].Amount, 2500)

	restored := reloadBooking(t, kit, booking.ID)
	assertMoney(t, "restored commission_amount", restored.CommissionAmount, 2500)
	if restored.CommissionStatus != constants.CommissionStatusPaid {
		t.Fatalf("expected PAID after re-settle, got %s", restored.CommissionStatus)
	}
	partner := reloadPartner(t, kit, "ROUND001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 0)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2500)
	assertMoney(t, "available_points", partner.AvailablePoints, 2500)
	assertPointsIdentity(t, partner)
}

func TestReconfirmAfterPayoutCancelDoesNotDoubleAccrue(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "AGAIN001", constants.CommissionPreferenceCash)
	booking := completeLedgerTestBooking(t, kit, "AGAIN001", time.Now())

	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "AGAIN001",
		CashAmount:  models.NewMoneyFromInt(2000),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if _, err := kit.payouts.CancelPayout(context.Background(), payouts[0].ID, "", "admin"); err != nil {
		t.Fatalf("cancel payout failed: %v", err)
	}

	outcome, err := kit.bookings.ConfirmCompletion(context.Background(), booking.ID, "admin")
	if err != nil {
		t.Fatalf("re-confirm failed: %v", err)
	}
	if outcome.Commission == nil || !outcome.Commission.Restored {
		t.Fatalf("expected restored commission, got %+v", outcome.Commission)
	}
	assertMoney(t, "commission_amount", outcome.Booking.CommissionAmount, 2000)

	partner := reloadPartner(t, kit, "AGAIN001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 2000)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2000)
	if partner.SuccessfulReferrals != 1 {
		t.Fatalf("expected referral count unchanged, got %d", partner.SuccessfulReferrals)
	}
}

func TestDeductPointsRejectsInsufficientBalance(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "POINT001", constants.CommissionPreferenceAccommodation)
	booking := completeLedgerTestBooking(t, kit, "POINT001", time.Now())
	if _, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "POINT001",
		CashAmount:          models.NewMoneyFromInt(1000),
		AccommodationAmount: models.NewMoneyFromInt(1500),
	}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	_, _, err := kit.points.DeductPoints(context.Background(), DeductPointsInput{
		PartnerCode: "POINT001",
		Amount:      models.NewMoneyFromInt(5000),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	partner := reloadPartner(t, kit, "POINT001")
	assertMoney(t, "available_points", partner.AvailablePoints, 1500)
	assertMoney(t, "points_used", partner.PointsUsed, 0)

	updated, txn, err := kit.points.DeductPoints(context.Background(), DeductPointsInput{
		PartnerCode:      "POINT001",
		Amount:           models.NewMoneyFromInt(500),
		RelatedBookingID: &booking.ID,
		Notes:            "住宿折抵",
	})
	if err != nil {
		t.Fatalf("deduct points failed: %v", err)
	}
	assertMoney(t, "available_points", updated.AvailablePoints, 1000)
	assertMoney(t, "points_used", updated.PointsUsed, 500)
	assertMoney(t, "total_commission_earned", updated.TotalCommissionEarned, 2500)
	assertMoney(t, "balance_after", txn.BalanceAfter, 1000)
	assertPointsIdentity(t, updated)
}

func TestCancelAccommodationPayoutRejectedWhenPointsSpent(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "SPENT001", constants.CommissionPreferenceAccommodation)
	completeLedgerTestBooking(t, kit, "SPENT001", time.Now())
	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "SPENT001",
		AccommodationAmount: models.NewMoneyFromInt(2500),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if _, _, err := kit.points.DeductPoints(context.Background(), DeductPointsInput{
		PartnerCode: "SPENT001",
		Amount:      models.NewMoneyFromInt(2000),
	}); err != nil {
		t.Fatalf("deduct points failed: %v", err)
	}

	if _, err := kit.payouts.CancelPayout(context.Background(), payouts[0].ID, "", "admin"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	partner := reloadPartner(t, kit, "SPENT001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 0)
	assertMoney(t, "available_points", partner.AvailablePoints, 500)
}

func TestCancelOrRefundReversesCommission(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "BACK0001", constants.CommissionPreferenceCash)
	booking := completeLedgerTestBooking(t, kit, "BACK0001", time.Now())

	refunded, err := kit.bookings.CancelOrRefund(context.Background(), booking.ID, constants.BookingCancelActionRefund, "客诉退款")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.StayStatus != constants.StayStatusCancelled || refunded.PaymentStatus != constants.PaymentStatusRefunded {
		t.Fatalf("expected CANCELLED/REFUNDED, got %s/%s", refunded.StayStatus, refunded.PaymentStatus)
	}
	if refunded.CommissionStatus != constants.CommissionStatusNotEligible || refunded.CommissionAmount.IsPositive() {
		t.Fatalf("expected commission cleared, got %s %s", refunded.CommissionStatus, refunded.CommissionAmount.String())
	}

	partner := reloadPartner(t, kit, "BACK0001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 0)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 0)
	if partner.SuccessfulReferrals != 0 || partner.YearlyReferrals != 0 {
		t.Fatalf("expected referral counts reverted, got %d/%d", partner.SuccessfulReferrals, partner.YearlyReferrals)
	}
	if !partner.FirstReferralBonusClaimed {
		t.Fatalf("first referral bonus must stay claimed after reversal")
	}

	if _, err := kit.bookings.CancelOrRefund(context.Background(), booking.ID, constants.BookingCancelActionCancel, ""); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state on terminated booking, got %v", err)
	}
	if _, err := kit.bookings.ConfirmCompletion(context.Background(), booking.ID, "admin"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state on confirming cancelled booking, got %v", err)
	}
}

func TestCancelBookingLockedByPayout(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "LOCK0001", constants.CommissionPreferenceCash)
	booking := completeLedgerTestBooking(t, kit, "LOCK0001", time.Now())
	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "LOCK0001",
		CashAmount:  models.NewMoneyFromInt(2000),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if _, err := kit.bookings.CancelOrRefund(context.Background(), booking.ID, constants.BookingCancelActionCancel, ""); !errors.Is(err, ErrBookingLockedByPayout) {
		t.Fatalf("expected booking locked by payout, got %v", err)
	}

	if _, err := kit.payouts.CancelPayout(context.Background(), payouts[0].ID, "", "admin"); err != nil {
		t.Fatalf("cancel payout failed: %v", err)
	}
	if _, err := kit.bookings.CancelOrRefund(context.Background(), booking.ID, constants.BookingCancelActionCancel, "改期"); err != nil {
		t.Fatalf("cancel after payout cancel failed: %v", err)
	}
	partner := reloadPartner(t, kit, "LOCK0001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 0)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 0)
}

func TestCompletePayout(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "DONE0001", constants.CommissionPreferenceCash)
	completeLedgerTestBooking(t, kit, "DONE0001", time.Now())
	payouts, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode: "DONE0001",
		CashAmount:  models.NewMoneyFromInt(2000),
	})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	completed, err := kit.payouts.CompletePayout(context.Background(), payouts[0].ID, "finance")
	if err != nil {
		t.Fatalf("complete payout failed: %v", err)
	}
	if completed.PayoutStatus != constants.PayoutStatusCompleted || completed.ProcessedBy != "finance" || completed.CompletedAt == nil {
		t.Fatalf("unexpected completed payout: %+v", completed)
	}
	if len(completed.RelatedBookingIDs) != 1 {
		t.Fatalf("expected related bookings on completed payout, got %v", completed.RelatedBookingIDs)
	}
	if _, err := kit.payouts.CompletePayout(context.Background(), payouts[0].ID, "finance"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state on double completion, got %v", err)
	}
}

func TestTierPromotionUsesTierBeforeIncrement(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "TIER0001", constants.CommissionPreferenceCash)

	var last *models.Booking
	for i := 0; i < 4; i++ {
		last = completeLedgerTestBooking(t, kit, "TIER0001", time.Now())
	}
	assertMoney(t, "fourth booking commission", last.CommissionAmount, 500)

	partner := reloadPartner(t, kit, "TIER0001")
	if partner.Level != constants.PartnerLevelGuide {
		t.Fatalf("expected LV2 after 4 yearly referrals, got %s", partner.Level)
	}
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 3500)

	fifth := completeLedgerTestBooking(t, kit, "TIER0001", time.Now())
	assertMoney(t, "fifth booking commission", fifth.CommissionAmount, 600)
}

func TestReviewYearEndDemotesAndIsIdempotent(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	partner := createLedgerTestPartner(t, kit, "YEAR0001", constants.CommissionPreferenceCash)
	if err := kit.db.Model(&models.Partner{}).Where("id = ?", partner.ID).
		Updates(map[string]interface{}{"level": constants.PartnerLevelGuide, "yearly_referrals": 2}).Error; err != nil {
		t.Fatalf("prepare partner failed: %v", err)
	}

	result, err := kit.partners.ReviewYearEnd(context.Background(), "YEAR0001", 2025)
	if err != nil {
		t.Fatalf("review year end failed: %v", err)
	}
	if !result.Applied || result.Partner.Level != constants.PartnerLevelInsider {
		t.Fatalf("expected demotion to LV1, got %+v", result)
	}
	if result.Partner.YearlyReferrals != 0 || result.Partner.LastTierReviewYear != 2025 {
		t.Fatalf("expected yearly reset and review year stamped, got %+v", result.Partner)
	}

	again, err := kit.partners.ReviewYearEnd(context.Background(), "YEAR0001", 2025)
	if err != nil {
		t.Fatalf("second review failed: %v", err)
	}
	if again.Applied {
		t.Fatalf("expected second review of the same year to be skipped")
	}
}

func TestPartnerAdministration(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	generated, err := kit.partners.CreatePartner(context.Background(), CreatePartnerInput{
		Name:                 "自动代码",
		Email:                "auto@example.com",
		CommissionPreference: "cash",
	})
	if err != nil {
		t.Fatalf("create partner failed: %v", err)
	}
	if len(generated.PartnerCode) != partnerCodeLength || generated.Level != constants.PartnerLevelInsider {
		t.Fatalf("unexpected generated partner: %+v", generated)
	}

	if _, err := kit.partners.CreatePartner(context.Background(), CreatePartnerInput{
		PartnerCode:          generated.PartnerCode,
		Name:                 "重复",
		Phone:                "0911000000",
		CommissionPreference: constants.CommissionPreferenceCash,
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for duplicate code, got %v", err)
	}
	if _, err := kit.partners.CreatePartner(context.Background(), CreatePartnerInput{
		Name:                 "缺联系方式",
		CommissionPreference: constants.CommissionPreferenceCash,
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing contact, got %v", err)
	}

	disabled, err := kit.partners.UpdateStatus(context.Background(), generated.PartnerCode, constants.PartnerStatusDisabled)
	if err != nil || disabled.Status != constants.PartnerStatusDisabled {
		t.Fatalf("disable partner failed: %v %+v", err, disabled)
	}
	booking := completeLedgerTestBooking(t, kit, generated.PartnerCode, time.Now())
	if booking.CommissionStatus != constants.CommissionStatusNotEligible {
		t.Fatalf("expected disabled partner booking NOT_ELIGIBLE, got %s", booking.CommissionStatus)
	}

	updated, err := kit.partners.UpdatePreference(context.Background(), generated.PartnerCode, constants.CommissionPreferenceAccommodation)
	if err != nil || updated.CommissionPreference != constants.CommissionPreferenceAccommodation {
		t.Fatalf("update preference failed: %v %+v", err, updated)
	}
	if _, err := kit.partners.UpdatePreference(context.Background(), generated.PartnerCode, "GIFT"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for invalid preference, got %v", err)
	}
}

func TestResetFirstReferralBonus(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "RESET001", constants.CommissionPreferenceCash)
	completeLedgerTestBooking(t, kit, "RESET001", time.Now())

	partner, err := kit.partners.ResetFirstReferralBonus(context.Background(), "RESET001")
	if err != nil {
		t.Fatalf("reset bonus failed: %v", err)
	}
	if partner.FirstReferralBonusClaimed {
		t.Fatalf("expected bonus flag cleared")
	}
	next := completeLedgerTestBooking(t, kit, "RESET001", time.Now())
	assertMoney(t, "commission after reset", next.CommissionAmount, 2000)
}

func TestDashboardAggregates(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "DASH0001", constants.CommissionPreferenceAccommodation)
	createLedgerTestPartner(t, kit, "DASH0002", constants.CommissionPreferenceCash)
	completeLedgerTestBooking(t, kit, "DASH0001", time.Now())
	createLedgerTestBooking(t, kit, "DASH0002", time.Now())
	if _, err := kit.payouts.Settle(context.Background(), SettleInput{
		PartnerCode:         "DASH0001",
		AccommodationAmount: models.NewMoneyFromInt(1000),
	}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	data, err := kit.dashboard.GetDashboardData(context.Background(), true)
	if err != nil {
		t.Fatalf("get dashboard failed: %v", err)
	}
	if data.PartnerCount != 2 || data.ActivePartnerCount != 2 {
		t.Fatalf("unexpected partner counts: %d/%d", data.PartnerCount, data.ActivePartnerCount)
	}
	if data.BookingsByStatus[constants.StayStatusCompleted] != 1 || data.BookingsByStatus[constants.StayStatusPending] != 1 {
		t.Fatalf("unexpected booking counts: %+v", data.BookingsByStatus)
	}
	assertMoney(t, "dashboard total_commission_earned", data.Totals.TotalCommissionEarned, 2500)
	assertMoney(t, "dashboard pending_commission", data.Totals.PendingCommission, 1500)
	assertMoney(t, "dashboard available_points", data.Totals.AvailablePoints, 1000)
	if len(data.Payouts) != 1 || data.Payouts[0].Status != constants.PayoutStatusPending {
		t.Fatalf("unexpected payout stats: %+v", data.Payouts)
	}
	if len(data.TopPartners) != 1 || data.TopPartners[0].PartnerCode != "DASH0001" {
		t.Fatalf("unexpected top partners: %+v", data.TopPartners)
	}

	summary, err := kit.dashboard.GetPartnerSummary("dash0002")
	if err != nil {
		t.Fatalf("get partner summary failed: %v", err)
	}
	if summary.NextLevel != constants.PartnerLevelGuide || summary.ReferralsToNextLevel != 4 {
		t.Fatalf("unexpected partner summary: %+v", summary)
	}
	assertMoney(t, "current reward", summary.CurrentReward, 500)
}

func TestConcurrentConfirmCompletionAccruesOnce(t *testing.T) {
	kit := setupConcurrentLedgerTest(t)
	createLedgerTestPartner(t, kit, "RACE0001", constants.CommissionPreferenceAccommodation)
	booking := createLedgerTestBooking(t, kit, "RACE0001", time.Now())

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := kit.bookings.ConfirmCompletion(context.Background(), booking.ID, "admin")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one confirmation, got %d (failures=%v)", successes, failures)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrInvalidStateTransition) {
			t.Fatalf("expected repeated confirmation to be rejected as invalid state, got %v", err)
		}
	}
	partner := reloadPartner(t, kit, "RACE0001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 2500)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2500)
	if partner.SuccessfulReferrals != 1 || partner.YearlyReferrals != 1 {
		t.Fatalf("expected one referral, got total=%d yearly=%d", partner.SuccessfulReferrals, partner.YearlyReferrals)
	}
}

func TestConcurrentSettleDrawsPendingOnce(t *testing.T) {
	kit := setupConcurrentLedgerTest(t)
	createLedgerTestPartner(t, kit, "RACE0002", constants.CommissionPreferenceAccommodation)
	completeLedgerTestBooking(t, kit, "RACE0002", time.Now())

	const workers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := kit.payouts.Settle(context.Background(), SettleInput{
				PartnerCode: "RACE0002",
				CashAmount:  models.NewMoneyFromInt(1000),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	if successes != 2 {
		t.Fatalf("expected two settlements out of 2500 pending, got %d (failures=%v)", successes, failures)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("expected insufficient balance for overdrawn settlement, got %v", err)
		}
	}
	partner := reloadPartner(t, kit, "RACE0002")
	assertMoney(t, "pending_commission", partner.PendingCommission, 500)
	assertMoney(t, "total_commission_earned", partner.TotalCommissionEarned, 2500)

	payouts, total, err := kit.payouts.ListPayouts(repository.PayoutListFilter{PartnerCode: "RACE0002"})
	if err != nil {
		t.Fatalf("list payouts failed: %v", err)
	}
	if total != 2 || len(payouts) != 2 {
		t.Fatalf("expected two payouts, got %d", total)
	}
}

func TestCommissionCatchesUpMissedYearEndReview(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	partner := createLedgerTestPartner(t, kit, "LATE0001", constants.CommissionPreferenceAccommodation)
	now := time.Now()
	if err := kit.db.Model(&models.Partner{}).Where("id = ?", partner.ID).Updates(map[string]interface{}{
		"level":                        constants.PartnerLevelGuide,
		"yearly_referrals":             3,
		"last_tier_review_year":        now.Year() - 3,
		"first_referral_bonus_claimed": true,
	}).Error; err != nil {
		t.Fatalf("prepare partner failed: %v", err)
	}

	booking := completeLedgerTestBooking(t, kit, "LATE0001", now)
	assertMoney(t, "commission after catch-up", booking.CommissionAmount, 1000)

	reloaded := reloadPartner(t, kit, "LATE0001")
	if reloaded.Level != constants.PartnerLevelInsider {
		t.Fatalf("expected LV1 after two missed reviews, got %s", reloaded.Level)
	}
	if reloaded.YearlyReferrals != 1 {
		t.Fatalf("expected old yearly referrals discarded, got %d", reloaded.YearlyReferrals)
	}
	if reloaded.LastTierReviewYear != now.Year()-1 {
		t.Fatalf("expected review year %d, got %d", now.Year()-1, reloaded.LastTierReviewYear)
	}
}

func TestCommissionKeepsCurrentYearReferrals(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	createLedgerTestPartner(t, kit, "KEEP0001", constants.CommissionPreferenceCash)
	for i := 0; i < 3; i++ {
		completeLedgerTestBooking(t, kit, "KEEP0001", time.Now())
	}
	partner := reloadPartner(t, kit, "KEEP0001")
	if partner.YearlyReferrals != 3 || partner.LastTierReviewYear != 0 {
		t.Fatalf("current-year referrals should accumulate without review, got yearly=%d review=%d",
			partner.YearlyReferrals, partner.LastTierReviewYear)
	}
}

func TestRecalculateCommissionAfterReactivation(t *testing.T) {
	kit := setupLedgerServiceTest(t)
	ctx := context.Background()
	createLedgerTestPartner(t, kit, "BACK0001", constants.CommissionPreferenceAccommodation)
	booking := createLedgerTestBooking(t, kit, "BACK0001", time.Now())

	if _, err := kit.partners.UpdateStatus(ctx, "BACK0001", constants.PartnerStatusDisabled); err != nil {
		t.Fatalf("disable partner failed: %v", err)
	}
	outcome, err := kit.bookings.ConfirmCompletion(ctx, booking.ID, "admin")
	if err != nil {
		t.Fatalf("confirm completion failed: %v", err)
	}
	if outcome.Booking.CommissionStatus != constants.CommissionStatusNotEligible {
		t.Fatalf("expected NOT_ELIGIBLE while partner disabled, got %s", outcome.Booking.CommissionStatus)
	}

	if _, err := kit.bookings.RecalculateCommission(ctx, booking.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected recalculation rejected while partner disabled, got %v", err)
	}
	if still := reloadBooking(t, kit, booking.ID); still.CommissionStatus != constants.CommissionStatusNotEligible {
		t.Fatalf("rejected recalculation must not change booking, got %s", still.CommissionStatus)
	}

	if _, err := kit.partners.UpdateStatus(ctx, "BACK0001", constants.PartnerStatusActive); err != nil {
		t.Fatalf("enable partner failed: %v", err)
	}
	recalculated, err := kit.bookings.RecalculateCommission(ctx, booking.ID)
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if recalculated.Booking.CommissionStatus != constants.CommissionStatusCalculated {
		t.Fatalf("expected CALCULATED, got %s", recalculated.Booking.CommissionStatus)
	}
	assertMoney(t, "recalculated commission", recalculated.Booking.CommissionAmount, 2500)

	partner := reloadPartner(t, kit, "BACK0001")
	assertMoney(t, "pending_commission", partner.PendingCommission, 2500)
	if partner.SuccessfulReferrals != 1 {
		t.Fatalf("expected one referral, got %d", partner.SuccessfulReferrals)
	}

	if _, err := kit.bookings.RecalculateCommission(ctx, booking.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected second recalculation rejected, got %v", err)
	}
	direct := completeLedgerTestBooking(t, kit, "", time.Now())
	if _, err := kit.bookings.RecalculateCommission(ctx, direct.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected unattributed booking rejected, got %v", err)
	}
}
