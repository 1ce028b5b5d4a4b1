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

// PointsService 住宿点数服务
type PointsService struct {
	partnerRepo repository.PartnerRepository
	bookingRepo repository.BookingRepository
	pointsRepo  repository.PointsRepository
	ledger      ledgerExecutor
}

// NewPointsService 创建住宿点数服务
func NewPointsService(
	partnerRepo repository.PartnerRepository,
	bookingRepo repository.BookingRepository,
	pointsRepo repository.PointsRepository,
	locker LedgerLocker,
) *PointsService {
	return &PointsService{
		partnerRepo: partnerRepo,
		bookingRepo: bookingRepo,
		pointsRepo:  pointsRepo,
		ledger:      newLedgerExecutor(partnerRepo, locker),
	}
}

// DeductPointsInput 扣除住宿点数输入
type DeductPointsInput struct {
	PartnerCode      string       `validate:"required"`
	Amount           models.Money `validate:"-"`
	RelatedBookingID *uint
	Notes            string `validate:"max=1000"`
}

// DeductPoints 扣除可用住宿点数，不影响累计佣金
func (s *PointsService) DeductPoints(ctx context.Context, input DeductPointsInput) (*models.Partner, *models.PointsTransaction, error) {
	input.PartnerCode = repository.NormalizePartnerCode(input.PartnerCode)
	if err := validateInput(input); err != nil {
		return nil, nil, err
	}
	amount := models.NewMoneyFromDecimal(input.Amount.Decimal)
	if !amount.IsPositive() {
		return nil, nil, ErrAmountInvalid
	}
	var relatedBookingID *uint
	if input.RelatedBookingID != nil && *input.RelatedBookingID > 0 {
		id := *input.RelatedBookingID
		relatedBookingID = &id
	}

	var partnerResult *models.Partner
	var txnResult *models.PointsTransaction
	err := s.ledger.run(ctx, input.PartnerCode, func(tx *gorm.DB) error {
		partnerRepo := s.partnerRepo.WithTx(tx)
		partner, err := partnerRepo.GetByCodeForUpdate(input.PartnerCode)
		if err != nil {
			return err
		}
		if partner == nil {
			return ErrPartnerNotFound
		}
		if relatedBookingID != nil {
			booking, err := s.bookingRepo.WithTx(tx).GetByID(*relatedBookingID)
			if err != nil {
				return err
			}
			if booking == nil {
				return ErrBookingNotFound
			}
		}
		if partner.AvailablePoints.LessThan(amount.Decimal) {
			return ErrAvailablePointsShort
		}

		now := time.Now()
		partner.AvailablePoints = partner.AvailablePoints.Sub(amount)
		partner.PointsUsed = partner.PointsUsed.Add(amount)
		partner.UpdatedAt = now
		if err := partnerRepo.Update(partner); err != nil {
			return err
		}

		notes := strings.TrimSpace(input.Notes)
		if notes == "" {
			notes = "住宿点数折抵"
		}
		txn := &models.PointsTransaction{
			PartnerCode:  partner.PartnerCode,
			TxnType:      constants.PointsTxnTypeUse,
			Amount:       amount,
			BalanceAfter: partner.AvailablePoints,
			BookingID:    relatedBookingID,
			Notes:        notes,
			CreatedAt:    now,
		}
		if err := s.pointsRepo.WithTx(tx).CreateTransaction(txn); err != nil {
			return err
		}
		partnerResult = partner
		txnResult = txn
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("points_deducted",
		"partner_code", partnerResult.PartnerCode,
		"amount", amount.String(),
		"available_points", partnerResult.AvailablePoints.String(),
	)
	return partnerResult, txnResult, nil
}

// ListTransactions 查询点数流水
func (s *PointsService) ListTransactions(filter repository.PointsTransactionListFilter) ([]models.PointsTransaction, int64, error) {
	rows, total, err := s.pointsRepo.ListTransactions(filter)
	if err != nil {
		return nil, 0, wrapSystemError(err)
	}
	return rows, total, nil
}
