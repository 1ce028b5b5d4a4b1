package repository

import (
	"errors"
	"strings"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutRepository 结算数据访问接口
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository

	Create(payout *models.Payout) error
	Update(payout *models.Payout) error
	GetByID(id uint) (*models.Payout, error)
	GetByIDForUpdate(id uint) (*models.Payout, error)
	List(filter PayoutListFilter) ([]models.Payout, int64, error)

	CreateAllocations(rows []models.PayoutAllocation) error
	ListAllocationsByPayout(payoutID uint) ([]models.PayoutAllocation, error)
	SumActiveAllocationsByBookings(bookingIDs []uint) (map[uint]decimal.Decimal, error)
	SumActiveAmountByPartner(partnerCode string) (decimal.Decimal, error)
}

// GormPayoutRepository GORM 结算仓储
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建结算仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Create 创建结算
func (r *GormPayoutRepository) Create(payout *models.Payout) error {
	return r.db.Omit(clause.Associations).Create(payout).Error
}

// Update 保存结算
func (r *GormPayoutRepository) Update(payout *models.Payout) error {
	return r.db.Omit(clause.Associations).Save(payout).Error
}

// GetByID 按ID获取结算（含分摊记录）
func (r *GormPayoutRepository) GetByID(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.Preload("Allocations").First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	payout.FillRelatedBookingIDs()
	return &payout, nil
}

// GetByIDForUpdate 按ID加锁获取结算
func (r *GormPayoutRepository) GetByIDForUpdate(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// List 查询结算列表
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.Payout, int64, error) {
	query := r.db.Model(&models.Payout{})
	if code := NormalizePartnerCode(filter.PartnerCode); code != "" {
		query = query.Where("partner_code = ?", code)
	}
	if payoutType := strings.TrimSpace(filter.PayoutType); payoutType != "" {
		query = query.Where("payout_type = ?", payoutType)
	}
	if status := strings.TrimSpace(filter.PayoutStatus); status != "" {
		query = query.Where("payout_status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Payout
	if err := query.Preload("Allocations").Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].FillRelatedBookingIDs()
	}
	return rows, total, nil
}

// CreateAllocations 批量写入结算分摊记录
func (r *GormPayoutRepository) CreateAllocations(rows []models.PayoutAllocation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.Create(&rows).Error
}

// ListAllocationsByPayout 查询结算的分摊记录
func (r *GormPayoutRepository) ListAllocationsByPayout(payoutID uint) ([]models.PayoutAllocation, error) {
	if payoutID == 0 {
		return []models.PayoutAllocation{}, nil
	}
	var rows []models.PayoutAllocation
	if err := r.db.Where("payout_id = ?", payoutID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumActiveAllocationsByBookings 汇总订房在未取消结算中的已分摊金额
func (r *GormPayoutRepository) SumActiveAllocationsByBookings(bookingIDs []uint) (map[uint]decimal.Decimal, error) {
	result := make(map[uint]decimal.Decimal, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return result, nil
	}
	var rows []struct {
		BookingID uint            `gorm:"column:booking_id"`
		Total     decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.PayoutAllocation{}).
		Select("payout_allocations.booking_id, COALESCE(SUM(payout_allocations.amount), 0) AS total").
		Joins("JOIN payouts ON payouts.id = payout_allocations.payout_id").
		Where("payout_allocations.booking_id IN ?", bookingIDs).
		Where("payouts.payout_status <> ?", constants.PayoutStatusCancelled).
		Group("payout_allocations.booking_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.BookingID] = row.Total.Round(2)
	}
	return result, nil
}

// SumActiveAmountByPartner 汇总大使未取消结算的总金额
func (r *GormPayoutRepository) SumActiveAmountByPartner(partnerCode string) (decimal.Decimal, error) {
	code := NormalizePartnerCode(partnerCode)
	if code == "" {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.Payout{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("partner_code = ? AND payout_status <> ?", code, constants.PayoutStatusCancelled).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}
