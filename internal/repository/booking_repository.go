package repository

import (
	"errors"
	"strings"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingRepository 订房数据访问接口
type BookingRepository interface {
	WithTx(tx *gorm.DB) BookingRepository

	GetByID(id uint) (*models.Booking, error)
	GetByIDForUpdate(id uint) (*models.Booking, error)
	GetByBookingNo(bookingNo string) (*models.Booking, error)
	Create(booking *models.Booking) error
	Update(booking *models.Booking) error
	List(filter BookingListFilter) ([]models.Booking, int64, error)
	ListByIDsForUpdate(ids []uint) ([]models.Booking, error)
	ListAccruedByPartnerForUpdate(partnerCode string) ([]models.Booking, error)
}

// GormBookingRepository GORM 订房仓储
type GormBookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository 创建订房仓储
func NewBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBookingRepository) WithTx(tx *gorm.DB) BookingRepository {
	if tx == nil {
		return r
	}
	return &GormBookingRepository{db: tx}
}

// GetByID 按ID获取订房
func (r *GormBookingRepository) GetByID(id uint) (*models.Booking, error) {
	if id == 0 {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// GetByIDForUpdate 按ID加锁获取订房
func (r *GormBookingRepository) GetByIDForUpdate(id uint) (*models.Booking, error) {
	if id == 0 {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// GetByBookingNo 按订房编号获取订房
func (r *GormBookingRepository) GetByBookingNo(bookingNo string) (*models.Booking, error) {
	normalized := strings.TrimSpace(bookingNo)
	if normalized == "" {
		return nil, nil
	}
	var booking models.Booking
	if err := r.db.Where("booking_no = ?", normalized).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// Create 创建订房
func (r *GormBookingRepository) Create(booking *models.Booking) error {
	return r.db.Create(booking).Error
}

// Update 保存订房
func (r *GormBookingRepository) Update(booking *models.Booking) error {
	return r.db.Save(booking).Error
}

// List 查询订房列表
func (r *GormBookingRepository) List(filter BookingListFilter) ([]models.Booking, int64, error) {
	query := r.db.Model(&models.Booking{})
	if code := NormalizePartnerCode(filter.PartnerCode); code != "" {
		query = query.Where("partner_code = ?", code)
	}
	if status := strings.TrimSpace(filter.StayStatus); status != "" {
		query = query.Where("stay_status = ?", status)
	}
	if status := strings.TrimSpace(filter.PaymentStatus); status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if status := strings.TrimSpace(filter.CommissionStatus); status != "" {
		query = query.Where("commission_status = ?", status)
	}
	if filter.CheckinFrom != nil {
		query = query.Where("checkin_date >= ?", *filter.CheckinFrom)
	}
	if filter.CheckinTo != nil {
		query = query.Where("checkin_date <= ?", *filter.CheckinTo)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"booking_no", "guest_name", "guest_phone", "guest_email"})
		query = query.Where("("+condition+")", repeatLikeArgs("%"+keyword+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Booking
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListByIDsForUpdate 按ID批量加锁获取订房
func (r *GormBookingRepository) ListByIDsForUpdate(ids []uint) ([]models.Booking, error) {
	if len(ids) == 0 {
		return []models.Booking{}, nil
	}
	var rows []models.Booking
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAccruedByPartnerForUpdate 加锁查询已计入佣金的订房（按退房日期从早到晚）
func (r *GormBookingRepository) ListAccruedByPartnerForUpdate(partnerCode string) ([]models.Booking, error) {
	code := NormalizePartnerCode(partnerCode)
	if code == "" {
		return []models.Booking{}, nil
	}
	var rows []models.Booking
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("partner_code = ?", code).
		Where("accrued_amount > 0").
		Where("stay_status <> ?", constants.StayStatusCancelled).
		Order("checkout_date asc").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
