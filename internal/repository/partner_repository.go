package repository

import (
	"errors"
	"strings"

	"github.com/zhiyin-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PartnerRepository 知音大使数据访问接口
type PartnerRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) PartnerRepository

	GetByID(id uint) (*models.Partner, error)
	GetByCode(code string) (*models.Partner, error)
	GetByCodeForUpdate(code string) (*models.Partner, error)
	Create(partner *models.Partner) error
	Update(partner *models.Partner) error
	List(filter PartnerListFilter) ([]models.Partner, int64, error)
	ListReviewCodes() ([]string, error)
}

// GormPartnerRepository GORM 知音大使仓储
type GormPartnerRepository struct {
	db *gorm.DB
}

// NewPartnerRepository 创建知音大使仓储
func NewPartnerRepository(db *gorm.DB) *GormPartnerRepository {
	return &GormPartnerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPartnerRepository) WithTx(tx *gorm.DB) PartnerRepository {
	if tx == nil {
		return r
	}
	return &GormPartnerRepository{db: tx}
}

// Transaction 执行事务
func (r *GormPartnerRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取知音大使
func (r *GormPartnerRepository) GetByID(id uint) (*models.Partner, error) {
	if id == 0 {
		return nil, nil
	}
	var partner models.Partner
	if err := r.db.First(&partner, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

// GetByCode 按推荐代码获取知音大使
func (r *GormPartnerRepository) GetByCode(code string) (*models.Partner, error) {
	normalized := NormalizePartnerCode(code)
	if normalized == "" {
		return nil, nil
	}
	var partner models.Partner
	if err := r.db.Where("partner_code = ?", normalized).First(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

// GetByCodeForUpdate 按推荐代码加锁获取知音大使
func (r *GormPartnerRepository) GetByCodeForUpdate(code string) (*models.Partner, error) {
	normalized := NormalizePartnerCode(code)
	if normalized == "" {
		return nil, nil
	}
	var partner models.Partner
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("partner_code = ?", normalized).
		First(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

// Create 创建知音大使
func (r *GormPartnerRepository) Create(partner *models.Partner) error {
	return r.db.Create(partner).Error
}

// Update 保存知音大使
func (r *GormPartnerRepository) Update(partner *models.Partner) error {
	return r.db.Save(partner).Error
}

// List 查询知音大使列表
func (r *GormPartnerRepository) List(filter PartnerListFilter) ([]models.Partner, int64, error) {
	query := r.db.Model(&models.Partner{})
	if level := strings.TrimSpace(filter.Level); level != "" {
		query = query.Where("level = ?", level)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"partner_code", "name", "email", "phone"})
		query = query.Where("("+condition+")", repeatLikeArgs("%"+keyword+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Partner
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListReviewCodes 查询所有未删除大使的推荐代码（含停用）
func (r *GormPartnerRepository) ListReviewCodes() ([]string, error) {
	var codes []string
	if err := r.db.Model(&models.Partner{}).
		Order("id asc").
		Pluck("partner_code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// NormalizePartnerCode 归一化推荐代码
func NormalizePartnerCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
