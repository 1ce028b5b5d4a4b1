package repository

import (
	"strings"

	"github.com/zhiyin-next/internal/models"

	"gorm.io/gorm"
)

// PointsRepository 住宿点数流水数据访问接口
type PointsRepository interface {
	WithTx(tx *gorm.DB) PointsRepository
	CreateTransaction(txn *models.PointsTransaction) error
	ListTransactions(filter PointsTransactionListFilter) ([]models.PointsTransaction, int64, error)
}

// GormPointsRepository GORM 住宿点数流水仓储
type GormPointsRepository struct {
	db *gorm.DB
}

// NewPointsRepository 创建住宿点数流水仓储
func NewPointsRepository(db *gorm.DB) *GormPointsRepository {
	return &GormPointsRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPointsRepository) WithTx(tx *gorm.DB) PointsRepository {
	if tx == nil {
		return r
	}
	return &GormPointsRepository{db: tx}
}

// CreateTransaction 写入点数流水
func (r *GormPointsRepository) CreateTransaction(txn *models.PointsTransaction) error {
	return r.db.Create(txn).Error
}

// ListTransactions 查询点数流水
func (r *GormPointsRepository) ListTransactions(filter PointsTransactionListFilter) ([]models.PointsTransaction, int64, error) {
	query := r.db.Model(&models.PointsTransaction{})
	if code := NormalizePartnerCode(filter.PartnerCode); code != "" {
		query = query.Where("partner_code = ?", code)
	}
	if txnType := strings.TrimSpace(filter.TxnType); txnType != "" {
		query = query.Where("txn_type = ?", txnType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.PointsTransaction
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
