package repository

import (
	"time"

	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/models"

	"gorm.io/gorm"
)

// DashboardRepository 仪表盘聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type DashboardRepository interface {
	GetTotals() (DashboardTotals, error)
	CountPartnersByLevel() ([]StatusCount, error)
	CountBookingsByStayStatus() ([]StatusCount, error)
	CountBookingsByCommissionStatus() ([]StatusCount, error)
	AggregatePayoutsByStatus() ([]PayoutStatusAggregate, error)
	GetMonthlyReferralTrends(startAt, endAt time.Time) ([]DashboardReferralTrendRow, error)
	GetTopPartners(limit int) ([]models.Partner, error)
}

// DashboardReferralTrendRow 月度推荐趋势
type DashboardReferralTrendRow struct {
	Month       string
	Completed   int64
	Commissions float64
}

// GormDashboardRepository GORM 仪表盘聚合实现
type GormDashboardRepository struct {
	db *gorm.DB
}

// NewDashboardRepository 创建仪表盘仓库
func NewDashboardRepository(db *gorm.DB) *GormDashboardRepository {
	return &GormDashboardRepository{db: db}
}

// GetTotals 获取大使金额总览
func (r *GormDashboardRepository) GetTotals() (DashboardTotals, error) {
	result := DashboardTotals{}
	if err := r.db.Model(&models.Partner{}).Count(&result.PartnerCount).Error; err != nil {
		return result, err
	}
	if err := r.db.Model(&models.Partner{}).
		Where("status = ?", constants.PartnerStatusActive).
		Count(&result.ActivePartnerCount).Error; err != nil {
		return result, err
	}

	var sums struct {
		TotalCommissionEarned float64 `gorm:"column:total_commission_earned"`
		PendingCommission     float64 `gorm:"column:pending_commission"`
		AvailablePoints       float64 `gorm:"column:available_points"`
		PointsUsed            float64 `gorm:"column:points_used"`
	}
	if err := r.db.Model(&models.Partner{}).
		Select("COALESCE(SUM(total_commission_earned), 0) AS total_commission_earned, " +
			"COALESCE(SUM(pending_commission), 0) AS pending_commission, " +
			"COALESCE(SUM(available_points), 0) AS available_points, " +
			"COALESCE(SUM(points_used), 0) AS points_used").
		Scan(&sums).Error; err != nil {
		return result, err
	}
	result.TotalCommissionEarned = decimalFromFloat(sums.TotalCommissionEarned)
	result.PendingCommission = decimalFromFloat(sums.PendingCommission)
	result.AvailablePoints = decimalFromFloat(sums.AvailablePoints)
	result.PointsUsed = decimalFromFloat(sums.PointsUsed)
	return result, nil
}

// CountPartnersByLevel 按等级统计大使数
func (r *GormDashboardRepository) CountPartnersByLevel() ([]StatusCount, error) {
	return r.countGrouped(&models.Partner{}, "level")
}

// CountBookingsByStayStatus 按入住状态统计订房数
func (r *GormDashboardRepository) CountBookingsByStayStatus() ([]StatusCount, error) {
	return r.countGrouped(&models.Booking{}, "stay_status")
}

// CountBookingsByCommissionStatus 按佣金状态统计推荐订房数
func (r *GormDashboardRepository) CountBookingsByCommissionStatus() ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.db.Model(&models.Booking{}).
		Select("commission_status AS status, COUNT(*) AS count").
		Where("partner_code IS NOT NULL AND partner_code <> ''").
		Group("commission_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AggregatePayoutsByStatus 按结算状态汇总
func (r *GormDashboardRepository) AggregatePayoutsByStatus() ([]PayoutStatusAggregate, error) {
	var rows []struct {
		Status string
		Count  int64
		Amount float64
	}
	if err := r.db.Model(&models.Payout{}).
		Select("payout_status AS status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("payout_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]PayoutStatusAggregate, 0, len(rows))
	for _, row := range rows {
		result = append(result, PayoutStatusAggregate{
			Status: row.Status,
			Count:  row.Count,
			Amount: decimalFromFloat(row.Amount),
		})
	}
	return result, nil
}

// GetMonthlyReferralTrends 获取按退房月份统计的推荐完成趋势
func (r *GormDashboardRepository) GetMonthlyReferralTrends(startAt, endAt time.Time) ([]DashboardReferralTrendRow, error) {
	monthExpr := monthExprByDialect(dbDialectName(r.db), "checkout_date")
	var rows []DashboardReferralTrendRow
	if err := r.db.Model(&models.Booking{}).
		Select(monthExpr+" AS month, COUNT(*) AS completed, COALESCE(SUM(accrued_amount), 0) AS commissions").
		Where("partner_code IS NOT NULL AND partner_code <> ''").
		Where("accrued_amount > 0").
		Where("checkout_date >= ? AND checkout_date < ?", startAt, endAt).
		Group(monthExpr).
		Order("month asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetTopPartners 按累计成功推荐数排行
func (r *GormDashboardRepository) GetTopPartners(limit int) ([]models.Partner, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []models.Partner
	if err := r.db.Model(&models.Partner{}).
		Where("successful_referrals > 0").
		Order("successful_referrals desc").
		Order("id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormDashboardRepository) countGrouped(model interface{}, column string) ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.db.Model(model).
		Select(column + " AS status, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
