package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zhiyin-next/internal/cache"
	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/repository"
)

const (
	defaultDashboardCacheTTL = 30 * time.Second
	dashboardTrendMonths     = 12
	dashboardTopPartners     = 10
)

// DashboardService 仪表盘服务
// 说明：只读聚合，结果不得作为帐本变更依据。
type DashboardService struct {
	repo        repository.DashboardRepository
	partnerRepo repository.PartnerRepository
	policy      TierPolicy
	cacheTTL    time.Duration
}

// NewDashboardService 创建仪表盘服务
func NewDashboardService(repo repository.DashboardRepository, partnerRepo repository.PartnerRepository, policy TierPolicy, cacheTTL time.Duration) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = defaultDashboardCacheTTL
	}
	return &DashboardService{repo: repo, partnerRepo: partnerRepo, policy: policy, cacheTTL: cacheTTL}
}

// DashboardData 后台仪表盘数据
type DashboardData struct {
	GeneratedAt        string                 `json:"generated_at"`
	PartnerCount       int64                  `json:"partner_count"`
	ActivePartnerCount int64                  `json:"active_partner_count"`
	PartnersByLevel    map[string]int64       `json:"partners_by_level"`
	BookingsByStatus   map[string]int64       `json:"bookings_by_status"`
	CommissionByStatus map[string]int64       `json:"commission_by_status"`
	Totals             DashboardTotals        `json:"totals"`
	Payouts            []DashboardPayoutStat  `json:"payouts"`
	Trends             []DashboardTrendPoint  `json:"trends"`
	TopPartners        []DashboardPartnerRank `json:"top_partners"`
}

// DashboardTotals 金额汇总
type DashboardTotals struct {
	TotalCommissionEarned models.Money `json:"total_commission_earned"`
	PendingCommission     models.Money `json:"pending_commission"`
	AvailablePoints       models.Money `json:"available_points"`
	PointsUsed            models.Money `json:"points_used"`
}

// DashboardPayoutStat 结算状态汇总
type DashboardPayoutStat struct {
	Status string       `json:"status"`
	Count  int64        `json:"count"`
	Amount models.Money `json:"amount"`
}

// DashboardTrendPoint 月度推荐趋势
type DashboardTrendPoint struct {
	Month       string `json:"month"`
	Completed   int64  `json:"completed"`
	Commissions string `json:"commissions"`
}

// DashboardPartnerRank 推荐排行
type DashboardPartnerRank struct {
	PartnerCode         string       `json:"partner_code"`
	Name                string       `json:"name"`
	Level               string       `json:"level"`
	SuccessfulReferrals int          `json:"successful_referrals"`
	YearlyReferrals     int          `json:"yearly_referrals"`
	TotalCommission     models.Money `json:"total_commission_earned"`
}

// PartnerSummary 大使自助查询摘要
type PartnerSummary struct {
	PartnerCode               string       `json:"partner_code"`
	Name                      string       `json:"name"`
	Level                     string       `json:"level"`
	CommissionPreference      string       `json:"commission_preference"`
	SuccessfulReferrals       int          `json:"successful_referrals"`
	YearlyReferrals           int          `json:"yearly_referrals"`
	TotalCommissionEarned     models.Money `json:"total_commission_earned"`
	PendingCommission         models.Money `json:"pending_commission"`
	AvailablePoints           models.Money `json:"available_points"`
	PointsUsed                models.Money `json:"points_used"`
	FirstReferralBonusClaimed bool         `json:"first_referral_bonus_claimed"`
	CurrentReward             models.Money `json:"current_reward"`
	NextLevel                 string       `json:"next_level,omitempty"`
	ReferralsToNextLevel      int          `json:"referrals_to_next_level"`
	RetainRequirement         int          `json:"retain_requirement"`
}

// GetDashboardData 获取仪表盘数据（带缓存）
func (s *DashboardService) GetDashboardData(ctx context.Context, forceRefresh bool) (*DashboardData, error) {
	if s == nil || s.repo == nil {
		return &DashboardData{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !forceRefresh {
		var cached DashboardData
		hit, cacheErr := cache.GetJSON(ctx, constants.CacheKeyDashboard, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	totals, err := s.repo.GetTotals()
	if err != nil {
		return nil, wrapSystemError(err)
	}
	byLevel, err := s.repo.CountPartnersByLevel()
	if err != nil {
		return nil, wrapSystemError(err)
	}
	byStatus, err := s.repo.CountBookingsByStayStatus()
	if err != nil {
		return nil, wrapSystemError(err)
	}
	byCommission, err := s.repo.CountBookingsByCommissionStatus()
	if err != nil {
		return nil, wrapSystemError(err)
	}
	payoutRows, err := s.repo.AggregatePayoutsByStatus()
	if err != nil {
		return nil, wrapSystemError(err)
	}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	trendRows, err := s.repo.GetMonthlyReferralTrends(monthStart.AddDate(0, -(dashboardTrendMonths-1), 0), monthStart.AddDate(0, 1, 0))
	if err != nil {
		return nil, wrapSystemError(err)
	}
	topRows, err := s.repo.GetTopPartners(dashboardTopPartners)
	if err != nil {
		return nil, wrapSystemError(err)
	}

	data := &DashboardData{
		GeneratedAt:        now.Format(time.RFC3339),
		PartnerCount:       totals.PartnerCount,
		ActivePartnerCount: totals.ActivePartnerCount,
		PartnersByLevel:    statusCountMap(byLevel),
		BookingsByStatus:   statusCountMap(byStatus),
		CommissionByStatus: statusCountMap(byCommission),
		Totals: DashboardTotals{
			TotalCommissionEarned: models.NewMoneyFromDecimal(totals.TotalCommissionEarned),
			PendingCommission:     models.NewMoneyFromDecimal(totals.PendingCommission),
			AvailablePoints:       models.NewMoneyFromDecimal(totals.AvailablePoints),
			PointsUsed:            models.NewMoneyFromDecimal(totals.PointsUsed),
		},
		Payouts:     make([]DashboardPayoutStat, 0, len(payoutRows)),
		Trends:      make([]DashboardTrendPoint, 0, len(trendRows)),
		TopPartners: make([]DashboardPartnerRank, 0, len(topRows)),
	}
	for _, row := range payoutRows {
		data.Payouts = append(data.Payouts, DashboardPayoutStat{
			Status: row.Status,
			Count:  row.Count,
			Amount: models.NewMoneyFromDecimal(row.Amount),
		})
	}
	for _, row := range trendRows {
		data.Trends = append(data.Trends, DashboardTrendPoint{
			Month:       row.Month,
			Completed:   row.Completed,
			Commissions: formatMoneyValue(row.Commissions),
		})
	}
	for _, row := range topRows {
		data.TopPartners = append(data.TopPartners, DashboardPartnerRank{
			PartnerCode:         row.PartnerCode,
			Name:                row.Name,
			Level:               row.Level,
			SuccessfulReferrals: row.SuccessfulReferrals,
			YearlyReferrals:     row.YearlyReferrals,
			TotalCommission:     row.TotalCommissionEarned,
		})
	}

	_ = cache.SetJSON(ctx, constants.CacheKeyDashboard, data, s.cacheTTL)
	return data, nil
}

// GetPartnerSummary 大使自助查询
func (s *DashboardService) GetPartnerSummary(code string) (*PartnerSummary, error) {
	partner, err := s.partnerRepo.GetByCode(code)
	if err != nil {
		return nil, wrapSystemError(err)
	}
	if partner == nil || !partner.IsActive() {
		return nil, ErrPartnerNotFound
	}
	summary := &PartnerSummary{
		PartnerCode:               partner.PartnerCode,
		Name:                      partner.Name,
		Level:                     partner.Level,
		CommissionPreference:      partner.CommissionPreference,
		SuccessfulReferrals:       partner.SuccessfulReferrals,
		YearlyReferrals:           partner.YearlyReferrals,
		TotalCommissionEarned:     partner.TotalCommissionEarned,
		PendingCommission:         partner.PendingCommission,
		AvailablePoints:           partner.AvailablePoints,
		PointsUsed:                partner.PointsUsed,
		FirstReferralBonusClaimed: partner.FirstReferralBonusClaimed,
	}
	if reward, err := s.policy.RewardRate(partner.Level, partner.CommissionPreference); err == nil {
		summary.CurrentReward = models.NewMoneyFromDecimal(reward)
	}
	idx := s.policy.indexOf(partner.Level)
	if idx >= 0 {
		summary.RetainRequirement = s.policy.Tiers[idx].RetainAt
		if idx+1 < len(s.policy.Tiers) {
			next := s.policy.Tiers[idx+1]
			summary.NextLevel = next.Level
			if remaining := next.PromoteAt - partner.YearlyReferrals; remaining > 0 {
				summary.ReferralsToNextLevel = remaining
			}
		}
	}
	return summary, nil
}

func statusCountMap(rows []repository.StatusCount) map[string]int64 {
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Count
	}
	return result
}

func formatMoneyValue(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
