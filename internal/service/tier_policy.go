package service

import (
	"fmt"
	"strings"

	"github.com/zhiyin-next/internal/config"
	"github.com/zhiyin-next/internal/constants"

	"github.com/shopspring/decimal"
)

// TierRule 单个大使等级的门槛与奖励
type TierRule struct {
	Level               string
	PromoteAt           int
	RetainAt            int
	CashReward          decimal.Decimal
	AccommodationReward decimal.Decimal
}

// TierPolicy 知音计划等级与奖励配置（只计算，不落库）
type TierPolicy struct {
	Tiers                           []TierRule
	FirstReferralBonusCash          decimal.Decimal
	FirstReferralBonusAccommodation decimal.Decimal
}

// DefaultTierPolicy 默认等级配置
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		Tiers: []TierRule{
			{Level: constants.PartnerLevelInsider, PromoteAt: 0, RetainAt: 0, CashReward: decimal.NewFromInt(500), AccommodationReward: decimal.NewFromInt(1000)},
			{Level: constants.PartnerLevelGuide, PromoteAt: 4, RetainAt: 3, CashReward: decimal.NewFromInt(600), AccommodationReward: decimal.NewFromInt(1200)},
			{Level: constants.PartnerLevelGuardian, PromoteAt: 10, RetainAt: 6, CashReward: decimal.NewFromInt(800), AccommodationReward: decimal.NewFromInt(1500)},
		},
		FirstReferralBonusCash:          decimal.NewFromInt(1500),
		FirstReferralBonusAccommodation: decimal.NewFromInt(1500),
	}
}

// TierPolicyFromConfig 由方案配置构建等级策略
func TierPolicyFromConfig(cfg config.AmbassadorConfig) (TierPolicy, error) {
	if len(cfg.Tiers) == 0 {
		return DefaultTierPolicy(), nil
	}
	policy := TierPolicy{
		Tiers:                           make([]TierRule, 0, len(cfg.Tiers)),
		FirstReferralBonusCash:          decimal.NewFromFloat(cfg.FirstReferralBonus.Cash).Round(2),
		FirstReferralBonusAccommodation: decimal.NewFromFloat(cfg.FirstReferralBonus.Accommodation).Round(2),
	}
	for _, tier := range cfg.Tiers {
		policy.Tiers = append(policy.Tiers, TierRule{
			Level:               strings.TrimSpace(tier.Level),
			PromoteAt:           tier.PromoteAt,
			RetainAt:            tier.RetainAt,
			CashReward:          decimal.NewFromFloat(tier.Reward.Cash).Round(2),
			AccommodationReward: decimal.NewFromFloat(tier.Reward.Accommodation).Round(2),
		})
	}
	if err := policy.Validate(); err != nil {
		return TierPolicy{}, err
	}
	return policy, nil
}

// Validate 校验等级配置
func (p TierPolicy) Validate() error {
	if len(p.Tiers) == 0 {
		return validationError("tier policy has no tiers")
	}
	seen := make(map[string]struct{}, len(p.Tiers))
	for idx, tier := range p.Tiers {
		level := strings.TrimSpace(tier.Level)
		if level == "" {
			return validationError("tier %d has empty level", idx)
		}
		if _, ok := seen[level]; ok {
			return validationError("tier %s duplicated", level)
		}
		seen[level] = struct{}{}
		if tier.PromoteAt < 0 || tier.RetainAt < 0 {
			return validationError("tier %s thresholds must be non-negative", level)
		}
		if tier.CashReward.IsNegative() || tier.AccommodationReward.IsNegative() {
			return validationError("tier %s rewards must be non-negative", level)
		}
		if idx == 0 {
			if tier.PromoteAt != 0 {
				return validationError("entry tier %s must promote at 0", level)
			}
			continue
		}
		prev := p.Tiers[idx-1]
		if tier.PromoteAt <= prev.PromoteAt {
			return validationError("tier %s promote_at must be greater than %s", level, prev.Level)
		}
		if tier.RetainAt > tier.PromoteAt {
			return validationError("tier %s retain_at must not exceed promote_at", level)
		}
	}
	if p.FirstReferralBonusCash.IsNegative() || p.FirstReferralBonusAccommodation.IsNegative() {
		return validationError("first referral bonus must be non-negative")
	}
	return nil
}

// HasLevel 判断等级是否存在
func (p TierPolicy) HasLevel(level string) bool {
	return p.indexOf(level) >= 0
}

// EntryLevel 入门等级
func (p TierPolicy) EntryLevel() string {
	if len(p.Tiers) == 0 {
		return constants.PartnerLevelInsider
	}
	return p.Tiers[0].Level
}

// EvaluateTier 年度内评估：仅晋升，不降级
func (p TierPolicy) EvaluateTier(current string, yearlyReferrals int) string {
	if len(p.Tiers) == 0 {
		return current
	}
	currentIdx := p.indexOf(current)
	if currentIdx < 0 {
		currentIdx = 0
	}
	target := p.promotionIndex(yearlyReferrals)
	if target > currentIdx {
		return p.Tiers[target].Level
	}
	return p.Tiers[currentIdx].Level
}

// EvaluateYearEnd 年度边界评估：未达保级门槛降一级，否则按年度内规则
func (p TierPolicy) EvaluateYearEnd(current string, yearlyReferrals int) string {
	currentIdx := p.indexOf(current)
	if currentIdx < 0 {
		return p.EvaluateTier(p.EntryLevel(), yearlyReferrals)
	}
	if currentIdx > 0 && yearlyReferrals < p.Tiers[currentIdx].RetainAt {
		return p.Tiers[currentIdx-1].Level
	}
	return p.EvaluateTier(current, yearlyReferrals)
}

// CatchUpYearEnd 连续补做多个年度考核，首个年度使用已累计推荐数，其后年度按零推荐计
func (p TierPolicy) CatchUpYearEnd(current string, yearlyReferrals, years int) string {
	level := current
	for i := 0; i < years && i <= len(p.Tiers); i++ {
		level = p.EvaluateYearEnd(level, yearlyReferrals)
		yearlyReferrals = 0
	}
	return level
}

// RewardRate 查询等级与偏好对应的单次奖励
func (p TierPolicy) RewardRate(level, preference string) (decimal.Decimal, error) {
	idx := p.indexOf(level)
	if idx < 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPartnerLevelInvalid, level)
	}
	switch preference {
	case constants.CommissionPreferenceCash:
		return p.Tiers[idx].CashReward.Round(2), nil
	case constants.CommissionPreferenceAccommodation:
		return p.Tiers[idx].AccommodationReward.Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrCommissionPreferenceInvalid, preference)
	}
}

// FirstReferralBonus 首次推荐奖励
func (p TierPolicy) FirstReferralBonus(preference string) decimal.Decimal {
	if preference == constants.CommissionPreferenceCash {
		return p.FirstReferralBonusCash.Round(2)
	}
	return p.FirstReferralBonusAccommodation.Round(2)
}

func (p TierPolicy) indexOf(level string) int {
	normalized := strings.TrimSpace(level)
	for idx, tier := range p.Tiers {
		if tier.Level == normalized {
			return idx
		}
	}
	return -1
}

func (p TierPolicy) promotionIndex(yearlyReferrals int) int {
	result := 0
	for idx, tier := range p.Tiers {
		if yearlyReferrals >= tier.PromoteAt {
			result = idx
		}
	}
	return result
}

func isValidPreference(preference string) bool {
	return preference == constants.CommissionPreferenceCash || preference == constants.CommissionPreferenceAccommodation
}
