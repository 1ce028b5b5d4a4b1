package service

import (
	"errors"
	"testing"

	"github.com/zhiyin-next/internal/config"
	"github.com/zhiyin-next/internal/constants"

	"github.com/shopspring/decimal"
)

func TestEvaluateTierPromotesByYearlyReferrals(t *testing.T) {
	policy := DefaultTierPolicy()

	if got := policy.EvaluateTier(constants.PartnerLevelInsider, 3); got != constants.PartnerLevelInsider {
		t.Fatalf("expected LV1 with 3 referrals, got %s", got)
	}
	if got := policy.EvaluateTier(constants.PartnerLevelInsider, 4); got != constants.PartnerLevelGuide {
		t.Fatalf("expected LV2 with 4 referrals, got %s", got)
	}
	if got := policy.EvaluateTier(constants.PartnerLevelInsider, 10); got != constants.PartnerLevelGuardian {
		t.Fatalf("expected LV3 with 10 referrals, got %s", got)
	}
	// 年度内不降级
	if got := policy.EvaluateTier(constants.PartnerLevelGuardian, 1); got != constants.PartnerLevelGuardian {
		t.Fatalf("expected LV3 kept in-year, got %s", got)
	}
	if got := policy.EvaluateTier("UNKNOWN", 0); got != constants.PartnerLevelInsider {
		t.Fatalf("expected unknown level fallback to LV1, got %s", got)
	}
}

func TestEvaluateTierIsIdempotent(t *testing.T) {
	policy := DefaultTierPolicy()
	first := policy.EvaluateTier(constants.PartnerLevelInsider, 4)
	second := policy.EvaluateTier(first, 4)
	if first != second {
		t.Fatalf("expected idempotent evaluation, got %s then %s", first, second)
	}
}

func TestEvaluateYearEndDropsOneLevel(t *testing.T) {
	policy := DefaultTierPolicy()

	if got := policy.EvaluateYearEnd(constants.PartnerLevelGuide, 2); got != constants.PartnerLevelInsider {
		t.Fatalf("expected LV2 with 2 referrals to drop to LV1, got %s", got)
	}
	if got := policy.EvaluateYearEnd(constants.PartnerLevelGuide, 3); got != constants.PartnerLevelGuide {
		t.Fatalf("expected LV2 retained with 3 referrals, got %s", got)
	}
	if got := policy.EvaluateYearEnd(constants.PartnerLevelGuardian, 0); got != constants.PartnerLevelGuide {
		t.Fatalf("expected LV3 to drop exactly one level, got %s", got)
	}
	if got := policy.EvaluateYearEnd(constants.PartnerLevelGuardian, 6); got != constants.PartnerLevelGuardian {
		t.Fatalf("expected LV3 retained with 6 referrals, got %s", got)
	}
	if got := policy.EvaluateYearEnd(constants.PartnerLevelInsider, 0); got != constants.PartnerLevelInsider {
		t.Fatalf("expected LV1 floor, got %s", got)
	}
	if got := policy.EvaluateYearEnd(constants.PartnerLevelGuide, 11); got != constants.PartnerLevelGuardian {
		t.Fatalf("expected LV2 promoted at year end with 11 referrals, got %s", got)
	}
}

func TestRewardRateTable(t *testing.T) {
	policy := DefaultTierPolicy()
	cases := []struct {
		level      string
		preference string
		want       int64
	}{
		{constants.PartnerLevelInsider, constants.CommissionPreferenceCash, 500},
		{constants.PartnerLevelInsider, constants.CommissionPreferenceAccommodation, 1000},
		{constants.PartnerLevelGuide, constants.CommissionPreferenceCash, 600},
		{constants.PartnerLevelGuide, constants.CommissionPreferenceAccommodation, 1200},
		{constants.PartnerLevelGuardian, constants.CommissionPreferenceCash, 800},
		{constants.PartnerLevelGuardian, constants.CommissionPreferenceAccommodation, 1500},
	}
	for _, tc := range cases {
		got, err := policy.RewardRate(tc.level, tc.preference)
		if err != nil {
			t.Fatalf("reward rate %s/%s failed: %v", tc.level, tc.preference, err)
		}
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Fatalf("reward rate %s/%s want %d got %s", tc.level, tc.preference, tc.want, got)
		}
	}

	if _, err := policy.RewardRate(constants.PartnerLevelInsider, "POINTS"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown preference, got %v", err)
	}
	if _, err := policy.RewardRate("LV9", constants.CommissionPreferenceCash); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown level, got %v", err)
	}
}

func TestTierPolicyValidate(t *testing.T) {
	if err := DefaultTierPolicy().Validate(); err != nil {
		t.Fatalf("default policy should be valid: %v", err)
	}

	broken := DefaultTierPolicy()
	broken.Tiers[2].PromoteAt = 4
	if err := broken.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for non-increasing promote_at, got %v", err)
	}

	broken = DefaultTierPolicy()
	broken.Tiers[1].RetainAt = 5
	if err := broken.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for retain_at above promote_at, got %v", err)
	}

	broken = DefaultTierPolicy()
	broken.Tiers[0].CashReward = decimal.NewFromInt(-1)
	if err := broken.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative reward, got %v", err)
	}
}

func TestTierPolicyFromConfig(t *testing.T) {
	policy, err := TierPolicyFromConfig(config.AmbassadorConfig{
		Tiers: []config.TierConfig{
			{Level: constants.PartnerLevelInsider, Reward: config.RewardConfig{Cash: 300, Accommodation: 700}},
			{Level: constants.PartnerLevelGuide, PromoteAt: 2, RetainAt: 1, Reward: config.RewardConfig{Cash: 450.5, Accommodation: 900}},
		},
		FirstReferralBonus: config.RewardConfig{Cash: 1000, Accommodation: 1200},
	})
	if err != nil {
		t.Fatalf("build policy failed: %v", err)
	}
	if got := policy.EvaluateTier(constants.PartnerLevelInsider, 2); got != constants.PartnerLevelGuide {
		t.Fatalf("expected promotion at configured threshold, got %s", got)
	}
	reward, err := policy.RewardRate(constants.PartnerLevelGuide, constants.CommissionPreferenceCash)
	if err != nil || !reward.Equal(decimal.RequireFromString("450.5")) {
		t.Fatalf("unexpected configured reward: %s %v", reward, err)
	}
	if !policy.FirstReferralBonus(constants.CommissionPreferenceAccommodation).Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected configured bonus")
	}

	if _, err := TierPolicyFromConfig(config.AmbassadorConfig{
		Tiers: []config.TierConfig{{Level: constants.PartnerLevelInsider, PromoteAt: 3}},
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	fallback, err := TierPolicyFromConfig(config.AmbassadorConfig{})
	if err != nil || len(fallback.Tiers) != 3 {
		t.Fatalf("expected default policy fallback, got %+v %v", fallback, err)
	}
}

func TestCatchUpYearEndDropsOneLevelPerMissedYear(t *testing.T) {
	policy := DefaultTierPolicy()
	cases := []struct {
		current   string
		referrals int
		years     int
		want      string
	}{
		{constants.PartnerLevelGuardian, 8, 1, constants.PartnerLevelGuardian},
		{constants.PartnerLevelGuardian, 8, 2, constants.PartnerLevelGuide},
		{constants.PartnerLevelGuardian, 8, 5, constants.PartnerLevelInsider},
		{constants.PartnerLevelGuide, 1, 1, constants.PartnerLevelInsider},
		{constants.PartnerLevelInsider, 4, 1, constants.PartnerLevelGuide},
		{constants.PartnerLevelGuide, 0, 0, constants.PartnerLevelGuide},
	}
	for _, tc := range cases {
		if got := policy.CatchUpYearEnd(tc.current, tc.referrals, tc.years); got != tc.want {
			t.Fatalf("CatchUpYearEnd(%s, %d, %d) want %s got %s", tc.current, tc.referrals, tc.years, tc.want, got)
		}
	}
}
