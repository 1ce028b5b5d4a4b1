package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("load defaults failed: %v", err)
	}
	if len(cfg.Ambassador.Tiers) != 3 {
		t.Fatalf("expected 3 default tiers, got %d", len(cfg.Ambassador.Tiers))
	}
	guide := cfg.Ambassador.Tiers[1]
	if guide.Level != "LV2_GUIDE" || guide.PromoteAt != 4 || guide.RetainAt != 3 {
		t.Fatalf("unexpected LV2 tier: %+v", guide)
	}
	if guide.Reward.Cash != 600 || guide.Reward.Accommodation != 1200 {
		t.Fatalf("unexpected LV2 reward: %+v", guide.Reward)
	}
	if cfg.Ambassador.FirstReferralBonus.Cash != 1500 {
		t.Fatalf("unexpected first referral bonus: %+v", cfg.Ambassador.FirstReferralBonus)
	}
	if cfg.Ambassador.YearEndReview.Cron != "0 0 1 1 *" {
		t.Fatalf("unexpected year end cron: %s", cfg.Ambassador.YearEndReview.Cron)
	}
	if cfg.Redis.Prefix != "zy" || cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected infra defaults: redis=%s db=%s", cfg.Redis.Prefix, cfg.Database.Driver)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	v := viper.New()
	v.Set("ambassador.lock_timeout_seconds", 3)
	v.Set("ambassador.first_referral_bonus.accommodation", 2000)
	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Ambassador.LockTimeout().Seconds() != 3 {
		t.Fatalf("expected lock timeout 3s, got %s", cfg.Ambassador.LockTimeout())
	}
	if cfg.Ambassador.FirstReferralBonus.Accommodation != 2000 {
		t.Fatalf("expected overridden bonus, got %+v", cfg.Ambassador.FirstReferralBonus)
	}
}

func TestValidateProgram(t *testing.T) {
	base := func() AmbassadorConfig {
		return AmbassadorConfig{
			Tiers: []TierConfig{
				{Level: "LV1_INSIDER", PromoteAt: 0, RetainAt: 0, Reward: RewardConfig{Cash: 500, Accommodation: 1000}},
				{Level: "LV2_GUIDE", PromoteAt: 4, RetainAt: 3, Reward: RewardConfig{Cash: 600, Accommodation: 1200}},
			},
			YearEndReview: YearEndReviewConfig{Enabled: true, Cron: "0 0 1 1 *", Timezone: "UTC"},
		}
	}
	if err := base().ValidateProgram(); err != nil {
		t.Fatalf("expected valid program, got %v", err)
	}

	cases := map[string]func(c *AmbassadorConfig){
		"empty tiers":       func(c *AmbassadorConfig) { c.Tiers = nil },
		"entry not zero":    func(c *AmbassadorConfig) { c.Tiers[0].PromoteAt = 1 },
		"not increasing":    func(c *AmbassadorConfig) { c.Tiers[1].PromoteAt = 0 },
		"retain above":      func(c *AmbassadorConfig) { c.Tiers[1].RetainAt = 5 },
		"negative reward":   func(c *AmbassadorConfig) { c.Tiers[1].Reward.Cash = -1 },
		"duplicated level":  func(c *AmbassadorConfig) { c.Tiers[1].Level = "LV1_INSIDER" },
		"negative bonus":    func(c *AmbassadorConfig) { c.FirstReferralBonus.Cash = -1 },
		"empty cron":        func(c *AmbassadorConfig) { c.YearEndReview.Cron = " " },
		"unknown time zone": func(c *AmbassadorConfig) { c.YearEndReview.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		err := cfg.ValidateProgram()
		if err == nil || !strings.Contains(err.Error(), "ambassador") {
			t.Fatalf("%s: expected ambassador validation error, got %v", name, err)
		}
	}
}
