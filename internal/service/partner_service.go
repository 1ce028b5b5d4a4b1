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

// PartnerService 知音大使业务服务
type PartnerService struct {
	partnerRepo repository.PartnerRepository
	policy      TierPolicy
	ledger      ledgerExecutor
}

// NewPartnerService 创建知音大使服务
func NewPartnerService(partnerRepo repository.PartnerRepository, policy TierPolicy, locker LedgerLocker) *PartnerService {
	return &PartnerService{
		partnerRepo: partnerRepo,
		policy:      policy,
		ledger:      newLedgerExecutor(partnerRepo, locker),
	}
}

// CreatePartnerInput 新增大使输入
type CreatePartnerInput struct {
	PartnerCode          string `validate:"omitempty,alphanum,min=4,max=32"`
	Name                 string `validate:"required,max=100"`
	Phone                string `validate:"required_without_all=Email LineID,max=32"`
	Email                string `validate:"omitempty,email,max=255"`
	LineID               string `validate:"omitempty,max=64"`
	BankCode             string `validate:"omitempty,max=16"`
	BankAccount          string `validate:"omitempty,max=64"`
	Level                string
	CommissionPreference string `validate:"required,oneof=CASH ACCOMMODATION"`
	Notes                string
}

// YearEndReviewResult 年度评估结果
type YearEndReviewResult struct {
	Partner       *models.Partner `json:"partner"`
	PreviousLevel string          `json:"previous_level"`
	Applied       bool            `json:"applied"`
}

// CreatePartner 新增知音大使，推荐代码为空时自动生成
func (s *PartnerService) CreatePartner(ctx context.Context, input CreatePartnerInput) (*models.Partner, error) {
	input.PartnerCode = repository.NormalizePartnerCode(input.PartnerCode)
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Email = strings.TrimSpace(input.Email)
	input.LineID = strings.TrimSpace(input.LineID)
	input.CommissionPreference = strings.ToUpper(strings.TrimSpace(input.CommissionPreference))
	if err := validateInput(input); err != nil {
		return nil, err
	}
	level := strings.TrimSpace(input.Level)
	if level == "" {
		level = s.policy.EntryLevel()
	}
	if !s.policy.HasLevel(level) {
		return nil, ErrPartnerLevelInvalid
	}

	build := func(code string) *models.Partner {
		return &models.Partner{
			PartnerCode:          code,
			Name:                 input.Name,
			Phone:                input.Phone,
			Email:                input.Email,
			LineID:               input.LineID,
			BankCode:             strings.TrimSpace(input.BankCode),
			BankAccount:          strings.TrimSpace(input.BankAccount),
			Level:                level,
			CommissionPreference: input.CommissionPreference,
			Status:               constants.PartnerStatusActive,
			Notes:                strings.TrimSpace(input.Notes),
		}
	}

	if input.PartnerCode != "" {
		existing, err := s.partnerRepo.GetByCode(input.PartnerCode)
		if err != nil {
			return nil, wrapSystemError(err)
		}
		if existing != nil {
			return nil, ErrPartnerCodeExists
		}
		partner := build(input.PartnerCode)
		if err := s.partnerRepo.Create(partner); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrPartnerCodeExists
			}
			return nil, wrapSystemError(err)
		}
		logger.Infow("partner_created", "partner_code", partner.PartnerCode, "level", partner.Level)
		invalidateDashboard(ctx)
		return partner, nil
	}

	const maxRetry = 8
	for i := 0; i < maxRetry; i++ {
		code, err := generatePartnerCode()
		if err != nil {
			return nil, wrapSystemError(err)
		}
		partner := build(code)
		if err := s.partnerRepo.Create(partner); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, wrapSystemError(err)
		}
		logger.Infow("partner_created", "partner_code", partner.PartnerCode, "level", partner.Level)
		invalidateDashboard(ctx)
		return partner, nil
	}
	return nil, ErrPartnerCodeExists
}

// GetByCode 按推荐代码查询
func (s *PartnerService) GetByCode(code string) (*models.Partner, error) {
	partner, err := s.partnerRepo.GetByCode(code)
	if err != nil {
		return nil, wrapSystemError(err)
	}
	if partner == nil {
		return nil, ErrPartnerNotFound
	}
	return partner, nil
}

// List 查询大使列表
func (s *PartnerService) List(filter repository.PartnerListFilter) ([]models.Partner, int64, error) {
	rows, total, err := s.partnerRepo.List(filter)
	if err != nil {
		return nil, 0, wrapSystemError(err)
	}
	return rows, total, nil
}

// ListReviewCodes 查询需要年度考核的推荐代码，停用大使同样需要重置年度推荐数
func (s *PartnerService) ListReviewCodes() ([]string, error) {
	codes, err := s.partnerRepo.ListReviewCodes()
	if err != nil {
		return nil, wrapSystemError(err)
	}
	return codes, nil
}

// UpdateStatus 启用/停用大使
func (s *PartnerService) UpdateStatus(ctx context.Context, code, rawStatus string) (*models.Partner, error) {
	nextStatus := strings.ToLower(strings.TrimSpace(rawStatus))
	if nextStatus != constants.PartnerStatusActive && nextStatus != constants.PartnerStatusDisabled {
		return nil, ErrPartnerStatusInvalid
	}
	return s.mutate(ctx, code, func(partner *models.Partner) (bool, error) {
		if partner.Status == nextStatus {
			return false, nil
		}
		partner.Status = nextStatus
		return true, nil
	}, "partner_status_updated")
}

// UpdatePreference 变更佣金偏好，仅影响之后计算的佣金
func (s *PartnerService) UpdatePreference(ctx context.Context, code, rawPreference string) (*models.Partner, error) {
	preference := strings.ToUpper(strings.TrimSpace(rawPreference))
	if !isValidPreference(preference) {
		return nil, ErrCommissionPreferenceInvalid
	}
	return s.mutate(ctx, code, func(partner *models.Partner) (bool, error) {
		if partner.CommissionPreference == preference {
			return false, nil
		}
		partner.CommissionPreference = preference
		return true, nil
	}, "partner_preference_updated")
}

// ResetFirstReferralBonus 管理员重置首次推荐奖励资格
func (s *PartnerService) ResetFirstReferralBonus(ctx context.Context, code string) (*models.Partner, error) {
	return s.mutate(ctx, code, func(partner *models.Partner) (bool, error) {
		if !partner.FirstReferralBonusClaimed {
			return false, nil
		}
		partner.FirstReferralBonusClaimed = false
		return true, nil
	}, "partner_first_bonus_reset")
}

// ReviewYearEnd 年度边界等级评估，同一年度重复调用不生效
func (s *PartnerService) ReviewYearEnd(ctx context.Context, code string, year int) (*YearEndReviewResult, error) {
	if year <= 0 {
		return nil, validationError("review year must be positive")
	}
	result := &YearEndReviewResult{}
	err := s.ledger.run(ctx, code, func(tx *gorm.DB) error {
		partner, err := s.partnerRepo.WithTx(tx).GetByCodeForUpdate(code)
		if err != nil {
			return err
		}
		if partner == nil {
			return ErrPartnerNotFound
		}
		result.Partner = partner
		result.PreviousLevel = partner.Level
		if partner.LastTierReviewYear >= year {
			return nil
		}
		partner.Level = s.policy.EvaluateYearEnd(partner.Level, partner.YearlyReferrals)
		partner.YearlyReferrals = 0
		partner.LastTierReviewYear = year
		if err := s.partnerRepo.WithTx(tx).Update(partner); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		logger.Infow("partner_year_end_reviewed",
			"partner_code", result.Partner.PartnerCode,
			"year", year,
			"previous_level", result.PreviousLevel,
			"level", result.Partner.Level,
		)
	}
	return result, nil
}

func (s *PartnerService) mutate(ctx context.Context, code string, apply func(partner *models.Partner) (bool, error), event string) (*models.Partner, error) {
	var updated *models.Partner
	changed := false
	err := s.ledger.run(ctx, code, func(tx *gorm.DB) error {
		repo := s.partnerRepo.WithTx(tx)
		partner, err := repo.GetByCodeForUpdate(code)
		if err != nil {
			return err
		}
		if partner == nil {
			return ErrPartnerNotFound
		}
		changed, err = apply(partner)
		if err != nil {
			return err
		}
		if changed {
			partner.UpdatedAt = time.Now()
			if err := repo.Update(partner); err != nil {
				return err
			}
		}
		updated = partner
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Infow(event, "partner_code", updated.PartnerCode)
	}
	return updated, nil
}
