package models

import (
	"time"

	"github.com/zhiyin-next/internal/constants"

	"gorm.io/gorm"
)

// Partner 知音大使档案
type Partner struct {
	ID                        uint           `gorm:"primarykey" json:"id"`                                                        // 主键
	PartnerCode               string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"partner_code"`                   // 推荐代码
	Name                      string         `gorm:"type:varchar(100);not null" json:"name"`                                      // 姓名
	Phone                     string         `gorm:"type:varchar(32)" json:"phone"`                                               // 手机
	Email                     string         `gorm:"type:varchar(255);index" json:"email"`                                        // 邮箱
	LineID                    string         `gorm:"type:varchar(64)" json:"line_id"`                                             // LINE ID
	BankCode                  string         `gorm:"type:varchar(16)" json:"bank_code"`                                           // 银行代码
	BankAccount               string         `gorm:"type:varchar(64)" json:"bank_account"`                                        // 银行账号
	Level                     string         `gorm:"type:varchar(20);not null;index" json:"level"`                                // 大使等级
	CommissionPreference      string         `gorm:"type:varchar(20);not null" json:"commission_preference"`                      // 佣金领取偏好
	Status                    string         `gorm:"type:varchar(20);not null;index" json:"status"`                               // 状态
	SuccessfulReferrals       int            `gorm:"not null;default:0" json:"successful_referrals"`                              // 累计成功推荐数
	YearlyReferrals           int            `gorm:"not null;default:0" json:"yearly_referrals"`                                  // 本年度成功推荐数
	TotalCommissionEarned     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_commission_earned"`        // 累计佣金
	PendingCommission         Money          `gorm:"type:decimal(20,2);not null;default:0" json:"pending_commission"`             // 待结算佣金
	TotalPointsEarned         Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_points_earned"`            // 累计入账住宿点数
	AvailablePoints           Money          `gorm:"type:decimal(20,2);not null;default:0" json:"available_points"`               // 可用住宿点数
	PointsUsed                Money          `gorm:"type:decimal(20,2);not null;default:0" json:"points_used"`                    // 已使用住宿点数
	FirstReferralBonusClaimed bool           `gorm:"not null;default:false" json:"first_referral_bonus_claimed"`                  // 是否已领取首次推荐奖励
	LastTierReviewYear        int            `gorm:"not null;default:0" json:"last_tier_review_year"`                             // 最近一次年度考核年份
	Notes                     string         `gorm:"type:text" json:"notes"`                                                      // 备注
	CreatedAt                 time.Time      `gorm:"index" json:"created_at"`                                                     // 创建时间
	UpdatedAt                 time.Time      `gorm:"index" json:"updated_at"`                                                     // 更新时间
	DeletedAt                 gorm.DeletedAt `gorm:"index" json:"-"`                                                              // 软删除时间
}

// TableName 指定表名
func (Partner) TableName() string {
	return "partners"
}

// IsActive 是否为启用状态
func (p *Partner) IsActive() bool {
	return p != nil && p.Status == constants.PartnerStatusActive
}
