package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking 订房记录（可归属于某位知音大使）
type Booking struct {
	ID                       uint           `gorm:"primarykey" json:"id"`                                                      // 主键
	BookingNo                string         `gorm:"type:varchar(40);not null;uniqueIndex" json:"booking_no"`                   // 订房编号
	PartnerCode              *string        `gorm:"type:varchar(32);index" json:"partner_code,omitempty"`                      // 推荐代码（可为空）
	GuestName                string         `gorm:"type:varchar(100);not null" json:"guest_name"`                              // 房客姓名
	GuestPhone               string         `gorm:"type:varchar(32)" json:"guest_phone"`                                       // 房客手机
	GuestEmail               string         `gorm:"type:varchar(255)" json:"guest_email"`                                      // 房客邮箱
	CheckinDate              time.Time      `gorm:"not null;index" json:"checkin_date"`                                        // 入住日期
	CheckoutDate             time.Time      `gorm:"not null;index" json:"checkout_date"`                                       // 退房日期
	RoomType                 string         `gorm:"type:varchar(64)" json:"room_type"`                                         // 房型
	RoomPrice                Money          `gorm:"type:decimal(20,2);not null;default:0" json:"room_price"`                   // 房价
	BookingSource            string         `gorm:"type:varchar(32)" json:"booking_source"`                                    // 订房来源
	StayStatus               string         `gorm:"type:varchar(20);not null;index" json:"stay_status"`                        // 入住状态
	PaymentStatus            string         `gorm:"type:varchar(20);not null;index" json:"payment_status"`                     // 付款状态
	CommissionStatus         string         `gorm:"type:varchar(20);not null;index" json:"commission_status"`                  // 佣金状态
	CommissionAmount         Money          `gorm:"type:decimal(20,2);not null;default:0" json:"commission_amount"`            // 佣金金额
	CommissionType           string         `gorm:"type:varchar(20)" json:"commission_type"`                                   // 佣金类型
	AccruedAmount            Money          `gorm:"type:decimal(20,2);not null;default:0" json:"accrued_amount"`               // 已计入大使帐户的佣金
	IsFirstReferralBonus     bool           `gorm:"not null;default:false" json:"is_first_referral_bonus"`                     // 是否含首次推荐奖励
	FirstReferralBonusAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"first_referral_bonus_amount"`  // 首次推荐奖励金额
	ConfirmedBy              string         `gorm:"type:varchar(64)" json:"confirmed_by"`                                      // 确认入住完成的管理员
	ConfirmedAt              *time.Time     `gorm:"index" json:"confirmed_at,omitempty"`                                       // 确认入住完成时间
	CancelReason             string         `gorm:"type:varchar(255)" json:"cancel_reason"`                                    // 取消/退款原因
	CancelledAt              *time.Time     `json:"cancelled_at,omitempty"`                                                    // 取消/退款时间
	Notes                    string         `gorm:"type:text" json:"notes"`                                                    // 备注
	CreatedAt                time.Time      `gorm:"index" json:"created_at"`                                                   // 创建时间
	UpdatedAt                time.Time      `gorm:"index" json:"updated_at"`                                                   // 更新时间
	DeletedAt                gorm.DeletedAt `gorm:"index" json:"-"`                                                            // 软删除时间
}

// TableName 指定表名
func (Booking) TableName() string {
	return "bookings"
}

// ReferralCode 返回归属的推荐代码，未归属时为空
func (b *Booking) ReferralCode() string {
	if b == nil || b.PartnerCode == nil {
		return ""
	}
	return *b.PartnerCode
}
