package models

import (
	"time"
)

// Payout 佣金结算记录
type Payout struct {
	ID           uint       `gorm:"primarykey" json:"id"`                                           // 主键
	PayoutNo     string     `gorm:"type:varchar(40);not null;uniqueIndex" json:"payout_no"`         // 结算编号
	PartnerCode  string     `gorm:"type:varchar(32);not null;index" json:"partner_code"`            // 推荐代码
	PayoutType   string     `gorm:"type:varchar(20);not null;index" json:"payout_type"`             // 结算类型
	Amount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`            // 结算金额
	PayoutStatus string     `gorm:"type:varchar(20);not null;index" json:"payout_status"`           // 结算状态
	Notes        string     `gorm:"type:text" json:"notes"`                                         // 备注
	ProcessedBy  string     `gorm:"type:varchar(64)" json:"processed_by"`                           // 处理人
	CompletedAt  *time.Time `json:"completed_at,omitempty"`                                         // 完成汇款时间
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`                                         // 取消时间
	CancelReason string     `gorm:"type:varchar(255)" json:"cancel_reason"`                         // 取消原因
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt    time.Time  `gorm:"index" json:"updated_at"`                                        // 更新时间

	Allocations       []PayoutAllocation `gorm:"foreignKey:PayoutID" json:"allocations,omitempty"` // 资金来源订房
	RelatedBookingIDs []uint             `gorm:"-" json:"related_booking_ids"`                     // 关联订房ID
}

// TableName 指定表名
func (Payout) TableName() string {
	return "payouts"
}

// PayoutAllocation 结算资金来源（订房佣金分摊）
type PayoutAllocation struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                                    // 主键
	PayoutID  uint      `gorm:"not null;index;index:idx_payout_allocation_unique,unique" json:"payout_id"`  // 结算ID
	BookingID uint      `gorm:"not null;index;index:idx_payout_allocation_unique,unique" json:"booking_id"` // 订房ID
	Amount    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                     // 分摊金额
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                                 // 创建时间
}

// TableName 指定表名
func (PayoutAllocation) TableName() string {
	return "payout_allocations"
}

// FillRelatedBookingIDs 根据分摊记录回填关联订房ID
func (p *Payout) FillRelatedBookingIDs() {
	if p == nil {
		return
	}
	ids := make([]uint, 0, len(p.Allocations))
	seen := make(map[uint]struct{}, len(p.Allocations))
	for _, item := range p.Allocations {
		if _, ok := seen[item.BookingID]; ok {
			continue
		}
		seen[item.BookingID] = struct{}{}
		ids = append(ids, item.BookingID)
	}
	p.RelatedBookingIDs = ids
}
