package models

import "time"

// PointsTransaction 住宿点数流水
type PointsTransaction struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                       // 主键
	PartnerCode  string    `gorm:"type:varchar(32);not null;index" json:"partner_code"`        // 推荐代码
	TxnType      string    `gorm:"type:varchar(20);not null;index" json:"txn_type"`            // 流水类型
	Amount       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`        // 变动点数（正数）
	BalanceAfter Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance_after"` // 变动后可用点数
	PayoutID     *uint     `gorm:"index" json:"payout_id,omitempty"`                           // 关联结算
	BookingID    *uint     `gorm:"index" json:"booking_id,omitempty"`                          // 关联订房
	Notes        string    `gorm:"type:varchar(255)" json:"notes"`                             // 备注
	CreatedAt    time.Time `gorm:"index" json:"created_at"`                                    // 创建时间
}

// TableName 指定表名
func (PointsTransaction) TableName() string {
	return "points_transactions"
}
