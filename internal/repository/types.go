package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerListFilter 查询知音大使列表的过滤条件
type PartnerListFilter struct {
	Page     int
	PageSize int
	Level    string
	Status   string
	Keyword  string
}

// BookingListFilter 查询订房列表的过滤条件
type BookingListFilter struct {
	Page             int
	PageSize         int
	PartnerCode      string
	StayStatus       string
	PaymentStatus    string
	CommissionStatus string
	Keyword          string
	CheckinFrom      *time.Time
	CheckinTo        *time.Time
}

// PayoutListFilter 查询结算列表的过滤条件
type PayoutListFilter struct {
	Page         int
	PageSize     int
	PartnerCode  string
	PayoutType   string
	PayoutStatus string
}

// PointsTransactionListFilter 查询住宿点数流水的过滤条件
type PointsTransactionListFilter struct {
	Page        int
	PageSize    int
	PartnerCode string
	TxnType     string
}

// DashboardTotals 仪表盘金额汇总
type DashboardTotals struct {
	PartnerCount          int64
	ActivePartnerCount    int64
	TotalCommissionEarned decimal.Decimal
	PendingCommission     decimal.Decimal
	AvailablePoints       decimal.Decimal
	PointsUsed            decimal.Decimal
}

// StatusCount 状态计数
type StatusCount struct {
	Status string
	Count  int64
}

// PayoutStatusAggregate 结算状态汇总
type PayoutStatusAggregate struct {
	Status string
	Count  int64
	Amount decimal.Decimal
}

func decimalFromFloat(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(2)
}
