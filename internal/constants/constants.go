package constants

// 知音大使等级常量
const (
	PartnerLevelInsider  = "LV1_INSIDER"
	PartnerLevelGuide    = "LV2_GUIDE"
	PartnerLevelGuardian = "LV3_GUARDIAN"
)

// 佣金领取偏好常量
const (
	CommissionPreferenceCash          = "CASH"
	CommissionPreferenceAccommodation = "ACCOMMODATION"
)

// 知音大使状态常量
const (
	PartnerStatusActive   = "active"
	PartnerStatusDisabled = "disabled"
)

// 入住状态常量
const (
	StayStatusPending   = "PENDING"
	StayStatusConfirmed = "CONFIRMED"
	StayStatusCompleted = "COMPLETED"
	StayStatusCancelled = "CANCELLED"
)

// 付款状态常量
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
)

// 佣金状态常量
const (
	CommissionStatusNotEligible = "NOT_ELIGIBLE"
	CommissionStatusPending     = "PENDING"
	CommissionStatusCalculated  = "CALCULATED"
	CommissionStatusPaid        = "PAID"
)

// 订房取消动作常量
const (
	BookingCancelActionCancel = "cancel"
	BookingCancelActionRefund = "refund"
)

// 订房来源常量
const (
	BookingSourceReferral = "referral"
	BookingSourceDirect   = "direct"
	BookingSourceAdmin    = "admin"
)

// 结算类型常量
const (
	PayoutTypeCash          = "CASH"
	PayoutTypeAccommodation = "ACCOMMODATION"
)

// 结算状态常量
const (
	PayoutStatusPending   = "PENDING"
	PayoutStatusCompleted = "COMPLETED"
	PayoutStatusCancelled = "CANCELLED"
)

// 住宿点数流水类型常量
const (
	PointsTxnTypeEarn    = "earn"
	PointsTxnTypeUse     = "use"
	PointsTxnTypeReverse = "reverse"
)

// 队列常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskPartnerYearEndReview = "partner:year_end_review"
)

// 缓存键常量
const (
	CacheKeyDashboard        = "dashboard:overview"
	CacheKeyPartnerLockScope = "lock:partner"
)
