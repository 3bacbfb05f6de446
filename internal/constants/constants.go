package constants

// Redis Key 前缀常量
const (
	// RedisKeyRefundLock 退款锁 key 前缀（按订单）
	RedisKeyRefundLock = "refund:lock:"
)

// 支付流水类型
const (
	TransactionTypeMerchandise = "merchandise"
	TransactionTypeBooking     = "booking"
	TransactionTypeTicket      = "ticket"
)

// 关联类型
const (
	LinkTypeInitial   = "initial"
	LinkTypeRecreated = "recreated"
	LinkTypeRefund    = "refund"
)

// 取消原因
const (
	CancelReasonPaymentOverdue = "payment overdue"
	CancelReasonUser           = "cancelled by user"
	CancelReasonRecreated      = "superseded by recreated payment"
	CancelReasonRollback       = "payment leg failed"
)

// 网关结果码
const (
	// GatewayResCodeSuccess 支付成功
	GatewayResCodeSuccess = "0"
	// GatewayRefundCodeAccepted 退款立即完成
	GatewayRefundCodeAccepted = "0"
)

// 网关退款子状态
const (
	RefundAttemptRefunded = "R"
	RefundAttemptRejected = "J"
	RefundAttemptFailed   = "F"
	RefundAttemptPending  = "r"
	RefundAttemptWaiting  = "W"
	RefundAttemptQueued   = "w"
)

// 标识生成长度范围
const (
	OrderNumberMinLen = 6
	OrderNumberMaxLen = 22
	NonceMinLen       = 6
	NonceMaxLen       = 64
)

// 指标结果标签
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultQueued    = "queued"
)

// 订单事件类型
const (
	OrderEventPaid      = "order.paid"
	OrderEventCancelled = "order.cancelled"
	OrderEventRefunded  = "order.refunded"
)

// 定时任务名称
const (
	JobCheckProductOrderPayment      = "check_product_order_payment"
	JobCheckBookingFieldPartyRequest = "check_booking_field_party_request"
	JobCheckTicketonOrderTime        = "check_ticketon_order_time"
)
