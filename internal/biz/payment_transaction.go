package biz

import (
	"context"
	"encoding/json"
	"time"

	"order-payment-service/internal/constants"

	"github.com/shopspring/decimal"
)

// TransactionStatus 支付流水状态
type TransactionStatus string

const (
	TransactionStatusAwaitingPayment TransactionStatus = "awaiting_payment"
	TransactionStatusPaid            TransactionStatus = "paid"
	TransactionStatusFailed          TransactionStatus = "failed"
	TransactionStatusCancelled       TransactionStatus = "cancelled"
	TransactionStatusAwaitingRefund  TransactionStatus = "awaiting_refund"
	TransactionStatusRefunded        TransactionStatus = "refunded"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusAwaitingPayment: {TransactionStatusPaid, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusPaid:            {TransactionStatusAwaitingRefund},
	TransactionStatusAwaitingRefund:  {TransactionStatusRefunded},
}

// CanTransition reports whether from -> to is a legal move.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	for _, next := range transactionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Flags 状态对应的 is_active/is_paid/is_canceled
func (s TransactionStatus) Flags() (isActive, isPaid, isCanceled bool) {
	switch s {
	case TransactionStatusAwaitingPayment:
		return true, false, false
	case TransactionStatusPaid, TransactionStatusAwaitingRefund, TransactionStatusRefunded:
		return false, true, false
	case TransactionStatusCancelled:
		return false, false, true
	default:
		return false, false, false
	}
}

// PaymentTransaction 支付流水：一次通过网关收款的尝试
type PaymentTransaction struct {
	ID              string
	UserID          string // 匿名购票时为空
	Status          TransactionStatus
	TransactionType OrderKind
	Order           string // 网关订单号
	Nonce           string
	MpiOrder        string
	Rrn             string
	Amount          decimal.Decimal
	Currency        string
	Merchant        string
	IsActive        bool
	IsPaid          bool
	IsCanceled      bool
	ExpiredAt       *time.Time
	ResCode         string
	ResDesc         string
	RevAmount       decimal.Decimal
	RevDesc         string
	PrePSign        string
	PaidPSign       string
	CancelPSign     string
	OrderFullInfo   json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GatewayResult 回调携带的网关结果
type GatewayResult struct {
	Order    string
	MpiOrder string
	Rrn      string
	ResCode  string
	ResDesc  string
	Sign     string
}

// IsPaid res_code "0" 表示支付成功
func (r *GatewayResult) IsPaid() bool {
	return r.ResCode == constants.GatewayResCodeSuccess
}

// TransactionPatch 状态变更时附带写入的字段
type TransactionPatch struct {
	RevAmount   *decimal.Decimal
	RevDesc     *string
	CancelPSign *string
}

// PaymentTransactionRepo 支付流水数据层接口（定义在 biz 层）
type PaymentTransactionRepo interface {
	CreateTransaction(ctx context.Context, pt *PaymentTransaction) error
	GetTransaction(ctx context.Context, id string) (*PaymentTransaction, error)
	GetTransactionByOrder(ctx context.Context, order string) (*PaymentTransaction, error)
	// GenerateUniqueOrder 生成未被占用的数字订单号，无重试上限
	GenerateUniqueOrder(ctx context.Context, minLen, maxLen int) (string, error)
	GenerateUniqueNonce(ctx context.Context, minLen, maxLen int) (string, error)
	// ApplyGatewayResult 仅当流水仍为 awaiting_payment 时写入网关结果，返回是否命中
	ApplyGatewayResult(ctx context.Context, id string, status TransactionStatus, res *GatewayResult) (bool, error)
	// TransitionTransaction 条件更新 from -> to，非法状态变更返回错误
	TransitionTransaction(ctx context.Context, id string, from, to TransactionStatus, patch *TransactionPatch) (bool, error)
	// CancelAwaitingTransactions 批量取消仍在等待支付的流水
	CancelAwaitingTransactions(ctx context.Context, ids []string) (int64, error)
	DeleteTransaction(ctx context.Context, id string) error
}
