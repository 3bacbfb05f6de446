package biz

import (
	"context"
	"encoding/json"

	"order-payment-service/internal/constants"
	"order-payment-service/internal/pkg/signature"

	"github.com/shopspring/decimal"
)

// PaymentGateway Alatau Pay 客户端接口
type PaymentGateway interface {
	// BuildOrderPayload 生成供浏览器跳转的已签名下单参数，不发起请求
	BuildOrderPayload(ctx context.Context, req *OrderPayloadRequest) (*SignedOrderPayload, error)
	// VerifyCallback 校验回调签名，不匹配返回 false
	VerifyCallback(p signature.Payload, sig string) bool
	QueryPaymentStatus(ctx context.Context, order string) (*PaymentStatusResult, error)
	RequestRefund(ctx context.Context, order string, amount decimal.Decimal, desc string) (*RefundResult, error)
}

// OrderPayloadRequest 下单参数
type OrderPayloadRequest struct {
	Order       string
	Amount      decimal.Decimal
	Description string
	DescOrder   string
	Email       string
	Nonce       string
	ClientID    string
}

// SignedOrderPayload 已签名的下单参数，字段名与网关表单一致
type SignedOrderPayload struct {
	PaymentURL string `json:"payment_url"`
	Order      string `json:"ORDER"`
	Amount     string `json:"AMOUNT"`
	Currency   string `json:"CURRENCY"`
	Merchant   string `json:"MERCHANT"`
	Terminal   string `json:"TERMINAL"`
	Nonce      string `json:"NONCE"`
	ClientID   string `json:"CLIENT_ID"`
	Desc       string `json:"DESC"`
	DescOrder  string `json:"DESC_ORDER"`
	Email      string `json:"EMAIL"`
	Backref    string `json:"BACKREF"`
	Signature  string `json:"P_SIGN"`
}

// PaymentStatusResult 网关交易状态
type PaymentStatusResult struct {
	Order    string
	Status   string
	ResCode  string
	Amount   decimal.Decimal
	Currency string
	Refunds  []RefundAttempt
}

// RefundAttempt 网关记录的一次退款尝试
type RefundAttempt struct {
	Status string // R/J/F/r/W/w
	Amount decimal.Decimal
	Date   string
}

// IsRefunded 任一退款尝试已完成
func (r *PaymentStatusResult) IsRefunded() bool {
	for _, a := range r.Refunds {
		if a.Status == constants.RefundAttemptRefunded {
			return true
		}
	}
	return false
}

// HasPendingRefund 存在处理中的退款尝试
func (r *PaymentStatusResult) HasPendingRefund() bool {
	for _, a := range r.Refunds {
		switch a.Status {
		case constants.RefundAttemptPending, constants.RefundAttemptWaiting, constants.RefundAttemptQueued:
			return true
		}
	}
	return false
}

// RefundResult 退款请求结果；Code "0" 表示立即完成，其余为网关排队处理
type RefundResult struct {
	Code        string
	Description string
}

// Accepted 退款已立即完成
func (r *RefundResult) Accepted() bool {
	return r.Code == constants.GatewayRefundCodeAccepted
}

// TicketBroker Ticketon 客户端接口
type TicketBroker interface {
	CreateSale(ctx context.Context, req *CreateSaleRequest) (*SaleBooking, error)
	ConfirmSale(ctx context.Context, sale, email, phone string) (*SaleConfirmation, error)
	CancelSale(ctx context.Context, sale string) error
	RefundSale(ctx context.Context, sale string) (*SaleRefund, error)
	CheckOrder(ctx context.Context, sale string) (*SaleStatus, error)
	CheckTicket(ctx context.Context, ticketID string) (*TicketStatus, error)
}

// CreateSaleRequest 占座请求
type CreateSaleRequest struct {
	Show  string
	Seats []string
	Lang  string
}

// SaleBooking 票务系统占座结果
type SaleBooking struct {
	Sale          string
	ReservationID string
	Sum           decimal.Decimal
	Expire        int // 保留秒数
}

// SaleConfirmation 出票结果
type SaleConfirmation struct {
	Confirmed bool
	Tickets   json.RawMessage
	Error     string
}

// SaleRefund 票务系统退票结果
type SaleRefund struct {
	Refunded bool
	Code     string
	Error    string
}

// SaleStatus 票务系统订单状态
type SaleStatus struct {
	Sale      string
	Status    string
	Confirmed bool
	Tickets   json.RawMessage
}

// TicketStatus 票据状态
type TicketStatus struct {
	TicketID string
	Status   string
	Raw      json.RawMessage
}
