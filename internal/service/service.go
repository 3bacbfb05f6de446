package service

import (
	"context"
	"encoding/json"
	"time"

	"order-payment-service/internal/biz"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewOrderService, NewPaymentCallbackService, NewOrderInternalService)

const (
	// HeaderUserID 网关注入的当前用户
	HeaderUserID = "X-User-ID"
	// HeaderGuestEmail 匿名购票订单的下单邮箱，无 HeaderUserID 时用于校验订单归属
	HeaderGuestEmail = "X-Guest-Email"
)

// OrderReply 订单视图
type OrderReply struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	IsActive     bool            `json:"is_active"`
	IsPaid       bool            `json:"is_paid"`
	IsCanceled   bool            `json:"is_canceled"`
	IsRefunded   bool            `json:"is_refunded"`
	Total        string          `json:"total"`
	PaidUntil    *time.Time      `json:"paid_until,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	PaidOrder    string          `json:"paid_order,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	Sale         string          `json:"sale,omitempty"`
	Tickets      json.RawMessage `json:"tickets,omitempty"`
}

// PaymentReply 下单/重新支付结果
type PaymentReply struct {
	IsSuccess     bool                    `json:"is_success"`
	Message       string                  `json:"message,omitempty"`
	Order         *OrderReply             `json:"order,omitempty"`
	TransactionID string                  `json:"transaction_id,omitempty"`
	Payment       *biz.SignedOrderPayload `json:"payment,omitempty"`
}

func toOrderReply(o *biz.Order) *OrderReply {
	if o == nil {
		return nil
	}
	r := &OrderReply{
		ID:           o.ID,
		Kind:         string(o.Kind),
		Status:       string(o.Status),
		IsActive:     o.IsActive,
		IsPaid:       o.IsPaid,
		IsCanceled:   o.IsCanceled,
		IsRefunded:   o.IsRefunded,
		Total:        o.Total.StringFixed(2),
		PaidUntil:    o.PaidUntil,
		PaidAt:       o.PaidAt,
		PaidOrder:    o.PaidOrder,
		CancelReason: o.CancelReason,
	}
	if o.Ticket != nil {
		r.Sale = o.Ticket.Sale
		r.Tickets = o.Ticket.Tickets
	}
	return r
}

func toPaymentReply(res *biz.PaymentResult) *PaymentReply {
	reply := &PaymentReply{
		IsSuccess: res.IsSuccess,
		Message:   res.Message,
		Order:     toOrderReply(res.Order),
		Payment:   res.Payload,
	}
	if res.Transaction != nil {
		reply.TransactionID = res.Transaction.ID
	}
	return reply
}

// serve 走 kratos 中间件链后按 JSON 返回
func serve[Req any, Rep any](ctx http.Context, operation string, in *Req, fn func(context.Context, *Req) (*Rep, error)) error {
	http.SetOperation(ctx, operation)
	h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
		return fn(ctx, req.(*Req))
	})
	out, err := h(ctx, in)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

func userID(ctx http.Context) (string, error) {
	id := ctx.Header().Get(HeaderUserID)
	if id == "" {
		return "", paymentErrors.Validation("missing %s header", HeaderUserID)
	}
	return id, nil
}

// ownerOf 登录用户或持有下单邮箱的游客，二者都缺失时拒绝
func ownerOf(ctx http.Context) (userID, guestEmail string, err error) {
	if id := ctx.Header().Get(HeaderUserID); id != "" {
		return id, "", nil
	}
	if email := ctx.Header().Get(HeaderGuestEmail); email != "" {
		return "", email, nil
	}
	return "", "", paymentErrors.Validation("missing %s or %s header", HeaderUserID, HeaderGuestEmail)
}

func orderKind(ctx http.Context) (biz.OrderKind, error) {
	kind, ok := biz.ParseOrderKind(ctx.Vars().Get("kind"))
	if !ok {
		return "", paymentErrors.Validation("unknown order kind %q", ctx.Vars().Get("kind"))
	}
	return kind, nil
}
