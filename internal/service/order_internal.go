package service

import (
	"context"
	"encoding/json"

	"order-payment-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationRefundOrder          = "/order.v1.OrderInternalService/RefundOrder"
	OperationReconfirmTicketOrder = "/order.v1.OrderInternalService/ReconfirmTicketOrder"
	OperationCheckTicket          = "/order.v1.OrderInternalService/CheckTicket"
)

// OrderInternalService 内部服务/运营使用：退款、重新出票、票据查询
type OrderInternalService struct {
	refund *biz.RefundUseCase
	ticket *biz.TicketOrderUseCase
	log    *log.Helper
}

// NewOrderInternalService 创建 OrderInternalService
func NewOrderInternalService(refund *biz.RefundUseCase, ticket *biz.TicketOrderUseCase, logger log.Logger) *OrderInternalService {
	return &OrderInternalService{
		refund: refund,
		ticket: ticket,
		log:    log.NewHelper(logger),
	}
}

// RefundReply 退款结果；outcome 为 queued 时由重试消息继续推进
type RefundReply struct {
	Outcome string      `json:"outcome"`
	Message string      `json:"message,omitempty"`
	Order   *OrderReply `json:"order,omitempty"`
}

// TicketReply 票据状态
type TicketReply struct {
	TicketID string          `json:"ticket_id"`
	Status   string          `json:"status"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

type ticketRequest struct {
	TicketID string
}

func (s *OrderInternalService) RefundOrder(ctx context.Context, req *OrderRequest) (*RefundReply, error) {
	res, err := s.refund.RefundOrder(ctx, req.Kind, req.OrderID)
	if err != nil {
		s.log.Errorf("RefundOrder failed: kind=%s, order_id=%s, error=%v", req.Kind, req.OrderID, err)
		return nil, err
	}
	return &RefundReply{
		Outcome: string(res.Outcome),
		Message: res.Message,
		Order:   toOrderReply(res.Order),
	}, nil
}

func (s *OrderInternalService) ReconfirmTicketOrder(ctx context.Context, req *OrderRequest) (*OrderReply, error) {
	o, err := s.ticket.ReconfirmTicketOrder(ctx, req.OrderID)
	if err != nil {
		s.log.Errorf("ReconfirmTicketOrder failed: order_id=%s, error=%v", req.OrderID, err)
		return nil, err
	}
	return toOrderReply(o), nil
}

func (s *OrderInternalService) CheckTicket(ctx context.Context, req *ticketRequest) (*TicketReply, error) {
	t, err := s.ticket.CheckTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	return &TicketReply{TicketID: t.TicketID, Status: t.Status, Raw: t.Raw}, nil
}

// RegisterOrderInternalHTTPServer 注册内部路由
func RegisterOrderInternalHTTPServer(srv *http.Server, s *OrderInternalService) {
	r := srv.Route("/")
	r.POST("/internal/v1/orders/{kind}/{id}/refund", func(ctx http.Context) error {
		kind, err := orderKind(ctx)
		if err != nil {
			return err
		}
		in := &OrderRequest{Kind: kind, OrderID: ctx.Vars().Get("id")}
		return serve(ctx, OperationRefundOrder, in, s.RefundOrder)
	})
	r.POST("/internal/v1/ticket-orders/{id}/reconfirm", func(ctx http.Context) error {
		in := &OrderRequest{Kind: biz.OrderKindTicket, OrderID: ctx.Vars().Get("id")}
		return serve(ctx, OperationReconfirmTicketOrder, in, s.ReconfirmTicketOrder)
	})
	r.GET("/internal/v1/tickets/{ticket_id}", func(ctx http.Context) error {
		in := &ticketRequest{TicketID: ctx.Vars().Get("ticket_id")}
		return serve(ctx, OperationCheckTicket, in, s.CheckTicket)
	})
}
