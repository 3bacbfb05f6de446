package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"order-payment-service/internal/constants"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// CreateTicketOrderRequest 购票请求，UserID 为空表示匿名购票
type CreateTicketOrderRequest struct {
	UserID string
	Show   string
	Seats  []string
	Lang   string
	Email  string
	Phone  string
}

// TicketOrderUseCase 票务订单业务逻辑
type TicketOrderUseCase struct {
	flow   *PaymentFlow
	repo   TicketOrderRepo
	broker TicketBroker
	log    *log.Helper
}

// NewTicketOrderUseCase 创建票务订单 UseCase
func NewTicketOrderUseCase(flow *PaymentFlow, repo TicketOrderRepo, broker TicketBroker, logger log.Logger) *TicketOrderUseCase {
	uc := &TicketOrderUseCase{
		flow:   flow,
		repo:   repo,
		broker: broker,
		log:    log.NewHelper(logger),
	}
	flow.register(OrderKindTicket, uc)
	return uc
}

// CreateTicketOrder 票务系统占座 -> 订单 -> 支付流水；支付腿失败时整体回滚并取消占座
func (uc *TicketOrderUseCase) CreateTicketOrder(ctx context.Context, req *CreateTicketOrderRequest) (*PaymentResult, error) {
	startTime := time.Now()
	defer func() {
		if uc.flow.metrics != nil {
			uc.flow.metrics.OrderCreateDuration.WithLabelValues(string(OrderKindTicket)).Observe(time.Since(startTime).Seconds())
		}
	}()

	if req.Show == "" || len(req.Seats) == 0 {
		return nil, paymentErrors.Validation("show and seats are required")
	}
	if req.Email == "" {
		return nil, paymentErrors.Validation("email is required")
	}

	sale, err := uc.broker.CreateSale(ctx, &CreateSaleRequest{Show: req.Show, Seats: req.Seats, Lang: req.Lang})
	if err != nil {
		uc.log.Errorf("CreateSale failed: show=%s, seats=%v, error=%v", req.Show, req.Seats, err)
		return nil, err
	}

	now := uc.flow.now()
	window := time.Duration(sale.Expire) * time.Second
	if window <= 0 {
		window = uc.flow.conf.PaymentWindow
	}
	expiredAt := now.Add(window)
	o := &Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Kind:      OrderKindTicket,
		Status:    OrderStatusBookingCreated,
		IsActive:  true,
		Total:     sale.Sum,
		Email:     req.Email,
		Phone:     req.Phone,
		PaidUntil: &expiredAt,
		CreatedAt: now,
		Ticket: &TicketDetails{
			Sale:          sale.Sale,
			Show:          req.Show,
			Seats:         req.Seats,
			ReservationID: sale.ReservationID,
			Lang:          req.Lang,
			Expire:        sale.Expire,
		},
	}
	if err := uc.repo.CreateTicketOrder(ctx, o); err != nil {
		uc.log.Errorf("CreateTicketOrder failed: sale=%s, error=%v", sale.Sale, err)
		uc.cancelSale(ctx, sale.Sale)
		return nil, paymentErrors.Internal(err, "create ticket order failed")
	}

	res, err := uc.flow.startPayment(ctx, o, constants.LinkTypeInitial, "")
	if err != nil {
		uc.log.Errorf("Payment leg failed, rolling back ticket order: order_id=%s, sale=%s, error=%v", o.ID, sale.Sale, err)
		uc.rollback(ctx, o)
		if uc.flow.metrics != nil {
			uc.flow.metrics.OrderCreateTotal.WithLabelValues(string(OrderKindTicket), constants.ResultFailed).Inc()
		}
		return &PaymentResult{IsSuccess: false, Message: paymentErrors.Message(err)}, nil
	}
	if uc.flow.metrics != nil {
		uc.flow.metrics.OrderCreateTotal.WithLabelValues(string(OrderKindTicket), constants.ResultSuccess).Inc()
	}
	uc.log.Infof("Ticket order created: order_id=%s, sale=%s, seats=%d, expired_at=%s", o.ID, sale.Sale, len(req.Seats), expiredAt.Format(time.RFC3339))
	return res, nil
}

// rollback 删除订单及可能残留的流水，并取消占座
func (uc *TicketOrderUseCase) rollback(ctx context.Context, o *Order) {
	err := uc.flow.tx.InTx(ctx, func(ctx context.Context) error {
		ids, err := uc.flow.linkRepo.ListTransactionIDs(ctx, o.ID, false)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := uc.flow.linkRepo.DeleteLinksForTransaction(ctx, id); err != nil {
				return err
			}
			if err := uc.flow.txRepo.DeleteTransaction(ctx, id); err != nil {
				return err
			}
		}
		return uc.repo.DeleteOrder(ctx, o.ID)
	})
	if err != nil {
		uc.log.Errorf("Rollback ticket order failed: order_id=%s, error=%v", o.ID, err)
	}
	uc.cancelSale(ctx, o.Ticket.Sale)
}

func (uc *TicketOrderUseCase) cancelSale(ctx context.Context, sale string) {
	if err := uc.broker.CancelSale(ctx, sale); err != nil {
		uc.log.Warnf("CancelSale failed: sale=%s, error=%v", sale, err)
	}
}

// RecreatePayment 重新发起支付
func (uc *TicketOrderUseCase) RecreatePayment(ctx context.Context, orderID, userID string) (*PaymentResult, error) {
	return uc.flow.RecreatePayment(ctx, OrderKindTicket, orderID, userID)
}

// CancelOrder 取消票务订单
func (uc *TicketOrderUseCase) CancelOrder(ctx context.Context, orderID, userID string, force bool) (*Order, error) {
	return uc.flow.CancelOrder(ctx, OrderKindTicket, orderID, userID, force)
}

// ReconfirmTicketOrder 对已支付但票务系统未确认的订单重新确认
func (uc *TicketOrderUseCase) ReconfirmTicketOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load order failed")
	}
	if o == nil {
		return nil, paymentErrors.Validation("order %s not found", orderID)
	}
	if o.Status != OrderStatusPaidAwaitingConfirmation {
		return nil, paymentErrors.Validation("order %s is not awaiting confirmation (status=%s)", orderID, o.Status)
	}

	// 票务系统可能已经确认过，先查询避免重复确认
	if st, err := uc.broker.CheckOrder(ctx, o.Ticket.Sale); err != nil {
		uc.log.Warnf("CheckOrder failed: order_id=%s, sale=%s, error=%v", o.ID, o.Ticket.Sale, err)
	} else if st.Confirmed {
		return uc.saveConfirmation(ctx, o, st.Tickets)
	}

	c, err := uc.broker.ConfirmSale(ctx, o.Ticket.Sale, o.Email, o.Phone)
	if err != nil {
		return nil, err
	}
	if !c.Confirmed {
		return nil, paymentErrors.Gateway(nil, "ticketon did not confirm sale %s: %s", o.Ticket.Sale, c.Error)
	}
	return uc.saveConfirmation(ctx, o, c.Tickets)
}

func (uc *TicketOrderUseCase) saveConfirmation(ctx context.Context, o *Order, tickets []byte) (*Order, error) {
	ok, err := uc.repo.ConfirmTicketOrder(ctx, o.ID, tickets)
	if err != nil {
		return nil, paymentErrors.Internal(err, "save confirmation failed")
	}
	if !ok {
		return nil, paymentErrors.Validation("order %s changed concurrently, retry", o.ID)
	}
	o.Status = OrderStatusPaidConfirmed
	o.Ticket.IsConfirmed = true
	o.Ticket.Tickets = tickets
	uc.log.Infof("Ticket order confirmed: order_id=%s, sale=%s", o.ID, o.Ticket.Sale)
	return o, nil
}

// ReconfirmPending 批量重新确认 paid_awaiting_confirmation 订单，单个失败不影响其余
func (uc *TicketOrderUseCase) ReconfirmPending(ctx context.Context) (int, error) {
	orders, err := uc.repo.ListAwaitingConfirmation(ctx, uc.flow.conf.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, o := range orders {
		if _, err := uc.ReconfirmTicketOrder(ctx, o.ID); err != nil {
			uc.log.Warnf("ReconfirmTicketOrder failed: order_id=%s, error=%v", o.ID, err)
			continue
		}
		confirmed++
	}
	return confirmed, nil
}

// CheckTicket 查询票据状态
func (uc *TicketOrderUseCase) CheckTicket(ctx context.Context, ticketID string) (*TicketStatus, error) {
	if ticketID == "" {
		return nil, paymentErrors.Validation("ticket id is required")
	}
	return uc.broker.CheckTicket(ctx, ticketID)
}

func (uc *TicketOrderUseCase) Orders() OrderRepo { return uc.repo }

func (uc *TicketOrderUseCase) PaymentDescription(o *Order) (string, string) {
	if o.Ticket == nil {
		return fmt.Sprintf("Tickets %s", o.ID), ""
	}
	return fmt.Sprintf("Tickets for show %s", o.Ticket.Show), "Seats: " + strings.Join(o.Ticket.Seats, ", ")
}

// AfterPaid 调用票务系统出票；出票失败时订单停留在 paid_awaiting_confirmation
func (uc *TicketOrderUseCase) AfterPaid(ctx context.Context, o *Order, pt *PaymentTransaction) (OrderStatus, error) {
	c, err := uc.broker.ConfirmSale(ctx, o.Ticket.Sale, o.Email, o.Phone)
	if err != nil {
		uc.log.Errorf("ConfirmSale failed: order_id=%s, sale=%s, order=%s, error=%v", o.ID, o.Ticket.Sale, pt.Order, err)
		return OrderStatusPaidAwaitingConfirmation, nil
	}
	if !c.Confirmed {
		uc.log.Warnf("ConfirmSale not confirmed: order_id=%s, sale=%s, error=%s", o.ID, o.Ticket.Sale, c.Error)
		return OrderStatusPaidAwaitingConfirmation, nil
	}
	ok, err := uc.repo.ConfirmTicketOrder(ctx, o.ID, c.Tickets)
	if err != nil {
		return OrderStatusPaidAwaitingConfirmation, err
	}
	if !ok {
		return OrderStatusPaidAwaitingConfirmation, nil
	}
	return OrderStatusPaidConfirmed, nil
}

// AfterCancelled 未支付订单取消时释放占座（best effort）
func (uc *TicketOrderUseCase) AfterCancelled(ctx context.Context, o *Order, to OrderStatus) {
	if to != OrderStatusCancelled || o.Ticket == nil {
		return
	}
	uc.cancelSale(ctx, o.Ticket.Sale)
}

// BeforeRefund 先在票务系统退票或取消占座，任一步失败都不动资金。
// 本地未确认的订单以 CheckOrder 为准：出票请求可能在我方超时但票务系统已确认
func (uc *TicketOrderUseCase) BeforeRefund(ctx context.Context, o *Order) error {
	t := o.Ticket
	if t == nil || t.BrokerRefunded {
		return nil
	}
	confirmed := t.IsConfirmed
	if !confirmed {
		st, err := uc.broker.CheckOrder(ctx, t.Sale)
		if err != nil {
			uc.log.Errorf("CheckOrder before refund failed: order_id=%s, sale=%s, error=%v", o.ID, t.Sale, err)
			return err
		}
		confirmed = st.Confirmed
	}
	if confirmed {
		r, err := uc.broker.RefundSale(ctx, t.Sale)
		if err != nil {
			return err
		}
		if !r.Refunded {
			return paymentErrors.Gateway(nil, "ticketon refund rejected: code=%s, error=%s", r.Code, r.Error)
		}
	} else if err := uc.broker.CancelSale(ctx, t.Sale); err != nil {
		uc.log.Errorf("CancelSale before refund failed: order_id=%s, sale=%s, error=%v", o.ID, t.Sale, err)
		return err
	}
	if err := uc.repo.MarkBrokerRefunded(ctx, o.ID); err != nil {
		return paymentErrors.Internal(err, "mark broker refunded failed")
	}
	t.BrokerRefunded = true
	return nil
}

func (uc *TicketOrderUseCase) AfterRefunded(context.Context, *Order) {}
