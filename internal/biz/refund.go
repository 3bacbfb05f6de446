package biz

import (
	"context"
	"fmt"
	"time"

	"order-payment-service/internal/constants"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// RefundOutcome 退款结果
type RefundOutcome string

const (
	RefundOutcomeRefunded RefundOutcome = "refunded"
	RefundOutcomeQueued   RefundOutcome = "queued"
)

// maxRefundRetryAttempts 网关排队退款的最多重试消息数，超过后等待人工处理
const maxRefundRetryAttempts = 10

// RefundResultView 退款用例返回
type RefundResultView struct {
	Order   *Order
	Outcome RefundOutcome
	Message string
}

// RefundUseCase 退款业务逻辑
type RefundUseCase struct {
	flow   *PaymentFlow
	locker OrderLocker
	log    *log.Helper
}

// NewRefundUseCase 创建退款 UseCase
func NewRefundUseCase(
	flow *PaymentFlow,
	locker OrderLocker,
	_ *ProductOrderUseCase,
	_ *BookingUseCase,
	_ *TicketOrderUseCase,
	logger log.Logger,
) *RefundUseCase {
	return &RefundUseCase{
		flow:   flow,
		locker: locker,
		log:    log.NewHelper(logger),
	}
}

// RefundOrder 对 cancelled_awaiting_refund 订单执行退款，可重复调用
//
// 整个流程持有订单级锁；先查询网关状态，网关已退款则只对齐本地状态，退款请求最多发起一次。
func (uc *RefundUseCase) RefundOrder(ctx context.Context, kind OrderKind, orderID string) (*RefundResultView, error) {
	return uc.refund(ctx, kind, orderID, 0)
}

func (uc *RefundUseCase) refund(ctx context.Context, kind OrderKind, orderID string, attempt int) (*RefundResultView, error) {
	f := uc.flow
	h, err := f.handler(kind)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyRefundLock+orderID, f.conf.RefundLockTTL)
	if err != nil {
		uc.count(kind, constants.ResultFailed)
		return nil, err
	}
	defer unlock()

	o, err := h.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load order failed")
	}
	if o == nil {
		return nil, paymentErrors.Validation("order %s not found", orderID)
	}
	switch o.Status {
	case OrderStatusCancelledRefunded:
		return &RefundResultView{Order: o, Outcome: RefundOutcomeRefunded, Message: "already refunded"}, nil
	case OrderStatusCancelledAwaitingRefund:
	default:
		return nil, paymentErrors.Validation("order %s is not awaiting refund (status=%s)", orderID, o.Status)
	}

	link, err := f.linkRepo.GetPrimaryTransactionForOrder(ctx, o.ID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load primary link failed")
	}
	if link == nil {
		return nil, paymentErrors.Validation("order %s has no primary payment", orderID)
	}
	pt, err := f.txRepo.GetTransaction(ctx, link.PaymentTransactionID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load transaction failed")
	}
	if pt == nil || (pt.Status != TransactionStatusPaid && pt.Status != TransactionStatusAwaitingRefund) {
		return nil, paymentErrors.Validation("order %s has no paid transaction to refund", orderID)
	}

	if err := h.BeforeRefund(ctx, o); err != nil {
		uc.log.Errorf("BeforeRefund failed: order_id=%s, kind=%s, error=%v", o.ID, kind, err)
		uc.count(kind, constants.ResultFailed)
		return nil, err
	}

	status, err := f.gateway.QueryPaymentStatus(ctx, pt.Order)
	if err != nil {
		uc.count(kind, constants.ResultFailed)
		return nil, err
	}
	if status.IsRefunded() {
		uc.log.Infof("Gateway already refunded: order_id=%s, order=%s", o.ID, pt.Order)
		return uc.reconcile(ctx, h, o, pt)
	}

	if err := uc.markAwaitingRefund(ctx, pt); err != nil {
		return nil, err
	}
	if status.HasPendingRefund() {
		uc.log.Infof("Gateway refund still pending: order_id=%s, order=%s", o.ID, pt.Order)
		uc.count(kind, constants.ResultQueued)
		uc.scheduleRetry(ctx, o, attempt)
		return &RefundResultView{Order: o, Outcome: RefundOutcomeQueued, Message: "refund pending at gateway"}, nil
	}

	desc := fmt.Sprintf("Refund for order %s", o.ID)
	rr, err := f.gateway.RequestRefund(ctx, pt.Order, pt.Amount, desc)
	if err != nil {
		uc.log.Errorf("RequestRefund failed: order_id=%s, order=%s, error=%v", o.ID, pt.Order, err)
		uc.count(kind, constants.ResultFailed)
		return nil, err
	}
	if rr.Accepted() {
		return uc.reconcile(ctx, h, o, pt)
	}

	uc.log.Infof("Gateway queued refund: order_id=%s, order=%s, code=%s, desc=%s", o.ID, pt.Order, rr.Code, rr.Description)
	uc.count(kind, constants.ResultQueued)
	uc.scheduleRetry(ctx, o, attempt)
	return &RefundResultView{Order: o, Outcome: RefundOutcomeQueued, Message: "refund queued at gateway"}, nil
}

// scheduleRetry 投递退款重试消息，失败只记录日志
func (uc *RefundUseCase) scheduleRetry(ctx context.Context, o *Order, attempt int) {
	f := uc.flow
	if f.publisher == nil || attempt >= maxRefundRetryAttempts {
		return
	}
	event := &RefundRetryEvent{OrderID: o.ID, Kind: o.Kind, Attempt: attempt + 1, RequestedAt: f.now()}
	if err := f.publisher.PublishRefundRetry(ctx, event); err != nil {
		uc.log.Warnf("PublishRefundRetry failed: order_id=%s, error=%v", o.ID, err)
	}
}

// markAwaitingRefund paid -> awaiting_refund，已处于 awaiting_refund 时不变
func (uc *RefundUseCase) markAwaitingRefund(ctx context.Context, pt *PaymentTransaction) error {
	if pt.Status == TransactionStatusAwaitingRefund {
		return nil
	}
	if _, err := uc.flow.txRepo.TransitionTransaction(ctx, pt.ID, TransactionStatusPaid, TransactionStatusAwaitingRefund, nil); err != nil {
		return paymentErrors.Internal(err, "mark transaction awaiting refund failed")
	}
	pt.Status = TransactionStatusAwaitingRefund
	return nil
}

// reconcile 本地流水与订单对齐为已退款
func (uc *RefundUseCase) reconcile(ctx context.Context, h kindHandler, o *Order, pt *PaymentTransaction) (*RefundResultView, error) {
	f := uc.flow
	revAmount := pt.Amount
	revDesc := fmt.Sprintf("Refund for order %s", o.ID)
	err := f.tx.InTx(ctx, func(ctx context.Context) error {
		if pt.Status == TransactionStatusPaid {
			if _, err := f.txRepo.TransitionTransaction(ctx, pt.ID, TransactionStatusPaid, TransactionStatusAwaitingRefund, nil); err != nil {
				return err
			}
		}
		if _, err := f.txRepo.TransitionTransaction(ctx, pt.ID, TransactionStatusAwaitingRefund, TransactionStatusRefunded, &TransactionPatch{
			RevAmount: &revAmount,
			RevDesc:   &revDesc,
		}); err != nil {
			return err
		}
		_, err := h.Orders().TransitionOrder(ctx, o.ID, &OrderTransition{
			From: []OrderStatus{OrderStatusCancelledAwaitingRefund},
			To:   OrderStatusCancelledRefunded,
		})
		return err
	})
	if err != nil {
		uc.count(o.Kind, constants.ResultFailed)
		return nil, paymentErrors.Internal(err, "reconcile refund failed")
	}

	h.AfterRefunded(ctx, o)
	pt.Status = TransactionStatusRefunded
	o.Status = OrderStatusCancelledRefunded
	o.IsActive, o.IsPaid, o.IsCanceled, o.IsRefunded = o.Status.Flags()
	uc.count(o.Kind, constants.ResultSuccess)
	f.publish(ctx, constants.OrderEventRefunded, o, pt)
	uc.log.Infof("Order refunded: order_id=%s, order=%s, amount=%s", o.ID, pt.Order, pt.Amount.StringFixed(2))
	return &RefundResultView{Order: o, Outcome: RefundOutcomeRefunded, Message: "refunded"}, nil
}

func (uc *RefundUseCase) count(kind OrderKind, result string) {
	if uc.flow.metrics != nil {
		uc.flow.metrics.RefundTotal.WithLabelValues(string(kind), result).Inc()
	}
}

// RetryRefund 消费退款重试消息
func (uc *RefundUseCase) RetryRefund(ctx context.Context, event *RefundRetryEvent) error {
	start := time.Now()
	res, err := uc.refund(ctx, event.Kind, event.OrderID, event.Attempt)
	if err != nil {
		if paymentErrors.IsValidation(err) {
			// 订单状态已不需要退款，丢弃消息
			uc.log.Infof("Refund retry dropped: order_id=%s, reason=%v", event.OrderID, err)
			return nil
		}
		return err
	}
	uc.log.Infof("Refund retry done: order_id=%s, outcome=%s, attempt=%d, cost=%s", event.OrderID, res.Outcome, event.Attempt, time.Since(start))
	return nil
}
