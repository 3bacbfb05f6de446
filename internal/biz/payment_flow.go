package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-payment-service/internal/constants"
	"order-payment-service/internal/metrics"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// kindHandler 各类订单在通用支付流程中的差异点
type kindHandler interface {
	Orders() OrderRepo
	// PaymentDescription 网关下单描述
	PaymentDescription(o *Order) (desc, descOrder string)
	// AfterPaid 订单已被支付回调抢占后执行，返回最终状态
	AfterPaid(ctx context.Context, o *Order, pt *PaymentTransaction) (OrderStatus, error)
	// AfterCancelled 订单被取消（用户或超时）后执行，失败只记录日志
	AfterCancelled(ctx context.Context, o *Order, to OrderStatus)
	// BeforeRefund 退款前的外部处理；返回错误时不动资金
	BeforeRefund(ctx context.Context, o *Order) error
	// AfterRefunded 退款完成后执行，失败只记录日志
	AfterRefunded(ctx context.Context, o *Order)
}

// PaymentResult 下单/重新支付的返回
type PaymentResult struct {
	Order       *Order
	Transaction *PaymentTransaction
	Payload     *SignedOrderPayload
	IsSuccess   bool
	Message     string
}

// PaymentFlow 订单与支付流水的通用编排
type PaymentFlow struct {
	txRepo    PaymentTransactionRepo
	linkRepo  OrderLinkRepo
	gateway   PaymentGateway
	tx        Transaction
	publisher OrderEventPublisher
	conf      *PaymentConfig
	log       *log.Helper
	metrics   *metrics.PaymentMetrics
	handlers  map[OrderKind]kindHandler
	now       func() time.Time
}

// NewPaymentFlow 创建 PaymentFlow，各订单类型的 UseCase 构造时注册自身
func NewPaymentFlow(
	txRepo PaymentTransactionRepo,
	linkRepo OrderLinkRepo,
	gateway PaymentGateway,
	tx Transaction,
	publisher OrderEventPublisher,
	conf *PaymentConfig,
	logger log.Logger,
) *PaymentFlow {
	return &PaymentFlow{
		txRepo:    txRepo,
		linkRepo:  linkRepo,
		gateway:   gateway,
		tx:        tx,
		publisher: publisher,
		conf:      conf,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
		handlers:  make(map[OrderKind]kindHandler),
		now:       time.Now,
	}
}

// SetClock 替换时间源（测试用）
func (f *PaymentFlow) SetClock(now func() time.Time) {
	f.now = now
}

func (f *PaymentFlow) register(kind OrderKind, h kindHandler) {
	f.handlers[kind] = h
}

func (f *PaymentFlow) handler(kind OrderKind) (kindHandler, error) {
	h, ok := f.handlers[kind]
	if !ok {
		return nil, paymentErrors.Validation("unknown order kind %q", kind)
	}
	return h, nil
}

// loadOwnedOrder 加载订单并校验归属；userID 为空时按 ctx 中的游客邮箱校验
func (f *PaymentFlow) loadOwnedOrder(ctx context.Context, h kindHandler, orderID, userID string) (*Order, error) {
	o, err := h.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load order failed")
	}
	if o == nil || !ownsOrder(ctx, o, userID) {
		return nil, paymentErrors.Validation("order %s not found", orderID)
	}
	return o, nil
}

// GetOrder 查询当前用户的订单
func (f *PaymentFlow) GetOrder(ctx context.Context, kind OrderKind, orderID, userID string) (*Order, error) {
	h, err := f.handler(kind)
	if err != nil {
		return nil, err
	}
	return f.loadOwnedOrder(ctx, h, orderID, userID)
}

// startPayment 生成订单号/nonce、签名下单参数，并在一个事务内写入流水与主关联
func (f *PaymentFlow) startPayment(ctx context.Context, o *Order, linkType, linkReason string) (*PaymentResult, error) {
	h, err := f.handler(o.Kind)
	if err != nil {
		return nil, err
	}

	orderNo, err := f.txRepo.GenerateUniqueOrder(ctx, constants.OrderNumberMinLen, constants.OrderNumberMaxLen)
	if err != nil {
		return nil, paymentErrors.Internal(err, "generate order number failed")
	}
	nonce, err := f.txRepo.GenerateUniqueNonce(ctx, constants.NonceMinLen, constants.NonceMaxLen)
	if err != nil {
		return nil, paymentErrors.Internal(err, "generate nonce failed")
	}

	desc, descOrder := h.PaymentDescription(o)
	payload, err := f.gateway.BuildOrderPayload(ctx, &OrderPayloadRequest{
		Order:       orderNo,
		Amount:      o.Total,
		Description: desc,
		DescOrder:   descOrder,
		Email:       o.Email,
		Nonce:       nonce,
		ClientID:    o.UserID,
	})
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(o)
	if err != nil {
		return nil, paymentErrors.Internal(err, "snapshot order failed")
	}
	var expiredAt *time.Time
	if deadline := o.Deadline(); !deadline.IsZero() {
		expiredAt = &deadline
	}
	pt := &PaymentTransaction{
		ID:              uuid.NewString(),
		UserID:          o.UserID,
		Status:          TransactionStatusAwaitingPayment,
		TransactionType: o.Kind,
		Order:           orderNo,
		Nonce:           nonce,
		Amount:          o.Total,
		Currency:        payload.Currency,
		Merchant:        payload.Merchant,
		IsActive:        true,
		ExpiredAt:       expiredAt,
		PrePSign:        payload.Signature,
		OrderFullInfo:   snapshot,
	}

	err = f.tx.InTx(ctx, func(ctx context.Context) error {
		if err := f.txRepo.CreateTransaction(ctx, pt); err != nil {
			return err
		}
		if err := f.linkRepo.CreateLink(ctx, &OrderPaymentLink{
			ID:                   uuid.NewString(),
			OrderID:              o.ID,
			PaymentTransactionID: pt.ID,
			IsActive:             true,
			LinkType:             linkType,
			LinkReason:           linkReason,
		}); err != nil {
			return err
		}
		// 订单的 active 关联中只能有一条 primary
		return f.linkRepo.SetPrimaryTransaction(ctx, o.ID, pt.ID)
	})
	if err != nil {
		return nil, paymentErrors.Internal(err, "persist payment transaction failed")
	}

	f.log.Infof("Payment started: order_id=%s, kind=%s, transaction_id=%s, order=%s, link_type=%s", o.ID, o.Kind, pt.ID, pt.Order, linkType)
	return &PaymentResult{Order: o, Transaction: pt, Payload: payload, IsSuccess: true}, nil
}

// startPaymentSoft 支付腿失败时保留订单，返回 is_success=false
func (f *PaymentFlow) startPaymentSoft(ctx context.Context, o *Order, linkType, linkReason string) *PaymentResult {
	res, err := f.startPayment(ctx, o, linkType, linkReason)
	if err != nil {
		f.log.Errorf("Payment leg failed: order_id=%s, kind=%s, error=%v", o.ID, o.Kind, err)
		if f.metrics != nil {
			f.metrics.OrderCreateTotal.WithLabelValues(string(o.Kind), constants.ResultFailed).Inc()
		}
		return &PaymentResult{Order: o, IsSuccess: false, Message: paymentErrors.Message(err)}
	}
	if f.metrics != nil {
		f.metrics.OrderCreateTotal.WithLabelValues(string(o.Kind), constants.ResultSuccess).Inc()
	}
	return res
}

// RecreatePayment 重新发起支付：失效旧关联、取消旧流水、创建新流水与 recreated 主关联
func (f *PaymentFlow) RecreatePayment(ctx context.Context, kind OrderKind, orderID, userID string) (*PaymentResult, error) {
	h, err := f.handler(kind)
	if err != nil {
		return nil, err
	}
	o, err := f.loadOwnedOrder(ctx, h, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.Status != kind.AwaitingStatus() || !o.IsActive {
		return nil, paymentErrors.Validation("order %s is not awaiting payment (status=%s)", orderID, o.Status)
	}
	if o.Expired(f.now()) {
		return nil, paymentErrors.Validation("payment window for order %s has expired", orderID)
	}

	err = f.tx.InTx(ctx, func(ctx context.Context) error {
		ids, err := f.linkRepo.ListTransactionIDs(ctx, o.ID, true)
		if err != nil {
			return err
		}
		if _, err := f.linkRepo.DeactivateLinksForOrder(ctx, o.ID, ""); err != nil {
			return err
		}
		_, err = f.txRepo.CancelAwaitingTransactions(ctx, ids)
		return err
	})
	if err != nil {
		return nil, paymentErrors.Internal(err, "supersede previous payment failed")
	}

	res, err := f.startPayment(ctx, o, constants.LinkTypeRecreated, constants.CancelReasonRecreated)
	if err != nil {
		f.log.Errorf("RecreatePayment failed: order_id=%s, kind=%s, error=%v", o.ID, kind, err)
		return &PaymentResult{Order: o, IsSuccess: false, Message: paymentErrors.Message(err)}, nil
	}
	return res, nil
}

// CancelOrder 用户取消订单
//
//	待支付: force 时硬删除，否则软取消
//	已支付: 转为 cancelled_awaiting_refund，等待退款
func (f *PaymentFlow) CancelOrder(ctx context.Context, kind OrderKind, orderID, userID string, force bool) (*Order, error) {
	h, err := f.handler(kind)
	if err != nil {
		return nil, err
	}
	o, err := f.loadOwnedOrder(ctx, h, orderID, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case o.Status == kind.AwaitingStatus():
		return f.cancelAwaiting(ctx, h, o, force)
	case kind.IsPaidStatus(o.Status):
		ok, err := h.Orders().TransitionOrder(ctx, o.ID, &OrderTransition{
			From:         kind.PaidStatuses(),
			To:           OrderStatusCancelledAwaitingRefund,
			CancelReason: constants.CancelReasonUser,
		})
		if err != nil {
			return nil, paymentErrors.Internal(err, "cancel paid order failed")
		}
		if !ok {
			return nil, paymentErrors.Validation("order %s changed concurrently, retry", orderID)
		}
		h.AfterCancelled(ctx, o, OrderStatusCancelledAwaitingRefund)
		o.Status = OrderStatusCancelledAwaitingRefund
		o.IsActive, o.IsPaid, o.IsCanceled, o.IsRefunded = o.Status.Flags()
		o.CancelReason = constants.CancelReasonUser
		f.log.Infof("Paid order cancelled, awaiting refund: order_id=%s, kind=%s", o.ID, kind)
		return o, nil
	default:
		return nil, paymentErrors.Validation("order %s cannot be cancelled in status %s", orderID, o.Status)
	}
}

func (f *PaymentFlow) cancelAwaiting(ctx context.Context, h kindHandler, o *Order, force bool) (*Order, error) {
	claimed := false
	err := f.tx.InTx(ctx, func(ctx context.Context) error {
		ids, err := f.linkRepo.ListTransactionIDs(ctx, o.ID, false)
		if err != nil {
			return err
		}
		if force {
			if _, err := f.linkRepo.DeactivateLinksForOrder(ctx, o.ID, ""); err != nil {
				return err
			}
			if _, err := f.txRepo.CancelAwaitingTransactions(ctx, ids); err != nil {
				return err
			}
			claimed = true
			return h.Orders().DeleteOrder(ctx, o.ID)
		}
		claimed, err = h.Orders().TransitionOrder(ctx, o.ID, &OrderTransition{
			From:         []OrderStatus{o.Kind.AwaitingStatus()},
			To:           OrderStatusCancelled,
			CancelReason: constants.CancelReasonUser,
		})
		if err != nil || !claimed {
			return err
		}
		_, err = f.txRepo.CancelAwaitingTransactions(ctx, ids)
		return err
	})
	if err != nil {
		return nil, paymentErrors.Internal(err, "cancel order failed")
	}
	if !claimed {
		return nil, paymentErrors.Validation("order %s changed concurrently, retry", o.ID)
	}

	h.AfterCancelled(ctx, o, OrderStatusCancelled)
	o.Status = OrderStatusCancelled
	o.IsActive, o.IsPaid, o.IsCanceled, o.IsRefunded = o.Status.Flags()
	o.CancelReason = constants.CancelReasonUser
	f.publish(ctx, constants.OrderEventCancelled, o, nil)
	f.log.Infof("Order cancelled: order_id=%s, kind=%s, force=%v", o.ID, o.Kind, force)
	return o, nil
}

// SweepExpired 取消一类订单中已过支付期限的待支付订单；遇到错误提前结束本轮
func (f *PaymentFlow) SweepExpired(ctx context.Context, kind OrderKind) (int, error) {
	h, err := f.handler(kind)
	if err != nil {
		return 0, err
	}
	start := f.now()
	defer func() {
		if f.metrics != nil {
			f.metrics.SweepDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		}
	}()

	orders, err := h.Orders().ListExpiredOrders(ctx, start, f.conf.SweepBatchSize)
	if err != nil {
		f.log.Errorf("ListExpiredOrders failed: kind=%s, error=%v", kind, err)
		return 0, err
	}

	cancelled := 0
	for _, o := range orders {
		ok, err := f.expireOrder(ctx, h, o)
		if err != nil {
			f.log.Errorf("Sweep stopped: kind=%s, order_id=%s, cancelled=%d, error=%v", kind, o.ID, cancelled, err)
			return cancelled, err
		}
		if ok {
			cancelled++
		}
	}
	if cancelled > 0 {
		f.log.Infof("Sweep finished: kind=%s, cancelled=%d", kind, cancelled)
	}
	return cancelled, nil
}

// expireOrder 单个订单的超时取消，订单与其流水在同一事务内
func (f *PaymentFlow) expireOrder(ctx context.Context, h kindHandler, o *Order) (bool, error) {
	claimed := false
	err := f.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = h.Orders().TransitionOrder(ctx, o.ID, &OrderTransition{
			From:         []OrderStatus{o.Kind.AwaitingStatus()},
			To:           OrderStatusCancelled,
			CancelReason: constants.CancelReasonPaymentOverdue,
		})
		if err != nil || !claimed {
			return err
		}
		ids, err := f.linkRepo.ListTransactionIDs(ctx, o.ID, false)
		if err != nil {
			return err
		}
		_, err = f.txRepo.CancelAwaitingTransactions(ctx, ids)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("expire order %s: %w", o.ID, err)
	}
	if !claimed {
		// 回调先一步改变了订单状态
		return false, nil
	}

	h.AfterCancelled(ctx, o, OrderStatusCancelled)
	o.Status = OrderStatusCancelled
	o.CancelReason = constants.CancelReasonPaymentOverdue
	if f.metrics != nil {
		f.metrics.SweepCancelledTotal.WithLabelValues(string(o.Kind)).Inc()
	}
	f.publish(ctx, constants.OrderEventCancelled, o, nil)
	return true, nil
}

// publish 发布订单事件，失败只记录日志
func (f *PaymentFlow) publish(ctx context.Context, eventType string, o *Order, pt *PaymentTransaction) {
	if f.publisher == nil {
		return
	}
	event := &OrderEvent{
		Type:       eventType,
		OrderID:    o.ID,
		Kind:       o.Kind,
		UserID:     o.UserID,
		Status:     string(o.Status),
		Reason:     o.CancelReason,
		OccurredAt: f.now(),
	}
	if pt != nil {
		event.TransactionID = pt.ID
		event.Order = pt.Order
		event.Amount = pt.Amount.StringFixed(2)
	}
	if err := f.publisher.PublishOrderEvent(ctx, event); err != nil {
		f.log.Warnf("PublishOrderEvent failed: type=%s, order_id=%s, error=%v", eventType, o.ID, err)
	}
}
