package biz

import (
	"context"
	"fmt"

	"order-payment-service/internal/constants"
	"order-payment-service/internal/pkg/signature"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// CallbackResult 回调处理结果。回调接口总是返回 200，失败只体现在 IsSuccess
type CallbackResult struct {
	IsSuccess bool
	Message   string
	OrderID   string
	Status    OrderStatus
	Err       error // 失败原因，kratos 错误
}

// PaymentCallbackUseCase 网关回调处理
type PaymentCallbackUseCase struct {
	flow *PaymentFlow
	log  *log.Helper
}

// NewPaymentCallbackUseCase 创建回调 UseCase；依赖各订单 UseCase 以保证它们已注册
func NewPaymentCallbackUseCase(
	flow *PaymentFlow,
	_ *ProductOrderUseCase,
	_ *BookingUseCase,
	_ *TicketOrderUseCase,
	logger log.Logger,
) *PaymentCallbackUseCase {
	return &PaymentCallbackUseCase{
		flow: flow,
		log:  log.NewHelper(logger),
	}
}

// AcceptGetCallback BACKREF GET 回调
func (uc *PaymentCallbackUseCase) AcceptGetCallback(ctx context.Context, p *signature.GetCallback) *CallbackResult {
	if !uc.flow.gateway.VerifyCallback(p, p.Sign) {
		return uc.reject("", paymentErrors.Unauthorized("invalid signature"), "order=%s", p.Order)
	}
	return uc.accept(ctx, &GatewayResult{
		Order:    p.Order,
		MpiOrder: p.MpiOrder,
		Rrn:      p.Rrn,
		ResCode:  p.ResCode,
		ResDesc:  p.ResDesc,
		Sign:     p.Sign,
	})
}

// AcceptPostCallback BACKREF POST 回调
func (uc *PaymentCallbackUseCase) AcceptPostCallback(ctx context.Context, p *signature.PostCallback) *CallbackResult {
	if !uc.flow.gateway.VerifyCallback(p, p.Sign) {
		return uc.reject("", paymentErrors.Unauthorized("invalid signature"), "order=%s", p.Order)
	}
	return uc.accept(ctx, &GatewayResult{
		Order:    p.Order,
		MpiOrder: p.MpiOrder,
		Rrn:      p.Rrn,
		ResCode:  p.ResCode,
		Sign:     p.Sign,
	})
}

func (uc *PaymentCallbackUseCase) reject(kind OrderKind, err error, format string, args ...interface{}) *CallbackResult {
	msg := paymentErrors.Message(err)
	uc.log.Warnf("Callback rejected: %s, %s", msg, fmt.Sprintf(format, args...))
	uc.count(kind, constants.ResultRejected)
	return &CallbackResult{IsSuccess: false, Message: msg, Err: err}
}

func (uc *PaymentCallbackUseCase) count(kind OrderKind, result string) {
	if uc.flow.metrics == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	uc.flow.metrics.CallbackTotal.WithLabelValues(label, result).Inc()
}

// accept 签名已校验。流水与订单的状态变更都是条件更新，重复回调不会再次触发副作用
func (uc *PaymentCallbackUseCase) accept(ctx context.Context, res *GatewayResult) (result *CallbackResult) {
	var kind OrderKind
	defer func() {
		if r := recover(); r != nil {
			uc.log.Errorf("Callback panic: order=%s, panic=%v", res.Order, r)
			uc.count(kind, constants.ResultFailed)
			err := paymentErrors.Internal(nil, "internal error: %v", r)
			result = &CallbackResult{IsSuccess: false, Message: err.Message, Err: err}
		}
	}()

	f := uc.flow
	pt, err := f.txRepo.GetTransactionByOrder(ctx, res.Order)
	if err != nil {
		return uc.fail(kind, res.Order, err)
	}
	if pt == nil {
		return uc.reject(kind, paymentErrors.Validation("transaction not found"), "order=%s", res.Order)
	}
	kind = pt.TransactionType

	link, err := f.linkRepo.GetActiveLinkByTransaction(ctx, pt.ID)
	if err != nil {
		return uc.fail(kind, res.Order, err)
	}
	if link == nil {
		uc.detectLatePayment(kind, pt, res, "no active link")
		return uc.reject(kind, paymentErrors.Validation("no active order for transaction"), "order=%s, transaction_id=%s", res.Order, pt.ID)
	}
	h, err := f.handler(kind)
	if err != nil {
		return uc.fail(kind, res.Order, err)
	}
	o, err := h.Orders().GetOrder(ctx, link.OrderID)
	if err != nil {
		return uc.fail(kind, res.Order, err)
	}
	if o == nil {
		return uc.reject(kind, paymentErrors.Validation("order not found"), "order=%s, order_id=%s", res.Order, link.OrderID)
	}

	status := TransactionStatusFailed
	if res.IsPaid() {
		status = TransactionStatusPaid
	}
	// 流水与订单在同一事务内推进：订单更新失败时流水回滚，网关重试回调可以重新处理
	now := f.now()
	var applied, claimed bool
	err = f.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		applied, err = f.txRepo.ApplyGatewayResult(ctx, pt.ID, status, res)
		if err != nil || !applied || !res.IsPaid() {
			return err
		}
		claimed, err = h.Orders().TransitionOrder(ctx, o.ID, &OrderTransition{
			From:      []OrderStatus{kind.AwaitingStatus()},
			To:        kind.PaidClaimStatus(),
			PaidAt:    &now,
			PaidOrder: pt.Order,
		})
		return err
	})
	if err != nil {
		return uc.fail(kind, res.Order, err)
	}
	if !applied {
		if cur, err := f.txRepo.GetTransaction(ctx, pt.ID); err == nil && cur != nil {
			pt = cur
		}
		uc.detectLatePayment(kind, pt, res, "transaction already "+string(pt.Status))
		uc.log.Infof("Duplicate callback ignored: order=%s, transaction_status=%s, order_status=%s", res.Order, pt.Status, o.Status)
		uc.count(kind, constants.ResultDuplicate)
		return &CallbackResult{IsSuccess: true, Message: "already processed", OrderID: o.ID, Status: o.Status}
	}

	if !res.IsPaid() {
		uc.log.Infof("Payment declined: order=%s, order_id=%s, res_code=%s, res_desc=%s", res.Order, o.ID, res.ResCode, res.ResDesc)
		uc.count(kind, constants.ResultSuccess)
		return &CallbackResult{IsSuccess: true, Message: "payment declined: " + res.ResDesc, OrderID: o.ID, Status: o.Status}
	}

	if !claimed {
		// 流水已记为 paid，但订单已离开待支付状态（取消/超时），需要人工退款
		uc.detectLatePayment(kind, pt, res, "order already "+string(o.Status))
		uc.count(kind, constants.ResultDuplicate)
		return &CallbackResult{IsSuccess: true, Message: "payment recorded, order is no longer awaiting payment", OrderID: o.ID, Status: o.Status}
	}
	o.Status = kind.PaidClaimStatus()
	o.PaidAt = &now
	o.PaidOrder = pt.Order

	final, err := h.AfterPaid(ctx, o, pt)
	o.Status = final
	if err != nil {
		uc.log.Errorf("AfterPaid failed: order_id=%s, order=%s, status=%s, error=%v", o.ID, pt.Order, final, err)
		uc.count(kind, constants.ResultFailed)
		f.publish(ctx, constants.OrderEventPaid, o, pt)
		return &CallbackResult{IsSuccess: false, Message: err.Error(), OrderID: o.ID, Status: final, Err: err}
	}

	uc.log.Infof("Payment accepted: order=%s, order_id=%s, kind=%s, status=%s", pt.Order, o.ID, kind, final)
	uc.count(kind, constants.ResultSuccess)
	f.publish(ctx, constants.OrderEventPaid, o, pt)
	return &CallbackResult{IsSuccess: true, Message: "ok", OrderID: o.ID, Status: final}
}

func (uc *PaymentCallbackUseCase) fail(kind OrderKind, order string, err error) *CallbackResult {
	uc.log.Errorf("Callback failed: order=%s, error=%v", order, err)
	uc.count(kind, constants.ResultFailed)
	return &CallbackResult{IsSuccess: false, Message: err.Error(), Err: err}
}

// detectLatePayment 非待支付状态的流水收到支付成功回调
func (uc *PaymentCallbackUseCase) detectLatePayment(kind OrderKind, pt *PaymentTransaction, res *GatewayResult, why string) {
	if !res.IsPaid() || pt.Status == TransactionStatusPaid {
		return
	}
	uc.log.Warnf("Late payment: order=%s, transaction_id=%s, kind=%s, reason=%s, manual refund required", pt.Order, pt.ID, kind, why)
	if uc.flow.metrics != nil {
		uc.flow.metrics.LatePaymentTotal.WithLabelValues(string(kind)).Inc()
	}
}
