package biz_test

import (
	"context"
	"testing"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/constants"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paidAndCancelled 已支付后被用户取消、等待退款的商品订单
func paidAndCancelled(t *testing.T, h *harness) *biz.PaymentResult {
	t.Helper()
	res := createProductOrder(t, h, "u1")
	require.True(t, h.pay(t, res.Transaction.Order, "0").IsSuccess)
	o, err := h.product.CancelOrder(context.Background(), res.Order.ID, "u1", false)
	require.NoError(t, err)
	require.Equal(t, biz.OrderStatusCancelledAwaitingRefund, o.Status)
	return res
}

func TestRefundOrderIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := paidAndCancelled(t, h)

	out, err := h.refund.RefundOrder(ctx, biz.OrderKindProduct, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.RefundOutcomeRefunded, out.Outcome)
	assert.Equal(t, biz.OrderStatusCancelledRefunded, out.Order.Status)
	assert.True(t, out.Order.IsRefunded)

	pt := h.transaction(t, res.Transaction.ID)
	assert.Equal(t, biz.TransactionStatusRefunded, pt.Status)
	assert.True(t, pt.RevAmount.Equal(pt.Amount))
	assert.NotEmpty(t, pt.RevDesc)

	o, err := h.flow.GetOrder(ctx, biz.OrderKindProduct, res.Order.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, biz.OrderStatusCancelledRefunded, o.Status)
	for _, item := range o.Items {
		assert.Equal(t, biz.OrderStatusCancelledRefunded, item.Status)
	}

	again, err := h.refund.RefundOrder(ctx, biz.OrderKindProduct, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.RefundOutcomeRefunded, again.Outcome)
	assert.Equal(t, "already refunded", again.Message)

	query, refund := h.gateway.calls()
	assert.Equal(t, 1, query)
	assert.Equal(t, 1, refund)
	assert.Equal(t, 1, h.publisher.count(constants.OrderEventRefunded))
}

func TestRefundReconcilesWhenGatewayAlreadyRefunded(t *testing.T) {
	h := newHarness(t)
	res := paidAndCancelled(t, h)
	h.gateway.status = &biz.PaymentStatusResult{
		Status:  "paid",
		Refunds: []biz.RefundAttempt{{Status: constants.RefundAttemptRefunded, Amount: res.Order.Total}},
	}

	out, err := h.refund.RefundOrder(context.Background(), biz.OrderKindProduct, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.RefundOutcomeRefunded, out.Outcome)
	assert.Equal(t, biz.TransactionStatusRefunded, h.transaction(t, res.Transaction.ID).Status)

	_, refund := h.gateway.calls()
	assert.Zero(t, refund)
}

func TestQueuedRefundSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := paidAndCancelled(t, h)
	h.gateway.refundCode = "1"

	out, err := h.refund.RefundOrder(ctx, biz.OrderKindProduct, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.RefundOutcomeQueued, out.Outcome)
	assert.Equal(t, biz.TransactionStatusAwaitingRefund, h.transaction(t, res.Transaction.ID).Status)
	require.Len(t, h.publisher.retries, 1)
	retry := h.publisher.retries[0]
	assert.Equal(t, res.Order.ID, retry.OrderID)
	assert.Equal(t, biz.OrderKindProduct, retry.Kind)
	assert.Equal(t, 1, retry.Attempt)

	// 网关退款仍在处理中时不再发起新的退款请求
	h.gateway.status = &biz.PaymentStatusResult{
		Status:  "paid",
		Refunds: []biz.RefundAttempt{{Status: constants.RefundAttemptWaiting}},
	}
	require.NoError(t, h.refund.RetryRefund(ctx, retry))
	_, refund := h.gateway.calls()
	assert.Equal(t, 1, refund)
	require.Len(t, h.publisher.retries, 2)
	assert.Equal(t, 2, h.publisher.retries[1].Attempt)

	h.gateway.status = &biz.PaymentStatusResult{
		Status:  "paid",
		Refunds: []biz.RefundAttempt{{Status: constants.RefundAttemptRefunded}},
	}
	require.NoError(t, h.refund.RetryRefund(ctx, h.publisher.retries[1]))
	assert.Equal(t, biz.TransactionStatusRefunded, h.transaction(t, res.Transaction.ID).Status)

	o, err := h.flow.GetOrder(ctx, biz.OrderKindProduct, res.Order.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, biz.OrderStatusCancelledRefunded, o.Status)

	// 已完成的订单再次收到重试消息时直接返回
	require.NoError(t, h.refund.RetryRefund(ctx, retry))
	_, refund = h.gateway.calls()
	assert.Equal(t, 1, refund)
}

func TestRefundRequiresCancelledPaidOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := createProductOrder(t, h, "u1")

	_, err := h.refund.RefundOrder(ctx, biz.OrderKindProduct, res.Order.ID)
	assert.True(t, paymentErrors.IsValidation(err))

	require.True(t, h.pay(t, res.Transaction.Order, "0").IsSuccess)
	_, err = h.refund.RefundOrder(ctx, biz.OrderKindProduct, res.Order.ID)
	assert.True(t, paymentErrors.IsValidation(err))

	_, err = h.refund.RefundOrder(ctx, biz.OrderKindProduct, "missing")
	assert.True(t, paymentErrors.IsValidation(err))

	// 不需要退款的重试消息被丢弃而不是重投
	assert.NoError(t, h.refund.RetryRefund(ctx, &biz.RefundRetryEvent{OrderID: res.Order.ID, Kind: biz.OrderKindProduct, Attempt: 1}))

	query, refund := h.gateway.calls()
	assert.Zero(t, query)
	assert.Zero(t, refund)
}
