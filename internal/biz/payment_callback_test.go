package biz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-payment-service/internal/biz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// failNextUpdate 让下一次对 table 的 UPDATE 返回错误
func (h *harness) failNextUpdate(t *testing.T, table string) {
	t.Helper()
	pending := true
	name := "test:fail_update_" + table
	require.NoError(t, h.db.Callback().Update().Before("gorm:update").Register(name, func(db *gorm.DB) {
		if pending && db.Statement.Table == table {
			pending = false
			_ = db.AddError(errors.New("transient db error"))
		}
	}))
	t.Cleanup(func() { _ = h.db.Callback().Update().Remove(name) })
}

func TestPaidCallbackRetriedAfterOrderUpdateFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := createProductOrder(t, h, "u1")
	h.failNextUpdate(t, "product_order")

	r := h.pay(t, res.Transaction.Order, "0")
	assert.False(t, r.IsSuccess)
	assert.Contains(t, r.Message, "transient db error")
	// 订单更新失败时流水一并回滚
	assert.Equal(t, biz.TransactionStatusAwaitingPayment, h.transaction(t, res.Transaction.ID).Status)

	r = h.pay(t, res.Transaction.Order, "0")
	require.True(t, r.IsSuccess, r.Message)
	assert.Equal(t, "ok", r.Message)
	assert.Equal(t, biz.OrderStatusPaid, r.Status)
	assert.Equal(t, biz.TransactionStatusPaid, h.transaction(t, res.Transaction.ID).Status)

	h.advance(25 * time.Hour)
	n, err := h.sweep.CheckProductOrderPayment(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	o, err := h.flow.GetOrder(ctx, biz.OrderKindProduct, res.Order.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, biz.OrderStatusPaid, o.Status)
	assert.Equal(t, res.Transaction.Order, o.PaidOrder)
}
