package biz_test

import (
	"testing"
	"time"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/constants"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusFlags(t *testing.T) {
	tests := []struct {
		status                           biz.OrderStatus
		active, paid, canceled, refunded bool
	}{
		{biz.OrderStatusCreatedAwaitingPayment, true, false, false, false},
		{biz.OrderStatusBookingCreated, true, false, false, false},
		{biz.OrderStatusPaid, true, true, false, false},
		{biz.OrderStatusPaidAwaitingConfirmation, true, true, false, false},
		{biz.OrderStatusPaidConfirmed, true, true, false, false},
		{biz.OrderStatusCancelled, false, false, true, false},
		{biz.OrderStatusCancelledAwaitingRefund, false, true, true, false},
		{biz.OrderStatusCancelledRefunded, false, true, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			active, paid, canceled, refunded := tt.status.Flags()
			assert.Equal(t, tt.active, active)
			assert.Equal(t, tt.paid, paid)
			assert.Equal(t, tt.canceled, canceled)
			assert.Equal(t, tt.refunded, refunded)
		})
	}
}

func TestTransactionStatusOnlyMovesForward(t *testing.T) {
	assert.True(t, biz.TransactionStatusAwaitingPayment.CanTransition(biz.TransactionStatusPaid))
	assert.True(t, biz.TransactionStatusAwaitingPayment.CanTransition(biz.TransactionStatusFailed))
	assert.True(t, biz.TransactionStatusAwaitingPayment.CanTransition(biz.TransactionStatusCancelled))
	assert.True(t, biz.TransactionStatusPaid.CanTransition(biz.TransactionStatusAwaitingRefund))
	assert.True(t, biz.TransactionStatusAwaitingRefund.CanTransition(biz.TransactionStatusRefunded))

	assert.False(t, biz.TransactionStatusPaid.CanTransition(biz.TransactionStatusAwaitingPayment))
	assert.False(t, biz.TransactionStatusPaid.CanTransition(biz.TransactionStatusRefunded))
	assert.False(t, biz.TransactionStatusFailed.CanTransition(biz.TransactionStatusPaid))
	assert.False(t, biz.TransactionStatusCancelled.CanTransition(biz.TransactionStatusPaid))
	assert.False(t, biz.TransactionStatusRefunded.CanTransition(biz.TransactionStatusPaid))
}

func TestOrderKindStatuses(t *testing.T) {
	assert.Equal(t, biz.OrderStatusBookingCreated, biz.OrderKindTicket.AwaitingStatus())
	assert.Equal(t, biz.OrderStatusPaidAwaitingConfirmation, biz.OrderKindTicket.PaidClaimStatus())
	assert.True(t, biz.OrderKindTicket.IsPaidStatus(biz.OrderStatusPaidConfirmed))
	assert.False(t, biz.OrderKindTicket.IsPaidStatus(biz.OrderStatusPaid))

	assert.Equal(t, biz.OrderStatusCreatedAwaitingPayment, biz.OrderKindBooking.AwaitingStatus())
	assert.Equal(t, biz.OrderStatusPaid, biz.OrderKindProduct.PaidClaimStatus())
	assert.False(t, biz.OrderKindProduct.IsPaidStatus(biz.OrderStatusPaidConfirmed))
}

func TestBookingDeadlineIsEarlierOfWindowAndStart(t *testing.T) {
	now := time.Now()
	paidUntil := now.Add(24 * time.Hour)
	o := &biz.Order{
		PaidUntil: &paidUntil,
		Booking:   &biz.BookingDetails{StartAt: now.Add(time.Hour)},
	}
	assert.True(t, o.Deadline().Equal(now.Add(time.Hour)))
	assert.False(t, o.Expired(now))
	assert.True(t, o.Expired(now.Add(time.Hour)))

	open := &biz.Order{}
	assert.True(t, open.Deadline().IsZero())
	assert.False(t, open.Expired(now.Add(1000*time.Hour)))
}

func TestGatewayRefundHelpers(t *testing.T) {
	st := &biz.PaymentStatusResult{Refunds: []biz.RefundAttempt{
		{Status: constants.RefundAttemptRejected},
		{Status: constants.RefundAttemptQueued},
	}}
	assert.False(t, st.IsRefunded())
	assert.True(t, st.HasPendingRefund())

	st.Refunds = append(st.Refunds, biz.RefundAttempt{Status: constants.RefundAttemptRefunded})
	assert.True(t, st.IsRefunded())

	assert.True(t, (&biz.RefundResult{Code: "0"}).Accepted())
	assert.False(t, (&biz.RefundResult{Code: "1"}).Accepted())
	assert.True(t, (&biz.GatewayResult{ResCode: "0"}).IsPaid())
	assert.False(t, (&biz.GatewayResult{ResCode: "05"}).IsPaid())
}
