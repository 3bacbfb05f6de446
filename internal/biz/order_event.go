package biz

import "time"

// OrderEvent is the message sent to RocketMQ after an order changes state.
type OrderEvent struct {
	Type          string    `json:"type"` // order.paid/order.cancelled/order.refunded
	OrderID       string    `json:"order_id"`
	Kind          OrderKind `json:"kind"`
	UserID        string    `json:"user_id,omitempty"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Order         string    `json:"order,omitempty"` // gateway order number
	Amount        string    `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RefundRetryEvent asks the refund consumer to run the refund use-case again
// for an order whose gateway refund was queued.
type RefundRetryEvent struct {
	OrderID     string    `json:"order_id"`
	Kind        OrderKind `json:"kind"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
