package biz

import (
	"context"
	"encoding/json"
	"time"

	"order-payment-service/internal/constants"

	"github.com/shopspring/decimal"
)

// OrderKind 订单类型，与支付流水的 transaction_type 取值一致
type OrderKind string

const (
	OrderKindProduct OrderKind = constants.TransactionTypeMerchandise
	OrderKindBooking OrderKind = constants.TransactionTypeBooking
	OrderKindTicket  OrderKind = constants.TransactionTypeTicket
)

// ParseOrderKind 解析订单类型
func ParseOrderKind(s string) (OrderKind, bool) {
	switch k := OrderKind(s); k {
	case OrderKindProduct, OrderKindBooking, OrderKindTicket:
		return k, true
	}
	return "", false
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusCreatedAwaitingPayment   OrderStatus = "created_awaiting_payment"
	OrderStatusBookingCreated           OrderStatus = "booking_created" // 票务订单的待支付状态
	OrderStatusPaid                     OrderStatus = "paid"
	OrderStatusPaidAwaitingConfirmation OrderStatus = "paid_awaiting_confirmation"
	OrderStatusPaidConfirmed            OrderStatus = "paid_confirmed"
	OrderStatusCancelled                OrderStatus = "cancelled"
	OrderStatusCancelledAwaitingRefund  OrderStatus = "cancelled_awaiting_refund"
	OrderStatusCancelledRefunded        OrderStatus = "cancelled_refunded"
)

// AwaitingStatus 待支付状态
func (k OrderKind) AwaitingStatus() OrderStatus {
	if k == OrderKindTicket {
		return OrderStatusBookingCreated
	}
	return OrderStatusCreatedAwaitingPayment
}

// PaidClaimStatus 支付回调抢占订单时写入的状态
func (k OrderKind) PaidClaimStatus() OrderStatus {
	if k == OrderKindTicket {
		return OrderStatusPaidAwaitingConfirmation
	}
	return OrderStatusPaid
}

// PaidStatuses 视为已支付的状态
func (k OrderKind) PaidStatuses() []OrderStatus {
	if k == OrderKindTicket {
		return []OrderStatus{OrderStatusPaidAwaitingConfirmation, OrderStatusPaidConfirmed}
	}
	return []OrderStatus{OrderStatusPaid}
}

// IsPaidStatus reports whether s is one of the kind's paid statuses.
func (k OrderKind) IsPaidStatus(s OrderStatus) bool {
	for _, p := range k.PaidStatuses() {
		if p == s {
			return true
		}
	}
	return false
}

// Flags 状态对应的 is_active/is_paid/is_canceled/is_refunded
func (s OrderStatus) Flags() (isActive, isPaid, isCanceled, isRefunded bool) {
	switch s {
	case OrderStatusCreatedAwaitingPayment, OrderStatusBookingCreated:
		return true, false, false, false
	case OrderStatusPaid, OrderStatusPaidAwaitingConfirmation, OrderStatusPaidConfirmed:
		return true, true, false, false
	case OrderStatusCancelled:
		return false, false, true, false
	case OrderStatusCancelledAwaitingRefund:
		return false, true, true, false
	case OrderStatusCancelledRefunded:
		return false, true, true, true
	default:
		return false, false, false, false
	}
}

// Order 订单（商品订单、场地预订、票务订单共用）
type Order struct {
	ID           string
	UserID       string
	Kind         OrderKind
	Status       OrderStatus
	IsActive     bool
	IsPaid       bool
	IsCanceled   bool
	IsRefunded   bool
	Total        decimal.Decimal
	Email        string
	Phone        string
	PaidUntil    *time.Time // 票务订单对应 expired_at
	PaidAt       *time.Time
	PaidOrder    string
	CancelReason string
	CreatedAt    time.Time

	Items   []*OrderItem    // 商品订单
	Booking *BookingDetails // 场地预订
	Ticket  *TicketDetails  // 票务订单
}

// OrderItem 商品订单明细
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	Status    OrderStatus
	IsPaid    bool
}

// BookingDetails 场地预订信息
type BookingDetails struct {
	ScheduleID string
	StartAt    time.Time
}

// TicketDetails 票务订单信息
type TicketDetails struct {
	Sale           string
	Show           string
	Seats          []string
	ReservationID  string
	Lang           string
	Expire         int // 票务系统给出的保留秒数
	Tickets        json.RawMessage
	IsConfirmed    bool
	BrokerRefunded bool
}

// Deadline 支付截止时间；场地预订取截止时间与开场时间较早者
func (o *Order) Deadline() time.Time {
	var deadline time.Time
	if o.PaidUntil != nil {
		deadline = *o.PaidUntil
	}
	if o.Booking != nil && !o.Booking.StartAt.IsZero() && (deadline.IsZero() || o.Booking.StartAt.Before(deadline)) {
		deadline = o.Booking.StartAt
	}
	return deadline
}

// Expired 支付窗口是否已过
func (o *Order) Expired(now time.Time) bool {
	deadline := o.Deadline()
	return !deadline.IsZero() && !now.Before(deadline)
}

// OrderTransition 条件状态变更：仅当当前状态属于 From 时生效
type OrderTransition struct {
	From         []OrderStatus
	To           OrderStatus
	PaidAt       *time.Time
	PaidOrder    string
	CancelReason string
}

// OrderRepo 各类订单共有的数据层接口
type OrderRepo interface {
	// GetOrder 不存在返回 nil, nil
	GetOrder(ctx context.Context, id string) (*Order, error)
	// TransitionOrder 条件更新，返回是否命中
	TransitionOrder(ctx context.Context, id string, t *OrderTransition) (bool, error)
	// ListExpiredOrders 仍在等待支付且已过截止时间的订单
	ListExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*Order, error)
	// DeleteOrder 硬删除订单及明细
	DeleteOrder(ctx context.Context, id string) error
}

// CartItem 购物车条目
type CartItem struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// ProductOrderRepo 商品订单数据层接口
type ProductOrderRepo interface {
	OrderRepo
	CreateProductOrder(ctx context.Context, o *Order) error
	MarkItemsPaid(ctx context.Context, orderID string) error
	SetItemsStatus(ctx context.Context, orderID string, status OrderStatus) error
}

// CartRepo 购物车数据层接口
type CartRepo interface {
	ListCartItems(ctx context.Context, userID string) ([]*CartItem, error)
	ClearCart(ctx context.Context, userID string) error
}

// ScheduleSlot 场地排期
type ScheduleSlot struct {
	ID       string
	StartAt  time.Time
	Price    decimal.Decimal
	IsActive bool
}

// BookingRepo 场地预订数据层接口
type BookingRepo interface {
	OrderRepo
	CreateBooking(ctx context.Context, o *Order) error
	GetScheduleSlot(ctx context.Context, id string) (*ScheduleSlot, error)
	// HasLiveBooking 排期是否已有待支付或已支付的预订
	HasLiveBooking(ctx context.Context, scheduleID string) (bool, error)
}

// TicketOrderRepo 票务订单数据层接口
type TicketOrderRepo interface {
	OrderRepo
	CreateTicketOrder(ctx context.Context, o *Order) error
	// ConfirmTicketOrder paid_awaiting_confirmation -> paid_confirmed 并保存票据
	ConfirmTicketOrder(ctx context.Context, id string, tickets json.RawMessage) (bool, error)
	MarkBrokerRefunded(ctx context.Context, id string) error
	ListAwaitingConfirmation(ctx context.Context, limit int) ([]*Order, error)
}
