package biz

import (
	"context"
	"fmt"
	"time"

	"order-payment-service/internal/constants"

	paymentErrors "order-payment-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// CreateBookingRequest 预订场地排期
type CreateBookingRequest struct {
	UserID     string
	ScheduleID string
	Email      string
	Phone      string
}

// BookingUseCase 场地预订业务逻辑
type BookingUseCase struct {
	flow *PaymentFlow
	repo BookingRepo
	log  *log.Helper
}

// NewBookingUseCase 创建场地预订 UseCase
func NewBookingUseCase(flow *PaymentFlow, repo BookingRepo, logger log.Logger) *BookingUseCase {
	uc := &BookingUseCase{
		flow: flow,
		repo: repo,
		log:  log.NewHelper(logger),
	}
	flow.register(OrderKindBooking, uc)
	return uc
}

// CreateBooking 排期 -> 预订 -> 支付流水
func (uc *BookingUseCase) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*PaymentResult, error) {
	startTime := time.Now()
	defer func() {
		if uc.flow.metrics != nil {
			uc.flow.metrics.OrderCreateDuration.WithLabelValues(string(OrderKindBooking)).Observe(time.Since(startTime).Seconds())
		}
	}()

	if req.UserID == "" || req.ScheduleID == "" {
		return nil, paymentErrors.Validation("user id and schedule id are required")
	}
	slot, err := uc.repo.GetScheduleSlot(ctx, req.ScheduleID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load schedule failed")
	}
	if slot == nil || !slot.IsActive {
		return nil, paymentErrors.Validation("schedule %s not found", req.ScheduleID)
	}
	now := uc.flow.now()
	if !slot.StartAt.After(now) {
		return nil, paymentErrors.Validation("schedule %s has already started", req.ScheduleID)
	}
	busy, err := uc.repo.HasLiveBooking(ctx, slot.ID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "check schedule availability failed")
	}
	if busy {
		return nil, paymentErrors.Validation("schedule %s is already booked", req.ScheduleID)
	}

	paidUntil := now.Add(uc.flow.conf.PaymentWindow)
	if slot.StartAt.Before(paidUntil) {
		paidUntil = slot.StartAt
	}
	o := &Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Kind:      OrderKindBooking,
		Status:    OrderStatusCreatedAwaitingPayment,
		IsActive:  true,
		Total:     slot.Price,
		Email:     req.Email,
		Phone:     req.Phone,
		PaidUntil: &paidUntil,
		CreatedAt: now,
		Booking:   &BookingDetails{ScheduleID: slot.ID, StartAt: slot.StartAt},
	}
	if err := uc.repo.CreateBooking(ctx, o); err != nil {
		uc.log.Errorf("CreateBooking failed: user_id=%s, schedule_id=%s, error=%v", req.UserID, slot.ID, err)
		return nil, paymentErrors.Internal(err, "create booking failed")
	}
	uc.log.Infof("Booking created: order_id=%s, user_id=%s, schedule_id=%s", o.ID, o.UserID, slot.ID)

	return uc.flow.startPaymentSoft(ctx, o, constants.LinkTypeInitial, ""), nil
}

// RecreatePayment 重新发起支付
func (uc *BookingUseCase) RecreatePayment(ctx context.Context, orderID, userID string) (*PaymentResult, error) {
	return uc.flow.RecreatePayment(ctx, OrderKindBooking, orderID, userID)
}

// CancelOrder 取消预订
func (uc *BookingUseCase) CancelOrder(ctx context.Context, orderID, userID string, force bool) (*Order, error) {
	return uc.flow.CancelOrder(ctx, OrderKindBooking, orderID, userID, force)
}

func (uc *BookingUseCase) Orders() OrderRepo { return uc.repo }

func (uc *BookingUseCase) PaymentDescription(o *Order) (string, string) {
	desc := fmt.Sprintf("Booking %s", o.ID)
	if o.Booking == nil {
		return desc, ""
	}
	return desc, fmt.Sprintf("Field party at %s", o.Booking.StartAt.Format("2006-01-02 15:04"))
}

func (uc *BookingUseCase) AfterPaid(context.Context, *Order, *PaymentTransaction) (OrderStatus, error) {
	return OrderStatusPaid, nil
}

func (uc *BookingUseCase) AfterCancelled(context.Context, *Order, OrderStatus) {}

func (uc *BookingUseCase) BeforeRefund(context.Context, *Order) error { return nil }

func (uc *BookingUseCase) AfterRefunded(context.Context, *Order) {}
