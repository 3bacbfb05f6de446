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
	"github.com/shopspring/decimal"
)

// CreateProductOrderRequest 从购物车下单
type CreateProductOrderRequest struct {
	UserID string
	Email  string
	Phone  string
}

// ProductOrderUseCase 商品订单业务逻辑
type ProductOrderUseCase struct {
	flow *PaymentFlow
	repo ProductOrderRepo
	cart CartRepo
	log  *log.Helper
}

// NewProductOrderUseCase 创建商品订单 UseCase
func NewProductOrderUseCase(flow *PaymentFlow, repo ProductOrderRepo, cart CartRepo, logger log.Logger) *ProductOrderUseCase {
	uc := &ProductOrderUseCase{
		flow: flow,
		repo: repo,
		cart: cart,
		log:  log.NewHelper(logger),
	}
	flow.register(OrderKindProduct, uc)
	return uc
}

// CreateProductOrder 购物车 -> 订单 -> 支付流水
func (uc *ProductOrderUseCase) CreateProductOrder(ctx context.Context, req *CreateProductOrderRequest) (*PaymentResult, error) {
	startTime := time.Now()
	defer func() {
		if uc.flow.metrics != nil {
			uc.flow.metrics.OrderCreateDuration.WithLabelValues(string(OrderKindProduct)).Observe(time.Since(startTime).Seconds())
		}
	}()

	if req.UserID == "" {
		return nil, paymentErrors.Validation("user id is required")
	}
	items, err := uc.cart.ListCartItems(ctx, req.UserID)
	if err != nil {
		return nil, paymentErrors.Internal(err, "load cart failed")
	}
	if len(items) == 0 {
		return nil, paymentErrors.Validation("cart is empty")
	}

	now := uc.flow.now()
	paidUntil := now.Add(uc.flow.conf.PaymentWindow)
	o := &Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Kind:      OrderKindProduct,
		Status:    OrderStatusCreatedAwaitingPayment,
		IsActive:  true,
		Email:     req.Email,
		Phone:     req.Phone,
		PaidUntil: &paidUntil,
		CreatedAt: now,
	}
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, paymentErrors.Validation("invalid quantity for product %s", item.ProductID)
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		o.Items = append(o.Items, &OrderItem{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Status:    OrderStatusCreatedAwaitingPayment,
		})
	}
	o.Total = total

	if err := uc.repo.CreateProductOrder(ctx, o); err != nil {
		uc.log.Errorf("CreateProductOrder failed: user_id=%s, error=%v", req.UserID, err)
		return nil, paymentErrors.Internal(err, "create order failed")
	}
	if err := uc.cart.ClearCart(ctx, req.UserID); err != nil {
		uc.log.Warnf("ClearCart failed: user_id=%s, order_id=%s, error=%v", req.UserID, o.ID, err)
	}
	uc.log.Infof("Product order created: order_id=%s, user_id=%s, items=%d, total=%s", o.ID, o.UserID, len(o.Items), o.Total.StringFixed(2))

	return uc.flow.startPaymentSoft(ctx, o, constants.LinkTypeInitial, ""), nil
}

// RecreatePayment 重新发起支付
func (uc *ProductOrderUseCase) RecreatePayment(ctx context.Context, orderID, userID string) (*PaymentResult, error) {
	return uc.flow.RecreatePayment(ctx, OrderKindProduct, orderID, userID)
}

// CancelOrder 取消订单
func (uc *ProductOrderUseCase) CancelOrder(ctx context.Context, orderID, userID string, force bool) (*Order, error) {
	return uc.flow.CancelOrder(ctx, OrderKindProduct, orderID, userID, force)
}

func (uc *ProductOrderUseCase) Orders() OrderRepo { return uc.repo }

func (uc *ProductOrderUseCase) PaymentDescription(o *Order) (string, string) {
	parts := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		parts = append(parts, fmt.Sprintf("%s x%d", item.ProductID, item.Quantity))
	}
	return fmt.Sprintf("Order %s", o.ID), strings.Join(parts, ", ")
}

func (uc *ProductOrderUseCase) AfterPaid(ctx context.Context, o *Order, _ *PaymentTransaction) (OrderStatus, error) {
	if err := uc.repo.MarkItemsPaid(ctx, o.ID); err != nil {
		return OrderStatusPaid, err
	}
	return OrderStatusPaid, nil
}

// AfterCancelled 明细状态与订单保持一致
func (uc *ProductOrderUseCase) AfterCancelled(ctx context.Context, o *Order, to OrderStatus) {
	uc.setItemsStatus(ctx, o.ID, to)
}

func (uc *ProductOrderUseCase) AfterRefunded(ctx context.Context, o *Order) {
	uc.setItemsStatus(ctx, o.ID, OrderStatusCancelledRefunded)
}

func (uc *ProductOrderUseCase) setItemsStatus(ctx context.Context, orderID string, status OrderStatus) {
	if err := uc.repo.SetItemsStatus(ctx, orderID, status); err != nil {
		uc.log.Errorf("SetItemsStatus failed: order_id=%s, status=%s, error=%v", orderID, status, err)
	}
}

func (uc *ProductOrderUseCase) BeforeRefund(ctx context.Context, o *Order) error { return nil }
