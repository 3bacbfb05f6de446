package service

import (
	"context"

	"order-payment-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationCreateProductOrder = "/order.v1.OrderService/CreateProductOrder"
	OperationCreateBooking      = "/order.v1.OrderService/CreateBooking"
	OperationCreateTicketOrder  = "/order.v1.OrderService/CreateTicketOrder"
	OperationGetOrder           = "/order.v1.OrderService/GetOrder"
	OperationRecreatePayment    = "/order.v1.OrderService/RecreatePayment"
	OperationCancelOrder        = "/order.v1.OrderService/CancelOrder"
)

// OrderService 面向用户的下单/重新支付/取消
type OrderService struct {
	flow    *biz.PaymentFlow
	product *biz.ProductOrderUseCase
	booking *biz.BookingUseCase
	ticket  *biz.TicketOrderUseCase
	log     *log.Helper
}

// NewOrderService 创建 OrderService
func NewOrderService(
	flow *biz.PaymentFlow,
	product *biz.ProductOrderUseCase,
	booking *biz.BookingUseCase,
	ticket *biz.TicketOrderUseCase,
	logger log.Logger,
) *OrderService {
	return &OrderService{
		flow:    flow,
		product: product,
		booking: booking,
		ticket:  ticket,
		log:     log.NewHelper(logger),
	}
}

// CreateProductOrderRequest 从购物车下单
type CreateProductOrderRequest struct {
	UserID string `json:"-"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

// CreateBookingRequest 预订场地
type CreateBookingRequest struct {
	UserID     string `json:"-"`
	ScheduleID string `json:"schedule_id"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// CreateTicketOrderRequest 购票
type CreateTicketOrderRequest struct {
	UserID string   `json:"-"`
	Show   string   `json:"show"`
	Seats  []string `json:"seats"`
	Lang   string   `json:"lang"`
	Email  string   `json:"email"`
	Phone  string   `json:"phone"`
}

// OrderRequest 按类型定位订单；UserID 为空时以 GuestEmail 校验匿名订单归属
type OrderRequest struct {
	UserID     string        `json:"-"`
	GuestEmail string        `json:"-"`
	Kind       biz.OrderKind `json:"-"`
	OrderID    string        `json:"-"`
	Force      bool          `json:"force"`
}

func (r *OrderRequest) ownerContext(ctx context.Context) context.Context {
	if r.UserID == "" {
		return biz.NewGuestContext(ctx, r.GuestEmail)
	}
	return ctx
}

func (s *OrderService) CreateProductOrder(ctx context.Context, req *CreateProductOrderRequest) (*PaymentReply, error) {
	res, err := s.product.CreateProductOrder(ctx, &biz.CreateProductOrderRequest{
		UserID: req.UserID,
		Email:  req.Email,
		Phone:  req.Phone,
	})
	if err != nil {
		s.log.Errorf("CreateProductOrder failed: user_id=%s, error=%v", req.UserID, err)
		return nil, err
	}
	return toPaymentReply(res), nil
}

func (s *OrderService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*PaymentReply, error) {
	res, err := s.booking.CreateBooking(ctx, &biz.CreateBookingRequest{
		UserID:     req.UserID,
		ScheduleID: req.ScheduleID,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		s.log.Errorf("CreateBooking failed: user_id=%s, schedule_id=%s, error=%v", req.UserID, req.ScheduleID, err)
		return nil, err
	}
	return toPaymentReply(res), nil
}

func (s *OrderService) CreateTicketOrder(ctx context.Context, req *CreateTicketOrderRequest) (*PaymentReply, error) {
	res, err := s.ticket.CreateTicketOrder(ctx, &biz.CreateTicketOrderRequest{
		UserID: req.UserID,
		Show:   req.Show,
		Seats:  req.Seats,
		Lang:   req.Lang,
		Email:  req.Email,
		Phone:  req.Phone,
	})
	if err != nil {
		s.log.Errorf("CreateTicketOrder failed: user_id=%s, show=%s, error=%v", req.UserID, req.Show, err)
		return nil, err
	}
	return toPaymentReply(res), nil
}

func (s *OrderService) GetOrder(ctx context.Context, req *OrderRequest) (*OrderReply, error) {
	o, err := s.flow.GetOrder(req.ownerContext(ctx), req.Kind, req.OrderID, req.UserID)
	if err != nil {
		return nil, err
	}
	return toOrderReply(o), nil
}

// RecreatePayment 作废旧支付并生成新的支付参数
func (s *OrderService) RecreatePayment(ctx context.Context, req *OrderRequest) (*PaymentReply, error) {
	res, err := s.flow.RecreatePayment(req.ownerContext(ctx), req.Kind, req.OrderID, req.UserID)
	if err != nil {
		s.log.Errorf("RecreatePayment failed: kind=%s, order_id=%s, error=%v", req.Kind, req.OrderID, err)
		return nil, err
	}
	return toPaymentReply(res), nil
}

// CancelOrder 未支付订单取消（force 时删除），已支付订单进入待退款
func (s *OrderService) CancelOrder(ctx context.Context, req *OrderRequest) (*OrderReply, error) {
	o, err := s.flow.CancelOrder(req.ownerContext(ctx), req.Kind, req.OrderID, req.UserID, req.Force)
	if err != nil {
		s.log.Errorf("CancelOrder failed: kind=%s, order_id=%s, error=%v", req.Kind, req.OrderID, err)
		return nil, err
	}
	return toOrderReply(o), nil
}

// RegisterOrderHTTPServer 注册用户侧路由
func RegisterOrderHTTPServer(srv *http.Server, s *OrderService) {
	r := srv.Route("/")
	r.POST("/v1/product-orders", func(ctx http.Context) error {
		var in CreateProductOrderRequest
		if err := bindWithUser(ctx, &in, &in.UserID); err != nil {
			return err
		}
		return serve(ctx, OperationCreateProductOrder, &in, s.CreateProductOrder)
	})
	r.POST("/v1/bookings", func(ctx http.Context) error {
		var in CreateBookingRequest
		if err := bindWithUser(ctx, &in, &in.UserID); err != nil {
			return err
		}
		return serve(ctx, OperationCreateBooking, &in, s.CreateBooking)
	})
	r.POST("/v1/ticket-orders", func(ctx http.Context) error {
		// 允许匿名购票，订单 user_id 为空
		var in CreateTicketOrderRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		in.UserID = ctx.Header().Get(HeaderUserID)
		return serve(ctx, OperationCreateTicketOrder, &in, s.CreateTicketOrder)
	})
	r.GET("/v1/orders/{kind}/{id}", func(ctx http.Context) error {
		in, err := bindOrderRequest(ctx, false)
		if err != nil {
			return err
		}
		return serve(ctx, OperationGetOrder, in, s.GetOrder)
	})
	r.POST("/v1/orders/{kind}/{id}/recreate-payment", func(ctx http.Context) error {
		in, err := bindOrderRequest(ctx, false)
		if err != nil {
			return err
		}
		return serve(ctx, OperationRecreatePayment, in, s.RecreatePayment)
	})
	r.POST("/v1/orders/{kind}/{id}/cancel", func(ctx http.Context) error {
		in, err := bindOrderRequest(ctx, true)
		if err != nil {
			return err
		}
		return serve(ctx, OperationCancelOrder, in, s.CancelOrder)
	})
}

func bindWithUser(ctx http.Context, in interface{}, uid *string) error {
	id, err := userID(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Bind(in); err != nil {
		return err
	}
	*uid = id
	return nil
}

func bindOrderRequest(ctx http.Context, withBody bool) (*OrderRequest, error) {
	id, guestEmail, err := ownerOf(ctx)
	if err != nil {
		return nil, err
	}
	kind, err := orderKind(ctx)
	if err != nil {
		return nil, err
	}
	in := &OrderRequest{}
	if withBody && ctx.Request().ContentLength > 0 {
		if err := ctx.Bind(in); err != nil {
			return nil, err
		}
	}
	in.UserID, in.GuestEmail, in.Kind, in.OrderID = id, guestEmail, kind, ctx.Vars().Get("id")
	return in, nil
}
