package service

import (
	"context"
	"net/url"

	"order-payment-service/internal/biz"
	"order-payment-service/internal/pkg/signature"

	pkgUtils "github.com/gaoyong06/go-pkg/utils"
	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationPaymentCallbackGet  = "/order.v1.PaymentCallbackService/AcceptGet"
	OperationPaymentCallbackPost = "/order.v1.PaymentCallbackService/AcceptPost"
)

// CallbackReply 回调应答，HTTP 状态总是 200
type CallbackReply struct {
	IsSuccess bool   `json:"is_success"`
	Message   string `json:"message"`
	OrderID   string `json:"order_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// PaymentCallbackService 网关 BACKREF 回调，无需用户鉴权
type PaymentCallbackService struct {
	uc  *biz.PaymentCallbackUseCase
	log *log.Helper
}

// NewPaymentCallbackService 创建 PaymentCallbackService
func NewPaymentCallbackService(uc *biz.PaymentCallbackUseCase, logger log.Logger) *PaymentCallbackService {
	return &PaymentCallbackService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// AcceptGet 参数来自 query string，res_desc 已 URL 解码
func (s *PaymentCallbackService) AcceptGet(ctx context.Context, q url.Values) (*CallbackReply, error) {
	s.log.Infof("GET callback received: order=%s, res_code=%s, client_ip=%s", q.Get("order"), q.Get("res_code"), pkgUtils.GetClientIP(ctx))
	p, err := signature.NewGetCallback(signature.GetCallback{
		Order:    q.Get("order"),
		MpiOrder: q.Get("mpi_order"),
		Rrn:      q.Get("rrn"),
		ResCode:  q.Get("res_code"),
		Amount:   q.Get("amount"),
		Currency: q.Get("currency"),
		ResDesc:  q.Get("res_desc"),
		Sign:     q.Get("sign"),
	})
	if err != nil {
		s.log.Warnf("Invalid GET callback: error=%v", err)
		return &CallbackReply{IsSuccess: false, Message: err.Error(), Reason: errors.Reason(err)}, nil
	}
	return toCallbackReply(s.uc.AcceptGetCallback(ctx, p)), nil
}

// AcceptPost 参数来自表单
func (s *PaymentCallbackService) AcceptPost(ctx context.Context, form url.Values) (*CallbackReply, error) {
	s.log.Infof("POST callback received: order=%s, res_code=%s, client_ip=%s", form.Get("order"), form.Get("res_code"), pkgUtils.GetClientIP(ctx))
	p, err := signature.NewPostCallback(signature.PostCallback{
		Order:    form.Get("order"),
		MpiOrder: form.Get("mpi_order"),
		Amount:   form.Get("amount"),
		Currency: form.Get("currency"),
		ResCode:  form.Get("res_code"),
		Rc:       form.Get("rc"),
		Rrn:      form.Get("rrn"),
		Sign:     form.Get("sign"),
	})
	if err != nil {
		s.log.Warnf("Invalid POST callback: error=%v", err)
		return &CallbackReply{IsSuccess: false, Message: err.Error(), Reason: errors.Reason(err)}, nil
	}
	return toCallbackReply(s.uc.AcceptPostCallback(ctx, p)), nil
}

func toCallbackReply(res *biz.CallbackResult) *CallbackReply {
	return &CallbackReply{
		IsSuccess: res.IsSuccess,
		Message:   res.Message,
		OrderID:   res.OrderID,
		Status:    string(res.Status),
		Reason:    errors.Reason(res.Err),
	}
}

// RegisterPaymentCallbackHTTPServer 注册回调路由
func RegisterPaymentCallbackHTTPServer(srv *http.Server, s *PaymentCallbackService) {
	r := srv.Route("/")
	r.GET("/v1/payments/callback", func(ctx http.Context) error {
		q := ctx.Query()
		return serve(ctx, OperationPaymentCallbackGet, &q, func(ctx context.Context, in *url.Values) (*CallbackReply, error) {
			return s.AcceptGet(ctx, *in)
		})
	})
	r.POST("/v1/payments/callback", func(ctx http.Context) error {
		form := ctx.Form()
		return serve(ctx, OperationPaymentCallbackPost, &form, func(ctx context.Context, in *url.Values) (*CallbackReply, error) {
			return s.AcceptPost(ctx, *in)
		})
	})
}
