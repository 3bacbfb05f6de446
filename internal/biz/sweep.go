package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
)

// SweepUseCase 定时清理超时未支付订单
type SweepUseCase struct {
	flow   *PaymentFlow
	ticket *TicketOrderUseCase
	log    *log.Helper
}

// NewSweepUseCase 创建清理 UseCase
func NewSweepUseCase(
	flow *PaymentFlow,
	_ *ProductOrderUseCase,
	_ *BookingUseCase,
	ticket *TicketOrderUseCase,
	logger log.Logger,
) *SweepUseCase {
	return &SweepUseCase{
		flow:   flow,
		ticket: ticket,
		log:    log.NewHelper(logger),
	}
}

// CheckProductOrderPayment 商品订单超时取消
func (uc *SweepUseCase) CheckProductOrderPayment(ctx context.Context) (int, error) {
	return uc.flow.SweepExpired(ctx, OrderKindProduct)
}

// CheckBookingFieldPartyRequest 场地预订超时（或已开场）取消
func (uc *SweepUseCase) CheckBookingFieldPartyRequest(ctx context.Context) (int, error) {
	return uc.flow.SweepExpired(ctx, OrderKindBooking)
}

// CheckTicketonOrderTime 票务订单超时取消，并对未确认出票的已支付订单重新确认
func (uc *SweepUseCase) CheckTicketonOrderTime(ctx context.Context) (int, error) {
	n, err := uc.flow.SweepExpired(ctx, OrderKindTicket)
	if err != nil {
		return n, err
	}
	if confirmed, err := uc.ticket.ReconfirmPending(ctx); err != nil {
		uc.log.Warnf("ReconfirmPending failed: error=%v", err)
	} else if confirmed > 0 {
		uc.log.Infof("Ticket orders reconfirmed: count=%d", confirmed)
	}
	return n, nil
}
